package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/teamsync/internal/logger"
)

// ErrMissingField — в payload нет обязательного поля (обычно "_id").
var ErrMissingField = errors.New("missing required field")

func missing(entity, field string) error {
	return fmt.Errorf("%s: %w %q", entity, ErrMissingField, field)
}

// Validator реализуют все DTO.
type Validator interface {
	Validate() error
}

// Decode разбирает payload в dst и проверяет обязательные поля.
// Неизвестные поля не считаются ошибкой, но логируются на уровне debug.
func Decode(raw []byte, dst Validator) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("model.Decode: %w", err)
	}
	if logger.DebugEnabled() {
		if extra := unknownKeys(raw, dst); len(extra) > 0 {
			logger.Debugf("model: %T: unknown fields %v", dst, extra)
		}
	}
	return dst.Validate()
}

// unknownKeys — ключи верхнего уровня объекта, которым нет поля в dst.
// Для не-объектов и не-структур возвращает nil.
func unknownKeys(raw []byte, dst any) []string {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil
	}
	t := reflect.TypeOf(dst)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	known := jsonNames(t, nil)
	var extra []string
	for k := range top {
		if !slices.ContainsFunc(known, func(n string) bool { return strings.EqualFold(n, k) }) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return extra
}

func jsonNames(t reflect.Type, out []string) []string {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if f.Anonymous && name == "" {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				out = jsonNames(ft, out)
				continue
			}
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		out = append(out, name)
	}
	return out
}
