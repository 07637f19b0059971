// Package remote — вызовы backend API: JSON-запрос, JSON-ответ или ошибка.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Request — параметры одного вызова. Body сериализуется в JSON.
type Request struct {
	Method string
	Body   map[string]any
	Query  map[string]string
}

// Caller выполняет запрос и возвращает тело ответа (поле data или весь JSON).
type Caller interface {
	Call(ctx context.Context, path string, req Request) (json.RawMessage, error)
}

// Error — ошибка, которую вернул сервер (не сеть).
type Error struct {
	Status  int
	Message string
	Path    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote %s: status %d", e.Path, e.Status)
	}
	return fmt.Sprintf("remote %s: %d %s", e.Path, e.Status, e.Message)
}

// IsStatus сообщает, что err — серверная ошибка с данным HTTP-статусом.
func IsStatus(err error, status int) bool {
	var re *Error
	return errors.As(err, &re) && re.Status == status
}
