package cache

import (
	"slices"
	"sort"
)

// IDSet — множество id. Нулевое значение готово к чтению, но не к записи.
type IDSet map[string]struct{}

func newIDSet(ids []string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Len() int { return len(s) }

// IDs — отсортированный список для стабильного вывода.
func (s IDSet) IDs() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// add возвращает true, если id не было.
func (s IDSet) add(id string) bool {
	if id == "" || s.Has(id) {
		return false
	}
	s[id] = struct{}{}
	return true
}

// remove возвращает true, если id был.
func (s IDSet) remove(id string) bool {
	if !s.Has(id) {
		return false
	}
	delete(s, id)
	return true
}

func (s IDSet) clone() IDSet {
	out := make(IDSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

func contains(ids []string, id string) bool {
	return id != "" && slices.Contains(ids, id)
}

func without(ids []string, id string) []string {
	return slices.DeleteFunc(slices.Clone(ids), func(x string) bool { return x == id })
}

// indexByID — позиция элемента с данным id или -1.
func indexByID[T any](items []*T, id string, key func(*T) string) int {
	return slices.IndexFunc(items, func(it *T) bool { return key(it) == id })
}

// memberOf: пустой (неизвестный) список участников не ограничивает доступ.
func memberOf(ids []string, id string) bool {
	return ids == nil || contains(ids, id)
}
