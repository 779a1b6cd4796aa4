package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/iudanet/docsync/internal/models"
)

// Lookup находит значение по пути с точками ("a.b.0.c").
// Числовой сегмент пути адресует элемент массива.
func Lookup(doc map[string]any, path string) (any, bool) {
	var current any = doc
	for _, part := range strings.Split(path, ".") {
		switch node := current.(type) {
		case models.Document:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			current = v
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			current = v
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// setPath sets a dotted path, creating intermediate objects as needed.
// doc must already be normalized so nested maps are map[string]any.
func setPath(doc map[string]any, path string, value any) error {
	parts := strings.Split(path, ".")
	node := doc
	for i, part := range parts[:len(parts)-1] {
		next, ok := node[part]
		if !ok || next == nil {
			child := map[string]any{}
			node[part] = child
			node = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("cannot set %q: %q is not an object", path, strings.Join(parts[:i+1], "."))
		}
		node = child
	}
	node[parts[len(parts)-1]] = value
	return nil
}

// unsetPath удаляет поле по пути; отсутствие поля не является ошибкой
func unsetPath(doc map[string]any, path string) {
	parts := strings.Split(path, ".")
	node := doc
	for _, part := range parts[:len(parts)-1] {
		child, ok := node[part].(map[string]any)
		if !ok {
			return
		}
		node = child
	}
	delete(node, parts[len(parts)-1])
}
