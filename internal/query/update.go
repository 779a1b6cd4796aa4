package query

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/iudanet/docsync/internal/models"
)

var (
	// ErrImmutableID возвращается при попытке изменить _id документа
	ErrImmutableID = errors.New("the _id field is immutable")

	// ErrInvalidUpdate indicates an update that mixes operators and fields or is empty
	ErrInvalidUpdate = errors.New("invalid update document")
)

// IsOperatorUpdate сообщает, что обновление состоит только из операторов ($set, $unset, ...)
func IsOperatorUpdate(update models.Document) bool {
	if len(update) == 0 {
		return false
	}
	for k := range update {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

// ApplyUpdate применяет операторы $set, $unset, $inc, $setOnInsert к копии документа.
// $setOnInsert применяется только при upsert (insert=true).
func ApplyUpdate(doc models.Document, update models.Document, insert bool) (models.Document, error) {
	if !IsOperatorUpdate(update) {
		return nil, fmt.Errorf("%w: update must contain only operators", ErrInvalidUpdate)
	}

	out := normalizeMap(doc)
	if out == nil {
		out = map[string]any{}
	}
	originalID, hadID := out[models.IDField]

	// порядок применения операторов фиксирован, чтобы результат был детерминированным
	ops := make([]string, 0, len(update))
	for op := range update {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	for _, op := range ops {
		args, ok := models.AsMap(update[op])
		if !ok {
			return nil, fmt.Errorf("%w: %s requires an object", ErrInvalidUpdate, op)
		}
		args = normalizeMap(args)

		switch op {
		case "$set":
			for path, v := range args {
				if err := setPath(out, path, v); err != nil {
					return nil, fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
				}
			}
		case "$setOnInsert":
			if !insert {
				continue
			}
			for path, v := range args {
				if err := setPath(out, path, v); err != nil {
					return nil, fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
				}
			}
		case "$unset":
			for path := range args {
				unsetPath(out, path)
			}
		case "$inc":
			for path, delta := range args {
				current, exists := Lookup(out, path)
				if !exists {
					current = int64(0)
				}
				sum, err := add(current, delta)
				if err != nil {
					return nil, fmt.Errorf("%w: $inc %s: %v", ErrInvalidUpdate, path, err)
				}
				if err := setPath(out, path, sum); err != nil {
					return nil, fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
				}
			}
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperator, op)
		}
	}

	if hadID && !Equal(out[models.IDField], originalID) {
		return nil, ErrImmutableID
	}
	if hadID {
		out[models.IDField] = originalID
	}

	return models.Document(out), nil
}

func add(a, b any) (any, error) {
	a, b = Normalize(a), Normalize(b)
	ai, aInt := a.(int64)
	bi, bInt := b.(int64)
	if aInt && bInt {
		return ai + bi, nil
	}
	af, ok := toFloat(a)
	if !ok {
		return nil, fmt.Errorf("field is not a number")
	}
	bf, ok := toFloat(b)
	if !ok {
		return nil, fmt.Errorf("increment is not a number")
	}
	return af + bf, nil
}

// Replace builds the replacement for doc. The replacement keeps the _id of doc and
// must not try to change it.
func Replace(doc models.Document, replacement models.Document) (models.Document, error) {
	for k := range replacement {
		if strings.HasPrefix(k, "$") {
			return nil, fmt.Errorf("%w: replacement must not contain operators", ErrInvalidUpdate)
		}
	}

	out := NormalizeDocument(replacement)
	if out == nil {
		out = models.Document{}
	}
	if id, ok := doc[models.IDField]; ok {
		if newID, has := out[models.IDField]; has && !Equal(newID, id) {
			return nil, ErrImmutableID
		}
		out[models.IDField] = Normalize(id)
	}
	return out, nil
}

// UpsertDocument строит новый документ для upsert, когда фильтр ничего не нашел:
// поля равенства из фильтра верхнего уровня плюс обновление или замена.
func UpsertDocument(filter, update models.Document, replace bool) (models.Document, error) {
	base := models.Document{}
	for k, v := range normalizeMap(filter) {
		if strings.HasPrefix(k, "$") || strings.Contains(k, ".") {
			continue
		}
		if _, isOps := isOperatorDoc(v); isOps {
			if eq, ok := v.(map[string]any)["$eq"]; ok {
				base[k] = eq
			}
			continue
		}
		base[k] = v
	}

	if replace {
		out, err := Replace(models.Document{}, update)
		if err != nil {
			return nil, err
		}
		if id, ok := base[models.IDField]; ok {
			if newID, has := out[models.IDField]; has && !Equal(newID, id) {
				return nil, ErrImmutableID
			}
			out[models.IDField] = id
		}
		return out, nil
	}

	return ApplyUpdate(base, update, true)
}
