package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/iudanet/docsync/internal/models"
)

var (
	// ErrUnsupportedOperator возвращается для неизвестного оператора фильтра или обновления
	ErrUnsupportedOperator = errors.New("unsupported operator")

	// ErrInvalidFilter indicates a structurally broken filter document
	ErrInvalidFilter = errors.New("invalid filter")
)

// Match проверяет, удовлетворяет ли документ фильтру.
// Поддерживаются равенство (включая поиск по элементам массива), пути с точками,
// операторы $eq, $ne, $gt, $gte, $lt, $lte, $in, $nin, $exists и логические $and, $or, $nor.
// Пустой фильтр совпадает с любым документом.
func Match(doc models.Document, filter models.Document) (bool, error) {
	if len(filter) == 0 {
		return true, nil
	}
	return matchMap(normalizeMap(doc), normalizeMap(filter))
}

func matchMap(doc, filter map[string]any) (bool, error) {
	for key, cond := range filter {
		var (
			ok  bool
			err error
		)
		if strings.HasPrefix(key, "$") {
			ok, err = matchLogical(doc, key, cond)
		} else {
			ok, err = matchField(doc, key, cond)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchLogical(doc map[string]any, op string, cond any) (bool, error) {
	clauses, ok := cond.([]any)
	if !ok || len(clauses) == 0 {
		return false, fmt.Errorf("%w: %s requires a non-empty array", ErrInvalidFilter, op)
	}

	switch op {
	case "$and", "$or", "$nor":
	default:
		return false, fmt.Errorf("%w: %s", ErrUnsupportedOperator, op)
	}

	for _, clause := range clauses {
		sub, ok := clause.(map[string]any)
		if !ok {
			return false, fmt.Errorf("%w: %s clause must be an object", ErrInvalidFilter, op)
		}
		matched, err := matchMap(doc, sub)
		if err != nil {
			return false, err
		}
		switch {
		case op == "$and" && !matched:
			return false, nil
		case op == "$or" && matched:
			return true, nil
		case op == "$nor" && matched:
			return false, nil
		}
	}
	return op != "$or", nil
}

func isOperatorDoc(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func matchField(doc map[string]any, path string, cond any) (bool, error) {
	value, exists := Lookup(doc, path)

	ops, isOps := isOperatorDoc(cond)
	if !isOps {
		return matchEq(value, exists, cond), nil
	}

	for op, arg := range ops {
		ok, err := matchOperator(value, exists, op, arg)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchOperator(value any, exists bool, op string, arg any) (bool, error) {
	switch op {
	case "$eq":
		return matchEq(value, exists, arg), nil
	case "$ne":
		return !matchEq(value, exists, arg), nil
	case "$exists":
		want := truthy(arg)
		return exists == want, nil
	case "$in", "$nin":
		list, ok := arg.([]any)
		if !ok {
			return false, fmt.Errorf("%w: %s requires an array", ErrInvalidFilter, op)
		}
		found := false
		for _, candidate := range list {
			if matchEq(value, exists, candidate) {
				found = true
				break
			}
		}
		if op == "$in" {
			return found, nil
		}
		return !found, nil
	case "$gt", "$gte", "$lt", "$lte":
		if !exists {
			return false, nil
		}
		return matchRange(value, op, arg), nil
	default:
		return false, fmt.Errorf("%w: %s", ErrUnsupportedOperator, op)
	}
}

// matchEq: отсутствующее поле равно только null; массив совпадает,
// если совпадает он сам или любой его элемент.
func matchEq(value any, exists bool, want any) bool {
	if !exists {
		return want == nil
	}
	if Equal(value, want) {
		return true
	}
	if arr, ok := value.([]any); ok {
		for _, elem := range arr {
			if Equal(elem, want) {
				return true
			}
		}
	}
	return false
}

func matchRange(value any, op string, arg any) bool {
	check := func(v any) bool {
		// сравниваем только значения одного вида
		if typeRank(Normalize(v)) != typeRank(Normalize(arg)) {
			return false
		}
		c := Compare(v, arg)
		switch op {
		case "$gt":
			return c > 0
		case "$gte":
			return c >= 0
		case "$lt":
			return c < 0
		default:
			return c <= 0
		}
	}
	if check(value) {
		return true
	}
	if arr, ok := value.([]any); ok {
		for _, elem := range arr {
			if check(elem) {
				return true
			}
		}
	}
	return false
}

func truthy(v any) bool {
	switch val := Normalize(v).(type) {
	case nil:
		return false
	case bool:
		return val
	case int64:
		return val != 0
	case float64:
		return val != 0
	default:
		return true
	}
}
