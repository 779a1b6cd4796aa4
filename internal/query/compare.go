package query

import (
	"cmp"
	"reflect"
	"sort"
	"strings"

	"github.com/iudanet/docsync/internal/models"
)

// ToInt64 возвращает целое значение числа, если оно представимо без потерь
func ToInt64(v any) (int64, bool) {
	switch n := Normalize(v).(type) {
	case int64:
		return n, true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func isNumber(v any) bool {
	_, ok := toFloat(v)
	return ok
}

// Equal сравнивает два значения документа.
// Числа сравниваются по значению независимо от типа (int64 и float64).
func Equal(a, b any) bool {
	a, b = Normalize(a), Normalize(b)

	if ai, ok := a.(int64); ok {
		if bi, ok := b.(int64); ok {
			return ai == bi
		}
	}
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}

	switch av := a.(type) {
	case nil:
		return b == nil
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, inner := range av {
			other, exists := bv[k]
			if !exists || !Equal(inner, other) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(a, b)
	}
}

// DocumentsEqual сравнивает документы; nil равен только nil
func DocumentsEqual(a, b models.Document) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return Equal(a, b)
}

// typeRank задает порядок значений разных типов при сортировке
func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case int64, float64:
		return 1
	case string:
		return 2
	case map[string]any:
		return 3
	case []any:
		return 4
	case bool:
		return 5
	default:
		return 6
	}
}

// Compare orders two values: -1, 0 or 1. Values of different kinds are ordered
// by kind (null, numbers, strings, objects, arrays, booleans).
func Compare(a, b any) int {
	a, b = Normalize(a), Normalize(b)

	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch av := a.(type) {
	case nil:
		return 0
	case int64, float64:
		if ai, ok := av.(int64); ok {
			if bi, ok := b.(int64); ok {
				return cmp.Compare(ai, bi)
			}
		}
		af, _ := toFloat(a)
		bf, _ := toFloat(b)
		return cmp.Compare(af, bf)
	case string:
		return strings.Compare(av, b.(string))
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case map[string]any:
		bv := b.(map[string]any)
		keys := sortedKeys(av)
		otherKeys := sortedKeys(bv)
		for i := 0; i < len(keys) && i < len(otherKeys); i++ {
			if c := strings.Compare(keys[i], otherKeys[i]); c != 0 {
				return c
			}
			if c := Compare(av[keys[i]], bv[otherKeys[i]]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(keys), len(otherKeys))
	case []any:
		bv := b.([]any)
		for i := 0; i < len(av) && i < len(bv); i++ {
			if c := Compare(av[i], bv[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(av), len(bv))
	default:
		return 0
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
