package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/iudanet/docsync/internal/models"
)

// SortField одно поле сортировки
type SortField struct {
	Field      string `json:"field"`
	Descending bool   `json:"descending,omitempty"`
}

// Sort сортирует документы по полям (стабильно, в порядке указания полей)
func Sort(docs []models.Document, fields []SortField) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			a, _ := Lookup(docs[i], f.Field)
			b, _ := Lookup(docs[j], f.Field)
			c := Compare(a, b)
			if c == 0 {
				continue
			}
			if f.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// Project applies an inclusion or exclusion projection. _id is kept unless
// explicitly excluded. Mixing inclusion and exclusion of other fields is an error.
func Project(doc models.Document, projection models.Document) (models.Document, error) {
	if len(projection) == 0 {
		return doc, nil
	}

	include, exclude := false, false
	for k, v := range projection {
		if k == models.IDField {
			continue
		}
		if truthy(v) {
			include = true
		} else {
			exclude = true
		}
	}
	if include && exclude {
		return nil, fmt.Errorf("%w: projection cannot mix inclusion and exclusion", ErrInvalidFilter)
	}

	keepID := true
	if v, ok := projection[models.IDField]; ok && !truthy(v) {
		keepID = false
	}

	src := normalizeMap(doc)
	var out models.Document
	if include {
		out = models.Document{}
		for k, v := range projection {
			if k == models.IDField || !truthy(v) {
				continue
			}
			if val, ok := Lookup(src, k); ok {
				if err := setPath(out, k, models.CloneValue(val)); err != nil {
					return nil, err
				}
			}
		}
		if id, ok := src[models.IDField]; ok && keepID {
			out[models.IDField] = id
		}
	} else {
		out = models.Document(src)
		for k := range projection {
			if k == models.IDField {
				continue
			}
			unsetPath(out, k)
		}
		if !keepID {
			delete(out, models.IDField)
		}
	}
	return out, nil
}

// ParseSort разбирает спецификацию сортировки из стадии $sort.
// Принимает объект {field: 1|-1} (поля сортируются по имени) или массив таких объектов
// с одним полем каждый, чтобы задать порядок явно.
func ParseSort(order any) ([]SortField, error) {
	parse := func(m map[string]any) []SortField {
		fields := make([]SortField, 0, len(m))
		for _, k := range sortedKeys(m) {
			dir, _ := ToInt64(m[k])
			fields = append(fields, SortField{Field: k, Descending: dir < 0})
		}
		return fields
	}

	switch val := Normalize(order).(type) {
	case map[string]any:
		return parse(val), nil
	case []any:
		var fields []SortField
		for _, item := range val {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: $sort entries must be objects", ErrInvalidFilter)
			}
			fields = append(fields, parse(m)...)
		}
		return fields, nil
	default:
		return nil, fmt.Errorf("%w: $sort requires an object", ErrInvalidFilter)
	}
}

// Aggregate выполняет конвейер агрегации над набором документов.
// Поддерживаемые стадии: $match, $project, $sort, $skip, $limit, $count.
func Aggregate(docs []models.Document, pipeline []models.Document) ([]models.Document, error) {
	current := make([]models.Document, 0, len(docs))
	for _, doc := range docs {
		current = append(current, NormalizeDocument(doc))
	}

	for i, stage := range pipeline {
		if len(stage) != 1 {
			return nil, fmt.Errorf("%w: stage %d must have exactly one operator", ErrInvalidFilter, i)
		}
		for op, arg := range stage {
			var err error
			current, err = applyStage(current, op, arg)
			if err != nil {
				return nil, fmt.Errorf("stage %d (%s): %w", i, op, err)
			}
		}
	}
	return current, nil
}

func applyStage(docs []models.Document, op string, arg any) ([]models.Document, error) {
	switch op {
	case "$match":
		filter, ok := models.AsMap(arg)
		if !ok {
			return nil, fmt.Errorf("%w: $match requires an object", ErrInvalidFilter)
		}
		out := docs[:0:0]
		for _, doc := range docs {
			matched, err := Match(doc, filter)
			if err != nil {
				return nil, err
			}
			if matched {
				out = append(out, doc)
			}
		}
		return out, nil
	case "$project":
		projection, ok := models.AsMap(arg)
		if !ok {
			return nil, fmt.Errorf("%w: $project requires an object", ErrInvalidFilter)
		}
		out := make([]models.Document, 0, len(docs))
		for _, doc := range docs {
			projected, err := Project(doc, projection)
			if err != nil {
				return nil, err
			}
			out = append(out, projected)
		}
		return out, nil
	case "$sort":
		fields, err := ParseSort(arg)
		if err != nil {
			return nil, err
		}
		Sort(docs, fields)
		return docs, nil
	case "$skip", "$limit":
		n, ok := ToInt64(arg)
		if !ok || n < 0 {
			return nil, fmt.Errorf("%w: %s requires a non-negative integer", ErrInvalidFilter, op)
		}
		if op == "$skip" {
			return docs[min(int(n), len(docs)):], nil
		}
		return docs[:min(int(n), len(docs))], nil
	case "$count":
		field, ok := arg.(string)
		if !ok || field == "" || strings.HasPrefix(field, "$") || strings.Contains(field, ".") {
			return nil, fmt.Errorf("%w: $count requires a field name", ErrInvalidFilter)
		}
		if len(docs) == 0 {
			return []models.Document{}, nil
		}
		return []models.Document{{field: int64(len(docs))}}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperator, op)
	}
}
