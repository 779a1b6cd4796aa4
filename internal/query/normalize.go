// Package query реализует вычисление фильтров, операторов обновления, сортировки,
// проекций и простого конвейера агрегации над документами models.Document.
// Используется всеми реализациями хранилищ документов: bbolt на клиенте,
// SQLite и in-memory на сервере.
package query

import (
	"encoding/json"
	"math"

	"github.com/iudanet/docsync/internal/models"
)

// Normalize приводит значение к каноническому виду:
// все целые числа становятся int64, дробные float64, json.Number раскрывается,
// вложенные документы становятся map[string]any, срезы []any.
func Normalize(v any) any {
	switch val := v.(type) {
	case nil, string, bool, int64, float64:
		return val
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, err := val.Float64()
		if err != nil {
			return val.String()
		}
		return f
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint:
		return normalizeUnsigned(uint64(val))
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return normalizeUnsigned(val)
	case float32:
		return float64(val)
	case models.Document:
		return normalizeMap(val)
	case map[string]any:
		return normalizeMap(val)
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = Normalize(inner)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = inner
		}
		return out
	case []models.Document:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = normalizeMap(inner)
		}
		return out
	default:
		return v
	}
}

func normalizeUnsigned(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}

func normalizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Normalize(v)
	}
	return out
}

// NormalizeDocument returns a normalized deep copy of doc.
func NormalizeDocument(doc models.Document) models.Document {
	if doc == nil {
		return nil
	}
	return models.Document(normalizeMap(doc))
}

// NormalizeDocuments нормализует каждый документ среза
func NormalizeDocuments(docs []models.Document) []models.Document {
	out := make([]models.Document, len(docs))
	for i, doc := range docs {
		out[i] = NormalizeDocument(doc)
	}
	return out
}
