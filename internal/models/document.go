package models

import (
	"fmt"
	"strings"
)

const (
	// IDField имя поля с идентификатором документа
	IDField = "_id"
	// VersionField зарезервированное поле, в котором хранится версия документа на удаленной стороне
	VersionField = "__stitch_sync_version"
)

// Document представляет документ хранилища: набор полей произвольной вложенности.
// Вложенные объекты хранятся как map[string]any, массивы как []any.
type Document map[string]any

// ID возвращает строковый идентификатор документа
func (d Document) ID() (string, bool) {
	if d == nil {
		return "", false
	}
	id, ok := d[IDField].(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// Clone создает глубокую копию документа
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies maps and slices, leaving scalars as they are.
func CloneValue(v any) any {
	switch val := v.(type) {
	case Document:
		return val.Clone()
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = CloneValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = CloneValue(inner)
		}
		return out
	default:
		return v
	}
}

// AsMap приводит значение к map[string]any, если это вложенный документ
func AsMap(v any) (map[string]any, bool) {
	switch val := v.(type) {
	case Document:
		return map[string]any(val), true
	case map[string]any:
		return val, true
	default:
		return nil, false
	}
}

// Namespace логическая группа документов: база данных + коллекция
type Namespace struct {
	Database   string `json:"database" msgpack:"database"`
	Collection string `json:"collection" msgpack:"collection"`
}

// String возвращает namespace в формате "database.collection"
func (n Namespace) String() string {
	return n.Database + "." + n.Collection
}

// ParseNamespace разбирает строку вида "database.collection".
// Имя коллекции может содержать точки, имя базы нет.
func ParseNamespace(s string) (Namespace, error) {
	db, coll, ok := strings.Cut(s, ".")
	if !ok || db == "" || coll == "" {
		return Namespace{}, fmt.Errorf("invalid namespace %q: expected database.collection", s)
	}
	return Namespace{Database: db, Collection: coll}, nil
}
