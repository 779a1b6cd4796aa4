// Package version описывает штамп версии документа, который хранится на удаленной стороне
// в зарезервированном поле и позволяет отличить собственные записи экземпляра от чужих.
package version

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/query"
)

// ProtocolVersion текущая версия протокола синхронизации
const ProtocolVersion = 1

const (
	keyProtocol = "spv"
	keyInstance = "id"
	keyCounter  = "v"
)

// ErrMalformedVersion возвращается, когда зарезервированное поле версии не удается разобрать
var ErrMalformedVersion = errors.New("malformed document version")

// Stamp версия документа: (версия протокола, идентификатор экземпляра, счетчик).
// Для фиксированного InstanceID счетчик не убывает.
type Stamp struct {
	InstanceID      string `json:"id" msgpack:"id"`
	ProtocolVersion int    `json:"spv" msgpack:"spv"`
	Counter         int64  `json:"v" msgpack:"v"`
}

// Fresh создает новую версию со случайным идентификатором экземпляра и нулевым счетчиком.
// Используется при первой записи документа в удаленное хранилище.
func Fresh() *Stamp {
	return &Stamp{
		ProtocolVersion: ProtocolVersion,
		InstanceID:      uuid.New().String(),
		Counter:         0,
	}
}

// Next возвращает следующую версию с тем же InstanceID. Next(nil) равен Fresh().
func Next(s *Stamp) *Stamp {
	if s == nil {
		return Fresh()
	}
	return &Stamp{
		ProtocolVersion: s.ProtocolVersion,
		InstanceID:      s.InstanceID,
		Counter:         s.Counter + 1,
	}
}

// Clone returns a copy of the stamp, nil-safe.
func (s *Stamp) Clone() *Stamp {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}

// Equal сравнивает две версии; nil равен только nil
func (s *Stamp) Equal(other *Stamp) bool {
	if s == nil || other == nil {
		return s == nil && other == nil
	}
	return *s == *other
}

// String formats the stamp for logs.
func (s *Stamp) String() string {
	if s == nil {
		return "<none>"
	}
	return fmt.Sprintf("%d/%s/%d", s.ProtocolVersion, s.InstanceID, s.Counter)
}

// Document возвращает сохраняемое представление версии {spv, id, v}
func (s *Stamp) Document() models.Document {
	if s == nil {
		return nil
	}
	return models.Document{
		keyProtocol: int64(s.ProtocolVersion),
		keyInstance: s.InstanceID,
		keyCounter:  s.Counter,
	}
}

// Parse разбирает сохраненное представление версии.
// Поле spv обязательно; id и v проверяются только для версии протокола 1,
// чтобы вызывающий мог отличить неподдерживаемую версию от поврежденной.
func Parse(doc models.Document) (*Stamp, error) {
	if doc == nil {
		return nil, nil
	}

	spv, ok := query.ToInt64(doc[keyProtocol])
	if !ok {
		return nil, fmt.Errorf("%w: missing or invalid %q", ErrMalformedVersion, keyProtocol)
	}
	stamp := &Stamp{ProtocolVersion: int(spv)}
	if stamp.ProtocolVersion != ProtocolVersion {
		return stamp, nil
	}

	id, ok := doc[keyInstance].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: missing or invalid %q", ErrMalformedVersion, keyInstance)
	}
	counter, ok := query.ToInt64(doc[keyCounter])
	if !ok {
		return nil, fmt.Errorf("%w: missing or invalid %q", ErrMalformedVersion, keyCounter)
	}
	stamp.InstanceID = id
	stamp.Counter = counter
	return stamp, nil
}

// FromDocument извлекает версию из документа.
// Отсутствие поля дает (nil, nil), поле не-объект дает ErrMalformedVersion.
func FromDocument(doc models.Document) (*Stamp, error) {
	raw, ok := doc[models.VersionField]
	if !ok || raw == nil {
		return nil, nil
	}
	m, ok := models.AsMap(raw)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an object", ErrMalformedVersion, models.VersionField)
	}
	return Parse(models.Document(m))
}

// WithVersion возвращает копию документа с установленной версией
func WithVersion(doc models.Document, s *Stamp) models.Document {
	out := doc.Clone()
	if out == nil {
		out = models.Document{}
	}
	if s == nil {
		delete(out, models.VersionField)
		return out
	}
	out[models.VersionField] = s.Document()
	return out
}

// Strip returns a copy of doc without the reserved version field. nil stays nil.
func Strip(doc models.Document) models.Document {
	if doc == nil {
		return nil
	}
	out := doc.Clone()
	delete(out, models.VersionField)
	return out
}

// MatchFilter строит фильтр, который находит документ только в ожидаемой версии.
// Без версии документ не должен иметь поле версии вовсе.
func MatchFilter(id string, s *Stamp) models.Document {
	if s == nil {
		return models.Document{
			models.IDField:      id,
			models.VersionField: models.Document{"$exists": false},
		}
	}
	return models.Document{
		models.IDField:                          id,
		models.VersionField + "." + keyProtocol: int64(s.ProtocolVersion),
		models.VersionField + "." + keyInstance: s.InstanceID,
		models.VersionField + "." + keyCounter:  s.Counter,
	}
}

// UpdateFor возвращает обновление, которое устанавливает версию документа
func UpdateFor(s *Stamp) models.Document {
	return models.Document{
		"$set": models.Document{models.VersionField: s.Document()},
	}
}
