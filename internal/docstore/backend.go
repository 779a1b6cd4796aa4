package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/query"
)

var errStopIteration = errors.New("stop iteration")

// Txn транзакция над документами одного namespace.
// ForEach обходит документы в порядке возрастания _id.
type Txn interface {
	Get(id string) (models.Document, error) // nil, nil если документа нет
	ForEach(fn func(doc models.Document) error) error
	Put(doc models.Document) error
	Delete(id string) error
}

// Backend физическое хранилище документов: bbolt, SQLite или память.
// Update выполняет fn атомарно: при ошибке ни одно изменение не сохраняется.
type Backend interface {
	View(ctx context.Context, fn func(tx Txn) error) error
	Update(ctx context.Context, fn func(tx Txn) error) error
}

// PrepareInsert нормализует документ перед вставкой и назначает _id, если его нет
func PrepareInsert(doc models.Document) (models.Document, string, error) {
	out := query.NormalizeDocument(doc)
	if out == nil {
		out = models.Document{}
	}

	raw, ok := out[models.IDField]
	if !ok || raw == nil {
		id := uuid.New().String()
		out[models.IDField] = id
		return out, id, nil
	}

	id, ok := out.ID()
	if !ok {
		return nil, "", fmt.Errorf("%w: got %T", ErrInvalidID, raw)
	}
	return out, id, nil
}

// IDFromFilter возвращает _id, если фильтр однозначно задает один документ
// через равенство по _id. Остальные условия фильтра проверяются отдельно.
func IDFromFilter(filter models.Document) (string, bool) {
	raw, ok := filter[models.IDField]
	if !ok {
		return "", false
	}
	if m, isMap := models.AsMap(raw); isMap {
		if len(m) != 1 {
			return "", false
		}
		raw = m["$eq"]
	}
	id, ok := raw.(string)
	return id, ok && id != ""
}

// Matching возвращает документы транзакции, подходящие под фильтр, в порядке _id.
// limit <= 0 означает без ограничения.
func Matching(tx Txn, filter models.Document, limit int) ([]models.Document, error) {
	if id, ok := IDFromFilter(filter); ok {
		doc, err := tx.Get(id)
		if err != nil || doc == nil {
			return nil, err
		}
		matched, err := query.Match(doc, filter)
		if err != nil || !matched {
			return nil, err
		}
		return []models.Document{doc}, nil
	}

	var out []models.Document
	err := tx.ForEach(func(doc models.Document) error {
		matched, err := query.Match(doc, filter)
		if err != nil {
			return err
		}
		if matched {
			out = append(out, doc)
			if limit > 0 && len(out) >= limit {
				return errStopIteration
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return nil, err
	}
	return out, nil
}

// ApplyFindOptions применяет сортировку, пропуск, лимит и проекцию
func ApplyFindOptions(docs []models.Document, opts *FindOptions) ([]models.Document, error) {
	if opts == nil {
		return docs, nil
	}

	query.Sort(docs, opts.Sort)

	if opts.Skip > 0 {
		docs = docs[min(int(opts.Skip), len(docs)):]
	}
	if opts.Limit > 0 {
		docs = docs[:min(int(opts.Limit), len(docs))]
	}

	if len(opts.Projection) == 0 {
		return docs, nil
	}
	out := make([]models.Document, 0, len(docs))
	for _, doc := range docs {
		projected, err := query.Project(doc, opts.Projection)
		if err != nil {
			return nil, err
		}
		out = append(out, projected)
	}
	return out, nil
}
