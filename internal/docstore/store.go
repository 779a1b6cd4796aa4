package docstore

import (
	"context"
	"fmt"

	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/query"
)

// Store реализует Collection поверх Backend.
// После фиксации каждой записи наблюдатель получает события изменений
// с полным документом после записи.
type Store struct {
	backend  Backend
	observer ChangeObserver
	ns       models.Namespace
}

// NewStore создает коллекцию namespace поверх backend. observer может быть nil.
func NewStore(ns models.Namespace, backend Backend, observer ChangeObserver) *Store {
	return &Store{ns: ns, backend: backend, observer: observer}
}

var _ Collection = (*Store)(nil)

// Namespace returns the namespace of the collection.
func (s *Store) Namespace() models.Namespace {
	return s.ns
}

// update выполняет запись и доставляет события только после успешной фиксации
func (s *Store) update(ctx context.Context, fn func(tx Txn, emit func(*models.ChangeEvent)) error) error {
	var events []*models.ChangeEvent
	err := s.backend.Update(ctx, func(tx Txn) error {
		events = events[:0]
		return fn(tx, func(ev *models.ChangeEvent) {
			events = append(events, ev)
		})
	})
	if err != nil {
		return err
	}
	if s.observer != nil {
		for _, ev := range events {
			s.observer(ev)
		}
	}
	return nil
}

// Find returns the matching documents.
func (s *Store) Find(ctx context.Context, filter models.Document, opts *FindOptions) ([]models.Document, error) {
	var out []models.Document
	err := s.backend.View(ctx, func(tx Txn) error {
		docs, err := Matching(tx, filter, 0)
		if err != nil {
			return err
		}
		out, err = ApplyFindOptions(docs, opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", s.ns, err)
	}
	if out == nil {
		out = []models.Document{}
	}
	return out, nil
}

// FindOne возвращает первый подходящий документ или ErrDocumentNotFound
func (s *Store) FindOne(ctx context.Context, filter models.Document, opts *FindOptions) (models.Document, error) {
	one := FindOptions{Limit: 1}
	if opts != nil {
		one = *opts
		one.Limit = 1
	}
	docs, err := s.Find(ctx, filter, &one)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrDocumentNotFound
	}
	return docs[0], nil
}

// Count считает подходящие документы
func (s *Store) Count(ctx context.Context, filter models.Document) (int64, error) {
	var n int64
	err := s.backend.View(ctx, func(tx Txn) error {
		docs, err := Matching(tx, filter, 0)
		n = int64(len(docs))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("count in %s: %w", s.ns, err)
	}
	return n, nil
}

// Aggregate runs the pipeline over every document of the collection.
func (s *Store) Aggregate(ctx context.Context, pipeline []models.Document) ([]models.Document, error) {
	var all []models.Document
	err := s.backend.View(ctx, func(tx Txn) error {
		return tx.ForEach(func(doc models.Document) error {
			all = append(all, doc)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate in %s: %w", s.ns, err)
	}
	return query.Aggregate(all, pipeline)
}

// InsertOne вставляет документ; существующий _id дает ErrDuplicateKey
func (s *Store) InsertOne(ctx context.Context, doc models.Document) (string, error) {
	ids, err := s.InsertMany(ctx, []models.Document{doc})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// InsertMany вставляет документы в одной транзакции: либо все, либо ни одного
func (s *Store) InsertMany(ctx context.Context, docs []models.Document) ([]string, error) {
	prepared := make([]models.Document, 0, len(docs))
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		p, id, err := PrepareInsert(doc)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, p)
		ids = append(ids, id)
	}

	err := s.update(ctx, func(tx Txn, emit func(*models.ChangeEvent)) error {
		for i, doc := range prepared {
			existing, err := tx.Get(ids[i])
			if err != nil {
				return err
			}
			if existing != nil {
				return fmt.Errorf("%w: _id %q", ErrDuplicateKey, ids[i])
			}
			if err := tx.Put(doc); err != nil {
				return err
			}
			emit(models.NewInsertEvent(s.ns, ids[i], doc.Clone(), false))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", s.ns, err)
	}
	return ids, nil
}

// ReplaceOne заменяет первый подходящий документ, сохраняя его _id
func (s *Store) ReplaceOne(ctx context.Context, filter, replacement models.Document, opts *UpdateOptions) (*UpdateResult, error) {
	result := &UpdateResult{}
	err := s.update(ctx, func(tx Txn, emit func(*models.ChangeEvent)) error {
		docs, err := Matching(tx, filter, 1)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			if opts == nil || !opts.Upsert {
				return nil
			}
			doc, err := query.UpsertDocument(filter, replacement, true)
			if err != nil {
				return err
			}
			id, err := s.insertUpserted(tx, doc, emit)
			result.UpsertedID = id
			return err
		}

		before := docs[0]
		after, err := query.Replace(before, replacement)
		if err != nil {
			return err
		}
		result.MatchedCount = 1
		if query.DocumentsEqual(before, after) {
			return nil
		}
		if err := tx.Put(after); err != nil {
			return err
		}
		result.ModifiedCount = 1
		id, _ := after.ID()
		emit(models.NewReplaceEvent(s.ns, id, after.Clone(), false))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replace in %s: %w", s.ns, err)
	}
	return result, nil
}

// UpdateOne применяет операторы обновления к первому подходящему документу
func (s *Store) UpdateOne(ctx context.Context, filter, update models.Document, opts *UpdateOptions) (*UpdateResult, error) {
	return s.updateMatching(ctx, filter, update, opts, 1)
}

// UpdateMany применяет операторы обновления ко всем подходящим документам
func (s *Store) UpdateMany(ctx context.Context, filter, update models.Document, opts *UpdateOptions) (*UpdateResult, error) {
	return s.updateMatching(ctx, filter, update, opts, 0)
}

func (s *Store) updateMatching(ctx context.Context, filter, update models.Document, opts *UpdateOptions, limit int) (*UpdateResult, error) {
	result := &UpdateResult{}
	err := s.update(ctx, func(tx Txn, emit func(*models.ChangeEvent)) error {
		docs, err := Matching(tx, filter, limit)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			if opts == nil || !opts.Upsert {
				return nil
			}
			doc, err := query.UpsertDocument(filter, update, false)
			if err != nil {
				return err
			}
			id, err := s.insertUpserted(tx, doc, emit)
			result.UpsertedID = id
			return err
		}

		for _, before := range docs {
			result.MatchedCount++
			modified, err := s.applyUpdate(tx, before, update, emit)
			if err != nil {
				return err
			}
			if modified != nil {
				result.ModifiedCount++
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update in %s: %w", s.ns, err)
	}
	return result, nil
}

// applyUpdate обновляет документ и возвращает новую версию или nil, если он не изменился
func (s *Store) applyUpdate(tx Txn, before, update models.Document, emit func(*models.ChangeEvent)) (models.Document, error) {
	after, err := query.ApplyUpdate(before, update, false)
	if err != nil {
		return nil, err
	}
	if query.DocumentsEqual(before, after) {
		return nil, nil
	}
	if err := tx.Put(after); err != nil {
		return nil, err
	}
	id, _ := after.ID()
	emit(models.NewUpdateEvent(s.ns, id, query.Diff(before, after), after.Clone(), false))
	return after, nil
}

func (s *Store) insertUpserted(tx Txn, doc models.Document, emit func(*models.ChangeEvent)) (string, error) {
	prepared, id, err := PrepareInsert(doc)
	if err != nil {
		return "", err
	}
	existing, err := tx.Get(id)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", fmt.Errorf("%w: _id %q", ErrDuplicateKey, id)
	}
	if err := tx.Put(prepared); err != nil {
		return "", err
	}
	emit(models.NewInsertEvent(s.ns, id, prepared.Clone(), false))
	return id, nil
}

// FindOneAndUpdate обновляет первый подходящий документ и возвращает его до или после
// обновления. Обновление без операторов считается заменой.
// Если документ не найден и upsert не запрошен, возвращается ErrDocumentNotFound.
// Upsert без ReturnAfter возвращает nil документ без ошибки.
func (s *Store) FindOneAndUpdate(ctx context.Context, filter, update models.Document, opts *FindOneAndUpdateOptions) (models.Document, error) {
	if opts == nil {
		opts = &FindOneAndUpdateOptions{}
	}
	replace := !query.IsOperatorUpdate(update)

	var out models.Document
	err := s.update(ctx, func(tx Txn, emit func(*models.ChangeEvent)) error {
		docs, err := Matching(tx, filter, 1)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			if !opts.Upsert {
				return ErrDocumentNotFound
			}
			doc, err := query.UpsertDocument(filter, update, replace)
			if err != nil {
				return err
			}
			id, err := s.insertUpserted(tx, doc, emit)
			if err != nil {
				return err
			}
			if opts.ReturnAfter {
				out, err = tx.Get(id)
			}
			return err
		}

		before := docs[0]
		after := before
		if replace {
			replaced, err := query.Replace(before, update)
			if err != nil {
				return err
			}
			if !query.DocumentsEqual(before, replaced) {
				if err := tx.Put(replaced); err != nil {
					return err
				}
				id, _ := replaced.ID()
				emit(models.NewReplaceEvent(s.ns, id, replaced.Clone(), false))
				after = replaced
			}
		} else {
			modified, err := s.applyUpdate(tx, before, update, emit)
			if err != nil {
				return err
			}
			if modified != nil {
				after = modified
			}
		}

		if opts.ReturnAfter {
			out = after
		} else {
			out = before
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find and update in %s: %w", s.ns, err)
	}
	return out.Clone(), nil
}

// DeleteOne удаляет первый подходящий документ
func (s *Store) DeleteOne(ctx context.Context, filter models.Document) (int64, error) {
	return s.deleteMatching(ctx, filter, 1)
}

// DeleteMany удаляет все подходящие документы
func (s *Store) DeleteMany(ctx context.Context, filter models.Document) (int64, error) {
	return s.deleteMatching(ctx, filter, 0)
}

func (s *Store) deleteMatching(ctx context.Context, filter models.Document, limit int) (int64, error) {
	var deleted int64
	err := s.update(ctx, func(tx Txn, emit func(*models.ChangeEvent)) error {
		deleted = 0
		docs, err := Matching(tx, filter, limit)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			id, _ := doc.ID()
			if err := tx.Delete(id); err != nil {
				return err
			}
			deleted++
			emit(models.NewDeleteEvent(s.ns, id, false))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete in %s: %w", s.ns, err)
	}
	return deleted, nil
}
