package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/docsync/internal/client/syncstate"
	"github.com/iudanet/docsync/internal/docstore"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/query"
	"github.com/iudanet/docsync/internal/version"
)

// Локальные операции выполняются над локальным хранилищем сразу, а изменения
// запоминаются как ожидающие отправки. Перед изменением существующего документа
// его снимок записывается в журнал отмены и удаляется только после сохранения
// ожидающей записи.

// enter пропускает операцию через барьер, захватывает экземпляр на чтение
// и возвращает состояние namespace. Каждый успешный enter завершается leave.
func (e *Engine) enter(ctx context.Context, ns models.Namespace) (*syncstate.NamespaceState, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	e.barrier.Enter()
	e.instance.RLock()
	state, err := e.instance.Namespace(ctx, ns)
	if err != nil {
		e.leave()
		return nil, err
	}
	return state, nil
}

// leave отпускает экземпляр и барьер
func (e *Engine) leave() {
	e.instance.RUnlock()
	e.barrier.Leave()
}

// Count считает локальные документы namespace
func (e *Engine) Count(ctx context.Context, ns models.Namespace, filter models.Document) (int64, error) {
	state, err := e.enter(ctx, ns)
	if err != nil {
		return 0, err
	}
	defer e.leave()

	state.RLock()
	defer state.RUnlock()
	return e.local.Collection(ns).Count(ctx, filter)
}

// Find возвращает локальные документы namespace
func (e *Engine) Find(ctx context.Context, ns models.Namespace, filter models.Document, opts *docstore.FindOptions) ([]models.Document, error) {
	state, err := e.enter(ctx, ns)
	if err != nil {
		return nil, err
	}
	defer e.leave()

	state.RLock()
	defer state.RUnlock()
	return e.local.Collection(ns).Find(ctx, filter, opts)
}

// FindOne возвращает первый подходящий локальный документ или docstore.ErrDocumentNotFound
func (e *Engine) FindOne(ctx context.Context, ns models.Namespace, filter models.Document, opts *docstore.FindOptions) (models.Document, error) {
	state, err := e.enter(ctx, ns)
	if err != nil {
		return nil, err
	}
	defer e.leave()

	state.RLock()
	defer state.RUnlock()
	return e.local.Collection(ns).FindOne(ctx, filter, opts)
}

// Aggregate выполняет конвейер над локальными документами namespace
func (e *Engine) Aggregate(ctx context.Context, ns models.Namespace, pipeline []models.Document) ([]models.Document, error) {
	state, err := e.enter(ctx, ns)
	if err != nil {
		return nil, err
	}
	defer e.leave()

	state.RLock()
	defer state.RUnlock()
	return e.local.Collection(ns).Aggregate(ctx, pipeline)
}

// InsertOne вставляет документ локально и начинает его синхронизацию.
// Документ без _id получает сгенерированный идентификатор.
func (e *Engine) InsertOne(ctx context.Context, ns models.Namespace, doc models.Document) (string, error) {
	ids, err := e.InsertMany(ctx, ns, []models.Document{doc})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// InsertMany вставляет документы локально (все или ни одного) и начинает их синхронизацию
func (e *Engine) InsertMany(ctx context.Context, ns models.Namespace, docs []models.Document) ([]string, error) {
	state, err := e.enter(ctx, ns)
	if err != nil {
		return nil, err
	}
	defer e.leave()

	prepared := make([]models.Document, 0, len(docs))
	for _, doc := range docs {
		if doc == nil {
			doc = models.Document{}
		}
		ready, _, err := docstore.PrepareInsert(version.Strip(doc))
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, ready)
	}

	var (
		ids   []string
		added bool
	)
	err = func() error {
		state.Lock()
		defer state.Unlock()

		ids, err = e.local.Collection(ns).InsertMany(ctx, prepared)
		if err != nil {
			return err
		}

		t := e.logicalT.Load()
		for i, id := range ids {
			if state.Document(id) == nil {
				added = true
			}
			doc, err := state.AddDocument(ctx, id)
			if err != nil {
				return err
			}
			event := models.NewInsertEvent(ns, id, prepared[i], true)
			if err := doc.RecordPendingWrite(ctx, t, event); err != nil {
				return err
			}
			e.emitEvent(state, event)
		}
		return nil
	}()
	if added {
		e.streams.Restart(ctx, ns)
	}
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", ns, err)
	}
	return ids, nil
}

// UpdateOne обновляет первый подходящий локальный документ.
// Upsert без подходящего документа вставляет новый и начинает его синхронизацию.
func (e *Engine) UpdateOne(ctx context.Context, ns models.Namespace, filter, update models.Document, opts *docstore.UpdateOptions) (*docstore.UpdateResult, error) {
	state, err := e.enter(ctx, ns)
	if err != nil {
		return nil, err
	}
	defer e.leave()

	upsert := opts != nil && opts.Upsert
	var (
		result *docstore.UpdateResult
		added  bool
	)
	err = func() error {
		state.Lock()
		defer state.Unlock()

		local := e.local.Collection(ns)
		before, err := local.FindOne(ctx, filter, nil)
		switch {
		case errors.Is(err, docstore.ErrDocumentNotFound):
			if !upsert {
				result = &docstore.UpdateResult{}
				return nil
			}
			id, err := e.upsertLocal(ctx, state, filter, update)
			if err != nil {
				return err
			}
			added = true
			result = &docstore.UpdateResult{UpsertedID: id}
			return nil
		case err != nil:
			return err
		}

		modified, err := e.updateLocal(ctx, state, []models.Document{before}, update)
		if err != nil {
			return err
		}
		result = &docstore.UpdateResult{MatchedCount: 1, ModifiedCount: modified}
		return nil
	}()
	if added {
		e.streams.Restart(ctx, ns)
	}
	if err != nil {
		return nil, fmt.Errorf("update in %s: %w", ns, err)
	}
	return result, nil
}

// UpdateMany обновляет все подходящие локальные документы
func (e *Engine) UpdateMany(ctx context.Context, ns models.Namespace, filter, update models.Document, opts *docstore.UpdateOptions) (*docstore.UpdateResult, error) {
	state, err := e.enter(ctx, ns)
	if err != nil {
		return nil, err
	}
	defer e.leave()

	upsert := opts != nil && opts.Upsert
	var (
		result *docstore.UpdateResult
		added  bool
	)
	err = func() error {
		state.Lock()
		defer state.Unlock()

		befores, err := e.local.Collection(ns).Find(ctx, filter, nil)
		if err != nil {
			return err
		}
		if len(befores) == 0 {
			if !upsert {
				result = &docstore.UpdateResult{}
				return nil
			}
			id, err := e.upsertLocal(ctx, state, filter, update)
			if err != nil {
				return err
			}
			added = true
			result = &docstore.UpdateResult{UpsertedID: id}
			return nil
		}

		modified, err := e.updateLocal(ctx, state, befores, update)
		if err != nil {
			return err
		}
		result = &docstore.UpdateResult{MatchedCount: int64(len(befores)), ModifiedCount: modified}
		return nil
	}()
	if added {
		e.streams.Restart(ctx, ns)
	}
	if err != nil {
		return nil, fmt.Errorf("update in %s: %w", ns, err)
	}
	return result, nil
}

// upsertLocal вставляет документ, построенный из фильтра и обновления; это локальная вставка
func (e *Engine) upsertLocal(ctx context.Context, state *syncstate.NamespaceState, filter, update models.Document) (string, error) {
	ns := state.Namespace()
	local := e.local.Collection(ns)

	after, err := local.FindOneAndUpdate(ctx, filter, update, &docstore.FindOneAndUpdateOptions{Upsert: true, ReturnAfter: true})
	if err != nil {
		return "", err
	}
	id, ok := after.ID()
	if !ok {
		return "", docstore.ErrInvalidID
	}
	if after, err = e.sanitizeLocal(ctx, local, id, after); err != nil {
		return "", err
	}

	doc, err := state.AddDocument(ctx, id)
	if err != nil {
		return "", err
	}
	event := models.NewInsertEvent(ns, id, after, true)
	if err := doc.RecordPendingWrite(ctx, e.logicalT.Load(), event); err != nil {
		return "", err
	}
	e.emitEvent(state, event)
	return id, nil
}

// updateLocal обновляет найденные документы по одному под защитой журнала отмены
// и возвращает число измененных
func (e *Engine) updateLocal(ctx context.Context, state *syncstate.NamespaceState, befores []models.Document, update models.Document) (int64, error) {
	ns := state.Namespace()
	local := e.local.Collection(ns)
	undo := e.local.UndoCollection(ns)

	if err := saveUndo(ctx, undo, befores...); err != nil {
		return 0, err
	}

	var (
		modified int64
		done     []string
	)
	t := e.logicalT.Load()
	for _, before := range befores {
		id, ok := before.ID()
		if !ok {
			continue
		}
		after, err := local.FindOneAndUpdate(ctx, idFilter(id), update, &docstore.FindOneAndUpdateOptions{ReturnAfter: true})
		if errors.Is(err, docstore.ErrDocumentNotFound) {
			done = append(done, id)
			continue
		}
		if err != nil {
			return modified, err
		}
		if after, err = e.sanitizeLocal(ctx, local, id, after); err != nil {
			return modified, err
		}

		desc := query.Diff(before, after)
		if !desc.IsEmpty() {
			modified++
		}

		// несинхронизируемый документ меняется только локально
		if doc := state.Document(id); doc != nil {
			event := models.NewUpdateEvent(ns, id, desc, after, true)
			if err := doc.RecordPendingWrite(ctx, t, event); err != nil {
				return modified, err
			}
			e.emitEvent(state, event)
		}
		done = append(done, id)
	}

	return modified, clearUndo(ctx, undo, done...)
}

// sanitizeLocal убирает поле версии, если его добавило обновление приложения
func (e *Engine) sanitizeLocal(ctx context.Context, local docstore.Collection, id string, doc models.Document) (models.Document, error) {
	if _, ok := doc[models.VersionField]; !ok {
		return doc, nil
	}
	clean := version.Strip(doc)
	if _, err := local.ReplaceOne(ctx, idFilter(id), clean, nil); err != nil {
		return nil, err
	}
	return clean, nil
}

// DeleteOne удаляет первый подходящий локальный документ
func (e *Engine) DeleteOne(ctx context.Context, ns models.Namespace, filter models.Document) (int64, error) {
	return e.deleteMatching(ctx, ns, filter, 1)
}

// DeleteMany удаляет все подходящие локальные документы
func (e *Engine) DeleteMany(ctx context.Context, ns models.Namespace, filter models.Document) (int64, error) {
	return e.deleteMatching(ctx, ns, filter, 0)
}

func (e *Engine) deleteMatching(ctx context.Context, ns models.Namespace, filter models.Document, limit int64) (int64, error) {
	state, err := e.enter(ctx, ns)
	if err != nil {
		return 0, err
	}
	defer e.leave()

	var (
		deleted int64
		removed bool
	)
	err = func() error {
		state.Lock()
		defer state.Unlock()

		local := e.local.Collection(ns)
		undo := e.local.UndoCollection(ns)

		docs, err := local.Find(ctx, filter, &docstore.FindOptions{Limit: limit})
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return nil
		}
		if err := saveUndo(ctx, undo, docs...); err != nil {
			return err
		}

		ids := make([]string, 0, len(docs))
		for _, doc := range docs {
			if id, ok := doc.ID(); ok {
				ids = append(ids, id)
			}
		}
		if deleted, err = local.DeleteMany(ctx, idsFilter(ids)); err != nil {
			return err
		}

		t := e.logicalT.Load()
		var unsynced []string
		for _, id := range ids {
			doc := state.Document(id)
			if doc == nil {
				continue
			}
			// вставка еще не отправлена: удаленной стороне нечего удалять
			if pending := doc.PendingWrite(); pending != nil && pending.OperationType == models.OperationInsert {
				unsynced = append(unsynced, id)
				continue
			}
			event := models.NewDeleteEvent(ns, id, true)
			if err := doc.RecordPendingWrite(ctx, t, event); err != nil {
				return err
			}
			e.emitEvent(state, event)
		}
		if len(unsynced) > 0 {
			if err := state.RemoveDocuments(ctx, unsynced...); err != nil {
				return err
			}
			removed = true
		}
		return clearUndo(ctx, undo, ids...)
	}()
	if removed {
		e.streams.Restart(ctx, ns)
	}
	if err != nil {
		return deleted, fmt.Errorf("delete in %s: %w", ns, err)
	}
	return deleted, nil
}
