package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/iudanet/docsync/internal/client/syncstate"
	"github.com/iudanet/docsync/internal/docstore"
	"github.com/iudanet/docsync/internal/models"
)

// Configure задает обработчик конфликтов и получателя событий namespace
// и начинает отслеживать удаленные изменения его документов
func (e *Engine) Configure(ctx context.Context, ns models.Namespace, handler syncstate.ConflictHandler, listener syncstate.ChangeEventListener) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if handler == nil {
		return fmt.Errorf("conflict handler is required for %s: %w", ns, ErrNotConfigured)
	}

	e.barrier.Enter()
	defer e.barrier.Leave()

	// смена обработчиков меняет состав настроенных namespace: экземпляр монопольно
	e.instance.Lock()
	state, err := e.instance.Namespace(ctx, ns)
	if err == nil {
		state.Configure(handler, listener)
		e.registerStream(ns)
	}
	e.instance.Unlock()
	if err != nil {
		return err
	}

	e.logger.Info("Namespace configured", "namespace", ns.String(), "documents", len(state.SyncedIDs()))

	if e.cfg.AutoStart && e.network.IsConnected() {
		if e.IsRunning() {
			e.streams.Start(ctx, ns)
		} else {
			e.Start()
		}
	}
	return nil
}

// registerStream описывает поток изменений namespace. Состояние namespace
// ищется при каждом вызове: Reinitialize заменяет его новым.
func (e *Engine) registerStream(ns models.Namespace) {
	e.streams.Register(ns,
		func() []string {
			state, ok := e.instance.Lookup(ns)
			if !ok {
				return nil
			}
			return state.SyncedIDs()
		},
		func(ctx context.Context) error {
			state, ok := e.instance.Lookup(ns)
			if !ok {
				return nil
			}
			state.Lock()
			defer state.Unlock()
			return state.MarkAllStale(ctx)
		})
}

// SyncIDs начинает синхронизацию документов. Новые документы помечаются
// устаревшими и сверяются с удаленной стороной на ближайшем проходе.
func (e *Engine) SyncIDs(ctx context.Context, ns models.Namespace, ids ...string) error {
	e.barrier.Enter()
	defer e.barrier.Leave()

	state, err := e.instance.Namespace(ctx, ns)
	if err != nil {
		return err
	}

	added, err := func() (bool, error) {
		state.Lock()
		defer state.Unlock()

		added := false
		for _, id := range ids {
			if id == "" {
				return added, docstore.ErrInvalidID
			}
			if state.Document(id) != nil {
				continue
			}
			doc, err := state.AddDocument(ctx, id)
			if err != nil {
				return added, err
			}
			added = true
			if err := doc.SetStale(ctx, true); err != nil {
				return added, err
			}
		}
		return added, nil
	}()
	if added {
		e.streams.Restart(ctx, ns)
	}
	return err
}

// DesyncIDs прекращает синхронизацию документов и удаляет их локальные копии.
// Ожидающие отправки записи теряются.
func (e *Engine) DesyncIDs(ctx context.Context, ns models.Namespace, ids ...string) error {
	e.barrier.Enter()
	defer e.barrier.Leave()

	state, ok := e.instance.Lookup(ns)
	if !ok || len(ids) == 0 {
		return nil
	}

	err := func() error {
		state.Lock()
		defer state.Unlock()

		if _, err := e.local.Collection(ns).DeleteMany(ctx, idsFilter(ids)); err != nil {
			return fmt.Errorf("failed to delete desynced documents: %w", err)
		}
		return state.RemoveDocuments(ctx, ids...)
	}()
	if err != nil {
		return err
	}
	e.streams.Restart(ctx, ns)
	return nil
}

// SyncedIDs returns the ids of synchronized documents of ns.
func (e *Engine) SyncedIDs(ns models.Namespace) []string {
	state, ok := e.instance.Lookup(ns)
	if !ok {
		return nil
	}
	return state.SyncedIDs()
}

// PausedIDs returns the ids of documents of ns whose sync is paused.
func (e *Engine) PausedIDs(ns models.Namespace) []string {
	state, ok := e.instance.Lookup(ns)
	if !ok {
		return nil
	}
	return state.PausedIDs()
}

// PendingIDs returns the ids of documents of ns with a write waiting to be sent.
func (e *Engine) PendingIDs(ns models.Namespace) []string {
	state, ok := e.instance.Lookup(ns)
	if !ok {
		return nil
	}
	return state.PendingIDs()
}

// Namespaces returns every namespace known to the instance.
func (e *Engine) Namespaces() []models.Namespace {
	states := e.instance.Namespaces()
	out := make([]models.Namespace, 0, len(states))
	for _, state := range states {
		out = append(out, state.Namespace())
	}
	return out
}

// ResumeSync снимает паузу с документа. Документ помечается устаревшим,
// чтобы пропущенные за время паузы удаленные изменения были сверены.
// Возвращает false, если документ не синхронизируется или состояние не удалось сохранить.
func (e *Engine) ResumeSync(ctx context.Context, ns models.Namespace, id string) bool {
	e.barrier.Enter()
	defer e.barrier.Leave()
	e.instance.RLock()
	defer e.instance.RUnlock()

	state, ok := e.instance.Lookup(ns)
	if !ok {
		return false
	}
	state.Lock()
	defer state.Unlock()

	doc := state.Document(id)
	if doc == nil {
		return false
	}
	if err := doc.SetPaused(ctx, false); err != nil {
		e.logger.Warn("Failed to resume document", "namespace", ns.String(), "document_id", id, "error", err)
		return false
	}
	if err := doc.SetStale(ctx, true); err != nil {
		e.logger.Warn("Failed to mark resumed document stale", "namespace", ns.String(), "document_id", id, "error", err)
	}
	return true
}

// Refresh помечает все документы настроенных namespace устаревшими:
// следующий проход сверит их с удаленной стороной без потока изменений
func (e *Engine) Refresh(ctx context.Context) error {
	e.barrier.Enter()
	defer e.barrier.Leave()
	e.instance.RLock()
	defer e.instance.RUnlock()

	for _, state := range e.instance.ConfiguredNamespaces() {
		state.Lock()
		err := state.MarkAllStale(ctx)
		state.Unlock()
		if err != nil {
			return fmt.Errorf("failed to refresh %s: %w", state.Namespace(), err)
		}
	}
	return nil
}

// LastPassTime возвращает время последнего выполненного прохода синхронизации.
// Без хранилища метаданных или до первого прохода возвращается нулевое время.
func (e *Engine) LastPassTime(ctx context.Context) (time.Time, error) {
	if e.metadata == nil {
		return time.Time{}, nil
	}
	ts, err := e.metadata.GetLastSyncTimestamp(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last sync timestamp: %w", err)
	}
	if ts == 0 {
		return time.Time{}, nil
	}
	return time.Unix(ts, 0), nil
}

func idFilter(id string) models.Document {
	return models.Document{models.IDField: id}
}

func idsFilter(ids []string) models.Document {
	return models.Document{models.IDField: models.Document{"$in": toAnySlice(ids)}}
}
