package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/docsync/internal/client/syncstate"
	"github.com/iudanet/docsync/internal/docstore"
	"github.com/iudanet/docsync/internal/models"
)

// Recover восстанавливает локальные документы после прерванных записей.
// Повторный запуск после сбоя во время восстановления приводит к тому же состоянию.
func (e *Engine) Recover(ctx context.Context) error {
	e.instance.Lock()
	defer e.instance.Unlock()
	return e.recoverLocked(ctx)
}

func (e *Engine) recoverLocked(ctx context.Context) error {
	for _, state := range e.instance.Namespaces() {
		if err := e.recoverNamespace(ctx, state); err != nil {
			e.reportError(KindFatal, state.Namespace(), "", err)
			return err
		}
	}
	return nil
}

func (e *Engine) recoverNamespace(ctx context.Context, state *syncstate.NamespaceState) error {
	state.Lock()
	defer state.Unlock()

	ns := state.Namespace()
	local := e.local.Collection(ns)
	undo := e.local.UndoCollection(ns)
	log := e.logger.With("namespace", ns.String())

	images, err := undo.Find(ctx, models.Document{}, nil)
	if err != nil {
		return fmt.Errorf("failed to read undo log of %s: %w", ns, err)
	}

	// 1. снимки документов до прерванных записей
	recovered := make([]string, 0, len(images))
	for _, image := range images {
		id, ok := image.ID()
		if !ok {
			continue
		}
		if _, err := local.ReplaceOne(ctx, idFilter(id), image, &docstore.UpdateOptions{Upsert: true}); err != nil {
			return fmt.Errorf("failed to restore %s/%s: %w", ns, id, err)
		}
		recovered = append(recovered, id)
	}

	// 2. ожидающая запись описывает, чего добивалась последняя операция
	for _, id := range recovered {
		doc := state.Document(id)
		if doc == nil {
			continue
		}
		pending := doc.PendingWrite()
		if pending == nil {
			continue
		}
		if err := reapplyPendingWrite(ctx, local, id, pending); err != nil {
			return err
		}
	}

	// 3. журнал очищается только после восстановления
	if len(recovered) > 0 {
		if _, err := undo.DeleteMany(ctx, idsFilter(recovered)); err != nil {
			return fmt.Errorf("failed to clear undo log of %s: %w", ns, err)
		}
		recoveredTotal.Add(len(recovered))
		log.Info("Recovered interrupted writes", "documents", len(recovered))
	}

	// 4. документы, которые больше не синхронизируются
	removed, err := local.DeleteMany(ctx, models.Document{
		models.IDField: models.Document{"$nin": toAnySlice(state.SyncedIDs())},
	})
	if err != nil {
		return fmt.Errorf("failed to delete unsynced documents of %s: %w", ns, err)
	}
	if removed > 0 {
		log.Info("Deleted documents that are not synchronized", "documents", removed)
	}
	return nil
}

func reapplyPendingWrite(ctx context.Context, local docstore.Collection, id string, pending *models.ChangeEvent) error {
	switch pending.OperationType {
	case models.OperationInsert, models.OperationReplace, models.OperationUpdate:
		if pending.FullDocument == nil {
			return nil
		}
		if _, err := local.ReplaceOne(ctx, idFilter(id), pending.FullDocument, &docstore.UpdateOptions{Upsert: true}); err != nil {
			return fmt.Errorf("failed to reapply pending %s of %s: %w", pending.OperationType, id, err)
		}
	case models.OperationDelete:
		if _, err := local.DeleteOne(ctx, idFilter(id)); err != nil {
			return fmt.Errorf("failed to reapply pending delete of %s: %w", id, err)
		}
	default:
		return fmt.Errorf("pending write of %s: %w %q", id, ErrUnknownOperation, pending.OperationType)
	}
	return nil
}

// saveUndo записывает снимки документов в журнал отмены до локальной записи
func saveUndo(ctx context.Context, undo docstore.Collection, docs ...models.Document) error {
	for _, doc := range docs {
		id, ok := doc.ID()
		if !ok {
			continue
		}
		if _, err := undo.ReplaceOne(ctx, idFilter(id), doc, &docstore.UpdateOptions{Upsert: true}); err != nil {
			return fmt.Errorf("failed to save undo image of %s: %w", id, err)
		}
	}
	return nil
}

// clearUndo удаляет снимки после того, как запись и ее состояние синхронизации сохранены
func clearUndo(ctx context.Context, undo docstore.Collection, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := undo.DeleteMany(ctx, idsFilter(ids)); err != nil {
		return fmt.Errorf("failed to clear undo log: %w", err)
	}
	return nil
}

// findByID возвращает документ или nil, если его нет
func findByID(ctx context.Context, coll docstore.Collection, id string) (models.Document, error) {
	doc, err := coll.FindOne(ctx, idFilter(id), nil)
	if errors.Is(err, docstore.ErrDocumentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func toAnySlice(ids []string) []any {
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, id)
	}
	return out
}
