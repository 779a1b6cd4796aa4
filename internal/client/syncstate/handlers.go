package syncstate

import (
	"context"

	"github.com/iudanet/docsync/internal/models"
)

// ConflictHandler решает конфликт между локальной незафиксированной записью и
// удаленным событием. Возвращенный nil документ означает удаление.
type ConflictHandler interface {
	Resolve(ctx context.Context, documentID string, local, remote *models.ChangeEvent) (models.Document, error)
}

// ConflictHandlerFunc adapts a function to ConflictHandler.
type ConflictHandlerFunc func(ctx context.Context, documentID string, local, remote *models.ChangeEvent) (models.Document, error)

// Resolve calls f.
func (f ConflictHandlerFunc) Resolve(ctx context.Context, documentID string, local, remote *models.ChangeEvent) (models.Document, error) {
	return f(ctx, documentID, local, remote)
}

// ChangeEventListener получает события изменений синхронизируемых документов
type ChangeEventListener interface {
	OnEvent(documentID string, event *models.ChangeEvent)
}

// ChangeEventListenerFunc adapts a function to ChangeEventListener.
type ChangeEventListenerFunc func(documentID string, event *models.ChangeEvent)

// OnEvent calls f.
func (f ChangeEventListenerFunc) OnEvent(documentID string, event *models.ChangeEvent) {
	f(documentID, event)
}
