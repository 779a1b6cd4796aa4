package syncer

import (
	"context"

	"github.com/iudanet/docsync/internal/client/syncstate"
	"github.com/iudanet/docsync/internal/models"
)

// RemoteWins разрешает конфликт в пользу удаленного состояния:
// удаленное удаление удаляет и локальный документ
func RemoteWins() syncstate.ConflictHandler {
	return syncstate.ConflictHandlerFunc(func(_ context.Context, _ string, _, remote *models.ChangeEvent) (models.Document, error) {
		return remote.FullDocument.Clone(), nil
	})
}

// LocalWins разрешает конфликт в пользу локальной записи
func LocalWins() syncstate.ConflictHandler {
	return syncstate.ConflictHandlerFunc(func(_ context.Context, _ string, local, _ *models.ChangeEvent) (models.Document, error) {
		return local.FullDocument.Clone(), nil
	})
}

// ConflictPolicy returns the built-in handler by name: "remote-wins" or "local-wins".
func ConflictPolicy(name string) (syncstate.ConflictHandler, bool) {
	switch name {
	case "remote-wins":
		return RemoteWins(), true
	case "local-wins":
		return LocalWins(), true
	default:
		return nil, false
	}
}
