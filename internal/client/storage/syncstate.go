package storage

import (
	"context"

	"github.com/iudanet/docsync/internal/models"
)

//go:generate moq -out syncstate_mock.go . SyncStateStorage

// SyncStateStorage хранит конфигурацию синхронизации одного экземпляра:
// список настроенных namespace и состояние каждого синхронизируемого документа.
type SyncStateStorage interface {
	// SaveNamespace регистрирует namespace; повторный вызов не является ошибкой
	SaveNamespace(ctx context.Context, ns models.Namespace) error

	// ListNamespaces returns every registered namespace
	ListNamespaces(ctx context.Context) ([]models.Namespace, error)

	// SaveDocumentState сохраняет (создает или перезаписывает) состояние документа
	SaveDocumentState(ctx context.Context, record *models.DocumentSyncRecord) error

	// DeleteDocumentStates удаляет состояния документов; отсутствующие id пропускаются
	DeleteDocumentStates(ctx context.Context, ns models.Namespace, ids []string) error

	// LoadDocumentStates returns all document states of the namespace
	LoadDocumentStates(ctx context.Context, ns models.Namespace) ([]*models.DocumentSyncRecord, error)
}
