package storage

import (
	"github.com/iudanet/docsync/internal/docstore"
	"github.com/iudanet/docsync/internal/models"
)

// DocumentStore хранилище документов сервера: коллекции namespace
// и поток изменений, в который попадает каждая зафиксированная запись.
// Реализации: sqlite.Storage и memstore.Store.
type DocumentStore interface {
	Collection(ns models.Namespace) docstore.Collection
	docstore.Watcher
}
