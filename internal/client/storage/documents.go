package storage

import (
	"github.com/iudanet/docsync/internal/docstore"
	"github.com/iudanet/docsync/internal/models"
)

// DocumentStorage локальное хранилище документов клиента.
// UndoCollection хранит снимки документов до незавершенных локальных записей.
type DocumentStorage interface {
	Collection(ns models.Namespace) docstore.Collection
	UndoCollection(ns models.Namespace) docstore.Collection
}
