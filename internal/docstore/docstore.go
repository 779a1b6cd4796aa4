// Package docstore определяет контракт хранилища документов, общий для локального
// хранилища клиента (bbolt), удаленного хранилища (HTTP API) и хранилищ сервера.
package docstore

import (
	"context"
	"errors"

	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/query"
)

var (
	// ErrDuplicateKey возвращается при вставке документа с уже существующим _id
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrDocumentNotFound возвращается FindOne, когда ни один документ не совпал с фильтром
	ErrDocumentNotFound = errors.New("document not found")

	// ErrInvalidID возвращается для документа с _id не строкового типа
	ErrInvalidID = errors.New("document _id must be a non-empty string")
)

// FindOptions параметры выборки
type FindOptions struct {
	Projection models.Document   `json:"projection,omitempty"`
	Sort       []query.SortField `json:"sort,omitempty"`
	Skip       int64             `json:"skip,omitempty"`
	Limit      int64             `json:"limit,omitempty"`
}

// UpdateOptions параметры обновления и замены
type UpdateOptions struct {
	Upsert bool `json:"upsert,omitempty"`
}

// FindOneAndUpdateOptions параметры FindOneAndUpdate
type FindOneAndUpdateOptions struct {
	Upsert bool `json:"upsert,omitempty"`
	// ReturnAfter возвращает документ после обновления вместо документа до него
	ReturnAfter bool `json:"returnAfter,omitempty"`
}

// UpdateResult результат операций обновления и замены
type UpdateResult struct {
	UpsertedID    string `json:"upsertedId,omitempty"`
	MatchedCount  int64  `json:"matchedCount"`
	ModifiedCount int64  `json:"modifiedCount"`
}

// Collection коллекция документов одного namespace.
// Фильтры поддерживают пути с точками, в том числе по полю версии.
//
//go:generate moq -out collection_mock.go . Collection
type Collection interface {
	Namespace() models.Namespace

	Find(ctx context.Context, filter models.Document, opts *FindOptions) ([]models.Document, error)
	FindOne(ctx context.Context, filter models.Document, opts *FindOptions) (models.Document, error)
	Count(ctx context.Context, filter models.Document) (int64, error)
	Aggregate(ctx context.Context, pipeline []models.Document) ([]models.Document, error)

	InsertOne(ctx context.Context, doc models.Document) (string, error)
	InsertMany(ctx context.Context, docs []models.Document) ([]string, error)

	ReplaceOne(ctx context.Context, filter, replacement models.Document, opts *UpdateOptions) (*UpdateResult, error)
	UpdateOne(ctx context.Context, filter, update models.Document, opts *UpdateOptions) (*UpdateResult, error)
	UpdateMany(ctx context.Context, filter, update models.Document, opts *UpdateOptions) (*UpdateResult, error)
	FindOneAndUpdate(ctx context.Context, filter, update models.Document, opts *FindOneAndUpdateOptions) (models.Document, error)

	DeleteOne(ctx context.Context, filter models.Document) (int64, error)
	DeleteMany(ctx context.Context, filter models.Document) (int64, error)
}

// ChangeObserver получает события о каждой зафиксированной записи хранилища
type ChangeObserver func(event *models.ChangeEvent)

// ChangeStream поток событий изменений удаленного хранилища
type ChangeStream interface {
	// Next блокируется до следующего события или отмены контекста
	Next(ctx context.Context) (*models.ChangeEvent, error)
	Close() error
}

// Watcher открывает поток изменений для набора документов namespace
type Watcher interface {
	Watch(ctx context.Context, ns models.Namespace, ids []string) (ChangeStream, error)
}
