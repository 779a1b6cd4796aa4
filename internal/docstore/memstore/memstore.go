// Package memstore хранит документы в памяти процесса.
// Используется сервером с --storage memory и как удаленное хранилище в тестах.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/iudanet/docsync/internal/docstore"
	"github.com/iudanet/docsync/internal/models"
)

var errReadOnly = errors.New("read-only transaction")

// Store набор коллекций в памяти с общим хабом событий изменений
type Store struct {
	data map[models.Namespace]map[string]models.Document
	hub  *docstore.Hub
	mu   sync.RWMutex
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		data: make(map[models.Namespace]map[string]models.Document),
		hub:  docstore.NewHub(0),
	}
}

// Collection возвращает коллекцию namespace; события записей публикуются в хаб
func (s *Store) Collection(ns models.Namespace) docstore.Collection {
	return docstore.NewStore(ns, &backend{store: s, ns: ns}, s.hub.Publish)
}

// Watch открывает поток изменений документов ids
func (s *Store) Watch(ctx context.Context, ns models.Namespace, ids []string) (docstore.ChangeStream, error) {
	return s.hub.Watch(ctx, ns, ids)
}

// Hub возвращает хаб событий хранилища
func (s *Store) Hub() *docstore.Hub {
	return s.hub
}

type backend struct {
	store *Store
	ns    models.Namespace
}

func (b *backend) View(ctx context.Context, fn func(tx docstore.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.store.mu.RLock()
	defer b.store.mu.RUnlock()
	return fn(&txn{docs: b.store.data[b.ns]})
}

// Update работает с копией коллекции и подменяет ее только при успехе fn
func (b *backend) Update(ctx context.Context, fn func(tx docstore.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	current := b.store.data[b.ns]
	staged := make(map[string]models.Document, len(current))
	for id, doc := range current {
		staged[id] = doc
	}

	if err := fn(&txn{docs: staged, writable: true}); err != nil {
		return err
	}
	b.store.data[b.ns] = staged
	return nil
}

type txn struct {
	docs     map[string]models.Document
	writable bool
}

func (t *txn) Get(id string) (models.Document, error) {
	doc, ok := t.docs[id]
	if !ok {
		return nil, nil
	}
	return doc.Clone(), nil
}

func (t *txn) ForEach(fn func(doc models.Document) error) error {
	ids := make([]string, 0, len(t.docs))
	for id := range t.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := fn(t.docs[id].Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (t *txn) Put(doc models.Document) error {
	if !t.writable {
		return errReadOnly
	}
	id, ok := doc.ID()
	if !ok {
		return docstore.ErrInvalidID
	}
	t.docs[id] = doc.Clone()
	return nil
}

func (t *txn) Delete(id string) error {
	if !t.writable {
		return errReadOnly
	}
	delete(t.docs, id)
	return nil
}
