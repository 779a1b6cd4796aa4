package syncstate

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/iudanet/docsync/internal/client/storage"
	"github.com/iudanet/docsync/internal/models"
)

// NamespaceState состояние синхронизации namespace: синхронизируемые документы,
// обработчик конфликтов и получатель событий.
//
// Lock/RLock защищают namespace на время прохода синхронизации и локальной записи.
// Внутренние структуры защищены отдельно, поэтому чтение списков id безопасно
// и без этих блокировок.
type NamespaceState struct {
	store    storage.SyncStateStorage
	handler  ConflictHandler
	listener ChangeEventListener
	docs     map[string]*DocumentState
	ns       models.Namespace
	lock     sync.RWMutex
	mu       sync.RWMutex
}

func newNamespaceState(ns models.Namespace, store storage.SyncStateStorage) *NamespaceState {
	return &NamespaceState{
		ns:    ns,
		store: store,
		docs:  make(map[string]*DocumentState),
	}
}

// load читает сохраненные состояния документов
func (n *NamespaceState) load(ctx context.Context) error {
	records, err := n.store.LoadDocumentStates(ctx, n.ns)
	if err != nil {
		return fmt.Errorf("failed to load namespace %s: %w", n.ns, err)
	}

	docs := make(map[string]*DocumentState, len(records))
	for _, r := range records {
		docs[r.DocumentID] = newDocumentState(n.store, r)
	}

	n.mu.Lock()
	n.docs = docs
	n.mu.Unlock()
	return nil
}

// Lock захватывает namespace монопольно
func (n *NamespaceState) Lock() { n.lock.Lock() }

// Unlock освобождает монопольную блокировку
func (n *NamespaceState) Unlock() { n.lock.Unlock() }

// RLock захватывает namespace на чтение
func (n *NamespaceState) RLock() { n.lock.RLock() }

// RUnlock освобождает блокировку на чтение
func (n *NamespaceState) RUnlock() { n.lock.RUnlock() }

// Namespace returns the namespace.
func (n *NamespaceState) Namespace() models.Namespace {
	return n.ns
}

// Configure задает обработчик конфликтов и получателя событий
func (n *NamespaceState) Configure(handler ConflictHandler, listener ChangeEventListener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handler = handler
	n.listener = listener
}

// ConflictHandler returns the configured handler or nil.
func (n *NamespaceState) ConflictHandler() ConflictHandler {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.handler
}

// Listener returns the configured listener or nil.
func (n *NamespaceState) Listener() ChangeEventListener {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.listener
}

// IsConfigured сообщает, что для namespace задан обработчик конфликтов
func (n *NamespaceState) IsConfigured() bool {
	return n.ConflictHandler() != nil
}

// Document возвращает состояние документа или nil, если он не синхронизируется
func (n *NamespaceState) Document(id string) *DocumentState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.docs[id]
}

// Documents возвращает состояния всех документов в порядке id
func (n *NamespaceState) Documents() []*DocumentState {
	n.mu.RLock()
	out := make([]*DocumentState, 0, len(n.docs))
	for _, d := range n.docs {
		out = append(out, d)
	}
	n.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// AddDocument начинает синхронизацию документа. Уже синхронизируемый документ
// возвращается без изменений.
func (n *NamespaceState) AddDocument(ctx context.Context, id string) (*DocumentState, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if d, ok := n.docs[id]; ok {
		return d, nil
	}

	record := &models.DocumentSyncRecord{
		Namespace:     n.ns,
		DocumentID:    id,
		SchemaVersion: models.DocumentSyncSchemaVersion,
	}
	if err := n.store.SaveDocumentState(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to sync document %q: %w", id, err)
	}
	d := newDocumentState(n.store, record)
	n.docs[id] = d
	return d, nil
}

// RemoveDocuments прекращает синхронизацию документов
func (n *NamespaceState) RemoveDocuments(ctx context.Context, ids ...string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.store.DeleteDocumentStates(ctx, n.ns, ids); err != nil {
		return fmt.Errorf("failed to desync documents: %w", err)
	}
	for _, id := range ids {
		delete(n.docs, id)
	}
	return nil
}

// SyncedIDs возвращает id синхронизируемых документов в порядке возрастания
func (n *NamespaceState) SyncedIDs() []string {
	return n.ids(func(*DocumentState) bool { return true })
}

// PausedIDs returns the ids of paused documents.
func (n *NamespaceState) PausedIDs() []string {
	return n.ids((*DocumentState).IsPaused)
}

// StaleIDs returns the ids of documents marked stale.
func (n *NamespaceState) StaleIDs() []string {
	return n.ids((*DocumentState).IsStale)
}

// PendingIDs returns the ids of documents with a pending local write.
func (n *NamespaceState) PendingIDs() []string {
	return n.ids((*DocumentState).HasPendingWrite)
}

func (n *NamespaceState) ids(keep func(*DocumentState) bool) []string {
	var out []string
	for _, d := range n.Documents() {
		if keep(d) {
			out = append(out, d.ID())
		}
	}
	return out
}

// MarkAllStale помечает все документы устаревшими: удаленные изменения
// могли быть пропущены, пока поток событий был закрыт
func (n *NamespaceState) MarkAllStale(ctx context.Context) error {
	for _, d := range n.Documents() {
		if err := d.SetStale(ctx, true); err != nil {
			return err
		}
	}
	return nil
}
