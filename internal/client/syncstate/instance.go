package syncstate

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/iudanet/docsync/internal/client/storage"
	"github.com/iudanet/docsync/internal/models"
)

// InstanceState состояние синхронизации одного локального экземпляра.
// Namespace загружаются из хранилища лениво, при первом обращении.
type InstanceState struct {
	store      storage.SyncStateStorage
	namespaces *xsync.MapOf[string, *NamespaceState]
	key        string
	lock       sync.RWMutex
}

// NewInstanceState создает состояние экземпляра key поверх store
func NewInstanceState(key string, store storage.SyncStateStorage) *InstanceState {
	return &InstanceState{
		key:        key,
		store:      store,
		namespaces: xsync.NewMapOf[string, *NamespaceState](),
	}
}

// Key returns the instance key.
func (i *InstanceState) Key() string {
	return i.key
}

// Lock захватывает экземпляр монопольно (проход синхронизации)
func (i *InstanceState) Lock() { i.lock.Lock() }

// Unlock releases the exclusive lock.
func (i *InstanceState) Unlock() { i.lock.Unlock() }

// RLock захватывает экземпляр на чтение
func (i *InstanceState) RLock() { i.lock.RLock() }

// RUnlock releases the read lock.
func (i *InstanceState) RUnlock() { i.lock.RUnlock() }

// Load загружает все сохраненные namespace; ранее загруженное состояние отбрасывается.
// Обработчики и получатели событий уже настроенных namespace сохраняются.
func (i *InstanceState) Load(ctx context.Context) error {
	list, err := i.store.ListNamespaces(ctx)
	if err != nil {
		return fmt.Errorf("failed to load instance %q: %w", i.key, err)
	}

	for _, ns := range list {
		fresh := newNamespaceState(ns, i.store)
		if err := fresh.load(ctx); err != nil {
			return err
		}
		if prev, ok := i.namespaces.Load(ns.String()); ok {
			fresh.Configure(prev.ConflictHandler(), prev.Listener())
		}
		i.namespaces.Store(ns.String(), fresh)
	}
	return nil
}

// Namespace возвращает состояние namespace, загружая и регистрируя его при первом обращении
func (i *InstanceState) Namespace(ctx context.Context, ns models.Namespace) (*NamespaceState, error) {
	if state, ok := i.namespaces.Load(ns.String()); ok {
		return state, nil
	}

	if err := i.store.SaveNamespace(ctx, ns); err != nil {
		return nil, fmt.Errorf("failed to register namespace %s: %w", ns, err)
	}
	fresh := newNamespaceState(ns, i.store)
	if err := fresh.load(ctx); err != nil {
		return nil, err
	}

	state, _ := i.namespaces.LoadOrStore(ns.String(), fresh)
	return state, nil
}

// Lookup возвращает уже загруженное состояние namespace без обращения к хранилищу
func (i *InstanceState) Lookup(ns models.Namespace) (*NamespaceState, bool) {
	return i.namespaces.Load(ns.String())
}

// Namespaces возвращает загруженные namespace в порядке имен
func (i *InstanceState) Namespaces() []*NamespaceState {
	var out []*NamespaceState
	i.namespaces.Range(func(_ string, state *NamespaceState) bool {
		out = append(out, state)
		return true
	})
	sort.Slice(out, func(a, b int) bool {
		return out[a].Namespace().String() < out[b].Namespace().String()
	})
	return out
}

// ConfiguredNamespaces returns the namespaces that have a conflict handler.
func (i *InstanceState) ConfiguredNamespaces() []*NamespaceState {
	var out []*NamespaceState
	for _, state := range i.Namespaces() {
		if state.IsConfigured() {
			out = append(out, state)
		}
	}
	return out
}
