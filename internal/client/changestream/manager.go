package changestream

import (
	"context"
	"log/slog"
	"sync"

	"github.com/iudanet/docsync/internal/docstore"
	"github.com/iudanet/docsync/internal/models"
)

// Manager владеет очередями и потоками изменений всех namespace экземпляра.
// Очередь namespace переживает перезапуск потока.
type Manager struct {
	source   docstore.Watcher
	logger   *slog.Logger
	queues   map[models.Namespace]*Queue
	watchers map[models.Namespace]*Watcher
	configs  map[models.Namespace]WatcherConfig
	mu       sync.Mutex
}

// NewManager creates a manager that opens streams from source.
func NewManager(source docstore.Watcher, logger *slog.Logger) *Manager {
	return &Manager{
		source:   source,
		logger:   logger,
		queues:   make(map[models.Namespace]*Queue),
		watchers: make(map[models.Namespace]*Watcher),
		configs:  make(map[models.Namespace]WatcherConfig),
	}
}

// Queue возвращает очередь событий namespace, создавая ее при необходимости
func (m *Manager) Queue(ns models.Namespace) *Queue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queueLocked(ns)
}

func (m *Manager) queueLocked(ns models.Namespace) *Queue {
	q, ok := m.queues[ns]
	if !ok {
		q = NewQueue()
		m.queues[ns] = q
	}
	return q
}

// Register запоминает, как открывать поток namespace. Поток не запускается.
func (m *Manager) Register(ns models.Namespace, ids func() []string, onOpen func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[ns] = WatcherConfig{
		Source:    m.source,
		Queue:     m.queueLocked(ns),
		IDs:       ids,
		OnOpen:    onOpen,
		Logger:    m.logger,
		Namespace: ns,
	}
}

// Start (пере)запускает поток зарегистрированного namespace.
// Поток живет до Stop, а не до отмены ctx вызывающего.
func (m *Manager) Start(ctx context.Context, ns models.Namespace) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, ok := m.configs[ns]
	if !ok {
		return
	}
	if w, running := m.watchers[ns]; running {
		w.Stop()
	}
	w := NewWatcher(cfg)
	w.Start(context.WithoutCancel(ctx))
	m.watchers[ns] = w
}

// StartAll starts the streams of every registered namespace.
func (m *Manager) StartAll(ctx context.Context) {
	m.mu.Lock()
	namespaces := make([]models.Namespace, 0, len(m.configs))
	for ns := range m.configs {
		namespaces = append(namespaces, ns)
	}
	m.mu.Unlock()

	for _, ns := range namespaces {
		m.Start(ctx, ns)
	}
}

// Restart перезапускает поток namespace, если он запущен: набор id изменился
func (m *Manager) Restart(ctx context.Context, ns models.Namespace) {
	if m.IsRunning(ns) {
		m.Start(ctx, ns)
	}
}

// Stop останавливает поток namespace
func (m *Manager) Stop(ns models.Namespace) {
	m.mu.Lock()
	w, ok := m.watchers[ns]
	delete(m.watchers, ns)
	m.mu.Unlock()

	if ok {
		w.Stop()
	}
}

// StopAll останавливает все потоки
func (m *Manager) StopAll() {
	m.mu.Lock()
	watchers := m.watchers
	m.watchers = make(map[models.Namespace]*Watcher)
	m.mu.Unlock()

	for _, w := range watchers {
		w.Stop()
	}
}

// IsRunning reports whether the stream of ns is started.
func (m *Manager) IsRunning(ns models.Namespace) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.watchers[ns]
	return ok
}
