// Package syncer синхронизирует локальное хранилище документов с удаленным.
//
// Engine принимает локальные записи приложения и запоминает их как ожидающие отправки,
// в фоне выполняет проходы синхронизации (удаленные изменения -> локальные,
// затем локальные -> удаленные), разрешает конфликты обработчиком namespace
// и после сбоя восстанавливает локальное состояние из журнала отмены.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iudanet/docsync/internal/client/changestream"
	"github.com/iudanet/docsync/internal/client/storage"
	"github.com/iudanet/docsync/internal/client/syncstate"
	"github.com/iudanet/docsync/internal/docstore"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/version"
)

const (
	// DefaultInstanceKey ключ экземпляра по умолчанию
	DefaultInstanceKey = "default"
	// DefaultShortDelay пауза после выполненного прохода
	DefaultShortDelay = time.Second
	// DefaultLongDelay пауза после пропущенного или неудачного прохода
	DefaultLongDelay = 5 * time.Second
)

// RemoteStore удаленное хранилище: коллекции namespace и поток их изменений
type RemoteStore interface {
	Collection(ns models.Namespace) docstore.Collection
	docstore.Watcher
}

// NetworkMonitor сообщает, доступна ли удаленная сторона
type NetworkMonitor interface {
	IsConnected() bool
}

// AuthMonitor сообщает, аутентифицирован ли клиент
type AuthMonitor interface {
	IsLoggedIn() bool
}

type alwaysOn struct{}

func (alwaysOn) IsConnected() bool { return true }
func (alwaysOn) IsLoggedIn() bool  { return true }

// Config параметры движка синхронизации
type Config struct {
	// InstanceKey отделяет состояние синхронизации нескольких экземпляров в одном хранилище
	InstanceKey string
	ShortDelay  time.Duration
	LongDelay   time.Duration
	// AutoStart запускает фоновый цикл и потоки изменений при Configure
	AutoStart bool
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		InstanceKey: DefaultInstanceKey,
		ShortDelay:  DefaultShortDelay,
		LongDelay:   DefaultLongDelay,
		AutoStart:   true,
	}
}

// Option настраивает Engine
type Option func(e *Engine)

// WithLogger задает логгер движка
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithErrorListener задает получателя ошибок синхронизации
func WithErrorListener(listener ErrorListener) Option {
	return func(e *Engine) { e.errorListener = listener }
}

// WithNetworkMonitor задает источник состояния сети
func WithNetworkMonitor(monitor NetworkMonitor) Option {
	return func(e *Engine) { e.network = monitor }
}

// WithAuthMonitor задает источник состояния аутентификации
func WithAuthMonitor(monitor AuthMonitor) Option {
	return func(e *Engine) { e.auth = monitor }
}

// WithMetadataStorage сохраняет время последнего выполненного прохода
func WithMetadataStorage(metadata storage.MetadataStorage) Option {
	return func(e *Engine) { e.metadata = metadata }
}

// Engine движок синхронизации одного экземпляра
type Engine struct {
	local         storage.DocumentStorage
	remote        RemoteStore
	network       NetworkMonitor
	auth          AuthMonitor
	errorListener ErrorListener
	metadata      storage.MetadataStorage
	logger        *slog.Logger
	instance      *syncstate.InstanceState
	streams       *changestream.Manager
	dispatch      *dispatcher
	barrier       *Barrier
	loopCancel    context.CancelFunc
	cfg           Config
	loopWG        sync.WaitGroup
	logicalT      atomic.Uint64
	loopMu        sync.Mutex
	closed        atomic.Bool
}

// New создает движок поверх локального и удаленного хранилищ, загружает сохраненное
// состояние синхронизации и восстанавливает локальные данные после возможного сбоя.
// Фоновый цикл не запускается до Configure (или Start).
func New(ctx context.Context, cfg Config, local storage.DocumentStorage, remote RemoteStore, states storage.SyncStateStorage, opts ...Option) (*Engine, error) {
	def := DefaultConfig()
	if cfg.InstanceKey == "" {
		cfg.InstanceKey = def.InstanceKey
	}
	if cfg.ShortDelay <= 0 {
		cfg.ShortDelay = def.ShortDelay
	}
	if cfg.LongDelay <= 0 {
		cfg.LongDelay = def.LongDelay
	}

	e := &Engine{
		cfg:     cfg,
		local:   local,
		remote:  remote,
		network: alwaysOn{},
		auth:    alwaysOn{},
		logger:  slog.Default(),
		barrier: NewBarrier(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("instance", cfg.InstanceKey)
	e.instance = syncstate.NewInstanceState(cfg.InstanceKey, states)
	e.streams = changestream.NewManager(remote, e.logger)
	e.dispatch = newDispatcher(e.logger)

	if err := e.instance.Load(ctx); err != nil {
		e.dispatch.close()
		return nil, err
	}
	if err := e.Recover(ctx); err != nil {
		e.dispatch.close()
		return nil, fmt.Errorf("failed to recover local state: %w", err)
	}

	e.logger.Info("Sync engine initialized", "namespaces", len(e.instance.Namespaces()))
	return e, nil
}

// Close останавливает цикл и потоки изменений и доставляет оставшиеся события получателям
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.Stop()
	e.streams.StopAll()
	e.dispatch.close()
	e.logger.Info("Sync engine closed")
	return nil
}

// LogicalTime возвращает номер последнего прохода синхронизации
func (e *Engine) LogicalTime() uint64 {
	return e.logicalT.Load()
}

// reportError логирует ошибку и асинхронно передает ее получателю ошибок
func (e *Engine) reportError(kind ErrorKind, ns models.Namespace, documentID string, err error) {
	syncErr := &SyncError{Kind: kind, Namespace: ns, DocumentID: documentID, Err: err}
	syncErrorsCounter(kind).Inc()
	e.logger.Error("Sync error",
		"kind", kind.String(),
		"namespace", ns.String(),
		"document_id", documentID,
		"t", e.logicalT.Load(),
		"error", err)

	if listener := e.errorListener; listener != nil {
		e.dispatch.post(func() { listener.OnSyncError(syncErr) })
	}
}

// emitEvent передает событие получателю namespace без поля версии
func (e *Engine) emitEvent(state *syncstate.NamespaceState, event *models.ChangeEvent) {
	listener := state.Listener()
	if listener == nil || event == nil {
		return
	}

	out := event.Clone()
	out.FullDocument = version.Strip(out.FullDocument)
	if desc := out.UpdateDescription; desc != nil {
		delete(desc.UpdatedFields, models.VersionField)
		removed := desc.RemovedFields[:0]
		for _, field := range desc.RemovedFields {
			if field != models.VersionField {
				removed = append(removed, field)
			}
		}
		desc.RemovedFields = removed
	}
	e.dispatch.post(func() { listener.OnEvent(out.DocumentID, out) })
}
