package changestream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/docsync/internal/docstore"
	"github.com/iudanet/docsync/internal/models"
)

// DefaultRetryDelay пауза перед повторным открытием потока после ошибки
const DefaultRetryDelay = 2 * time.Second

// WatcherConfig описывает поток изменений одного namespace
type WatcherConfig struct {
	Source docstore.Watcher
	Queue  *Queue
	// IDs возвращает текущий набор синхронизируемых id
	IDs func() []string
	// OnOpen вызывается после каждого открытия потока: события, пришедшие
	// пока поток был закрыт, потеряны
	OnOpen     func(ctx context.Context) error
	Logger     *slog.Logger
	Namespace  models.Namespace
	RetryDelay time.Duration
}

// Watcher держит открытым поток изменений синхронизируемых документов namespace
// и переоткрывает его после ошибок
type Watcher struct {
	cfg    WatcherConfig
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher; call Start to open the stream.
func NewWatcher(cfg WatcherConfig) *Watcher {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Watcher{cfg: cfg}
}

// Start запускает фоновую горутину чтения потока
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Stop останавливает чтение и ждет завершения горутины
func (w *Watcher) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	w.wg.Wait()
}

func (w *Watcher) run(ctx context.Context) {
	log := w.cfg.Logger.With("namespace", w.cfg.Namespace.String())

	for {
		ids := w.cfg.IDs()
		if len(ids) == 0 {
			// нечего отслеживать; Manager перезапустит watcher при изменении набора id
			<-ctx.Done()
			return
		}

		err := w.stream(ctx, ids)
		if ctx.Err() != nil {
			return
		}
		log.Warn("Change stream interrupted", "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.cfg.RetryDelay):
		}
	}
}

func (w *Watcher) stream(ctx context.Context, ids []string) error {
	stream, err := w.cfg.Source.Watch(ctx, w.cfg.Namespace, ids)
	if err != nil {
		return err
	}
	defer stream.Close()

	if w.cfg.OnOpen != nil {
		if err := w.cfg.OnOpen(ctx); err != nil {
			return err
		}
	}
	w.cfg.Logger.Debug("Change stream opened", "namespace", w.cfg.Namespace.String(), "ids", len(ids))

	for {
		ev, err := stream.Next(ctx)
		if err != nil {
			return err
		}
		if ev == nil || ev.DocumentID == "" {
			continue
		}
		w.cfg.Queue.Enqueue(ev.DocumentID, ev)
	}
}
