package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/docsync/internal/client/changestream"
	"github.com/iudanet/docsync/internal/client/syncstate"
	"github.com/iudanet/docsync/internal/docstore"
	"github.com/iudanet/docsync/internal/models"
)

// PassStats итоги одного прохода синхронизации
type PassStats struct {
	Pulled    int // удаленных изменений применено локально
	Pushed    int // локальных записей отправлено
	Conflicts int // разрешенных конфликтов
}

// SyncPass выполняет один проход синхронизации: для каждого настроенного namespace
// сначала применяет удаленные изменения, затем отправляет ожидающие локальные записи.
// Возвращает false, если проход не выполнялся: нет настроенных namespace, нет сети
// или клиент не аутентифицирован. Ошибки отдельных документов передаются получателю
// ошибок и не прерывают проход.
func (e *Engine) SyncPass(ctx context.Context) (bool, error) {
	if e.closed.Load() {
		return false, ErrEngineClosed
	}

	e.instance.Lock()
	defer e.instance.Unlock()

	namespaces := e.instance.ConfiguredNamespaces()
	if len(namespaces) == 0 {
		passesSkippedTotal.Inc()
		return false, nil
	}

	t := e.logicalT.Add(1)
	log := e.logger.With("t", t)
	if !e.network.IsConnected() {
		log.Info("Sync pass skipped: network disconnected")
		passesSkippedTotal.Inc()
		return false, nil
	}
	if !e.auth.IsLoggedIn() {
		log.Info("Sync pass skipped: logged out")
		passesSkippedTotal.Inc()
		return false, nil
	}

	start := time.Now()
	log.Info("Starting synchronization", "namespaces", len(namespaces))

	stats := &PassStats{}
	passes := make([]*pass, 0, len(namespaces))
	for _, state := range namespaces {
		passes = append(passes, e.newPass(state, t, log, stats))
	}

	for _, p := range passes {
		if err := p.remoteToLocal(ctx); err != nil {
			e.restartStreams(ctx, passes)
			return false, fmt.Errorf("remote to local sync of %s: %w", p.ns, err)
		}
	}
	for _, p := range passes {
		if err := p.localToRemote(ctx); err != nil {
			e.restartStreams(ctx, passes)
			return false, fmt.Errorf("local to remote sync of %s: %w", p.ns, err)
		}
	}
	e.restartStreams(ctx, passes)

	passesTotal.Inc()
	passDuration.UpdateDuration(start)
	log.Info("Synchronization completed",
		"pulled", stats.Pulled,
		"pushed", stats.Pushed,
		"conflicts", stats.Conflicts,
		"duration", time.Since(start))

	if e.metadata != nil {
		if err := e.metadata.SaveLastSyncTimestamp(ctx, time.Now().Unix()); err != nil {
			// Не прерываем синхронизацию из-за ошибки сохранения timestamp
			log.Warn("Failed to save last sync timestamp", "error", err)
		}
	}
	return true, nil
}

// restartStreams перезапускает потоки namespace, в которых изменился набор документов.
// Вызывается без блокировок namespace: открытие потока их захватывает.
func (e *Engine) restartStreams(ctx context.Context, passes []*pass) {
	for _, p := range passes {
		if p.idsChanged {
			e.streams.Restart(ctx, p.ns)
		}
	}
}

// pass состояние прохода синхронизации одного namespace
type pass struct {
	e          *Engine
	state      *syncstate.NamespaceState
	local      docstore.Collection
	undo       docstore.Collection
	remote     docstore.Collection
	queue      *changestream.Queue
	log        *slog.Logger
	stats      *PassStats
	ns         models.Namespace
	t          uint64
	idsChanged bool
}

func (e *Engine) newPass(state *syncstate.NamespaceState, t uint64, log *slog.Logger, stats *PassStats) *pass {
	ns := state.Namespace()
	return &pass{
		e:      e,
		state:  state,
		local:  e.local.Collection(ns),
		undo:   e.local.UndoCollection(ns),
		remote: e.remote.Collection(ns),
		queue:  e.streams.Queue(ns),
		log:    log.With("namespace", ns.String()),
		stats:  stats,
		ns:     ns,
		t:      t,
	}
}

// replaceLocal записывает документ локально (вставляя при отсутствии) под защитой журнала отмены
func (p *pass) replaceLocal(ctx context.Context, id string, doc models.Document) error {
	return p.withUndo(ctx, id, func() error {
		_, err := p.local.ReplaceOne(ctx, idFilter(id), doc, &docstore.UpdateOptions{Upsert: true})
		return err
	})
}

// deleteLocal удаляет локальный документ под защитой журнала отмены
func (p *pass) deleteLocal(ctx context.Context, id string) error {
	return p.withUndo(ctx, id, func() error {
		_, err := p.local.DeleteOne(ctx, idFilter(id))
		return err
	})
}

func (p *pass) withUndo(ctx context.Context, id string, fn func() error) error {
	before, err := findByID(ctx, p.local, id)
	if err != nil {
		return err
	}
	if before != nil {
		if err := saveUndo(ctx, p.undo, before); err != nil {
			return err
		}
	}
	if err := fn(); err != nil {
		return err
	}
	if before == nil {
		return nil
	}
	return clearUndo(ctx, p.undo, id)
}

// desync удаляет локальную копию документа и прекращает его синхронизацию
func (p *pass) desync(ctx context.Context, id string) error {
	if err := p.deleteLocal(ctx, id); err != nil {
		return err
	}
	if err := p.state.RemoveDocuments(ctx, id); err != nil {
		return err
	}
	p.idsChanged = true
	return nil
}

// desyncWithError прекращает синхронизацию документа, который нельзя обработать
func (p *pass) desyncWithError(ctx context.Context, id string, kind ErrorKind, cause error) {
	p.e.reportError(kind, p.ns, id, cause)
	if err := p.desync(ctx, id); err != nil {
		p.e.reportError(KindStore, p.ns, id, fmt.Errorf("failed to desync: %w", err))
	}
}

// pause останавливает применение удаленных событий к документу
func (p *pass) pause(ctx context.Context, doc *syncstate.DocumentState, kind ErrorKind, cause error) {
	p.e.reportError(kind, p.ns, doc.ID(), cause)
	if err := doc.SetPaused(ctx, true); err != nil {
		p.e.reportError(KindStore, p.ns, doc.ID(), fmt.Errorf("failed to pause: %w", err))
	}
}

// fetchRemote возвращает актуальный удаленный документ или nil, если его нет
func (p *pass) fetchRemote(ctx context.Context, id string) (models.Document, error) {
	doc, err := findByID(ctx, p.remote, id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up remote document: %w", err)
	}
	return doc, nil
}

// synthesizedRemoteEvent описывает текущее удаленное состояние документа:
// replace при наличии документа, delete при его отсутствии
func (p *pass) synthesizedRemoteEvent(id string, doc models.Document) *models.ChangeEvent {
	if doc == nil {
		return models.NewDeleteEvent(p.ns, id, false)
	}
	return models.NewReplaceEvent(p.ns, id, doc, false)
}
