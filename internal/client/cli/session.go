package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/docsync/internal/client/api"
	"github.com/iudanet/docsync/internal/client/storage/boltdb"
	"github.com/iudanet/docsync/internal/client/syncer"
	"github.com/iudanet/docsync/internal/client/syncstate"
)

// session открытое локальное хранилище, клиент сервера и движок синхронизации
type session struct {
	store  *boltdb.Storage
	client *api.Client
	engine *syncer.Engine
}

// openSession открывает локальную базу и создает движок. Создание движка
// восстанавливает локальные данные после прерванной операции.
// autoStart запускает фоновый цикл при настройке namespace.
func (a *App) openSession(ctx context.Context, autoStart bool) (*session, error) {
	store, err := boltdb.New(ctx, a.v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	token := a.v.GetString("token")
	client := api.NewClient(a.v.GetString("server"), token, a.logger)

	cfg := syncer.DefaultConfig()
	cfg.InstanceKey = a.v.GetString("instance")
	cfg.AutoStart = autoStart

	opts := []syncer.Option{
		syncer.WithLogger(a.logger),
		syncer.WithErrorListener(syncer.ErrorListenerFunc(a.logSyncError)),
		syncer.WithNetworkMonitor(client),
		syncer.WithMetadataStorage(store),
	}
	// Без токена клиент работает с сервером без аутентификации
	if token != "" {
		opts = append(opts, syncer.WithAuthMonitor(client))
	}

	engine, err := syncer.New(ctx, cfg, store, client, store.SyncStates(cfg.InstanceKey), opts...)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to start sync engine: %w", err)
	}
	return &session{store: store, client: client, engine: engine}, nil
}

func (s *session) Close() error {
	return errors.Join(s.engine.Close(), s.store.Close())
}

func (a *App) closeSession(s *session) {
	if err := s.Close(); err != nil {
		a.logger.Error("Failed to close local storage", "error", err)
	}
}

func (a *App) logSyncError(err *syncer.SyncError) {
	a.logger.Warn("Sync error",
		"kind", err.Kind.String(),
		"namespace", err.Namespace.String(),
		"document_id", err.DocumentID,
		"error", err.Err)
}

// conflictPolicy возвращает обработчик конфликтов по флагу --policy
func (a *App) conflictPolicy() (syncstate.ConflictHandler, error) {
	name := a.v.GetString("policy")
	handler, ok := syncer.ConflictPolicy(name)
	if !ok {
		return nil, fmt.Errorf("unknown conflict policy %q: expected remote-wins or local-wins", name)
	}
	return handler, nil
}
