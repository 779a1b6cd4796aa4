package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/iudanet/docsync/internal/models"
)

// Start запускает потоки изменений и фоновый цикл проходов синхронизации.
// Без настроенных namespace цикл не запускается.
func (e *Engine) Start() {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()

	if e.loopCancel != nil || e.closed.Load() {
		return
	}
	if len(e.instance.ConfiguredNamespaces()) == 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.loopCancel = cancel
	e.streams.StartAll(ctx)

	e.loopWG.Add(1)
	go func() {
		defer e.loopWG.Done()
		e.runLoop(ctx)
	}()
	e.logger.Info("Sync loop started", "short_delay", e.cfg.ShortDelay, "long_delay", e.cfg.LongDelay)
}

// Stop останавливает цикл и ждет завершения текущего прохода.
// Начатые локальные операции завершаются.
func (e *Engine) Stop() {
	e.loopMu.Lock()
	cancel := e.loopCancel
	e.loopCancel = nil
	e.loopMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	e.loopWG.Wait()
	e.streams.StopAll()
	e.logger.Info("Sync loop stopped")
}

// IsRunning reports whether the background loop is started.
func (e *Engine) IsRunning() bool {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()
	return e.loopCancel != nil
}

func (e *Engine) runLoop(ctx context.Context) {
	for {
		ran, err := e.SyncPass(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			e.reportError(KindFatal, models.Namespace{}, "", err)
		}

		delay := e.cfg.LongDelay
		if ran && err == nil {
			delay = e.cfg.ShortDelay
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// OnNetworkStateChanged запускает синхронизацию при появлении сети и останавливает при ее потере
func (e *Engine) OnNetworkStateChanged(connected bool) {
	if connected {
		e.logger.Info("Network connected")
		e.Start()
		return
	}
	e.logger.Info("Network disconnected")
	e.Stop()
}

// Reinitialize перечитывает состояние синхронизации из хранилища.
// Новые операции ждут на барьере, начатые завершаются; цикл останавливается,
// затем выполняется восстановление, и цикл запускается снова, если работал.
func (e *Engine) Reinitialize(ctx context.Context) error {
	e.barrier.BlockAndWait()
	defer e.barrier.Unblock()

	wasRunning := e.IsRunning()
	e.Stop()

	e.instance.Lock()
	err := e.instance.Load(ctx)
	if err == nil {
		err = e.recoverLocked(ctx)
	}
	e.instance.Unlock()
	if err != nil {
		return fmt.Errorf("failed to reinitialize: %w", err)
	}

	for _, state := range e.instance.ConfiguredNamespaces() {
		e.registerStream(state.Namespace())
	}
	e.logger.Info("Sync engine reinitialized")

	if wasRunning && e.network.IsConnected() {
		e.Start()
	}
	return nil
}
