package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/iudanet/docsync/internal/docstore"
	"github.com/iudanet/docsync/pkg/api"
)

var activeWatchStreams atomic.Int64

var _ = metrics.NewGauge("docsync_server_watch_streams", func() float64 {
	return float64(activeWatchStreams.Load())
})

// WatchHandler отдает поток изменений документов через websocket
type WatchHandler struct {
	logger  *slog.Logger
	watcher docstore.Watcher
}

// NewWatchHandler создает handler потока изменений
func NewWatchHandler(logger *slog.Logger, watcher docstore.Watcher) *WatchHandler {
	return &WatchHandler{
		logger:  logger,
		watcher: watcher,
	}
}

// Watch обрабатывает GET /api/v1/namespaces/{db}/{coll}/watch?id=a&id=b
// Без параметров id поток содержит события всех документов namespace.
func (h *WatchHandler) Watch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ns, err := namespaceFromPath(r)
	if err != nil {
		h.logger.WarnContext(ctx, "Invalid namespace", slog.Any("error", err))
		sendError(h.logger, w, api.CodeInvalidRequest, err.Error(), http.StatusBadRequest)
		return
	}
	ids := r.URL.Query()["id"]

	// подписка до завершения handshake: клиент не пропустит записи,
	// сделанные сразу после открытия потока
	streamCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := h.watcher.Watch(streamCtx, ns, ids)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to open change stream", slog.String("namespace", ns.String()), slog.Any("error", err))
		sendError(h.logger, w, api.CodeInternal, "internal server error", http.StatusInternalServerError)
		return
	}
	defer func() {
		_ = stream.Close()
	}()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.WarnContext(ctx, "Websocket handshake failed", slog.Any("error", err))
		return
	}
	defer func() {
		_ = conn.CloseNow()
	}()

	activeWatchStreams.Add(1)
	defer activeWatchStreams.Add(-1)

	h.logger.DebugContext(ctx, "Change stream opened", slog.String("namespace", ns.String()), slog.Int("ids", len(ids)))

	// входящие сообщения не ожидаются; ctx отменяется при закрытии соединения клиентом
	readCtx := conn.CloseRead(ctx)

	for {
		event, err := stream.Next(readCtx)
		if err != nil {
			switch {
			case errors.Is(err, docstore.ErrStreamClosed):
				h.logger.WarnContext(ctx, "Change stream closed by store", slog.String("namespace", ns.String()))
				_ = conn.Close(websocket.StatusTryAgainLater, "change stream overflow")
			case readCtx.Err() != nil:
				h.logger.DebugContext(ctx, "Change stream closed by client", slog.String("namespace", ns.String()))
			default:
				h.logger.ErrorContext(ctx, "Change stream failed", slog.Any("error", err))
				_ = conn.Close(websocket.StatusInternalError, "change stream failed")
			}
			return
		}

		if err := wsjson.Write(readCtx, conn, event.ToAPI()); err != nil {
			h.logger.DebugContext(ctx, "Failed to write change event", slog.Any("error", err))
			return
		}
	}
}
