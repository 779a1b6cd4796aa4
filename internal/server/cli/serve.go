package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/iudanet/docsync/internal/docstore/memstore"
	"github.com/iudanet/docsync/internal/server"
	"github.com/iudanet/docsync/internal/server/handlers"
	"github.com/iudanet/docsync/internal/server/middleware"
	"github.com/iudanet/docsync/internal/server/storage"
	"github.com/iudanet/docsync/internal/server/storage/sqlite"
)

// serveConfig параметры команды serve
type serveConfig struct {
	Addr            string
	Storage         string
	DBPath          string
	JWTSecret       string
	RateLimit       int
	ShutdownTimeout time.Duration
}

func (a *App) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the document server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := serveConfig{
				Addr:            a.v.GetString("addr"),
				Storage:         a.v.GetString("storage"),
				DBPath:          a.v.GetString("db"),
				JWTSecret:       a.v.GetString("jwt-secret"),
				RateLimit:       a.v.GetInt("rate-limit"),
				ShutdownTimeout: a.v.GetDuration("shutdown-timeout"),
			}
			ln, err := net.Listen("tcp", cfg.Addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
			}
			return a.serve(ctx, cfg, ln)
		},
	}
	flags := cmd.Flags()
	flags.String("addr", ":8080", "Address to listen on")
	flags.String("storage", "sqlite", "Storage backend: sqlite or memory")
	flags.String("db", "docsync-server.db", "Path to SQLite database")
	flags.String("jwt-secret", "", "HMAC secret for access tokens (empty disables authentication)")
	flags.Int("rate-limit", 600, "Requests per minute per client IP (0 disables)")
	flags.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")
	return cmd
}

// openStore открывает хранилище документов. check проверяет его доступность для /health.
func openStore(ctx context.Context, backend, dbPath string) (storage.DocumentStore, func() error, func(context.Context) error, error) {
	switch backend {
	case "sqlite":
		st, err := sqlite.New(ctx, dbPath)
		if err != nil {
			return nil, nil, nil, err
		}
		return st, st.Close, st.DB().PingContext, nil
	case "memory":
		return memstore.New(), func() error { return nil }, nil, nil
	default:
		return nil, nil, nil, fmt.Errorf("%w: %q (expected sqlite or memory)", storage.ErrUnknownBackend, backend)
	}
}

// serve обслуживает API на ln до отмены ctx, затем корректно останавливает сервер
func (a *App) serve(ctx context.Context, cfg serveConfig, ln net.Listener) error {
	store, closeStore, check, err := openStore(ctx, cfg.Storage, cfg.DBPath)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			a.logger.Error("Failed to close storage", "error", err)
		}
	}()

	var jwtConfig *handlers.JWTConfig
	if cfg.JWTSecret != "" {
		jwtConfig = &handlers.JWTConfig{Secret: []byte(cfg.JWTSecret)}
	} else {
		a.logger.Warn("JWT secret is not set, API is open to everyone")
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimit, time.Minute, a.logger)
		defer limiter.Stop()
	}

	// потоки изменений живут дольше обычных запросов: их контексты
	// отменяются после остановки сервера
	baseCtx, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()

	srv := &http.Server{
		Handler: server.NewRouter(server.RouterConfig{
			Logger:      a.logger,
			Store:       store,
			JWT:         jwtConfig,
			RateLimiter: limiter,
			HealthCheck: check,
			Version:     a.build.Version,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("Server started",
			"addr", ln.Addr().String(),
			"storage", cfg.Storage,
			"auth", jwtConfig != nil,
			"version", a.build.Version)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		cancelBase()
		if err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("Server stopped")
	return nil
}
