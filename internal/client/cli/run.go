package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/iudanet/docsync/internal/client/syncstate"
	"github.com/iudanet/docsync/internal/models"
)

func (a *App) runCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Synchronize namespaces in the background until interrupted",
		Long: `Recover the local state, configure the given namespaces and run the sync loop
until SIGINT or SIGTERM. The loop pauses while the server is unreachable.`,
		Example: "  docsync run --namespace app.notes --namespace app.tags --policy local-wins",
		Args:    cobra.NoArgs,
		RunE:    a.runSync,
	}
	cmd.Flags().StringSlice("namespace", nil, "Namespace to synchronize (database.collection), repeatable")
	cmd.Flags().String("policy", "remote-wins", "Conflict policy: remote-wins or local-wins")
	cmd.Flags().String("metrics-addr", "", "Serve /metrics on this address (empty disables)")
	cmd.Flags().Duration("ping-interval", 10*time.Second, "Server connectivity check interval")
	return cmd
}

// namespaces разбирает повторяемый флаг --namespace
func (a *App) namespaces() ([]models.Namespace, error) {
	values := a.v.GetStringSlice("namespace")
	if len(values) == 0 {
		return nil, errors.New("at least one --namespace is required")
	}
	out := make([]models.Namespace, 0, len(values))
	for _, value := range values {
		ns, err := parseNamespace(value)
		if err != nil {
			return nil, err
		}
		out = append(out, ns)
	}
	return out, nil
}

func (a *App) runSync(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	namespaces, err := a.namespaces()
	if err != nil {
		return err
	}
	handler, err := a.conflictPolicy()
	if err != nil {
		return err
	}
	a.watchConfig()

	s, err := a.openSession(ctx, true)
	if err != nil {
		return err
	}
	defer a.closeSession(s)

	if err := s.client.Ping(ctx); err != nil {
		a.logger.Warn("Server is unreachable, working offline", "error", err)
	}

	listener := syncstate.ChangeEventListenerFunc(func(id string, event *models.ChangeEvent) {
		a.logger.Info("Document changed",
			"namespace", event.Namespace.String(),
			"document_id", id,
			"operation", event.OperationType,
			"pending", event.HasUncommittedWrites)
	})
	for _, ns := range namespaces {
		if err := s.engine.Configure(ctx, ns, handler, listener); err != nil {
			return fmt.Errorf("failed to configure %s: %w", ns, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.client.MonitorConnectivity(gctx, a.v.GetDuration("ping-interval"), s.engine.OnNetworkStateChanged)
		return nil
	})
	if addr := a.v.GetString("metrics-addr"); addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           metricsHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			a.logger.Info("Serving metrics", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	a.io.Printf("Synchronizing %d namespace(s) with %s, press Ctrl+C to stop\n", len(namespaces), a.v.GetString("server"))
	err = g.Wait()
	s.engine.Stop()
	a.logger.Info("Sync stopped")
	return err
}

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	return mux
}
