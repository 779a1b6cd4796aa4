package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/docsync/internal/models"
)

func (a *App) passCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pass <namespace>...",
		Short: "Run a single sync pass over the given namespaces",
		Long: `Recover the local state and run one sync pass: remote changes are applied
to every synced document, then pending local writes are sent to the server.`,
		Args: cobra.MinimumNArgs(1),
		RunE: a.runPass,
	}
	cmd.Flags().String("policy", "remote-wins", "Conflict policy: remote-wins or local-wins")
	return cmd
}

func (a *App) runPass(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	namespaces := make([]models.Namespace, 0, len(args))
	for _, arg := range args {
		ns, err := parseNamespace(arg)
		if err != nil {
			return err
		}
		namespaces = append(namespaces, ns)
	}
	handler, err := a.conflictPolicy()
	if err != nil {
		return err
	}

	s, err := a.openSession(ctx, false)
	if err != nil {
		return err
	}
	defer a.closeSession(s)

	for _, ns := range namespaces {
		if err := s.engine.Configure(ctx, ns, handler, nil); err != nil {
			return fmt.Errorf("failed to configure %s: %w", ns, err)
		}
	}
	// Потока изменений нет: сверяем все документы с сервером
	if err := s.engine.Refresh(ctx); err != nil {
		return err
	}
	if err := s.client.Ping(ctx); err != nil {
		a.logger.Warn("Server is unreachable", "error", err)
	}

	a.io.Println("=== Synchronization ===")
	start := time.Now()
	ran, err := s.engine.SyncPass(ctx)
	if err != nil {
		return fmt.Errorf("synchronization failed: %w", err)
	}
	if !ran {
		a.io.Println("Sync pass skipped: server is unreachable")
		return nil
	}
	a.io.Printf("✓ Sync pass completed in %s\n", time.Since(start).Round(time.Millisecond))
	for _, ns := range namespaces {
		if pending := len(s.engine.PendingIDs(ns)); pending > 0 {
			a.io.Printf("⚠️  %s: %d document(s) still pending\n", ns, pending)
		}
	}
	return nil
}
