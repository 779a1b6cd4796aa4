package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func (a *App) syncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <namespace> <id>...",
		Short: "Start synchronizing documents",
		Long:  `Add documents to the synced set. They are fetched from the server on the next pass.`,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := parseNamespace(args[0])
			if err != nil {
				return err
			}
			s, err := a.openSession(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.closeSession(s)

			if err := s.engine.SyncIDs(cmd.Context(), ns, args[1:]...); err != nil {
				return fmt.Errorf("failed to sync documents: %w", err)
			}
			a.io.Printf("✓ %s: %d document(s) synchronized\n", ns, len(s.engine.SyncedIDs(ns)))
			return nil
		},
	}
}

func (a *App) desyncCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "desync <namespace> <id>...",
		Short: "Stop synchronizing documents and delete their local copies",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := parseNamespace(args[0])
			if err != nil {
				return err
			}
			ids := args[1:]

			if !a.v.GetBool("yes") {
				answer, err := a.io.ReadInput(fmt.Sprintf("Delete local copies of %d document(s) from %s? Pending changes will be lost [y/N]: ", len(ids), ns))
				if err != nil {
					return fmt.Errorf("failed to read confirmation: %w", err)
				}
				if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
					a.io.Println("Cancelled")
					return nil
				}
			}

			s, err := a.openSession(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.closeSession(s)

			if err := s.engine.DesyncIDs(cmd.Context(), ns, ids...); err != nil {
				return fmt.Errorf("failed to desync documents: %w", err)
			}
			a.io.Printf("✓ %s: %d document(s) no longer synchronized\n", ns, len(ids))
			return nil
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func (a *App) resumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <namespace> <id>",
		Short: "Resume synchronization of a paused document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := parseNamespace(args[0])
			if err != nil {
				return err
			}
			s, err := a.openSession(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.closeSession(s)

			if !s.engine.ResumeSync(cmd.Context(), ns, args[1]) {
				return fmt.Errorf("document %s is not synchronized in %s", args[1], ns)
			}
			a.io.Printf("✓ %s/%s resumed\n", ns, args[1])
			return nil
		},
	}
}

func (a *App) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show synced, paused and pending documents per namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openSession(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.closeSession(s)

			a.io.Println("=== Sync Status ===")
			a.io.Println()
			a.io.Printf("Instance: %s\n", a.v.GetString("instance"))

			last, err := s.engine.LastPassTime(cmd.Context())
			if err != nil {
				return err
			}
			if last.IsZero() {
				a.io.Println("Last sync: never")
			} else {
				a.io.Printf("Last sync: %s (%s ago)\n", last.Format(time.RFC3339), time.Since(last).Round(time.Second))
			}

			namespaces := s.engine.Namespaces()
			if len(namespaces) == 0 {
				a.io.Println()
				a.io.Println("No documents are synchronized. Run 'docsync sync <namespace> <id>...' to start.")
				return nil
			}

			a.io.Println()
			a.io.Printf("%-32s %8s %8s %8s\n", "NAMESPACE", "SYNCED", "PAUSED", "PENDING")
			totalPending := 0
			for _, ns := range namespaces {
				pending := len(s.engine.PendingIDs(ns))
				totalPending += pending
				a.io.Printf("%-32s %8d %8d %8d\n", ns, len(s.engine.SyncedIDs(ns)), len(s.engine.PausedIDs(ns)), pending)
			}

			a.io.Println()
			if totalPending > 0 {
				a.io.Printf("⚠️  Pending sync: %d document(s) waiting to be synchronized\n", totalPending)
			} else {
				a.io.Println("✓ All local changes synchronized with server")
			}
			return nil
		},
	}
}

func (a *App) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			a.io.Println("DocSync Client")
			a.io.Printf("Version:    %s\n", a.build.Version)
			a.io.Printf("Build Date: %s\n", a.build.BuildDate)
			a.io.Printf("Git Commit: %s\n", a.build.GitCommit)
		},
	}
}
