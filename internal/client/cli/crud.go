package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iudanet/docsync/internal/docstore"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/query"
)

// Локальные операции выполняются без сервера: изменения отправляются
// на ближайшем проходе синхронизации (docsync pass или docsync run).

func (a *App) insertCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "insert <namespace> <json>...",
		Short:   "Insert documents locally and start synchronizing them",
		Example: `  docsync insert app.notes '{"_id":"n1","title":"Groceries"}' '{"title":"Ideas"}'`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := parseNamespace(args[0])
			if err != nil {
				return err
			}
			docs := make([]models.Document, 0, len(args)-1)
			for _, arg := range args[1:] {
				doc, err := parseDocument(arg)
				if err != nil {
					return err
				}
				docs = append(docs, doc)
			}

			s, err := a.openSession(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.closeSession(s)

			ids, err := s.engine.InsertMany(cmd.Context(), ns, docs)
			if errors.Is(err, docstore.ErrDuplicateKey) {
				return fmt.Errorf("document already exists in %s: %w", ns, err)
			}
			if err != nil {
				return fmt.Errorf("failed to insert: %w", err)
			}
			for _, id := range ids {
				a.io.Printf("✓ Inserted %s\n", id)
			}
			return nil
		},
	}
}

func (a *App) updateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "update <namespace> <filter> <update>",
		Short:   "Update local documents matching a filter",
		Example: `  docsync update app.notes '{"_id":"n1"}' '{"$set":{"done":true}}'`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := parseNamespace(args[0])
			if err != nil {
				return err
			}
			filter, err := parseDocument(args[1])
			if err != nil {
				return err
			}
			update, err := parseDocument(args[2])
			if err != nil {
				return err
			}

			s, err := a.openSession(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.closeSession(s)

			opts := &docstore.UpdateOptions{Upsert: a.v.GetBool("upsert")}
			var res *docstore.UpdateResult
			if a.v.GetBool("many") {
				res, err = s.engine.UpdateMany(cmd.Context(), ns, filter, update, opts)
			} else {
				res, err = s.engine.UpdateOne(cmd.Context(), ns, filter, update, opts)
			}
			if err != nil {
				return fmt.Errorf("failed to update: %w", err)
			}

			a.io.Printf("Matched: %d, modified: %d\n", res.MatchedCount, res.ModifiedCount)
			if res.UpsertedID != "" {
				a.io.Printf("✓ Inserted %s\n", res.UpsertedID)
			}
			return nil
		},
	}
	cmd.Flags().Bool("upsert", false, "Insert a document when nothing matches")
	cmd.Flags().Bool("many", false, "Update every matching document")
	return cmd
}

func (a *App) deleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <namespace> <filter>",
		Short: "Delete local documents matching a filter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := parseNamespace(args[0])
			if err != nil {
				return err
			}
			filter, err := parseDocument(args[1])
			if err != nil {
				return err
			}

			s, err := a.openSession(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.closeSession(s)

			var deleted int64
			if a.v.GetBool("many") {
				deleted, err = s.engine.DeleteMany(cmd.Context(), ns, filter)
			} else {
				deleted, err = s.engine.DeleteOne(cmd.Context(), ns, filter)
			}
			if err != nil {
				return fmt.Errorf("failed to delete: %w", err)
			}
			a.io.Printf("Deleted: %d\n", deleted)
			return nil
		},
	}
	cmd.Flags().Bool("many", false, "Delete every matching document")
	return cmd
}

func (a *App) findCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "find <namespace> [filter]",
		Short:   "Print local documents matching a filter as JSON",
		Example: `  docsync find app.notes '{"done":false}' --sort=-priority --limit=10`,
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := parseNamespace(args[0])
			if err != nil {
				return err
			}
			filter, err := optionalDocument(args, 1)
			if err != nil {
				return err
			}
			opts := &docstore.FindOptions{
				Sort:  parseSort(a.v.GetStringSlice("sort")),
				Skip:  a.v.GetInt64("skip"),
				Limit: a.v.GetInt64("limit"),
			}
			if p := a.v.GetString("projection"); p != "" {
				if opts.Projection, err = parseDocument(p); err != nil {
					return err
				}
			}

			s, err := a.openSession(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.closeSession(s)

			docs, err := s.engine.Find(cmd.Context(), ns, filter, opts)
			if err != nil {
				return fmt.Errorf("failed to find: %w", err)
			}
			if docs == nil {
				docs = []models.Document{}
			}
			return a.printJSON(docs)
		},
	}
	cmd.Flags().StringSlice("sort", nil, "Sort fields, prefix with - for descending (e.g. -priority,title)")
	cmd.Flags().Int64("skip", 0, "Skip the first N documents")
	cmd.Flags().Int64("limit", 0, "Return at most N documents (0 means no limit)")
	cmd.Flags().String("projection", "", `Projection document (e.g. '{"title":1}')`)
	return cmd
}

func (a *App) countCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "count <namespace> [filter]",
		Short: "Count local documents matching a filter",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := parseNamespace(args[0])
			if err != nil {
				return err
			}
			filter, err := optionalDocument(args, 1)
			if err != nil {
				return err
			}

			s, err := a.openSession(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.closeSession(s)

			n, err := s.engine.Count(cmd.Context(), ns, filter)
			if err != nil {
				return fmt.Errorf("failed to count: %w", err)
			}
			a.io.Println(n)
			return nil
		},
	}
}

// parseSort разбирает поля сортировки вида "field" и "-field"
func parseSort(fields []string) []query.SortField {
	var out []query.SortField
	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		name, desc := strings.CutPrefix(field, "-")
		out = append(out, query.SortField{Field: name, Descending: desc})
	}
	return out
}
