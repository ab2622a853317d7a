package cli

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/featgraph/featgraph/internal/registry"
)

func newProjectsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List registered projects",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			reg, err := registry.NewRegistry(ctx, registry.Config{
				Backend:       cfg.CatalogBackend(),
				Database:      cfg.Database,
				ConnectionStr: cfg.ConnectionStr,
				Logger:        slog.Default(),
			})
			if err != nil {
				return fmt.Errorf("failed to open registry: %w", err)
			}
			defer reg.Close()

			// ProjectIDs maps entity id to project name.
			ids, err := reg.ProjectIDs(ctx)
			if err != nil {
				return err
			}
			byName := make(map[string]string, len(ids))
			names := make([]string, 0, len(ids))
			for id, name := range ids {
				byName[name] = id
				names = append(names, name)
			}
			sort.Strings(names)

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Project", "ID", "Created"})
			for _, name := range names {
				entity, err := reg.GetEntity(ctx, byName[name])
				if err != nil {
					return err
				}
				t.AppendRow(table.Row{name, entity.ID, entity.CreatedAt.Format("2006-01-02 15:04:05")})
			}
			t.Render()
			return nil
		},
	}
}
