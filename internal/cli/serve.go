package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/featgraph/featgraph/internal/api"
	"github.com/featgraph/featgraph/internal/rbac"
	"github.com/featgraph/featgraph/internal/registry"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the registry API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := slog.Default()
			reg, err := registry.NewRegistry(ctx, registry.Config{
				Backend:       cfg.CatalogBackend(),
				Database:      cfg.Database,
				ConnectionStr: cfg.ConnectionStr,
				Logger:        logger,
			})
			if err != nil {
				return fmt.Errorf("failed to open registry: %w", err)
			}
			defer reg.Close()

			serverCfg := api.Config{
				Registry: reg,
				APIBase:  cfg.APIBase,
				Addr:     cfg.ListenAddr(),
				Logger:   logger,
			}
			if cfg.EnableRBAC {
				manager, err := newRBACManager(ctx, reg, logger)
				if err != nil {
					return err
				}
				serverCfg.Manager = manager
				serverCfg.Resolver = rbac.NewResolver()
				logger.Info("authorization gate enabled")
			}

			return api.NewServer(serverCfg).Serve(ctx)
		},
	}
}

// newRBACManager builds the role manager on the registry's own database and
// seeds the configured default admin.
func newRBACManager(ctx context.Context, reg registry.Registry, logger *slog.Logger) (*rbac.Manager, error) {
	sqlReg, ok := reg.(*registry.SQLRegistry)
	if !ok {
		return nil, fmt.Errorf("the %s backend does not support RBAC", cfg.CatalogBackend())
	}
	manager := rbac.NewManager(sqlReg.Store(), logger)
	if cfg.DefaultAdmin != "" {
		if err := manager.EnsureDefaultAdmin(ctx, cfg.DefaultAdmin); err != nil {
			return nil, fmt.Errorf("failed to seed default admin: %w", err)
		}
	}
	return manager, nil
}
