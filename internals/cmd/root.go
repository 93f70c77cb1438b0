// Package cmd is the command line entry: the HTTP server plus operator commands.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"schoolrecords_backend/internals/configs"
	database "schoolrecords_backend/internals/databases"
	routes "schoolrecords_backend/internals/route"
	"schoolrecords_backend/internals/store"
)

// runtime is what every subcommand needs once config is loaded.
type runtime struct {
	cfg   configs.Config
	log   *zap.Logger
	store store.DocumentStore
	db    *gorm.DB
	svc   *routes.Services
}

func (rt *runtime) close() {
	database.Close(rt.db)
	_ = rt.log.Sync()
}

// bootstrap loads config, logger and store, and builds the services.
func bootstrap() (*runtime, error) {
	cfg, err := configs.LoadEnv()
	if err != nil {
		return nil, err
	}
	log, err := configs.NewLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	s, db, err := database.OpenStore(cfg, log)
	if err != nil {
		return nil, err
	}
	return &runtime{cfg: cfg, log: log, store: s, db: db, svc: routes.NewServices(s, cfg, log)}, nil
}

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "schoolrecords",
		Short:         "School records backend: classes, results and promotions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newSeedCmd(),
		newHierarchyCmd(),
		newSnapshotsCmd(),
	)
	return root
}

// Execute runs the root command and exits non-zero on error.
func Execute(ctx context.Context) {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

func printJSON(w io.Writer, v any) error {
	out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
