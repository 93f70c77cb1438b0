package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/etag"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	database "schoolrecords_backend/internals/databases"
	"schoolrecords_backend/internals/middlewares"
	routes "schoolrecords_backend/internals/route"
)

func newServeCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := bootstrap()
			if err != nil {
				return err
			}
			defer rt.close()
			if port == "" {
				port = rt.cfg.Port
			}
			return serve(cmd.Context(), rt, port)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (default $PORT)")
	return cmd
}

func serve(parent context.Context, rt *runtime, port string) error {
	app := routes.NewApp()

	// ⚙️ middleware dasar + performa
	app.Use(compress.New(compress.Config{Level: compress.LevelDefault}))
	app.Use(etag.New())
	middlewares.SetupMiddlewares(app, rt.cfg, rt.log)

	var check routes.HealthCheck
	if rt.db != nil {
		check = func(ctx context.Context) error { return database.Ping(ctx, rt.db) }
	}
	routes.SetupRoutes(app, rt.cfg, rt.svc, check, rt.log)

	// 🔒 Keep-Alive & timeout koneksi server
	app.Server().ReadTimeout = 15 * time.Second
	app.Server().WriteTimeout = 30 * time.Second
	app.Server().IdleTimeout = 90 * time.Second

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rt.log.Info("✅ listening", zap.String("port", port))
		return app.Listen("0.0.0.0:" + port)
	})
	g.Go(func() error {
		<-gctx.Done()
		rt.log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.ShutdownWithContext(sctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
