package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jobtrail/jobtrail/internal/config"
	"github.com/jobtrail/jobtrail/internal/errors"
	"github.com/jobtrail/jobtrail/pkg/api"
	"github.com/jobtrail/jobtrail/pkg/export"
	"github.com/jobtrail/jobtrail/pkg/metrics"
	"github.com/jobtrail/jobtrail/pkg/server"
	"github.com/jobtrail/jobtrail/pkg/session"
)

func serveCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session server",
		Long: `Run the HTTP and websocket server that holds page sessions.

Examples:
  jobtrail serve
  jobtrail serve --listen=0.0.0.0:8080
  JOBTRAIL_API_BASE_URL=https://api.example.com jobtrail serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			addr := cfg.Address()
			if listen != "" {
				addr = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := newLogger(cfg, os.Stderr)
			srv, err := buildServer(ctx, cfg, addr, logger, metrics.New())
			if err != nil {
				return err
			}

			info(cmd, "listening on http://%s", addr)
			info(cmd, "listings API %s", cfg.API.BaseURL)
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address (default from jobtrail.json)")
	return cmd
}

// newLogger builds the process logger from the log section.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	var h slog.Handler
	if cfg.Log.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// newSnapshotStore returns the export backend selected by export.driver.
func newSnapshotStore(ctx context.Context, cfg *config.Config) (export.Store, error) {
	switch cfg.Export.Driver {
	case config.DriverDisk:
		return export.NewDiskStore(cfg.ExportDir())
	case config.DriverS3:
		return export.NewS3Store(ctx, export.S3Config{
			Bucket:          cfg.Export.Bucket,
			Prefix:          cfg.Export.Prefix,
			Region:          cfg.Export.Region,
			Endpoint:        cfg.Export.Endpoint,
			PathStyle:       cfg.Export.PathStyle,
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		})
	case config.DriverMemory, "":
		return export.NewMemoryStore(), nil
	}
	return nil, errors.New("J040").WithDetail("unknown export driver " + cfg.Export.Driver)
}

// buildServer wires the listings API client, snapshot storage, session
// manager and HTTP server from cfg.
func buildServer(ctx context.Context, cfg *config.Config, addr string, logger *slog.Logger, m *metrics.Metrics) (*server.Server, error) {
	client := api.New(cfg.API.BaseURL,
		api.WithTimeout(cfg.APITimeout()),
		api.WithLogger(logger),
	)

	snapshots, err := newSnapshotStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	mgrConfig := session.DefaultManagerConfig()
	mgrConfig.IdleTimeout = cfg.IdleTimeout()
	mgr := session.NewManager(session.Deps{
		Ingester:       client,
		Saver:          client,
		Fetcher:        client,
		Snapshots:      snapshots,
		Metrics:        m,
		Logger:         logger,
		SearchDebounce: cfg.SearchDebounce(),
		PageSize:       cfg.Session.PageSize,
		Autosave:       cfg.AutosaveDelay(),
	}, mgrConfig)

	srvConfig := server.DefaultConfig()
	srvConfig.Address = addr
	srvConfig.ShutdownTimeout = cfg.ShutdownTimeout()
	srvConfig.AllowedOrigins = cfg.Server.AllowedOrigins

	return server.New(mgr, srvConfig,
		server.WithLogger(logger),
		server.WithMetrics(m),
	), nil
}
