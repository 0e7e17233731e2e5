package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/drummonds/pdfshelf/internal/api"
	"github.com/drummonds/pdfshelf/internal/demo"
	"github.com/drummonds/pdfshelf/internal/logging"
	"github.com/drummonds/pdfshelf/internal/metrics"
	"github.com/drummonds/pdfshelf/internal/viewer"
)

const gracefulTimeout = 10 * time.Second

var flagAddr string

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the web front end against the configured API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagAddr != "" {
				conf.Addr = flagAddr
			}
			ln, err := net.Listen("tcp", conf.Addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", conf.Addr, err)
			}
			return runWeb(cmd.Context(), ln, conf, confSource, nil)
		},
	}
}

func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Serve the web front end over a built-in in-memory API with sample documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagAddr != "" {
				conf.Addr = flagAddr
			}
			ln, err := net.Listen("tcp", conf.Addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", conf.Addr, err)
			}

			store, err := demo.NewStore()
			if err != nil {
				return err
			}
			if err := seedDemo(store, conf.Owner); err != nil {
				return fmt.Errorf("seeding demo: %w", err)
			}

			cfg := conf
			cfg.APIURL = fmt.Sprintf("http://127.0.0.1:%d%s", ln.Addr().(*net.TCPAddr).Port, api.DefaultBasePath)
			cfg.ThumbDir = filepath.Join(os.TempDir(), "pdfshelf-demo-thumbs")
			return runWeb(cmd.Context(), ln, cfg, "demo", demo.NewServer(store, logging.New("demo")).Handler())
		},
	}
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write an example " + configFileName,
		// The config file may not exist yet.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := writeExampleConfig(flagConfPath); err != nil {
				return err
			}
			cmd.Printf("Wrote %s\n", flagConfPath)
			return nil
		},
	}
}

// runWeb serves the front end on ln until SIGINT or SIGTERM. backend, when
// set, is mounted under the API base path on the same listener.
func runWeb(ctx context.Context, ln net.Listener, cfg Config, source string, backend http.Handler) error {
	logger := logging.New("pdfshelf")
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, err := metrics.NewMetrics()
	if err != nil {
		return err
	}
	engine, err := viewer.NewPDFium(cfg.PDFiumWorkers)
	if err != nil {
		return err
	}
	defer engine.Close()

	app, err := newApp(cfg, source, engine, m)
	if err != nil {
		return err
	}
	defer app.Close()

	handler := app.routes()
	if backend != nil {
		app.demo = true
		mux := http.NewServeMux()
		mux.Handle(api.DefaultBasePath+"/", backend)
		mux.Handle("/", handler)
		handler = mux
	}

	if backend == nil {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := app.client.Ping(pingCtx); err != nil {
			logger.Warnf("API at %s does not answer: %v", cfg.APIURL, err)
		}
		cancel()
	}

	go app.run(ctx)

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logger.Infof("pdfshelf serving on http://%s (api %s)", ln.Addr(), cfg.APIURL)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func init() {
	serve := newServeCmd()
	serve.Flags().StringVar(&flagAddr, "addr", "", "Override listen address (e.g. :9090)")
	rootCmd.AddCommand(serve)

	demoCmd := newDemoCmd()
	demoCmd.Flags().StringVar(&flagAddr, "addr", "", "Override listen address (e.g. :9090)")
	rootCmd.AddCommand(demoCmd)

	rootCmd.AddCommand(newInitCmd())
}
