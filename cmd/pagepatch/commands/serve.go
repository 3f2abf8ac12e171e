package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/livetemplate/pagepatch"
	"github.com/livetemplate/pagepatch/internal/config"
	"github.com/livetemplate/pagepatch/internal/loop"
	"github.com/livetemplate/pagepatch/internal/metrics"
	"github.com/livetemplate/pagepatch/internal/server"
	"github.com/livetemplate/pagepatch/internal/store"
)

type serveOptions struct {
	configPath string
	port       int
	host       string
	watch      bool
	noWatch    bool
	debug      bool
}

func newServeCommand() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve [directory]",
		Short: "Serve a project and accept streamed sections",
		Example: `  pagepatch serve                 # Serve current directory
  pagepatch serve ./site --port 9000
  pagepatch serve --no-watch      # Disable file watching`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runServe(cmd, dir, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "path to "+config.FileName)
	f.IntVarP(&opts.port, "port", "p", 0, "port to listen on")
	f.StringVar(&opts.host, "host", "", "host to bind")
	f.BoolVarP(&opts.watch, "watch", "w", false, "reload page files when they change")
	f.BoolVar(&opts.noWatch, "no-watch", false, "do not watch page files")
	f.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	return cmd
}

// loadConfig reads the configuration and applies CLI overrides.
func loadConfig(dir string, opts serveOptions) (*config.Config, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, fmt.Errorf("directory does not exist: %s", dir)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	var cfg *config.Config
	if opts.configPath != "" {
		cfg, err = config.Load(opts.configPath)
		if err == nil && !filepath.IsAbs(cfg.Project.Dir) {
			cfg.Project.Dir = filepath.Join(absDir, cfg.Project.Dir)
		}
	} else {
		cfg, err = config.LoadFromDir(absDir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// CLI flags override config
	if opts.port != 0 {
		cfg.Server.Port = opts.port
	}
	if opts.host != "" {
		cfg.Server.Host = opts.host
	}
	if opts.watch {
		cfg.Project.Watch = true
	}
	if opts.noWatch {
		cfg.Project.Watch = false
	}
	if opts.debug {
		cfg.Server.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, dir string, opts serveOptions) error {
	cfg, err := loadConfig(dir, opts)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.Server.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	project, err := pagepatch.LoadProject(cfg.Project.Dir)
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}
	if cfg.Project.Current != "" {
		project.Current = cfg.Project.Current
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st *store.Store
	if cfg.Store.Enabled() {
		st, err = store.Open(ctx, cfg.Store.Driver, cfg.Store.GetDSN())
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()
	}

	l := loop.New(logger)
	l.Start()
	defer l.Stop()

	srv := server.New(l, server.Options{
		Config:  cfg,
		Store:   st,
		Metrics: metrics.New(prometheus.NewRegistry()),
		Logger:  logger,
	})
	if err := srv.Start(ctx, project, cfg.Project.Dir); err != nil {
		return fmt.Errorf("failed to start editor: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "pagepatch %s\n\n", Version)
	fmt.Fprintf(out, "Serving: %s\n", cfg.Project.Dir)
	fmt.Fprintf(out, "\nPages:\n")
	for _, name := range project.Names() {
		marker := " "
		if name == project.Current {
			marker = "*"
		}
		fmt.Fprintf(out, " %s %s\n", marker, name)
	}

	if cfg.Project.Watch {
		if err := srv.EnableWatch(); err != nil {
			return fmt.Errorf("failed to enable watch mode: %w", err)
		}
		fmt.Fprintf(out, "\nWatch mode enabled: page files reload on change\n")
	}
	if st != nil {
		fmt.Fprintf(out, "Store: %s\n", cfg.Store.Driver)
	}
	if cfg.API.IsAuthEnabled() {
		fmt.Fprintf(out, "API key required on /api\n")
	}

	addr := cfg.Server.Addr()
	fmt.Fprintf(out, "\nServer running at http://%s\n", addr)
	fmt.Fprintf(out, "Sections: POST http://%s/api/sections\n", addr)
	fmt.Fprintf(out, "Press Ctrl+C to stop\n\n")

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("editor shutdown", "error", err)
		}
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
