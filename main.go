package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/panjf2000/ants/v2"
	"github.com/spf13/cobra"

	"iptv-player/work/buffer"
	"iptv-player/work/cache"
	"iptv-player/work/channels"
	"iptv-player/work/client"
	"iptv-player/work/config"
	"iptv-player/work/database"
	"iptv-player/work/logger"
	"iptv-player/work/probe"
	"iptv-player/work/proxy"
	"iptv-player/work/types"
	"iptv-player/work/utils"
	"iptv-player/work/watcher"
)

var (
	Version = "v0.1.0" // default version
)

// shutdownTimeout bounds how long in-flight requests get after a signal.
const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "iptv-player",
		Short:         "IPTV channel manager with an HLS playlist proxy",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file path (default $IPTV_CONFIG or "+config.DefaultPath+")")

	rootCmd.AddCommand(newServeCommand(&configPath))
	rootCmd.AddCommand(newProbeCommand(&configPath))
	rootCmd.AddCommand(newInitConfigCommand())

	return rootCmd
}

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func newProbeCommand(configPath *string) *cobra.Command {
	var (
		concurrency int
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "probe URL...",
		Short: "Check whether stream URLs are reachable",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			hc := client.NewHeaderSettingClient(cfg.Upstream)
			prober := probe.New(cfg, hc, nil)
			results := prober.ProbeBatch(cmd.Context(), args, concurrency)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			online := 0
			for _, r := range results {
				fmt.Fprintln(out, probeLine(r))
				if r.Success {
					online++
				}
			}
			fmt.Fprintf(out, "%d/%d online\n", online, len(results))
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Probes per group (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

func newInitConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config PATH",
		Short: "Write an example configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.CreateExampleConfig(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	}
}

// probeLine renders one probe result for terminal output.
func probeLine(r types.ProbeResult) string {
	state := "offline"
	if r.Success {
		state = "online"
	}
	detail := r.Error
	if r.Status != 0 {
		detail = fmt.Sprintf("HTTP %d", r.Status)
	}
	return fmt.Sprintf("%-7s %5dms  %-24s %s", state, r.ResponseTime, detail, r.URL)
}

// loadConfig loads the configuration and points the logger at its level.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	logger.Configure(logger.Options{Level: cfg.LogLevel, Console: cfg.Debug})
	return cfg, nil
}

// runServe wires every component and serves HTTP until ctx is cancelled.
func runServe(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	workerPool, err := ants.NewPool(cfg.Probe.Workers, ants.WithPreAlloc(true))
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer workerPool.Release()

	httpClient := client.NewHeaderSettingClient(cfg.Upstream)
	prober := probe.New(cfg, httpClient, workerPool)
	a := &app{
		cfg:      cfg,
		db:       db,
		proxy:    proxy.New(cfg, httpClient, buffer.NewBufferPool(0)),
		prober:   prober,
		client:   httpClient,
		channels: channels.NewService(cfg, db, prober, cache.NewCache(cfg.CacheDuration), httpClient),
	}

	router := mux.NewRouter()
	setupAdminRoutes(router, a)

	w := watcher.New(a.channels, cfg.Probe.Interval)
	w.Start(ctx)
	defer w.Stop()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("{main - runServe} Starting IPTV Player %s", Version)
	logger.Info("{main - runServe} Server configuration:")
	logger.Info("{main - runServe}   - Listen Address: %s", cfg.ListenAddr)
	logger.Info("{main - runServe}   - Public Base URL: %s", orDefault(cfg.PublicBaseURL, "(from request)"))
	logger.Info("{main - runServe}   - Database: %s", cfg.DatabasePath)
	logger.Info("{main - runServe}   - Upstream Timeout: %s", cfg.Upstream.Timeout)
	logger.Info("{main - runServe}   - Probe Timeout: %s (range %s)", cfg.Probe.Timeout, utils.FormatBytes(cfg.Probe.RangeBytes))
	logger.Info("{main - runServe}   - Probe Batch Size: %d", cfg.Probe.BatchSize)
	logger.Info("{main - runServe}   - Worker Threads: %d", cfg.Probe.Workers)
	logger.Info("{main - runServe}   - Re-test Interval: %s", orDefault(formatInterval(cfg.Probe.Interval), "disabled"))
	logger.Info("{main - runServe}   - Cache Duration: %s", cfg.CacheDuration)
	logger.Info("{main - runServe}   - Gzip Enabled: %v", cfg.EnableGzip)
	logger.Info("{main - runServe}   - URL Obfuscation: %v", cfg.ObfuscateUrls)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("{main - runServe} Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("{main - runServe} Graceful shutdown incomplete: %v", err)
	}
	httpClient.Client.CloseIdleConnections()
	return nil
}

func formatInterval(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return d.String()
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
