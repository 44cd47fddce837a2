// CLAUDE:SUMMARY torref CLI: serve (scheduler + HTTP API), once, sources, events, prune.
package main

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

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/torref/veille"
	"github.com/hazyhaar/torref/veille/notify"
)

var (
	flagConfig   string
	flagLogLevel string
)

func main() {
	root := &cobra.Command{
		Use:           "torref",
		Short:         "Watches coffee roaster catalogs for stock and price changes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", defaultConfigPath(), "config file")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "debug|info|warn|error")

	root.AddCommand(serveCmd(), onceCmd(), sourcesCmd(), eventsCmd(), pruneCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "torref:", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "torref", "config.yaml")
}

func newLogger() *slog.Logger {
	var lvl slog.Level
	switch flagLogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

// setup loads config, opens the store and builds the service.
func setup() (*veille.Service, *veille.Config, error) {
	logger := newLogger()
	cfg, err := veille.LoadConfig(flagConfig)
	if err != nil {
		return nil, nil, err
	}
	st, err := veille.OpenStore(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	svc, err := veille.New(st, cfg, logger)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return svc, cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, prune cron and HTTP API until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cfg, err := setup()
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := svc.SyncSources(ctx); err != nil {
				return err
			}
			svc.Start(ctx)

			srv := &http.Server{
				Addr:              cfg.Listen,
				Handler:           svc.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			slog.Info("http api listening", "addr", cfg.Listen)

			select {
			case <-ctx.Done():
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				return srv.Shutdown(shutdownCtx)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}
}

func onceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Sync config sources and poll every enabled source once",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := setup()
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := svc.SyncSources(ctx); err != nil {
				return err
			}
			return svc.PollAll(ctx)
		},
	}
}

func sourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List registered sources and their poll state",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := setup()
			if err != nil {
				return err
			}
			defer svc.Close()

			sources, err := svc.ListSources(cmd.Context())
			if err != nil {
				return err
			}
			for _, src := range sources {
				state := "enabled"
				if !src.Enabled {
					state = "disabled"
				}
				last := "never"
				if src.LastPolledAt != nil {
					last = time.UnixMilli(*src.LastPolledAt).Format(time.RFC3339)
				}
				fmt.Printf("%s  %-24s %-10s %-8s last=%s status=%s fails=%d\n",
					src.ID, src.Name, src.Extractor, state, last, src.LastStatus, src.FailCount)
			}
			return nil
		},
	}
}

func eventsCmd() *cobra.Command {
	var unseen bool
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List stock-change events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := setup()
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx := cmd.Context()
			events, err := svc.Events(ctx, "", unseen, limit)
			if err != nil {
				return err
			}
			st := svc.Store()
			for _, ev := range events {
				src, _ := st.GetSource(ctx, ev.SourceID)
				if src == nil {
					src = &veille.Source{Name: ev.SourceID}
				}
				it, _ := st.GetItem(ctx, ev.SourceID, ev.ItemKey)
				fmt.Printf("%s  %s\n",
					time.UnixMilli(ev.CreatedAt).Format("2006-01-02 15:04"),
					notify.FormatEvent(src, ev, it))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&unseen, "unseen", false, "only unacknowledged events")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum events to show")
	return cmd
}

func pruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Apply the retention policy immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := setup()
			if err != nil {
				return err
			}
			defer svc.Close()
			return svc.PruneNow(cmd.Context())
		},
	}
}
