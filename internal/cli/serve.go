package cli

import (
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/panebridge/panebridge/internal/bridge"
	"github.com/panebridge/panebridge/internal/config"
	"github.com/panebridge/panebridge/internal/events"
	"github.com/panebridge/panebridge/internal/registry"
	"github.com/panebridge/panebridge/internal/stream"
	"github.com/panebridge/panebridge/internal/tmux"
	"github.com/panebridge/panebridge/internal/watcher"
)

var servePrune bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the capture and streaming server",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := tmux.NewClient(cfg.Tmux.CommandTimeout())
		if !client.IsInstalled() {
			slog.Warn("tmux not found on PATH; sessions will stay offline")
		}

		reg := registry.New(cfg.Storage.DataDir, cfg.Capture.RingSize)
		if err := reg.Load(); err != nil {
			slog.Warn("loading persisted sessions", "error", err)
		}
		if servePrune {
			if removed := reg.Prune(client); len(removed) > 0 {
				slog.Info("pruned dead sessions", "count", len(removed))
			}
		} else if live := reg.VerifyLive(client); len(live) > 0 {
			slog.Info("verified live sessions", "count", len(live))
		}

		bus := events.NewBus()
		busCh, unsubscribe := bus.Subscribe(64)
		defer unsubscribe()
		go func() {
			for ev := range busCh {
				if se, ok := ev.(events.SessionEvent); ok {
					slog.Debug("session event",
						"type", se.Type, "session", se.Session,
						"status", se.Status, "client", se.Client)
				}
			}
		}()

		br := bridge.New(cfg, reg, client, bus)
		defer br.Close()

		srv := stream.NewServer(cfg, br)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cfgFile != "" {
			w, err := watcher.WatchConfig(cfgFile, func(next config.Config) {
				// Rate limits and the auth token take effect on the
				// running server; the listen address and storage paths
				// need a restart.
				srv.ApplyConfig(next)
				slog.Info("config reloaded",
					"chat_per_minute", next.Stream.ChatPerMinute,
					"typing_per_minute", next.Stream.TypingPerMin,
					"open_mode", next.Server.AuthToken == "")
				cfg = next
			})
			if err != nil {
				slog.Warn("config watch unavailable", "error", err)
			} else {
				defer w.Close()
			}
		}

		slog.Info("starting server",
			"host", cfg.Server.Host,
			"port", cfg.Server.Port,
			"open_mode", cfg.Server.AuthToken == "")

		if err := srv.Run(ctx); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&servePrune, "prune", false, "remove sessions whose panes are gone at startup")
}
