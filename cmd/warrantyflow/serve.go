package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/proffectiv/warrantyflow/internal/api"
	"github.com/proffectiv/warrantyflow/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server and the embedded scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadValidConfig()
		if err != nil {
			return err
		}
		d, err := buildDeps(cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.Schedule.Enabled {
			opts := []scheduler.Option{scheduler.WithStatusRunner(d.StatusRun)}
			if cfg.Schedule.BusinessDays {
				opts = append(opts, scheduler.WithBusinessDayGate(scheduler.SpanishCalendar()))
			}
			sched := scheduler.NewService(opts...)
			if err := sched.AddJob(scheduler.StatusJob(cfg.Schedule.Cron)); err != nil {
				return err
			}
			sched.Start()
			defer func() { <-sched.Stop().Done() }()

			if cfg.Schedule.Watch && cfg.Store.Source == "file" {
				watcher := scheduler.NewWatcher(cfg.Store.File, func(context.Context) {
					if err := sched.Trigger("status-pass"); err != nil {
						log.Printf("watcher trigger failed: %v", err)
					}
				})
				if err := watcher.Start(ctx); err != nil {
					return err
				}
				defer watcher.Stop()
			}
		}

		addr, _ := cmd.Flags().GetString("listen")
		if addr == "" {
			addr = cfg.Server.Addr
		}
		server := api.NewServer(d.Intake, api.WithWebhookSecret(cfg.Server.WebhookSecret))
		srv := &http.Server{
			Addr:              addr,
			Handler:           server.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errc := make(chan error, 1)
		go func() {
			log.Printf("listening on %s", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}()

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}

		log.Printf("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "HTTP listen address (overrides server.addr)")
}
