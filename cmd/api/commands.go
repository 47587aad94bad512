package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/georgemunganga/fanbase-backend/internal/database"
	"github.com/georgemunganga/fanbase-backend/internal/discord"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	inlineWorker  bool
	runWorker     bool
	migrateOnRun  bool
	guildTokenTTL time.Duration
)

func init() {
	serveCmd.Flags().BoolVar(&inlineWorker, "inline-worker", false,
		"run benefit jobs in-process instead of queueing them in Redis")
	serveCmd.Flags().BoolVar(&runWorker, "worker", true, "also run the Redis queue worker in this process")
	serveCmd.Flags().BoolVar(&migrateOnRun, "migrate", false, "apply the schema before serving")
	guildTokenCmd.Flags().DurationVar(&guildTokenTTL, "ttl", 0, "token lifetime, 0 for no expiry")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, appOptions{inlineWorker: inlineWorker, component: "api"})
		if err != nil {
			return err
		}
		defer a.Close()

		if migrateOnRun {
			if err := database.Migrate(ctx, a.db); err != nil {
				return err
			}
		}

		// The worker must finish its in-flight jobs before the app closes
		// the database and Redis connections.
		workerCtx, stopWorker := context.WithCancel(ctx)
		var workers errgroup.Group
		defer func() {
			stopWorker()
			if err := workers.Wait(); err != nil {
				log.Error().Err(err).Msg("queue worker exited")
			}
		}()
		if a.redis != nil && runWorker {
			workers.Go(func() error {
				return a.redis.Run(workerCtx, a.dispatcher, a.cfg.WorkerConcurrency, a.cfg.PollInterval)
			})
		}

		srv := &http.Server{
			Addr:              ":" + a.cfg.Port,
			Handler:           a.router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("addr", srv.Addr).Str("version", Version).Msg("fanbase api listening")
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		log.Info().Msg("shutting down api")
		return srv.Shutdown(shutdownCtx)
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run queued benefit grant and revoke jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, appOptions{component: "worker"})
		if err != nil {
			return err
		}
		defer a.Close()
		return a.redis.Run(ctx, a.dispatcher, a.cfg.WorkerConcurrency, a.cfg.PollInterval)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig("migrate")
		if err != nil {
			return err
		}
		db, err := database.Open(cmd.Context(), cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := database.Migrate(cmd.Context(), db); err != nil {
			return err
		}
		log.Info().Msg("schema applied")
		return nil
	},
}

var guildTokenCmd = &cobra.Command{
	Use:   "guild-token <guild-id>",
	Short: "Issue the guild token a creator needs to configure a Discord benefit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig("guild-token")
		if err != nil {
			return err
		}
		token, err := discord.NewGuildTokenCodec(cfg.JWTSecret, guildTokenTTL).Encode(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}
