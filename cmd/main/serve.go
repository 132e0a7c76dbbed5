package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	cmHnd "colmatch-service/internal/colmatch/handler"
	"colmatch-service/internal/config"
	"colmatch-service/internal/worker"
	"colmatch-service/internal/workspace"
	serverhttp "colmatch-service/server/http"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger := loadConfig(false)
		if serveHost != "" {
			cfg.Host = serveHost
		}
		if servePort > 0 {
			cfg.Port = servePort
		}

		state, err := config.LoadState(cfg.StateFile)
		if err != nil {
			logger.Warn().Err(err).Msg("state ignored")
		}
		if last := state.LastOpened(); last != "" {
			logger.Info().Str("file", last).Msg("last opened file")
		}

		jobs := worker.NewPool(cfg.MatchWorkers, logger)
		defer jobs.Close()

		deps := &cmHnd.Deps{Cfg: cfg, Log: logger, Store: workspace.New(), Jobs: jobs, State: state}
		srv := &http.Server{
			Addr:              cfg.Addr(),
			Handler:           serverhttp.NewRouter(deps),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go janitor(ctx, jobs)

		errc := make(chan error, 1)
		go func() {
			logger.Info().Str("addr", cfg.Addr()).Msg("server starting")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errc <- err
			}
			close(errc)
		}()

		// graceful shutdown
		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}
		logger.Info().Msg("server shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
		logger.Info().Msg("bye")
		return nil
	},
}

// janitor чистит завершённые задачи, чтобы пул не рос бесконечно.
func janitor(ctx context.Context, jobs *worker.Pool) {
	t := time.NewTicker(10 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			jobs.Forget(time.Hour)
		}
	}
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (default from HOST)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default from PORT)")
}
