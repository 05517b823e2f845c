package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/suPer8Hu/personallm/internal/chat"
	"github.com/suPer8Hu/personallm/internal/config"
	"github.com/suPer8Hu/personallm/internal/httpapi"
	"github.com/suPer8Hu/personallm/internal/httpapi/handlers"
	"github.com/suPer8Hu/personallm/internal/store/rabbitmq"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			log, err := newLogger()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			return runServe(cfg, log)
		},
	}
}

func runServe(cfg config.Config, log *zap.Logger) error {
	st, cleanup, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	vault, err := openVault(cfg)
	if err != nil {
		return err
	}
	reg := newProviderRegistry(cfg, vault)

	// Titles are best effort. Without a broker, conversations just keep
	// their placeholder title.
	var titles chat.TitleQueue
	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Warn("title queue unavailable, auto-titling disabled", zap.Error(err))
	} else {
		titles = pub
		defer pub.Close()
	}

	sessions := chat.NewManager(st, reg, titles, log)
	h := handlers.NewHandler(st, sessions, reg, vault, cfg, log)
	r := httpapi.NewRouter(h, cfg, log)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("addr", cfg.ListenAddr),
			zap.String("backend", cfg.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
