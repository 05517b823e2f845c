package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/suPer8Hu/personallm/internal/chat"
	"github.com/suPer8Hu/personallm/internal/config"
	"github.com/suPer8Hu/personallm/internal/store"
	"github.com/suPer8Hu/personallm/internal/store/rabbitmq"
	"github.com/suPer8Hu/personallm/internal/title"
)

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	return n
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the background title worker",
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

			consumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue, workerConcurrency(), log)
			if err != nil {
				return err
			}
			defer consumer.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return consumer.Run(ctx, func(ctx context.Context, job chat.TitleJob) error {
				p, err := reg.Get(ctx, cfg.TitleProvider, cfg.TitleModel)
				if err != nil {
					return err
				}
				t := title.Generate(ctx, p, job.Text)
				return st.UpdateConversation(ctx, job.UserID, job.ConversationID, store.ConversationPatch{
					Title: &t,
				})
			})
		},
	}
}
