// Command personallm runs the chat backend: the HTTP server, the title
// worker, and a couple of operator utilities.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/suPer8Hu/personallm/internal/ai"
	"github.com/suPer8Hu/personallm/internal/config"
	"github.com/suPer8Hu/personallm/internal/keyvault"
	"github.com/suPer8Hu/personallm/internal/store"
	"github.com/suPer8Hu/personallm/internal/store/localstore"
	"github.com/suPer8Hu/personallm/internal/store/remotestore"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:           "personallm",
		Short:         "Branching-conversation chat backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to YAML config file")

	root.AddCommand(serveCmd(), workerCmd(), exportCmd(), tokenCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("DEBUG") != "" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// openStore builds the entity store the config selects. The cleanup closes
// whatever connections the backend holds.
func openStore(cfg config.Config) (store.Store, func(), error) {
	switch cfg.Backend {
	case config.BackendLocal:
		st, err := localstore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return st, func() {}, nil

	case config.BackendRemote:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		st, err := remotestore.Open(cfg.DBDSN, rdb)
		if err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("open mysql: %w", err)
		}
		return st, func() { _ = rdb.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// openVault returns nil when no vault key is configured; callers treat a nil
// vault as "env keys only".
func openVault(cfg config.Config) (*keyvault.Vault, error) {
	if cfg.VaultKey == "" {
		return nil, nil
	}
	if len(cfg.VaultKey) != keyvault.KeySize {
		return nil, fmt.Errorf("vault key must be exactly %d bytes, got %d", keyvault.KeySize, len(cfg.VaultKey))
	}
	return keyvault.Open(cfg.VaultPath, []byte(cfg.VaultKey))
}

// newProviderRegistry wires every known provider. Vault keys win over env
// keys when both exist.
func newProviderRegistry(cfg config.Config, vault *keyvault.Vault) *ai.Registry {
	reg := ai.NewRegistry()

	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		if model == "" {
			model = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, model), nil
	})

	reg.Register("openrouter", func(ctx context.Context, model string) (ai.Provider, error) {
		key := cfg.OpenRouterAPIKey
		if vault != nil {
			if k, err := vault.Get("openrouter"); err == nil {
				key = k
			}
		}
		if key == "" {
			return nil, fmt.Errorf("no openrouter api key configured")
		}
		if model == "" {
			model = cfg.OpenRouterModel
		}
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, key, model, cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	})

	return reg
}
