package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/splax/sitepress/internal/app/migrate"
	"github.com/splax/sitepress/internal/repository"
	"github.com/splax/sitepress/internal/repository/memory"
	"github.com/splax/sitepress/internal/repository/objectstore"
	"github.com/splax/sitepress/internal/repository/postgres"
	"github.com/splax/sitepress/internal/repository/redis"
	"github.com/splax/sitepress/internal/service/content"
	"github.com/splax/sitepress/internal/service/deploy"
	"github.com/splax/sitepress/pkg/config"
)

type storeBackend struct {
	kv     repository.KV
	health func(context.Context) error
	redis  *goredis.Client
	close  func()
}

// openStore connects the configured key/value backend. The postgres backend
// applies pending migrations first.
func openStore(ctx context.Context, cfg config.APIConfig, log *slog.Logger) (storeBackend, error) {
	switch strings.ToLower(cfg.StoreBackend) {
	case "", "memory":
		log.Warn("using in-memory store; state is lost on restart")
		return storeBackend{kv: memory.New(), close: func() {}}, nil
	case "redis":
		repo, err := redis.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
		if err != nil {
			return storeBackend{}, err
		}
		return storeBackend{
			kv:     repo,
			health: repo.Ping,
			redis:  repo.Client(),
			close:  func() { _ = repo.Close() },
		}, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return storeBackend{}, fmt.Errorf("connect database: %w", err)
		}
		runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
		if err != nil {
			pool.Close()
			return storeBackend{}, fmt.Errorf("configure migrations: %w", err)
		}
		if err := runner.Ping(ctx); err != nil {
			runner.Close()
			return storeBackend{}, err
		}
		if err := runner.Ensure(ctx); err != nil {
			runner.Close()
			return storeBackend{}, err
		}
		return storeBackend{kv: postgres.New(pool), health: pool.Ping, close: runner.Close}, nil
	default:
		return storeBackend{}, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// contentProviders builds the configured providers in CONTENT_PROVIDERS
// order, skipping those without credentials.
func contentProviders(cfg config.APIConfig, log *slog.Logger) []content.Provider {
	var providers []content.Provider
	for _, name := range cfg.ContentProviders {
		var (
			provider content.Provider
			err      error
		)
		switch strings.ToLower(name) {
		case "openai":
			if cfg.OpenAIAPIKey == "" {
				continue
			}
			provider, err = content.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		case "anthropic":
			if cfg.AnthropicAPIKey == "" {
				continue
			}
			provider, err = content.NewAnthropic(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		case "webhook":
			if cfg.ContentWebhookURL == "" {
				continue
			}
			provider, err = content.NewHTTPProvider("webhook", cfg.ContentWebhookURL, cfg.ContentWebhookToken, log)
		default:
			log.Warn("unknown content provider", "provider", name)
			continue
		}
		if err != nil {
			log.Warn("content provider disabled", "provider", name, "error", err)
			continue
		}
		providers = append(providers, provider)
	}
	return providers
}

// deployStrategies builds the browser, host API and self-host strategies in
// that order, skipping unconfigured ones.
func deployStrategies(cfg config.APIConfig, claimer deploy.SubdomainClaimer, log *slog.Logger) ([]deploy.Strategy, func()) {
	var (
		strategies []deploy.Strategy
		closers    []func()
	)
	if cfg.ConsoleURL != "" {
		browser, err := deploy.NewChromeBrowser(cfg.ConsoleURL, cfg.ChromePath, cfg.ChromeHeadless)
		if err != nil {
			log.Warn("browser strategy disabled", "error", err)
		} else {
			strategies = append(strategies, deploy.NewBrowserStrategy(browser, claimer, cfg.HostingDomainSuffix, cfg.ConsoleConflictMarker, cfg.MaxSuffixAttempts, log))
		}
	}
	if cfg.HostAPIBaseURL != "" {
		hostAPI, err := deploy.NewHostAPIStrategy(cfg.HostAPIBaseURL, cfg.HostAPIAccountID, cfg.HostAPIToken, cfg.HostingDomainSuffix, log)
		if err != nil {
			log.Warn("host api strategy disabled", "error", err)
		} else {
			strategies = append(strategies, hostAPI)
		}
	}
	if cfg.SelfHostRoot != "" {
		var reloader deploy.Reloader
		if cfg.SelfHostNginx != "" {
			docker, err := deploy.NewDockerReloader(cfg.SelfHostNginx)
			if err != nil {
				log.Warn("nginx reload disabled", "error", err)
			} else {
				reloader = docker
				closers = append(closers, func() { _ = docker.Close() })
			}
		}
		selfHost, err := deploy.NewSelfHostStrategy(cfg.SelfHostRoot, cfg.SelfHostDomainSuffix, reloader)
		if err != nil {
			log.Warn("self-host strategy disabled", "error", err)
		} else {
			strategies = append(strategies, selfHost)
		}
	}
	if len(strategies) == 0 {
		log.Warn("no deployment strategies configured; every run will end in error")
	}
	return strategies, func() {
		for _, c := range closers {
			c()
		}
	}
}

func openArchive(ctx context.Context, cfg config.APIConfig, log *slog.Logger) repository.ArtifactArchive {
	if cfg.ArchiveBucket == "" {
		return nil
	}
	archive, err := objectstore.New(ctx, cfg.ArchiveRegion, cfg.ArchiveEndpoint, cfg.ArchiveBucket, cfg.ArchivePrefix)
	if err != nil {
		log.Warn("artifact archive disabled", "error", err)
		return nil
	}
	return archive
}
