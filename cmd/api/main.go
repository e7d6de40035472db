package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	httpx "github.com/splax/sitepress/internal/http"
	"github.com/splax/sitepress/internal/service/content"
	"github.com/splax/sitepress/internal/service/deploy"
	"github.com/splax/sitepress/internal/service/modify"
	"github.com/splax/sitepress/internal/service/pipeline"
	"github.com/splax/sitepress/internal/service/render"
	"github.com/splax/sitepress/internal/service/status"
	"github.com/splax/sitepress/internal/service/theme"
	"github.com/splax/sitepress/internal/service/validate"
	"github.com/splax/sitepress/internal/ws"
	"github.com/splax/sitepress/pkg/config"
	"github.com/splax/sitepress/pkg/jwt"
	"github.com/splax/sitepress/pkg/logger"
)

func main() {
	config.LoadDotEnv()
	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(config.GetString("LOG_LEVEL", "info")))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer backend.close()

	hub := ws.NewHub(log)
	defer hub.Stop()
	store := status.New(backend.kv, hub, cfg.StatusWriteRetries, log)

	tokens, err := jwt.NewEditTokens(cfg.EditTokenSecret, cfg.EditTokenTTL)
	if err != nil {
		log.Error("invalid edit token configuration", "error", err)
		os.Exit(1)
	}

	renderer, err := render.New()
	if err != nil {
		log.Error("failed to load site templates", "error", err)
		os.Exit(1)
	}

	metrics := pipeline.NewMetrics(nil)
	chain := content.NewChain(log, cfg.ProviderTimeout, contentProviders(cfg, log)...)
	strategies, closeStrategies := deployStrategies(cfg, store, log)
	defer closeStrategies()
	orchestrator := deploy.NewOrchestrator(store, cfg.StrategyTimeout, log, strategies...).WithObserver(metrics.ObserveStrategy)
	log.Info("pipeline configured", "providers", chain.Names(), "strategies", orchestrator.Strategies())

	svc := pipeline.New(pipeline.Dependencies{
		Normalizer: validate.New(),
		Themes:     theme.New(),
		Renderer:   renderer,
		Content:    chain,
		Deployer:   orchestrator,
		Modifier:   modify.New(chain, log),
		Store:      store,
		Tokens:     tokens,
		Archive:    openArchive(ctx, cfg, log),
		Metrics:    metrics,
	}, log, cfg)

	sweeper := pipeline.NewSweeper(svc, log, cfg)
	if sweeper != nil {
		go sweeper.Run(ctx)
	}

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, cfg.RedisPrefix, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	} else if backend.redis != nil {
		limiter.Close()
		limiter = httpx.NewSharedRedisRateLimiter(backend.redis, cfg.RedisPrefix, log)
	}

	router := httpx.NewRouter(log, svc, tokens, hub, limiter, backend.health)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "env", cfg.Environment, "store", cfg.StoreBackend)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		if err := svc.Shutdown(shutdownCtx); err != nil {
			log.Warn("pipeline runs cancelled at shutdown", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
