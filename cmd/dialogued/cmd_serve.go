package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rainbowcity/dialogue/internal/api"
	"github.com/rainbowcity/dialogue/internal/compose"
	"github.com/rainbowcity/dialogue/internal/config"
	"github.com/rainbowcity/dialogue/internal/engine"
	"github.com/rainbowcity/dialogue/internal/generate"
	"github.com/rainbowcity/dialogue/internal/lifecycle"
	"github.com/rainbowcity/dialogue/internal/parse"
	"github.com/rainbowcity/dialogue/internal/prompt"
	"github.com/rainbowcity/dialogue/internal/push"
	"github.com/rainbowcity/dialogue/internal/scheduler"
	"github.com/rainbowcity/dialogue/internal/store"
	"github.com/rainbowcity/dialogue/internal/telemetry"
	"github.com/rainbowcity/dialogue/internal/tool"
	"github.com/rainbowcity/dialogue/internal/tool/builtin"
	"github.com/rainbowcity/dialogue/internal/types"
	"github.com/rainbowcity/dialogue/pkg/llm"
	"github.com/rainbowcity/dialogue/pkg/llm/openai"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dialogue daemon",
	RunE:  runServe,
}

func buildStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (types.Stores, error) {
	if cfg.Store.Backend != "redis" {
		logger.Info("using in-memory stores")
		return store.NewMemoryStores(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.Store.RedisAddr,
		DB:   cfg.Store.RedisDB,
	})
	r, err := store.NewRedis(ctx, client, cfg.Store.KeyPrefix)
	if err != nil {
		return types.Stores{}, fmt.Errorf("connect redis: %w", err)
	}
	logger.Info("using redis stores",
		zap.String("addr", cfg.Store.RedisAddr),
		zap.Int("db", cfg.Store.RedisDB))
	return r.Stores(), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Development)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, err := buildStores(ctx, cfg, logger)
	if err != nil {
		return err
	}

	provider := openai.New(&llm.Config{
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		MaxTokens:      cfg.LLM.MaxTokens,
		Temperature:    cfg.LLM.Temperature,
		RequestTimeout: cfg.LLM.RequestTimeout,
	})

	assembler, err := prompt.New(cfg.LLM.Model, cfg.LLM.MaxContextTokens, cfg.LLM.OutputReserve)
	if err != nil {
		return fmt.Errorf("create prompt assembler: %w", err)
	}

	tools := tool.NewRegistry()
	tools.Register(builtin.NewCalculator())
	tools.Register(builtin.NewWeather())
	if key := os.Getenv("BRAVE_API_KEY"); key != "" {
		tools.Register(builtin.NewSearch(key))
	} else {
		logger.Warn("web search tool disabled (no BRAVE_API_KEY)")
	}

	loop := generate.New(provider, tools, logger, metrics,
		cfg.Generation.MaxRounds, cfg.Generation.ToolTimeout)

	lc := lifecycle.New(stores, logger)
	hub := push.NewHub(logger, metrics)

	eng := engine.New(engine.Deps{
		Stores:    stores,
		Lifecycle: lc,
		Parsers:   parse.NewRegistry(),
		Assembler: assembler,
		Loop:      loop,
		Composer:  compose.Defaults(),
		Tools:     tools,
		Hub:       hub,
		Logger:    logger,
		Metrics:   metrics,
	})
	eng.Start(ctx, int64(cfg.MaxConcurrent))
	defer eng.Stop()

	sweeper := scheduler.New(stores.Turns, lc, logger, metrics,
		cfg.Sweeper.Schedule, cfg.Sweeper.DefaultWindow)
	if err := sweeper.Start(ctx); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}
	defer sweeper.Stop()

	apiServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.NewServer(eng, stores, hub, logger),
	}
	go func() {
		logger.Info("api server started", zap.String("addr", cfg.Server.Addr))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server error", zap.Error(err))
		}
	}()

	metricsServer := &http.Server{
		Addr: cfg.Server.MetricsAddr,
		Handler: promhttp.HandlerFor(registry,
			promhttp.HandlerOpts{EnableOpenMetrics: true}),
	}
	go func() {
		logger.Info("metrics server started", zap.String("addr", cfg.Server.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	logger.Info("dialogued started",
		zap.String("log_level", cfg.LogLevel),
		zap.Int("max_concurrent", cfg.MaxConcurrent),
		zap.Int("max_rounds", cfg.Generation.MaxRounds),
		zap.String("store_backend", cfg.Store.Backend),
		zap.String("llm_model", cfg.LLM.Model))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("shutting down", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	apiServer.Shutdown(shutdownCtx)
	metricsServer.Shutdown(shutdownCtx)
	eng.WaitIdle(10 * time.Second)
	return nil
}
