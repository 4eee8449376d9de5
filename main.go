package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"webbuilder/internal/api"
	"webbuilder/internal/config"
	"webbuilder/internal/logger"
	"webbuilder/internal/metrics"
	"webbuilder/internal/redis"
	"webbuilder/internal/service/ai"
	"webbuilder/internal/service/assistant"
	"webbuilder/internal/storage"
	"webbuilder/internal/worker"
)

func main() {
	cfg, err := config.Load(os.Getenv("WEBBUILDER_CONFIG"))
	if err != nil {
		// logger config is not known yet
		bootstrap := logger.New(logger.Config{Level: "info"})
		bootstrap.Fatal().Err(err).Msg("load config")
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	log.Info().EmbedObject(cfg).Msg("starting webbuilder")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	opts := []assistant.Option{
		assistant.WithMetrics(m),
		assistant.WithLogger(logger.Component(log, "assistant")),
	}
	if cfg.Database.Driver != "" {
		db, driver, err := storage.Open(cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("open database")
		}
		defer db.Close()
		if err := storage.Migrate(db, driver); err != nil {
			log.Fatal().Err(err).Msg("migrate database")
		}
		opts = append(opts, assistant.WithJournal(storage.NewJournal(db, driver)))
		log.Info().Str("driver", driver).Msg("conversation journal enabled")
	}

	factory := ai.NewFactory(ai.Options{
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.Model,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		Temperature: cfg.OpenAI.Temperature,
		Timeout:     cfg.OpenAI.Timeout(),
	})
	agent := assistant.NewAgent(factory, assistant.Config{
		APIKey:        cfg.OpenAI.APIKey,
		HistoryWindow: cfg.OpenAI.HistoryWindow,
	}, opts...)
	if err := agent.Restore(ctx); err != nil {
		log.Fatal().Err(err).Msg("restore conversation")
	}

	queue := worker.NewQueue(cfg.Server.QueueSize, logger.Component(log, "queue"), m)
	defer queue.Stop()

	var bus *worker.StateBus
	if cfg.Redis.Host != "" {
		rdb, err := redis.NewRedisClient(cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("create redis client")
		}
		defer rdb.Close()
		bus = worker.NewStateBus(rdb, uuid.NewString(), logger.Component(log, "state-bus"))
		log.Info().Str("instance_id", bus.InstanceID()).Msg("state sync enabled")
	}

	handler := api.NewHandler(agent, queue, api.Options{
		FrontendPath: cfg.Server.FrontendPath,
		OutputPath:   cfg.Server.OutputPath,
		Bus:          bus,
		Logger:       logger.Component(log, "api"),
	})
	if err := handler.ListenForPeers(ctx); err != nil {
		log.Fatal().Err(err).Msg("subscribe state bus")
	}

	if cfg.Server.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger.Component(log, "http"),
		Metrics:        m,
		Gatherer:       reg,
	})

	srv := &http.Server{Addr: cfg.Addr(), Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	log.Info().Str("addr", cfg.Addr()).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
