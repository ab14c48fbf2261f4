package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/DispatchBox/config"
	"github.com/BearBump/DispatchBox/internal/broker/kafka"
	"github.com/BearBump/DispatchBox/internal/cache/rediscache"
	"github.com/BearBump/DispatchBox/internal/integrations/casetrack"
	"github.com/BearBump/DispatchBox/internal/integrations/identity"
	"github.com/BearBump/DispatchBox/internal/integrations/routing"
	routingfake "github.com/BearBump/DispatchBox/internal/integrations/routing/fake"
	"github.com/BearBump/DispatchBox/internal/integrations/routing/osrmhttp"
	"github.com/BearBump/DispatchBox/internal/metrics"
	"github.com/BearBump/DispatchBox/internal/services/availability"
	"github.com/BearBump/DispatchBox/internal/services/dispatch"
	"github.com/BearBump/DispatchBox/internal/services/locator"
	"github.com/BearBump/DispatchBox/internal/services/routes"
	"github.com/BearBump/DispatchBox/internal/services/sla"
	"github.com/BearBump/DispatchBox/internal/storage/pgdispatch"
)

type dispatchAPIApp struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   dispatchAPIOpts

	searcher  *dispatch.Service
	cases     *casetrack.Client
	evaluator *sla.Service
	store     *pgdispatch.Storage
	consumer  *kafka.Consumer
	producer  *kafka.Producer
}

func mustBootstrapDispatchAPI(cfgPath string) *dispatchAPIApp {
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("parse config: %v", err))
	}

	httpAddr := cfg.Dispatch.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.Dispatch.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "dispatch-api"
	}
	locationTopic := cfg.Kafka.ProviderLocationTopicName
	if locationTopic == "" {
		locationTopic = "provider.location"
	}
	auditTopic := cfg.Kafka.DispatchSearchedTopicName
	if auditTopic == "" {
		auditTopic = "dispatch.searched"
	}

	metrics.RegisterDefault()

	st := mustOpenPostgresWithRetry(buildConnString(cfg), 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	hot := rediscache.New(redisAddr)
	rl := rediscache.NewRateLimiter(redisAddr)

	hotTTL := time.Duration(cfg.Routing.HotCacheTTLSeconds) * time.Second
	if hotTTL <= 0 {
		hotTTL = 10 * time.Minute
	}

	routerSvc := routes.New(st, newRoutingClient(cfg)).
		WithHotCache(hot, hotTTL).
		WithRateLimiter(rl, int64(cfg.Routing.RateLimitPerMinute))

	tracker := casetrack.New(cfg.CaseTrack.BaseURL, cfg.CaseTrack.APIKey)
	ident := identity.New(cfg.Identity.BaseURL, cfg.Identity.APIKey)

	loc := locator.New(st, cfg.Dispatch.DefaultLimit, cfg.Dispatch.DefaultRadiusKM)
	avail := availability.New(tracker, ident, st).
		WithPatrolFallback(cfg.Dispatch.EnablePatrolFallback)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)
	consumer := kafka.NewConsumer(brokers, locationTopic, consumerGroup)

	searcher := dispatch.New(loc, avail, routerSvc, cfg.Dispatch.EnrichConcurrency).
		WithAudit(producer, auditTopic)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &dispatchAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: dispatchAPIOpts{
			httpAddr:      httpAddr,
			topic:         locationTopic,
			consumerGroup: consumerGroup,
		},
		searcher:  searcher,
		cases:     tracker,
		evaluator: sla.New(tracker),
		store:     st,
		consumer:  consumer,
		producer:  producer,
	}
}

func buildConnString(cfg *config.Config) string {
	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
}

func newRoutingClient(cfg *config.Config) routing.Client {
	if cfg.Routing.Mode == "osrm" && cfg.Routing.BaseURL != "" {
		return osrmhttp.New(cfg.Routing.BaseURL, cfg.Routing.Profile)
	}
	return routingfake.New()
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgdispatch.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgdispatch.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *dispatchAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.producer != nil {
		_ = a.producer.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

func (a *dispatchAPIApp) Run() error {
	return runDispatchAPI(a.ctx, a.opts, a.searcher, a.cases, a.evaluator, a.store, a.consumer)
}
