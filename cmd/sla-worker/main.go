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
	"github.com/BearBump/DispatchBox/internal/integrations/casetrack"
	"github.com/BearBump/DispatchBox/internal/services/sla"
	"github.com/BearBump/DispatchBox/internal/services/slawatch"
	"github.com/BearBump/DispatchBox/internal/storage/pgdispatch"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("parse config: %v", err))
	}

	topic := cfg.Kafka.SLACheckpointTopicName
	if topic == "" {
		topic = "sla.checkpoint"
	}

	pollInterval := time.Duration(cfg.Dispatch.WorkerPollIntervalSeconds) * time.Second
	lease := time.Duration(cfg.Dispatch.WorkerLeaseSeconds) * time.Second

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st, err := pgdispatch.New(connString)
	if err != nil {
		panic(err)
	}
	defer st.Close()

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)
	defer func() { _ = producer.Close() }()

	tracker := casetrack.New(cfg.CaseTrack.BaseURL, cfg.CaseTrack.APIKey)

	w := slawatch.New(st, tracker, sla.New(tracker), producer, topic).
		WithSettings(pollInterval, cfg.Dispatch.WorkerBatchSize, cfg.Dispatch.WorkerConcurrency, lease).
		WithPlanner(slawatch.PlannerConfig{
			OpenDelay:       time.Duration(cfg.Dispatch.WorkerRecheckOpenSeconds) * time.Second,
			InProgressDelay: time.Duration(cfg.Dispatch.WorkerRecheckInProgressSeconds) * time.Second,
			Backoff1:        time.Duration(cfg.Dispatch.WorkerBackoffSeconds) * time.Second,
		})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr: cfg.Dispatch.WorkerHTTPAddr,
			watcher:  w,
			cfg:      cfg,
		}); err != nil {
			panic(err)
		}
	}()

	if err := w.Run(ctx); err != nil && err != context.Canceled {
		panic(err)
	}
}
