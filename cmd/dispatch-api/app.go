package main

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/BearBump/DispatchBox/internal/api/dispatchapi"
	"github.com/BearBump/DispatchBox/internal/broker/messages"
	"github.com/BearBump/DispatchBox/internal/services/dispatch"
	"github.com/BearBump/DispatchBox/internal/services/sla"
	"github.com/BearBump/DispatchBox/internal/storage/pgdispatch"
)

type dispatchAPIOpts struct {
	httpAddr string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

func runDispatchAPI(
	ctx context.Context,
	opts dispatchAPIOpts,
	searcher *dispatch.Service,
	cases dispatchapi.CaseSource,
	evaluator *sla.Service,
	store *pgdispatch.Storage,
	consumer kafkaConsumer,
) error {
	api := dispatchapi.New(searcher, cases, evaluator)

	if opts.onListen != nil {
		opts.onListen(opts.httpAddr)
	}

	httpErr := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", opts.httpAddr)
		httpErr <- dispatchapi.RunServer(ctx, opts.httpAddr, api.Router())
	}()

	go func() {
		slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
		_ = consumer.Consume(ctx, func(_key, value []byte) error {
			var m messages.ProviderLocation
			if err := json.Unmarshal(value, &m); err != nil {
				return err
			}
			return store.ApplyProviderLocation(ctx, m.ProviderID, m.Lat, m.Lng, m.OnShift, m.ReportedAt)
		})
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		return err
	}
}
