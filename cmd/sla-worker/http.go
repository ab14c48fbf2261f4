package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BearBump/DispatchBox/config"
	"github.com/BearBump/DispatchBox/internal/services/slawatch"
)

type workerHTTPOpts struct {
	httpAddr string
	onListen func(httpAddr string)

	watcher *slawatch.Watcher
	cfg     *config.Config
}

// runWorkerHTTPServer exposes operational endpoints for the worker:
// health, stats, manual trigger, and the effective scheduling settings.
func runWorkerHTTPServer(ctx context.Context, opts workerHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8082"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.watcher == nil {
			_, _ = w.Write([]byte(`{"error":"watcher not wired"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(opts.watcher.Stats())
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.cfg == nil {
			_, _ = w.Write([]byte(`{"error":"config not wired"}`))
			return
		}
		// Avoid dumping secrets; show only operational worker settings.
		out := map[string]any{
			"pollIntervalSeconds":      opts.cfg.Dispatch.WorkerPollIntervalSeconds,
			"batchSize":                opts.cfg.Dispatch.WorkerBatchSize,
			"concurrency":              opts.cfg.Dispatch.WorkerConcurrency,
			"leaseSeconds":             opts.cfg.Dispatch.WorkerLeaseSeconds,
			"recheckOpenSeconds":       opts.cfg.Dispatch.WorkerRecheckOpenSeconds,
			"recheckInProgressSeconds": opts.cfg.Dispatch.WorkerRecheckInProgressSeconds,
			"backoffSeconds":           opts.cfg.Dispatch.WorkerBackoffSeconds,
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.watcher == nil {
			_, _ = w.Write([]byte(`{"error":"watcher not wired"}`))
			return
		}
		opts.watcher.Trigger()
		_, _ = w.Write([]byte(`{"triggered":true}`))
	})

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
