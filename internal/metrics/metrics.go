package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the dispatch API.
	Registry = prometheus.NewRegistry()

	// DispatchSearches counts candidate searches by outcome.
	DispatchSearches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_searches_total", Help: "Total dispatch candidate searches."},
		[]string{"outcome"},
	)
	// RouteCacheLookups counts distance cache lookups by tier and result.
	RouteCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "route_cache_lookups_total", Help: "Distance cache lookups by tier and result."},
		[]string{"tier", "result"},
	)
	// RoutingCalls counts external routing provider calls by outcome.
	RoutingCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "routing_calls_total", Help: "External routing provider calls."},
		[]string{"outcome"},
	)
	// CollaboratorLatency tracks sibling-service call latency in seconds.
	CollaboratorLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "collaborator_latency_seconds", Help: "Sibling service call latency in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"service", "op"},
	)
	// SLAEvaluations counts SLA evaluations by checkpoint label.
	SLAEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sla_evaluations_total", Help: "SLA evaluations by selected checkpoint."},
		[]string{"checkpoint"},
	)
)

var regOnce sync.Once

// RegisterDefault registers collectors on the package registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(DispatchSearches)
		Registry.MustRegister(RouteCacheLookups)
		Registry.MustRegister(RoutingCalls)
		Registry.MustRegister(CollaboratorLatency)
		Registry.MustRegister(SLAEvaluations)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}
