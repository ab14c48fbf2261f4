package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/DispatchBox/internal/integrations/routing"
	"github.com/BearBump/DispatchBox/internal/metrics"
	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/pkg/errors"
)

// Mode describes which (origin, destination) pairs a Resolve call implies.
type Mode int

const (
	// ManyToOne pairs every origin with the single destination.
	ManyToOne Mode = iota
	// OneToOne pairs the single origin with the single destination.
	OneToOne
	// OneToMany pairs the single origin with every destination.
	OneToMany
)

type DurableCache interface {
	GetRoute(ctx context.Context, origin, destination string) (*models.RouteInfo, bool, error)
	PutRoute(ctx context.Context, origin, destination string, info models.RouteInfo) error
}

type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Service resolves travel distance/duration per coordinate pair, durable
// cache first, external provider on miss. Cache writes never fail a
// resolution.
type Service struct {
	durable DurableCache
	hot     BytesCache
	hotTTL  time.Duration
	client  routing.Client

	rl                 RateLimiter
	rateLimitPerMinute int64
}

func New(durable DurableCache, client routing.Client) *Service {
	return &Service{
		durable:            durable,
		client:             client,
		rateLimitPerMinute: 120,
	}
}

// WithHotCache puts a redis tier in front of the durable cache.
func (s *Service) WithHotCache(hot BytesCache, ttl time.Duration) *Service {
	if hot != nil && ttl > 0 {
		s.hot = hot
		s.hotTTL = ttl
	}
	return s
}

func (s *Service) WithRateLimiter(rl RateLimiter, perMinute int64) *Service {
	s.rl = rl
	if perMinute > 0 {
		s.rateLimitPerMinute = perMinute
	}
	return s
}

// Resolve returns one leg per implied pair, in the exact pair order, so
// callers can zip results positionally. A leg with nil Info means "no
// distance available"; only a malformed shape is an error.
func (s *Service) Resolve(ctx context.Context, origins, destinations []models.Coord, mode Mode) ([]models.RouteLeg, error) {
	pairs, err := impliedPairs(origins, destinations, mode)
	if err != nil {
		return nil, err
	}

	out := make([]models.RouteLeg, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, s.resolveOne(ctx, p[0], p[1]))
	}
	return out, nil
}

func impliedPairs(origins, destinations []models.Coord, mode Mode) ([][2]models.Coord, error) {
	switch mode {
	case ManyToOne:
		if len(destinations) != 1 {
			return nil, errors.New("many-to-one needs exactly one destination")
		}
		out := make([][2]models.Coord, 0, len(origins))
		for _, o := range origins {
			out = append(out, [2]models.Coord{o, destinations[0]})
		}
		return out, nil
	case OneToOne:
		if len(origins) != 1 || len(destinations) != 1 {
			return nil, errors.New("one-to-one needs exactly one origin and one destination")
		}
		return [][2]models.Coord{{origins[0], destinations[0]}}, nil
	case OneToMany:
		if len(origins) != 1 {
			return nil, errors.New("one-to-many needs exactly one origin")
		}
		out := make([][2]models.Coord, 0, len(destinations))
		for _, d := range destinations {
			out = append(out, [2]models.Coord{origins[0], d})
		}
		return out, nil
	default:
		return nil, errors.Errorf("unknown mode %d", mode)
	}
}

func (s *Service) resolveOne(ctx context.Context, origin, destination models.Coord) models.RouteLeg {
	leg := models.RouteLeg{Origin: origin, Destination: destination}

	oKey, dKey := origin.Key(), destination.Key()
	hotKey := "route:" + oKey + "|" + dKey

	if s.hot != nil {
		if b, ok, err := s.hot.Get(ctx, hotKey); err == nil && ok {
			var info models.RouteInfo
			if json.Unmarshal(b, &info) == nil {
				metrics.RouteCacheLookups.WithLabelValues("hot", "hit").Inc()
				leg.Info = &info
				return leg
			}
		}
		metrics.RouteCacheLookups.WithLabelValues("hot", "miss").Inc()
	}

	if info, ok, err := s.durable.GetRoute(ctx, oKey, dKey); err == nil && ok {
		metrics.RouteCacheLookups.WithLabelValues("durable", "hit").Inc()
		s.setHot(ctx, hotKey, *info)
		leg.Info = info
		return leg
	} else if err != nil {
		slog.Warn("distance cache read failed", "origin", oKey, "destination", dKey, "error", err.Error())
	}
	metrics.RouteCacheLookups.WithLabelValues("durable", "miss").Inc()

	info, err := s.callExternal(ctx, origin, destination)
	if err != nil {
		if err == routing.ErrNoRoute {
			metrics.RoutingCalls.WithLabelValues("no_route").Inc()
		} else {
			metrics.RoutingCalls.WithLabelValues("error").Inc()
			slog.Warn("routing call failed", "origin", oKey, "destination", dKey, "error", err.Error())
		}
		return leg
	}
	metrics.RoutingCalls.WithLabelValues("ok").Inc()

	// Write-back is fire-and-forget: a failed put must not fail resolution.
	if err := s.durable.PutRoute(ctx, oKey, dKey, info); err != nil {
		slog.Warn("distance cache write failed", "origin", oKey, "destination", dKey, "error", err.Error())
	}
	s.setHot(ctx, hotKey, info)

	leg.Info = &info
	return leg
}

func (s *Service) callExternal(ctx context.Context, origin, destination models.Coord) (models.RouteInfo, error) {
	if s.rl != nil && s.rateLimitPerMinute > 0 {
		minuteKey := "rl:routing:" + time.Now().UTC().Format("200601021504")
		allowed, n, err := s.rl.Allow(ctx, minuteKey, s.rateLimitPerMinute, 70*time.Second)
		if err == nil && !allowed {
			slog.Warn("routing rate limit exceeded", "count", n)
			time.Sleep(500 * time.Millisecond)
		}
	}

	info, err := s.client.Distance(ctx, origin, destination)
	if err != nil && err != routing.ErrNoRoute {
		// The call is idempotent and cacheable, so one bounded retry.
		time.Sleep(150 * time.Millisecond)
		info, err = s.client.Distance(ctx, origin, destination)
	}
	return info, err
}

func (s *Service) setHot(ctx context.Context, key string, info models.RouteInfo) {
	if s.hot == nil {
		return
	}
	b, err := json.Marshal(info)
	if err != nil {
		return
	}
	_ = s.hot.Set(ctx, key, b, s.hotTTL)
}

// TotalDistanceText sums leg distances and renders "<N.NN> km" with
// two-decimal precision. Any unavailable leg makes the total unavailable
// rather than a partial sum.
func TotalDistanceText(legs []models.RouteLeg) *string {
	if len(legs) == 0 {
		return nil
	}
	var totalKM float64
	for _, l := range legs {
		if l.Info == nil {
			return nil
		}
		totalKM += float64(l.Info.DistanceMeters) / 1000.0
	}
	s := fmt.Sprintf("%.2f km", totalKM)
	return &s
}
