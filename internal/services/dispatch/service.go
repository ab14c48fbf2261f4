package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BearBump/DispatchBox/internal/broker/messages"
	"github.com/BearBump/DispatchBox/internal/metrics"
	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/BearBump/DispatchBox/internal/services/availability"
	"github.com/BearBump/DispatchBox/internal/services/routes"
)

// Locator finds ranked candidates around an anchor point.
type Locator interface {
	Locate(ctx context.Context, anchor models.Coord, f models.LocatorFilter) ([]*models.Candidate, error)
}

// Enricher resolves availability facts for one candidate.
type Enricher interface {
	Enrich(ctx context.Context, cand *models.Candidate, req availability.Request) (models.CandidateResult, error)
}

// RouteResolver resolves driving legs between coordinate sets.
type RouteResolver interface {
	Resolve(ctx context.Context, origins, destinations []models.Coord, mode routes.Mode) ([]models.RouteLeg, error)
}

// Publisher emits fire-and-forget audit events.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Request is one dispatch search. Breakdown is set for roadside cases,
// Pickup (and optionally Drop) for vehicle transfers.
type Request struct {
	CaseID       uint64
	SubServiceID uint64

	Pickup    *models.Coord
	Drop      *models.Coord
	Breakdown *models.Coord

	Filter      models.LocatorFilter
	ServiceDate *string
}

// Anchor is the point candidates are ranked around.
func (r Request) Anchor() models.Coord {
	if r.Breakdown != nil {
		return *r.Breakdown
	}
	if r.Pickup != nil {
		return *r.Pickup
	}
	return models.Coord{}
}

type Service struct {
	locator  Locator
	enricher Enricher
	router   RouteResolver

	producer   Publisher
	auditTopic string

	concurrency int
}

func New(locator Locator, enricher Enricher, router RouteResolver, concurrency int) *Service {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Service{
		locator:     locator,
		enricher:    enricher,
		router:      router,
		concurrency: concurrency,
	}
}

// WithAudit enables the searched-event publication after every search.
func (s *Service) WithAudit(producer Publisher, topic string) *Service {
	s.producer = producer
	s.auditTopic = topic
	return s
}

// Search runs the full pipeline: locate, then enrich and route every
// candidate under bounded concurrency. Result order matches the
// locator's ranking.
func (s *Service) Search(ctx context.Context, req Request) ([]models.CandidateResult, error) {
	anchor := req.Anchor()
	cands, err := s.locator.Locate(ctx, anchor, req.Filter)
	if err != nil {
		metrics.DispatchSearches.WithLabelValues("error").Inc()
		return nil, err
	}

	results := make([]models.CandidateResult, len(cands))
	errs := make([]error, len(cands))

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for i, cand := range cands {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, cand *models.Candidate) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := s.enricher.Enrich(ctx, cand, availability.Request{
				CaseID:       req.CaseID,
				SubServiceID: req.SubServiceID,
				ServiceDate:  req.ServiceDate,
			})
			if err != nil {
				errs[i] = err
				return
			}
			res.Legs = s.resolveLegs(ctx, cand, req)
			res.TotalDistanceText = routes.TotalDistanceText(res.Legs)
			results[i] = res
		}(i, cand)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			metrics.DispatchSearches.WithLabelValues("error").Inc()
			return nil, err
		}
	}

	s.audit(ctx, req, anchor, len(results))
	metrics.DispatchSearches.WithLabelValues("ok").Inc()
	return results, nil
}

// resolveLegs chains the trip: candidate position to the first anchor,
// then pickup to drop when both are present. Unresolvable legs come
// back with nil Info, never as an error.
func (s *Service) resolveLegs(ctx context.Context, cand *models.Candidate, req Request) []models.RouteLeg {
	points := []models.Coord{cand.Provider.Position()}
	if req.Breakdown != nil {
		points = append(points, *req.Breakdown)
	} else {
		if req.Pickup != nil {
			points = append(points, *req.Pickup)
		}
		if req.Drop != nil {
			points = append(points, *req.Drop)
		}
	}

	var legs []models.RouteLeg
	for i := 0; i+1 < len(points); i++ {
		resolved, err := s.router.Resolve(ctx, []models.Coord{points[i]}, []models.Coord{points[i+1]}, routes.OneToOne)
		if err != nil {
			slog.Warn("route leg resolution failed", "provider_id", cand.Provider.ID, "error", err)
			legs = append(legs, models.RouteLeg{Origin: points[i], Destination: points[i+1]})
			continue
		}
		legs = append(legs, resolved...)
	}
	return legs
}

func (s *Service) audit(ctx context.Context, req Request, anchor models.Coord, n int) {
	if s.producer == nil {
		return
	}
	evt := messages.DispatchSearched{
		RequestID:    uuid.NewString(),
		CaseID:       req.CaseID,
		SubServiceID: req.SubServiceID,
		AnchorLat:    anchor.Lat,
		AnchorLng:    anchor.Lng,
		Candidates:   n,
		SearchedAt:   time.Now().UTC(),
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		slog.Warn("marshal dispatch audit", "error", err)
		return
	}
	if err := s.producer.Publish(ctx, s.auditTopic, []byte(evt.RequestID), payload); err != nil {
		slog.Warn("publish dispatch audit", "error", err)
	}
}
