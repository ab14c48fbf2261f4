package dispatchapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BearBump/DispatchBox/internal/metrics"
	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/BearBump/DispatchBox/internal/services/dispatch"
	"github.com/BearBump/DispatchBox/internal/services/locator"
)

// Searcher runs the dispatch candidate pipeline.
type Searcher interface {
	Search(ctx context.Context, req dispatch.Request) ([]models.CandidateResult, error)
}

// CaseSource fetches a case snapshot from the case tracker.
type CaseSource interface {
	Case(ctx context.Context, caseID uint64) (models.CaseSnapshot, error)
}

// Evaluator selects the current SLA checkpoint.
type Evaluator interface {
	EvaluateCase(ctx context.Context, snap models.CaseSnapshot) (*models.SLAResult, error)
	Evaluate(snap models.CaseSnapshot, checkpoints []models.SLACheckpoint) *models.SLAResult
}

type API struct {
	searcher  Searcher
	cases     CaseSource
	evaluator Evaluator
}

func New(searcher Searcher, cases CaseSource, evaluator Evaluator) *API {
	return &API{searcher: searcher, cases: cases, evaluator: evaluator}
}

// Router builds the public HTTP surface.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/dispatch/search", a.handleSearch)
		r.Get("/cases/{caseID}/sla", a.handleCaseSLA)
		r.Post("/sla/evaluate", a.handleEvaluate)
	})
	return r
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, envelope{Success: false, Error: err.Error()})
}

type searchRequest struct {
	CaseID       uint64 `json:"caseId"`
	SubServiceID uint64 `json:"subServiceId"`

	Pickup    *models.Coord `json:"pickup,omitempty"`
	Drop      *models.Coord `json:"drop,omitempty"`
	Breakdown *models.Coord `json:"breakdown,omitempty"`

	Search            string   `json:"search,omitempty"`
	ClientID          *uint64  `json:"clientId,omitempty"`
	CompanyPatrolOnly bool     `json:"companyPatrolOnly,omitempty"`
	FilterID          *uint64  `json:"filterId,omitempty"`
	Limit             int      `json:"limit,omitempty"`
	MaxDistanceKM     *float64 `json:"maxDistanceKm,omitempty"`

	ServiceDate *string `json:"serviceDate,omitempty"`
}

func (a *API) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, errors.Wrap(err, "decode request"))
		return
	}
	if req.Pickup == nil && req.Breakdown == nil {
		writeErr(w, http.StatusBadRequest, errors.New("pickup or breakdown coordinate is required"))
		return
	}
	if req.SubServiceID == 0 {
		writeErr(w, http.StatusBadRequest, errors.New("subServiceId is required"))
		return
	}

	results, err := a.searcher.Search(r.Context(), dispatch.Request{
		CaseID:       req.CaseID,
		SubServiceID: req.SubServiceID,
		Pickup:       req.Pickup,
		Drop:         req.Drop,
		Breakdown:    req.Breakdown,
		Filter: models.LocatorFilter{
			Search:            req.Search,
			SubServiceID:      req.SubServiceID,
			ClientID:          req.ClientID,
			CompanyPatrolOnly: req.CompanyPatrolOnly,
			FilterID:          req.FilterID,
			Limit:             req.Limit,
			MaxDistanceKM:     req.MaxDistanceKM,
		},
		ServiceDate: req.ServiceDate,
	})
	if err != nil {
		if errors.Is(err, locator.ErrFilterNotFound) {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]candidateJSON, 0, len(results))
	for _, res := range results {
		out = append(out, toCandidateJSON(res))
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: out})
}

func (a *API) handleCaseSLA(w http.ResponseWriter, r *http.Request) {
	caseID, err := strconv.ParseUint(chi.URLParam(r, "caseID"), 10, 64)
	if err != nil {
		writeErr(w, http.StatusBadRequest, errors.New("invalid case id"))
		return
	}
	snap, err := a.cases.Case(r.Context(), caseID)
	if err != nil {
		writeErr(w, http.StatusBadGateway, err)
		return
	}
	res, err := a.evaluator.EvaluateCase(r.Context(), snap)
	if err != nil {
		writeErr(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: res})
}

type evaluateRequest struct {
	Case        models.CaseSnapshot    `json:"case"`
	Checkpoints []models.SLACheckpoint `json:"checkpoints"`
}

func (a *API) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, errors.Wrap(err, "decode request"))
		return
	}
	res := a.evaluator.Evaluate(req.Case, req.Checkpoints)
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: res})
}

type providerJSON struct {
	ID               uint64  `json:"id"`
	Code             string  `json:"code"`
	Name             string  `json:"name"`
	WorkshopName     string  `json:"workshopName,omitempty"`
	Lat              float64 `json:"lat"`
	Lng              float64 `json:"lng"`
	CompanyPatrol    bool    `json:"companyPatrol"`
	ContactPrimary   string  `json:"contactPrimary,omitempty"`
	ContactSecondary *string `json:"contactSecondary,omitempty"`
}

type legJSON struct {
	Origin       models.Coord `json:"origin"`
	Destination  models.Coord `json:"destination"`
	DistanceText *string      `json:"distanceText,omitempty"`
	DurationText *string      `json:"durationText,omitempty"`
}

type technicianJSON struct {
	ID              uint64  `json:"id"`
	Code            string  `json:"code"`
	Name            string  `json:"name"`
	Phone           *string `json:"phone,omitempty"`
	Employment      string  `json:"employment"`
	Status          string  `json:"status"`
	Available       *bool   `json:"available,omitempty"`
	InProgressCount *int    `json:"inProgressCount,omitempty"`
}

type candidateJSON struct {
	Provider          providerJSON         `json:"provider"`
	DistanceKM        float64              `json:"distanceKm"`
	Legs              []legJSON            `json:"legs,omitempty"`
	TotalDistanceText *string              `json:"totalDistanceText"`
	Technicians       []technicianJSON     `json:"technicians"`
	ExistingActivity  *uint64              `json:"existingActivityId,omitempty"`
	PrevRejected      *bool                `json:"previouslyRejected,omitempty"`
	CaseCountOnDate   *int                 `json:"caseCountOnDate,omitempty"`
	Managers          *models.ManagerChain `json:"managers,omitempty"`
}

func toCandidateJSON(res models.CandidateResult) candidateJSON {
	pos := res.Provider.Position()
	out := candidateJSON{
		Provider: providerJSON{
			ID:               res.Provider.ID,
			Code:             res.Provider.Code,
			Name:             res.Provider.Name,
			WorkshopName:     res.Provider.WorkshopName,
			Lat:              pos.Lat,
			Lng:              pos.Lng,
			CompanyPatrol:    res.Provider.CompanyPatrol,
			ContactPrimary:   res.Provider.ContactPrimary,
			ContactSecondary: res.Provider.ContactSecondary,
		},
		DistanceKM:        res.DistanceKM,
		TotalDistanceText: res.TotalDistanceText,
		Technicians:       make([]technicianJSON, 0, len(res.Technicians)),
		ExistingActivity:  res.ExistingActivityID,
		PrevRejected:      res.PreviouslyRejected,
		CaseCountOnDate:   res.CaseCountOnDate,
		Managers:          res.Managers,
	}
	for _, leg := range res.Legs {
		lj := legJSON{Origin: leg.Origin, Destination: leg.Destination}
		if leg.Info != nil {
			lj.DistanceText = &leg.Info.DistanceText
			lj.DurationText = &leg.Info.DurationText
		}
		out.Legs = append(out.Legs, lj)
	}
	for _, ts := range res.Technicians {
		out.Technicians = append(out.Technicians, technicianJSON{
			ID:              ts.ID,
			Code:            ts.Code,
			Name:            ts.Name,
			Phone:           ts.Phone,
			Employment:      ts.Employment,
			Status:          ts.ResolvedStatus,
			Available:       ts.Available,
			InProgressCount: ts.InProgressCount,
		})
	}
	return out
}

// RunServer serves the router until the context is cancelled.
func RunServer(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
