package availability

import (
	"context"
	"log/slog"

	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/pkg/errors"
)

type CaseTracker interface {
	ActivityForCase(ctx context.Context, caseID, providerID uint64) (*uint64, error)
	HasRejected(ctx context.Context, providerID, caseID, subServiceID uint64) (bool, error)
	TechnicianFreeOn(ctx context.Context, technicianID uint64, date string) (bool, error)
	CaseCountOn(ctx context.Context, providerID uint64, date string) (int, error)
	InProgressCounts(ctx context.Context, technicianIDs []uint64) (map[uint64]int, error)
}

type Identity interface {
	ManagerChain(ctx context.Context, providerID uint64) (models.ManagerChain, error)
}

type Store interface {
	TechniciansForVehicle(ctx context.Context, vehicleID uint64, employment string) ([]models.Technician, error)
	LastAttendedTechnician(ctx context.Context, vehicleID uint64) (*models.Technician, error)
}

// Service derives live workload state per candidate and attaches the
// operational facts owned by the sibling services. Everything except the
// provider-rejection precheck degrades to nil on collaborator failure.
type Service struct {
	tracker  CaseTracker
	identity Identity
	store    Store

	// Revives the last-attended-technician fallback for empty patrol
	// rosters. Off unless explicitly enabled in config.
	patrolFallback bool
}

func New(tracker CaseTracker, identity Identity, store Store) *Service {
	return &Service{tracker: tracker, identity: identity, store: store}
}

func (s *Service) WithPatrolFallback(enabled bool) *Service {
	s.patrolFallback = enabled
	return s
}

// Request carries the per-case inputs availability resolution needs.
type Request struct {
	CaseID       uint64
	SubServiceID uint64
	// Scheduled service date, "2006-01-02". Nil for immediate dispatch.
	ServiceDate *string
}

// ResolveTechnicianStatus applies the work-status rules for one technician.
//
// Without a service date the stored status passes through verbatim
// (default offline) and no availability boolean is computed. With a date,
// the external free-check decides: a company technician goes busy when not
// free but otherwise keeps the manually set shift state; a third-party
// technician is strictly available-or-busy.
func (s *Service) ResolveTechnicianStatus(ctx context.Context, tech models.Technician, serviceDate *string) models.TechnicianStatus {
	out := models.TechnicianStatus{Technician: tech}

	stored := models.WorkStatusOffline
	hasStored := tech.WorkStatus != nil
	if hasStored {
		stored = *tech.WorkStatus
	}

	if serviceDate == nil {
		out.ResolvedStatus = stored
		return out
	}

	free, err := s.tracker.TechnicianFreeOn(ctx, tech.ID, *serviceDate)
	if err != nil {
		slog.Warn("technician free-check failed", "technician_id", tech.ID, "error", err.Error())
		out.ResolvedStatus = stored
		return out
	}
	out.Available = &free

	if tech.Employment == models.EmploymentCompany {
		switch {
		case !free:
			out.ResolvedStatus = models.WorkStatusBusy
		case !hasStored:
			out.ResolvedStatus = models.WorkStatusOffline
		default:
			out.ResolvedStatus = stored
		}
		return out
	}

	if free {
		out.ResolvedStatus = models.WorkStatusAvailable
	} else {
		out.ResolvedStatus = models.WorkStatusBusy
	}
	return out
}

// Roster unions the patrol vehicle crew into the provider's technician
// list, de-duplicated by technician id.
func (s *Service) Roster(ctx context.Context, cand *models.Candidate) []models.Technician {
	roster := append([]models.Technician{}, cand.Technicians...)

	if cand.Provider.CompanyPatrol && cand.Provider.PatrolVehicleID != nil {
		crew, err := s.store.TechniciansForVehicle(ctx, *cand.Provider.PatrolVehicleID, models.EmploymentCompany)
		if err != nil {
			slog.Warn("vehicle crew lookup failed", "vehicle_id", *cand.Provider.PatrolVehicleID, "error", err.Error())
		} else {
			roster = append(roster, crew...)
		}

		if len(roster) == 0 && s.patrolFallback {
			last, err := s.store.LastAttendedTechnician(ctx, *cand.Provider.PatrolVehicleID)
			if err != nil {
				slog.Warn("last attended lookup failed", "vehicle_id", *cand.Provider.PatrolVehicleID, "error", err.Error())
			} else if last != nil {
				roster = append(roster, *last)
			}
		}
	}

	seen := make(map[uint64]struct{}, len(roster))
	out := roster[:0]
	for _, t := range roster {
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Enrich fills one candidate's availability block. Only a failed rejection
// precheck is an error: it is a precondition for the whole request, so it
// propagates instead of degrading.
func (s *Service) Enrich(ctx context.Context, cand *models.Candidate, req Request) (models.CandidateResult, error) {
	res := models.CandidateResult{
		Provider:   cand.Provider,
		DistanceKM: cand.DistanceKM,
	}

	rejected, err := s.tracker.HasRejected(ctx, cand.Provider.ID, req.CaseID, req.SubServiceID)
	if err != nil {
		return res, errors.Wrap(err, "rejection precheck")
	}
	res.PreviouslyRejected = &rejected

	if id, err := s.tracker.ActivityForCase(ctx, req.CaseID, cand.Provider.ID); err != nil {
		slog.Warn("activity lookup failed", "provider_id", cand.Provider.ID, "error", err.Error())
	} else {
		res.ExistingActivityID = id
	}

	if req.ServiceDate != nil {
		if n, err := s.tracker.CaseCountOn(ctx, cand.Provider.ID, *req.ServiceDate); err != nil {
			slog.Warn("case count lookup failed", "provider_id", cand.Provider.ID, "error", err.Error())
		} else {
			res.CaseCountOnDate = &n
		}
	}

	if chain, err := s.identity.ManagerChain(ctx, cand.Provider.ID); err != nil {
		slog.Warn("manager chain lookup failed", "provider_id", cand.Provider.ID, "error", err.Error())
	} else {
		res.Managers = &chain
	}

	roster := s.Roster(ctx, cand)
	ids := make([]uint64, 0, len(roster))
	for _, t := range roster {
		ids = append(ids, t.ID)
	}

	var counts map[uint64]int
	if len(ids) > 0 {
		counts, err = s.tracker.InProgressCounts(ctx, ids)
		if err != nil {
			slog.Warn("in-progress counts failed", "provider_id", cand.Provider.ID, "error", err.Error())
			counts = nil
		}
	}

	res.Technicians = make([]models.TechnicianStatus, 0, len(roster))
	for _, t := range roster {
		ts := s.ResolveTechnicianStatus(ctx, t, req.ServiceDate)
		if counts != nil {
			if n, ok := counts[t.ID]; ok {
				ts.InProgressCount = &n
			}
		}
		res.Technicians = append(res.Technicians, ts)
	}

	return res, nil
}
