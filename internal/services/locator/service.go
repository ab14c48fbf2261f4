package locator

import (
	"context"

	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/BearBump/DispatchBox/internal/storage/pgdispatch"
	"github.com/pkg/errors"
)

// ErrFilterNotFound marks a named preset id that does not exist; callers
// must surface it as a declined request, not an empty result.
var ErrFilterNotFound = errors.New("filter preset not found")

type Store interface {
	LocateProviders(ctx context.Context, anchor models.Coord, f models.LocatorFilter) ([]*models.Candidate, error)
	TechniciansForProvider(ctx context.Context, providerID uint64) ([]models.Technician, error)
	GetFilterPreset(ctx context.Context, id uint64) (*models.FilterPreset, error)
}

// Service is the read-only leaf query feeding the rest of the engine:
// nearest-first candidates within a distance cutoff, with their rosters.
type Service struct {
	store Store

	defaultLimit    int
	defaultRadiusKM float64
}

func New(store Store, defaultLimit int, defaultRadiusKM float64) *Service {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	if defaultRadiusKM <= 0 {
		defaultRadiusKM = 30
	}
	return &Service{store: store, defaultLimit: defaultLimit, defaultRadiusKM: defaultRadiusKM}
}

func (s *Service) Locate(ctx context.Context, anchor models.Coord, f models.LocatorFilter) ([]*models.Candidate, error) {
	if f.Limit <= 0 {
		f.Limit = s.defaultLimit
	}
	if f.MaxDistanceKM == nil {
		radius := s.defaultRadiusKM
		f.MaxDistanceKM = &radius
	}

	if f.FilterID != nil {
		preset, err := s.store.GetFilterPreset(ctx, *f.FilterID)
		if err != nil {
			if errors.Is(err, pgdispatch.ErrNotFound) {
				return nil, ErrFilterNotFound
			}
			return nil, errors.Wrap(err, "load filter preset")
		}
		if preset.Limit != nil {
			f.Limit = *preset.Limit
		}
		if preset.MaxDistanceKM != nil {
			f.MaxDistanceKM = preset.MaxDistanceKM
		}
	}

	// A free-text search clears the radius cutoff entirely: text relevance
	// takes precedence over distance.
	if f.Search != "" {
		f.MaxDistanceKM = nil
	}

	candidates, err := s.store.LocateProviders(ctx, anchor, f)
	if err != nil {
		return nil, errors.Wrap(err, "locate providers")
	}

	for _, c := range candidates {
		ts, err := s.store.TechniciansForProvider(ctx, c.Provider.ID)
		if err != nil {
			return nil, errors.Wrap(err, "load roster")
		}
		c.Technicians = ts
	}
	return candidates, nil
}
