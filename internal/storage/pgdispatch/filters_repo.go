package pgdispatch

import (
	"context"

	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// GetFilterPreset returns ErrNotFound for an unknown preset id so callers
// can surface a declined response instead of an empty result.
func (s *Storage) GetFilterPreset(ctx context.Context, id uint64) (*models.FilterPreset, error) {
	var p models.FilterPreset
	err := s.db.QueryRow(ctx, `
SELECT id, name, row_limit, max_distance_km FROM filter_presets WHERE id = $1
`, id).Scan(&p.ID, &p.Name, &p.Limit, &p.MaxDistanceKM)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select filter preset")
	}
	return &p, nil
}
