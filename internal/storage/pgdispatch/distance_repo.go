package pgdispatch

import (
	"context"
	"encoding/json"

	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// GetRoute looks up the durable distance cache by the literal coordinate
// pair key.
func (s *Storage) GetRoute(ctx context.Context, origin, destination string) (*models.RouteInfo, bool, error) {
	var payload []byte
	err := s.db.QueryRow(ctx, `
SELECT payload FROM distance_cache WHERE origin = $1 AND destination = $2
`, origin, destination).Scan(&payload)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "select distance cache")
	}

	var info models.RouteInfo
	if err := json.Unmarshal(payload, &info); err != nil {
		return nil, false, errors.Wrap(err, "unmarshal distance payload")
	}
	return &info, true, nil
}

// PutRoute stores the observed payload. First write wins: a concurrent
// writer racing on the same key simply loses, which is fine because both
// observed the same external answer.
func (s *Storage) PutRoute(ctx context.Context, origin, destination string, info models.RouteInfo) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return errors.Wrap(err, "marshal distance payload")
	}
	_, err = s.db.Exec(ctx, `
INSERT INTO distance_cache (origin, destination, payload)
VALUES ($1, $2, $3)
ON CONFLICT (origin, destination) DO NOTHING
`, origin, destination, payload)
	return errors.Wrap(err, "insert distance cache")
}
