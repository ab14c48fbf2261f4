package routing

import (
	"context"

	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/pkg/errors"
)

// ErrNoRoute means the provider answered but found no driving route for the
// pair. Callers degrade to an unavailable leg instead of failing.
var ErrNoRoute = errors.New("no route between points")

// Client resolves a single (origin, destination) pair. Never batched: one
// external call per pair keeps the blast radius of a failure to one leg and
// keeps the cache key trivial.
type Client interface {
	Distance(ctx context.Context, origin, destination models.Coord) (models.RouteInfo, error)
}
