package pgdispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/pkg/errors"
)

// effectivePos switches to the vehicle-reported coordinate for company
// patrols on an active shift. Keep in sync with models.Provider.Position.
const effectiveLat = `CASE WHEN p.company_patrol AND p.on_shift AND p.last_known_lat IS NOT NULL THEN p.last_known_lat ELSE p.lat END`
const effectiveLng = `CASE WHEN p.company_patrol AND p.on_shift AND p.last_known_lng IS NOT NULL THEN p.last_known_lng ELSE p.lng END`

// LocateProviders runs the nearest-first geospatial query. All caller values
// are bound via placeholders; nothing is interpolated into the SQL text.
func (s *Storage) LocateProviders(ctx context.Context, anchor models.Coord, f models.LocatorFilter) ([]*models.Candidate, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}

	args := []any{anchor.Lat, anchor.Lng}
	conds := []string{"NOT p.deleted"}

	if f.CompanyPatrolOnly {
		conds = append(conds, "p.company_patrol")
	}
	if f.SubServiceID != 0 {
		args = append(args, f.SubServiceID)
		conds = append(conds, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM provider_sub_services ss WHERE ss.provider_id = p.id AND ss.sub_service_id = $%d)", len(args)))
	}
	if f.ClientID != nil {
		args = append(args, *f.ClientID)
		conds = append(conds, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM provider_clients pc WHERE pc.provider_id = p.id AND pc.client_id = $%d)", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(p.code ILIKE $%d OR p.name ILIKE $%d OR p.workshop_name ILIKE $%d)", n, n, n))
	}

	having := ""
	if f.MaxDistanceKM != nil {
		args = append(args, *f.MaxDistanceKM)
		having = fmt.Sprintf("WHERE q.distance_km <= $%d", len(args))
	}

	args = append(args, limit)
	limitPos := len(args)

	q := fmt.Sprintf(`
SELECT
  q.id, q.code, q.name, q.workshop_name,
  q.lat, q.lng, q.last_known_lat, q.last_known_lng, q.on_shift,
  q.company_patrol, q.patrol_vehicle_id,
  q.contact_primary, q.contact_secondary,
  q.distance_km
FROM (
  SELECT p.*,
    6371 * acos(LEAST(1.0,
      cos(radians($1)) * cos(radians(%[1]s)) * cos(radians(%[2]s) - radians($2))
      + sin(radians($1)) * sin(radians(%[1]s))
    )) AS distance_km
  FROM providers p
  WHERE %[3]s
) q
%[4]s
ORDER BY q.distance_km ASC, q.id ASC
LIMIT $%[5]d
`, effectiveLat, effectiveLng, strings.Join(conds, "\n    AND "), having, limitPos)

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select providers")
	}
	defer rows.Close()

	var out []*models.Candidate
	for rows.Next() {
		var c models.Candidate
		p := &c.Provider
		if err := rows.Scan(
			&p.ID, &p.Code, &p.Name, &p.WorkshopName,
			&p.Lat, &p.Lng, &p.LastKnownLat, &p.LastKnownLng, &p.OnShift,
			&p.CompanyPatrol, &p.PatrolVehicleID,
			&p.ContactPrimary, &p.ContactSecondary,
			&c.DistanceKM,
		); err != nil {
			return nil, errors.Wrap(err, "scan provider")
		}
		out = append(out, &c)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) TechniciansForProvider(ctx context.Context, providerID uint64) ([]models.Technician, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, provider_id, code, name, phone, work_status, employment, patrol_vehicle_id
FROM technicians
WHERE provider_id = $1 AND NOT deleted
ORDER BY id
`, providerID)
	if err != nil {
		return nil, errors.Wrap(err, "select technicians")
	}
	defer rows.Close()
	return scanTechnicians(rows)
}

// TechniciansForVehicle lists technicians currently matched to a patrol
// vehicle with the given employment marker. Used to union patrol crews into
// a provider's roster.
func (s *Storage) TechniciansForVehicle(ctx context.Context, vehicleID uint64, employment string) ([]models.Technician, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, provider_id, code, name, phone, work_status, employment, patrol_vehicle_id
FROM technicians
WHERE patrol_vehicle_id = $1 AND employment = $2 AND NOT deleted
ORDER BY id
`, vehicleID, employment)
	if err != nil {
		return nil, errors.Wrap(err, "select vehicle technicians")
	}
	defer rows.Close()
	return scanTechnicians(rows)
}

// LastAttendedTechnician returns the most recent operator from the vehicle
// log. Only consulted behind the patrol-fallback feature flag.
func (s *Storage) LastAttendedTechnician(ctx context.Context, vehicleID uint64) (*models.Technician, error) {
	rows, err := s.db.Query(ctx, `
SELECT t.id, t.provider_id, t.code, t.name, t.phone, t.work_status, t.employment, t.patrol_vehicle_id
FROM patrol_vehicle_logs l
JOIN technicians t ON t.id = l.technician_id
WHERE l.vehicle_id = $1 AND NOT t.deleted
ORDER BY l.started_at DESC
LIMIT 1
`, vehicleID)
	if err != nil {
		return nil, errors.Wrap(err, "select last attended technician")
	}
	defer rows.Close()

	ts, err := scanTechnicians(rows)
	if err != nil {
		return nil, err
	}
	if len(ts) == 0 {
		return nil, nil
	}
	return &ts[0], nil
}

// ApplyProviderLocation records the vehicle-reported position and shift
// state for a provider.
func (s *Storage) ApplyProviderLocation(ctx context.Context, providerID uint64, lat, lng float64, onShift bool, reportedAt time.Time) error {
	_, err := s.db.Exec(ctx, `
UPDATE providers
SET last_known_lat = $2, last_known_lng = $3, on_shift = $4, updated_at = $5
WHERE id = $1
`, providerID, lat, lng, onShift, reportedAt.UTC())
	return errors.Wrap(err, "apply provider location")
}

type techRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanTechnicians(rows techRows) ([]models.Technician, error) {
	var out []models.Technician
	for rows.Next() {
		var t models.Technician
		if err := rows.Scan(
			&t.ID, &t.ProviderID, &t.Code, &t.Name, &t.Phone,
			&t.WorkStatus, &t.Employment, &t.PatrolVehicleID,
		); err != nil {
			return nil, errors.Wrap(err, "scan technician")
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
