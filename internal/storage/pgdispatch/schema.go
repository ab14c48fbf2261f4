package pgdispatch

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS providers (
  id BIGSERIAL PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  workshop_name TEXT NOT NULL DEFAULT '',
  lat DOUBLE PRECISION NOT NULL,
  lng DOUBLE PRECISION NOT NULL,
  last_known_lat DOUBLE PRECISION NULL,
  last_known_lng DOUBLE PRECISION NULL,
  on_shift BOOLEAN NOT NULL DEFAULT FALSE,
  company_patrol BOOLEAN NOT NULL DEFAULT FALSE,
  patrol_vehicle_id BIGINT NULL,
  contact_primary TEXT NOT NULL DEFAULT '',
  contact_secondary TEXT NULL,
  deleted BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS idx_providers_deleted ON providers(deleted)`,
		`
CREATE TABLE IF NOT EXISTS technicians (
  id BIGSERIAL PRIMARY KEY,
  provider_id BIGINT NULL REFERENCES providers(id),
  code TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  phone TEXT NULL,
  work_status TEXT NULL,
  employment TEXT NOT NULL,
  patrol_vehicle_id BIGINT NULL,
  deleted BOOLEAN NOT NULL DEFAULT FALSE
)`,
		`CREATE INDEX IF NOT EXISTS idx_technicians_provider_id ON technicians(provider_id)`,
		`CREATE INDEX IF NOT EXISTS idx_technicians_patrol_vehicle_id ON technicians(patrol_vehicle_id)`,
		`
CREATE TABLE IF NOT EXISTS provider_sub_services (
  provider_id BIGINT NOT NULL REFERENCES providers(id),
  sub_service_id BIGINT NOT NULL,
  PRIMARY KEY (provider_id, sub_service_id)
)`,
		`
CREATE TABLE IF NOT EXISTS technician_sub_services (
  technician_id BIGINT NOT NULL REFERENCES technicians(id),
  sub_service_id BIGINT NOT NULL,
  PRIMARY KEY (technician_id, sub_service_id)
)`,
		`
CREATE TABLE IF NOT EXISTS provider_clients (
  provider_id BIGINT NOT NULL REFERENCES providers(id),
  client_id BIGINT NOT NULL,
  PRIMARY KEY (provider_id, client_id)
)`,
		`
CREATE TABLE IF NOT EXISTS patrol_vehicles (
  id BIGSERIAL PRIMARY KEY,
  provider_id BIGINT NOT NULL REFERENCES providers(id),
  registration TEXT NOT NULL UNIQUE
)`,
		`
CREATE TABLE IF NOT EXISTS patrol_vehicle_logs (
  id BIGSERIAL PRIMARY KEY,
  vehicle_id BIGINT NOT NULL REFERENCES patrol_vehicles(id),
  technician_id BIGINT NOT NULL REFERENCES technicians(id),
  started_at TIMESTAMPTZ NOT NULL,
  ended_at TIMESTAMPTZ NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_patrol_vehicle_logs_vehicle_id ON patrol_vehicle_logs(vehicle_id, started_at DESC)`,
		// Literal-key distance cache: at most one row per (origin, destination),
		// first write wins, never evicted.
		`
CREATE TABLE IF NOT EXISTS distance_cache (
  origin TEXT NOT NULL,
  destination TEXT NOT NULL,
  payload JSONB NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (origin, destination)
)`,
		`
CREATE TABLE IF NOT EXISTS filter_presets (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  row_limit INT NULL,
  max_distance_km DOUBLE PRECISION NULL
)`,
		`
CREATE TABLE IF NOT EXISTS sla_checks (
  case_id BIGINT PRIMARY KEY,
  next_check_at TIMESTAMPTZ NOT NULL,
  fail_count INT NOT NULL DEFAULT 0,
  last_status TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS idx_sla_checks_next_check_at ON sla_checks(next_check_at)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
