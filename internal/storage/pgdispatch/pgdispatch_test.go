package pgdispatch

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *Storage {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "dispatchbox_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/dispatchbox_test?sslmode=disable"
	st, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func seedProviders(t *testing.T, st *Storage) {
	t.Helper()
	ctx := context.Background()

	// Anchor for the tests is (13.05, 80.25). Three providers at roughly
	// 0 km, 8 km and 60 km, plus one soft-deleted at the anchor itself.
	stmts := []struct {
		q    string
		args []any
	}{
		{`INSERT INTO providers (id, code, name, workshop_name, lat, lng, company_patrol, contact_primary) VALUES (1, 'ASP001', 'Anchor Motors', 'Anchor Works', 13.05, 80.25, FALSE, '9000000001')`, nil},
		{`INSERT INTO providers (id, code, name, workshop_name, lat, lng, company_patrol, contact_primary) VALUES (2, 'ASP002', 'Nearby Garage', 'Nearby Works', 13.12, 80.26, FALSE, '9000000002')`, nil},
		{`INSERT INTO providers (id, code, name, workshop_name, lat, lng, company_patrol, contact_primary) VALUES (3, 'ASP003', 'Far Outpost', 'Outpost Works', 13.55, 80.55, FALSE, '9000000003')`, nil},
		{`INSERT INTO providers (id, code, name, lat, lng, deleted, contact_primary) VALUES (4, 'ASP004', 'Retired Shop', 13.05, 80.25, TRUE, '9000000004')`, nil},
		{`INSERT INTO provider_sub_services (provider_id, sub_service_id) VALUES (1, 5), (2, 5), (3, 5)`, nil},
		{`INSERT INTO provider_clients (provider_id, client_id) VALUES (1, 77), (3, 77)`, nil},
		{`INSERT INTO technicians (id, provider_id, code, name, employment, work_status) VALUES (10, 1, 'MEC010', 'T. Anand', 'COMPANY', 'AVAILABLE')`, nil},
		{`INSERT INTO technicians (id, provider_id, code, name, employment) VALUES (11, 2, 'MEC011', 'V. Bala', 'THIRD_PARTY')`, nil},
		{`INSERT INTO filter_presets (id, name, row_limit, max_distance_km) VALUES (1, 'city-wide', 2, 20)`, nil},
	}
	for _, s := range stmts {
		_, err := st.db.Exec(ctx, s.q, s.args...)
		require.NoError(t, err)
	}
}

func TestPGDispatch_LocateProviders(t *testing.T) {
	st := startPostgres(t)
	seedProviders(t, st)
	ctx := context.Background()
	anchor := models.Coord{Lat: 13.05, Lng: 80.25}

	cutoff := 30.0
	got, err := st.LocateProviders(ctx, anchor, models.LocatorFilter{
		SubServiceID:  5,
		Limit:         10,
		MaxDistanceKM: &cutoff,
	})
	require.NoError(t, err)
	require.Len(t, got, 2) // far outpost is ~60 km away, deleted one excluded
	require.Equal(t, uint64(1), got[0].Provider.ID)
	require.Equal(t, uint64(2), got[1].Provider.ID)
	require.LessOrEqual(t, got[0].DistanceKM, got[1].DistanceKM)
	require.InDelta(t, 0.0, got[0].DistanceKM, 0.1)
	require.InDelta(t, 7.9, got[1].DistanceKM, 1.0)

	// No cutoff: the far provider appears too.
	got, err = st.LocateProviders(ctx, anchor, models.LocatorFilter{SubServiceID: 5, Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, uint64(3), got[2].Provider.ID)

	// Limit caps the result.
	got, err = st.LocateProviders(ctx, anchor, models.LocatorFilter{SubServiceID: 5, Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)

	// Client scoping drops provider 2.
	client := uint64(77)
	got, err = st.LocateProviders(ctx, anchor, models.LocatorFilter{SubServiceID: 5, ClientID: &client, Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, uint64(1), got[0].Provider.ID)
	require.Equal(t, uint64(3), got[1].Provider.ID)

	// Text search matches name regardless of distance.
	got, err = st.LocateProviders(ctx, anchor, models.LocatorFilter{Search: "outpost", Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, uint64(3), got[0].Provider.ID)
}

func TestPGDispatch_LastKnownPositionWins(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	_, err := st.db.Exec(ctx, `
INSERT INTO providers (id, code, name, lat, lng, company_patrol, contact_primary)
VALUES (21, 'ASP021', 'Patrol One', 13.55, 80.55, TRUE, '9000000021')`)
	require.NoError(t, err)

	anchor := models.Coord{Lat: 13.05, Lng: 80.25}
	cutoff := 20.0

	// Home base is ~60 km out: filtered by the cutoff.
	got, err := st.LocateProviders(ctx, anchor, models.LocatorFilter{Limit: 10, MaxDistanceKM: &cutoff})
	require.NoError(t, err)
	require.Empty(t, got)

	// Vehicle reports a position near the anchor while on shift.
	require.NoError(t, st.ApplyProviderLocation(ctx, 21, 13.06, 80.26, true, time.Now()))

	got, err = st.LocateProviders(ctx, anchor, models.LocatorFilter{Limit: 10, MaxDistanceKM: &cutoff})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Less(t, got[0].DistanceKM, 5.0)
}

func TestPGDispatch_DistanceCacheFirstWriteWins(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	_, ok, err := st.GetRoute(ctx, "13.05,80.25", "13.01,80.2")
	require.NoError(t, err)
	require.False(t, ok)

	first := models.RouteInfo{DistanceMeters: 8000, DurationSeconds: 900, DistanceText: "8.0 km", DurationText: "15 mins"}
	require.NoError(t, st.PutRoute(ctx, "13.05,80.25", "13.01,80.2", first))

	// A second write for the same literal key is ignored.
	require.NoError(t, st.PutRoute(ctx, "13.05,80.25", "13.01,80.2", models.RouteInfo{DistanceMeters: 9999}))

	got, ok, err := st.GetRoute(ctx, "13.05,80.25", "13.01,80.2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, first, *got)

	// Differently formatted coordinates are a distinct key.
	_, ok, err = st.GetRoute(ctx, "13.050,80.250", "13.01,80.2")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPGDispatch_FilterPreset(t *testing.T) {
	st := startPostgres(t)
	seedProviders(t, st)
	ctx := context.Background()

	p, err := st.GetFilterPreset(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "city-wide", p.Name)
	require.NotNil(t, p.Limit)
	require.Equal(t, 2, *p.Limit)
	require.NotNil(t, p.MaxDistanceKM)
	require.Equal(t, 20.0, *p.MaxDistanceKM)

	_, err = st.GetFilterPreset(ctx, 999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPGDispatch_SLAChecksClaimAndLease(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	require.NoError(t, st.EnqueueSLACheck(ctx, 42, time.Now().Add(-time.Minute)))
	require.NoError(t, st.EnqueueSLACheck(ctx, 43, time.Now().Add(time.Hour)))

	now := time.Now().UTC()
	lease := 10 * time.Second
	due, err := st.ClaimDueSLAChecks(ctx, now, 10, lease)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, uint64(42), due[0].CaseID)
	require.WithinDuration(t, now.Add(lease), due[0].NextCheckAt, 2*time.Second)

	// Leased row is not claimable again.
	due2, err := st.ClaimDueSLAChecks(ctx, now, 10, lease)
	require.NoError(t, err)
	require.Empty(t, due2)

	status := "ACHIEVED"
	require.NoError(t, st.CompleteSLACheck(ctx, 42, &status, now.Add(-time.Second), false))
	due3, err := st.ClaimDueSLAChecks(ctx, now, 10, lease)
	require.NoError(t, err)
	require.Len(t, due3, 1)
	require.Equal(t, &status, due3[0].LastStatus)

	require.NoError(t, st.DropSLACheck(ctx, 42))
}
