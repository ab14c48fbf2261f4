package locator

import (
	"context"
	"testing"

	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/BearBump/DispatchBox/internal/storage/pgdispatch"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	locateFilter models.LocatorFilter
	locateOut    []*models.Candidate
	locateErr    error

	rosters map[uint64][]models.Technician

	preset    *models.FilterPreset
	presetErr error
}

func (f *fakeStore) LocateProviders(ctx context.Context, anchor models.Coord, filter models.LocatorFilter) ([]*models.Candidate, error) {
	f.locateFilter = filter
	return f.locateOut, f.locateErr
}

func (f *fakeStore) TechniciansForProvider(ctx context.Context, providerID uint64) ([]models.Technician, error) {
	return f.rosters[providerID], nil
}

func (f *fakeStore) GetFilterPreset(ctx context.Context, id uint64) (*models.FilterPreset, error) {
	if f.presetErr != nil {
		return nil, f.presetErr
	}
	return f.preset, nil
}

func TestService_Locate_Defaults(t *testing.T) {
	st := &fakeStore{}
	s := New(st, 0, 0)

	_, err := s.Locate(context.Background(), models.Coord{}, models.LocatorFilter{})
	require.NoError(t, err)
	require.Equal(t, 10, st.locateFilter.Limit)
	require.NotNil(t, st.locateFilter.MaxDistanceKM)
	require.Equal(t, 30.0, *st.locateFilter.MaxDistanceKM)
}

func TestService_Locate_SearchClearsCutoff(t *testing.T) {
	st := &fakeStore{}
	s := New(st, 10, 30)

	_, err := s.Locate(context.Background(), models.Coord{}, models.LocatorFilter{Search: "outpost"})
	require.NoError(t, err)
	require.Nil(t, st.locateFilter.MaxDistanceKM)
}

func TestService_Locate_PresetOverrides(t *testing.T) {
	limit := 2
	cutoff := 20.0
	st := &fakeStore{preset: &models.FilterPreset{ID: 1, Name: "city-wide", Limit: &limit, MaxDistanceKM: &cutoff}}
	s := New(st, 10, 30)

	id := uint64(1)
	_, err := s.Locate(context.Background(), models.Coord{}, models.LocatorFilter{FilterID: &id})
	require.NoError(t, err)
	require.Equal(t, 2, st.locateFilter.Limit)
	require.Equal(t, 20.0, *st.locateFilter.MaxDistanceKM)
}

func TestService_Locate_UnknownPreset(t *testing.T) {
	st := &fakeStore{presetErr: pgdispatch.ErrNotFound}
	s := New(st, 10, 30)

	id := uint64(99)
	_, err := s.Locate(context.Background(), models.Coord{}, models.LocatorFilter{FilterID: &id})
	require.ErrorIs(t, err, ErrFilterNotFound)
}

func TestService_Locate_AttachesRosters(t *testing.T) {
	st := &fakeStore{
		locateOut: []*models.Candidate{
			{Provider: models.Provider{ID: 1}, DistanceKM: 2},
			{Provider: models.Provider{ID: 2}, DistanceKM: 5},
		},
		rosters: map[uint64][]models.Technician{
			1: {{ID: 10, Code: "MEC010"}},
		},
	}
	s := New(st, 10, 30)

	got, err := s.Locate(context.Background(), models.Coord{}, models.LocatorFilter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Len(t, got[0].Technicians, 1)
	require.Empty(t, got[1].Technicians)
}
