package osrmhttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BearBump/DispatchBox/internal/integrations/routing"
	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/stretchr/testify/require"
)

func TestClient_Distance(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":"Ok","routes":[{"distance":8231.4,"duration":1130.2}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "driving")
	info, err := c.Distance(context.Background(), models.Coord{Lat: 13.05, Lng: 80.25}, models.Coord{Lat: 13.01, Lng: 80.2})
	require.NoError(t, err)
	require.Equal(t, "/route/v1/driving/80.25,13.05;80.2,13.01", gotPath)
	require.Equal(t, int64(8231), info.DistanceMeters)
	require.Equal(t, int64(1130), info.DurationSeconds)
	require.Equal(t, "8.2 km", info.DistanceText)
	require.Equal(t, "19 mins", info.DurationText)
}

func TestClient_Distance_NoRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"NoRoute","routes":[]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "driving")
	_, err := c.Distance(context.Background(), models.Coord{}, models.Coord{})
	require.ErrorIs(t, err, routing.ErrNoRoute)
}

func TestClient_Distance_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "driving")
	_, err := c.Distance(context.Background(), models.Coord{}, models.Coord{})
	require.Error(t, err)
}
