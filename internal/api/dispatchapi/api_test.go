package dispatchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/BearBump/DispatchBox/internal/services/dispatch"
	"github.com/BearBump/DispatchBox/internal/services/locator"
)

type fakeSearcher struct {
	results []models.CandidateResult
	err     error
	got     dispatch.Request
}

func (f *fakeSearcher) Search(ctx context.Context, req dispatch.Request) ([]models.CandidateResult, error) {
	f.got = req
	return f.results, f.err
}

type fakeCases struct {
	snap models.CaseSnapshot
	err  error
}

func (f *fakeCases) Case(ctx context.Context, caseID uint64) (models.CaseSnapshot, error) {
	return f.snap, f.err
}

type fakeEvaluator struct {
	res *models.SLAResult
	err error
}

func (f *fakeEvaluator) EvaluateCase(ctx context.Context, snap models.CaseSnapshot) (*models.SLAResult, error) {
	return f.res, f.err
}
func (f *fakeEvaluator) Evaluate(snap models.CaseSnapshot, checkpoints []models.SLACheckpoint) *models.SLAResult {
	return f.res
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleSearch_OK(t *testing.T) {
	total := "24.55 km"
	searcher := &fakeSearcher{results: []models.CandidateResult{{
		Provider:          models.Provider{ID: 1, Code: "ASP001", Name: "North Garage", Lat: 13.0, Lng: 80.2},
		DistanceKM:        8,
		TotalDistanceText: &total,
		Technicians: []models.TechnicianStatus{{
			Technician:     models.Technician{ID: 10, Code: "MEC010", Employment: models.EmploymentCompany},
			ResolvedStatus: models.WorkStatusOffline,
		}},
	}}}
	api := New(searcher, &fakeCases{}, &fakeEvaluator{})

	rec := postJSON(t, api.Router(), "/v1/dispatch/search", map[string]any{
		"caseId": 42, "subServiceId": 5,
		"breakdown": map[string]float64{"lat": 13.05, "lng": 80.25},
		"clientId":  77,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool            `json:"success"`
		Data    []candidateJSON `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Len(t, resp.Data, 1)
	require.Equal(t, "ASP001", resp.Data[0].Provider.Code)
	require.Equal(t, "24.55 km", *resp.Data[0].TotalDistanceText)
	require.Equal(t, models.WorkStatusOffline, resp.Data[0].Technicians[0].Status)
	require.Nil(t, resp.Data[0].Technicians[0].Available)

	require.Equal(t, uint64(42), searcher.got.CaseID)
	require.NotNil(t, searcher.got.Filter.ClientID)
	require.Equal(t, uint64(77), *searcher.got.Filter.ClientID)
}

func TestHandleSearch_Validation(t *testing.T) {
	api := New(&fakeSearcher{}, &fakeCases{}, &fakeEvaluator{})

	rec := postJSON(t, api.Router(), "/v1/dispatch/search", map[string]any{"caseId": 42, "subServiceId": 5})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, api.Router(), "/v1/dispatch/search", map[string]any{
		"caseId": 42, "breakdown": map[string]float64{"lat": 13.05, "lng": 80.25},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSearch_UnknownFilterIs404(t *testing.T) {
	searcher := &fakeSearcher{err: errors.Wrap(locator.ErrFilterNotFound, "locate")}
	api := New(searcher, &fakeCases{}, &fakeEvaluator{})

	rec := postJSON(t, api.Router(), "/v1/dispatch/search", map[string]any{
		"caseId": 42, "subServiceId": 5,
		"breakdown": map[string]float64{"lat": 13.05, "lng": 80.25},
		"filterId":  99,
	})
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Success)
	require.NotEmpty(t, resp.Error)
}

func TestHandleSearch_EmptyResultIs200(t *testing.T) {
	api := New(&fakeSearcher{}, &fakeCases{}, &fakeEvaluator{})

	rec := postJSON(t, api.Router(), "/v1/dispatch/search", map[string]any{
		"caseId": 42, "subServiceId": 5,
		"breakdown": map[string]float64{"lat": 13.05, "lng": 80.25},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool            `json:"success"`
		Data    []candidateJSON `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Empty(t, resp.Data)
}

func TestHandleCaseSLA(t *testing.T) {
	ev := &fakeEvaluator{res: &models.SLAResult{
		Checkpoint: models.SLACheckpoint{ConfigID: 2, Status: models.SLAStatusAchieved},
		Label:      "Reached Pickup",
	}}
	api := New(&fakeSearcher{}, &fakeCases{snap: models.CaseSnapshot{ID: 42}}, ev)

	req := httptest.NewRequest(http.MethodGet, "/v1/cases/42/sla", nil)
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool              `json:"success"`
		Data    *models.SLAResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data)
	require.Equal(t, "Reached Pickup", resp.Data.Label)
}

func TestHandleCaseSLA_NoCheckpointIsNullData(t *testing.T) {
	api := New(&fakeSearcher{}, &fakeCases{snap: models.CaseSnapshot{ID: 42}}, &fakeEvaluator{})

	req := httptest.NewRequest(http.MethodGet, "/v1/cases/42/sla", nil)
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool              `json:"success"`
		Data    *models.SLAResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Nil(t, resp.Data)
}

func TestHandleCaseSLA_BadID(t *testing.T) {
	api := New(&fakeSearcher{}, &fakeCases{}, &fakeEvaluator{})

	req := httptest.NewRequest(http.MethodGet, "/v1/cases/abc/sla", nil)
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCaseSLA_CollaboratorDown(t *testing.T) {
	api := New(&fakeSearcher{}, &fakeCases{err: errors.New("casetrack down")}, &fakeEvaluator{})

	req := httptest.NewRequest(http.MethodGet, "/v1/cases/42/sla", nil)
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleEvaluate(t *testing.T) {
	ev := &fakeEvaluator{res: &models.SLAResult{
		Checkpoint: models.SLACheckpoint{ConfigID: 3, Status: models.SLAStatusInProgress},
		Label:      "Assignment & Acceptance",
	}}
	api := New(&fakeSearcher{}, &fakeCases{}, ev)

	rec := postJSON(t, api.Router(), "/v1/sla/evaluate", evaluateRequest{
		Case: models.CaseSnapshot{ID: 42, Type: models.CaseTypeRoadsideAssist, Status: models.CaseStatusOpen},
		Checkpoints: []models.SLACheckpoint{
			{ConfigID: 3, Status: models.SLAStatusInProgress},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool              `json:"success"`
		Data    *models.SLAResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Assignment & Acceptance", resp.Data.Label)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	api := New(&fakeSearcher{}, &fakeCases{}, &fakeEvaluator{})
	r := api.Router()

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}
