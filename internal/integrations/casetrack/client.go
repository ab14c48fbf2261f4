package casetrack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/BearBump/DispatchBox/internal/metrics"
	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/pkg/errors"
)

// Client talks to the case-tracking sibling service. Every method maps to
// one read-only endpoint; callers treat failures as missing enrichment.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8090"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type activityResp struct {
	ActivityID *uint64 `json:"activityId"`
}

// ActivityForCase returns the provider's existing activity id for the case,
// or nil when none exists.
func (c *Client) ActivityForCase(ctx context.Context, caseID, providerID uint64) (*uint64, error) {
	var out activityResp
	err := c.getJSON(ctx, "activity_for_case", fmt.Sprintf("/v1/cases/%d/providers/%d/activity", caseID, providerID), nil, &out)
	if err != nil {
		return nil, err
	}
	return out.ActivityID, nil
}

type rejectedResp struct {
	Rejected bool `json:"rejected"`
}

// HasRejected reports whether the provider previously rejected this case's
// sub-service.
func (c *Client) HasRejected(ctx context.Context, providerID, caseID, subServiceID uint64) (bool, error) {
	q := url.Values{}
	q.Set("caseId", strconv.FormatUint(caseID, 10))
	q.Set("subServiceId", strconv.FormatUint(subServiceID, 10))
	var out rejectedResp
	err := c.getJSON(ctx, "has_rejected", fmt.Sprintf("/v1/providers/%d/rejections", providerID), q, &out)
	if err != nil {
		return false, err
	}
	return out.Rejected, nil
}

type freeResp struct {
	Free bool `json:"free"`
}

// TechnicianFreeOn reports whether the technician has no conflicting
// assignment on the given service date (YYYY-MM-DD).
func (c *Client) TechnicianFreeOn(ctx context.Context, technicianID uint64, date string) (bool, error) {
	q := url.Values{}
	q.Set("date", date)
	var out freeResp
	err := c.getJSON(ctx, "technician_free", fmt.Sprintf("/v1/technicians/%d/free", technicianID), q, &out)
	if err != nil {
		return false, err
	}
	return out.Free, nil
}

type countResp struct {
	Count int `json:"count"`
}

// CaseCountOn returns how many cases are assigned to the provider on the date.
func (c *Client) CaseCountOn(ctx context.Context, providerID uint64, date string) (int, error) {
	q := url.Values{}
	q.Set("date", date)
	var out countResp
	err := c.getJSON(ctx, "case_count", fmt.Sprintf("/v1/providers/%d/cases/count", providerID), q, &out)
	if err != nil {
		return 0, err
	}
	return out.Count, nil
}

type inProgressResp struct {
	Counts map[string]int `json:"counts"`
}

// InProgressCounts returns the in-progress activity count per technician id.
func (c *Client) InProgressCounts(ctx context.Context, technicianIDs []uint64) (map[uint64]int, error) {
	q := url.Values{}
	for _, id := range technicianIDs {
		q.Add("technicianId", strconv.FormatUint(id, 10))
	}
	var out inProgressResp
	err := c.getJSON(ctx, "in_progress_counts", "/v1/technicians/in-progress", q, &out)
	if err != nil {
		return nil, err
	}
	counts := make(map[uint64]int, len(out.Counts))
	for k, v := range out.Counts {
		id, perr := strconv.ParseUint(k, 10, 64)
		if perr != nil {
			continue
		}
		counts[id] = v
	}
	return counts, nil
}

type checkpointsResp struct {
	Checkpoints []models.SLACheckpoint `json:"checkpoints"`
}

// SLACheckpoints lists the checkpoint records configured for the case.
func (c *Client) SLACheckpoints(ctx context.Context, caseID uint64) ([]models.SLACheckpoint, error) {
	var out checkpointsResp
	err := c.getJSON(ctx, "sla_checkpoints", fmt.Sprintf("/v1/cases/%d/sla-checkpoints", caseID), nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Checkpoints, nil
}

// Case fetches the read-only case snapshot used by the SLA evaluator.
func (c *Client) Case(ctx context.Context, caseID uint64) (models.CaseSnapshot, error) {
	var out models.CaseSnapshot
	err := c.getJSON(ctx, "case", fmt.Sprintf("/v1/cases/%d", caseID), nil, &out)
	if err != nil {
		return models.CaseSnapshot{}, err
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, q url.Values, out any) error {
	start := time.Now()
	defer func() {
		metrics.CollaboratorLatency.WithLabelValues("casetrack", op).Observe(time.Since(start).Seconds())
	}()

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return errors.Wrap(err, "parse base url")
	}
	u.Path = path
	if q != nil {
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("casetrack %s http %d", op, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode")
	}
	return nil
}
