package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/BearBump/DispatchBox/internal/metrics"
	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/pkg/errors"
)

// Client resolves a provider's upstream management chain from the identity
// sibling service.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8091"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type chainResp struct {
	RegionalManager *string `json:"regionalManager"`
	ZoneManager     *string `json:"zoneManager"`
	NationalManager *string `json:"nationalManager"`
}

func (c *Client) ManagerChain(ctx context.Context, providerID uint64) (models.ManagerChain, error) {
	start := time.Now()
	defer func() {
		metrics.CollaboratorLatency.WithLabelValues("identity", "manager_chain").Observe(time.Since(start).Seconds())
	}()

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return models.ManagerChain{}, errors.Wrap(err, "parse base url")
	}
	u.Path = fmt.Sprintf("/v1/providers/%d/managers", providerID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return models.ManagerChain{}, errors.Wrap(err, "new request")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return models.ManagerChain{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return models.ManagerChain{}, fmt.Errorf("identity manager_chain http %d", resp.StatusCode)
	}

	var r chainResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return models.ManagerChain{}, errors.Wrap(err, "decode")
	}
	return models.ManagerChain{
		RegionalManager: r.RegionalManager,
		ZoneManager:     r.ZoneManager,
		NationalManager: r.NationalManager,
	}, nil
}
