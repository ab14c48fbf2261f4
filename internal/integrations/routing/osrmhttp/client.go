package osrmhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/BearBump/DispatchBox/internal/integrations/routing"
	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/pkg/errors"
)

// Client talks to an OSRM-compatible routing service, one pair per request.
type Client struct {
	baseURL string
	profile string
	httpc   *http.Client
}

func New(baseURL, profile string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:5000"
	}
	if profile == "" {
		profile = "driving"
	}
	return &Client{
		baseURL: baseURL,
		profile: profile,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type osrmResp struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"` // meters
		Duration float64 `json:"duration"` // seconds
	} `json:"routes"`
}

func (c *Client) Distance(ctx context.Context, origin, destination models.Coord) (models.RouteInfo, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return models.RouteInfo{}, errors.Wrap(err, "parse base url")
	}
	// OSRM wants lng,lat order.
	u.Path = fmt.Sprintf("/route/v1/%s/%s,%s;%s,%s",
		c.profile,
		coordPart(origin.Lng), coordPart(origin.Lat),
		coordPart(destination.Lng), coordPart(destination.Lat),
	)
	q := u.Query()
	q.Set("overview", "false")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return models.RouteInfo{}, errors.Wrap(err, "new request")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return models.RouteInfo{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return models.RouteInfo{}, fmt.Errorf("osrm http %d", resp.StatusCode)
	}

	var r osrmResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return models.RouteInfo{}, errors.Wrap(err, "decode")
	}
	if r.Code != "Ok" || len(r.Routes) == 0 {
		return models.RouteInfo{}, routing.ErrNoRoute
	}

	meters := int64(r.Routes[0].Distance)
	seconds := int64(r.Routes[0].Duration)
	return models.RouteInfo{
		DistanceMeters:  meters,
		DurationSeconds: seconds,
		DistanceText:    distanceText(meters),
		DurationText:    durationText(seconds),
	}, nil
}

func coordPart(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func distanceText(meters int64) string {
	return fmt.Sprintf("%.1f km", float64(meters)/1000.0)
}

func durationText(seconds int64) string {
	mins := (seconds + 30) / 60
	if mins < 1 {
		mins = 1
	}
	return fmt.Sprintf("%d mins", mins)
}
