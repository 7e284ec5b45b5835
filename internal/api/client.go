package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnavailable reports that no daemon answered on the API address.
var ErrUnavailable = errors.New("daemon API unavailable")

// Client queries a running daemon's status API.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient builds a client for bind ("host:port" or a URL).
func NewClient(bind string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, ErrUnavailable
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""
	return &Client{base: base, http: &http.Client{Timeout: 10 * time.Second}}, nil
}

// Health fetches GET /health.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var payload HealthResponse
	err := c.get(ctx, "/health", &payload)
	return payload, err
}

// Jobs fetches GET /api/jobs.
func (c *Client) Jobs(ctx context.Context) (JobsResponse, error) {
	var payload JobsResponse
	err := c.get(ctx, "/api/jobs", &payload)
	return payload, err
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	if c == nil {
		return ErrUnavailable
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("api %s returned status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// IsUnavailable reports whether err means the daemon is not reachable.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrUnavailable) || errors.As(err, &opErr)
}
