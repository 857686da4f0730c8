package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"CoinPull/internal/service/ratelimit"
	xhttp "CoinPull/pkg/http"
)

// ErrorDecoder turns a non-2xx response into the exchange's own error.
type ErrorDecoder func(status int, body []byte) error

// RESTConfig describes one exchange's public REST endpoint and request budget.
type RESTConfig struct {
	Name         string
	BaseURL      string
	RateCapacity float64 // burst
	RatePerSec   float64 // sustained requests per second; 0 disables limiting
}

// RESTClient issues rate-limited GET requests against one exchange.
type RESTClient struct {
	cfg     RESTConfig
	http    *xhttp.Client
	limiter *ratelimit.Limiter
	decode  ErrorDecoder
}

func NewRESTClient(cfg RESTConfig, client *xhttp.Client, limiter *ratelimit.Limiter, decode ErrorDecoder) *RESTClient {
	if client == nil {
		client = xhttp.NewClient()
	}
	if limiter == nil {
		limiter = ratelimit.New()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &RESTClient{cfg: cfg, http: client, limiter: limiter, decode: decode}
}

// Get fetches path and unmarshals the JSON body into dest.
func (c *RESTClient) Get(ctx context.Context, path string, query map[string][]string, dest interface{}) error {
	return c.do(ctx, xhttp.MethodGet, path, query, dest)
}

// Post sends an empty POST, used for token endpoints.
func (c *RESTClient) Post(ctx context.Context, path string, dest interface{}) error {
	return c.do(ctx, xhttp.MethodPost, path, nil, dest)
}

func (c *RESTClient) do(ctx context.Context, method, path string, query map[string][]string, dest interface{}) error {
	if err := c.limiter.Wait(ctx, c.cfg.Name, c.cfg.RateCapacity, c.cfg.RatePerSec); err != nil {
		return err
	}
	raw, err := c.http.Do(ctx, &xhttp.Request{
		Method: method,
		URL:    c.cfg.BaseURL + path,
		Query:  query,
	})
	if err != nil {
		var st *xhttp.StatusError
		if errors.As(err, &st) && c.decode != nil {
			return c.decode(st.Status, st.Body)
		}
		return fmt.Errorf("%s %s: %w", c.cfg.Name, path, err)
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("%s %s: decode: %w", c.cfg.Name, path, err)
	}
	return nil
}
