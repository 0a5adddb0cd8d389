// Package osv queries the OSV vulnerability database.
package osv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/vulnscope/vulnscope/pkg/log"
	"github.com/vulnscope/vulnscope/pkg/types"
)

const (
	DefaultURL     = "https://api.osv.dev/v1/query"
	DefaultTimeout = 30 * time.Second

	serviceName = "osv"
)

// Lookup returns the vulnerabilities recorded for an exact package version.
// An empty result means the database knows of none.
type Lookup interface {
	Query(ctx context.Context, pkg types.Package) ([]types.Vulnerability, error)
}

type queryRequest struct {
	Version string       `json:"version"`
	Package queryPackage `json:"package"`
}

type queryPackage struct {
	Name      string `json:"name"`
	Ecosystem string `json:"ecosystem"`
}

type queryResponse struct {
	Vulns []types.Vulnerability `json:"vulns"`
}

type Client struct {
	url        string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

type Option func(*Client)

func WithURL(url string) Option {
	return func(c *Client) {
		c.url = url
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRateLimit throttles requests to rps per second. Zero disables it.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		url:        DefaultURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     log.WithPrefix(serviceName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Query(ctx context.Context, pkg types.Package) ([]types.Vulnerability, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &types.ConnectorError{Service: serviceName, Msg: "rate limiter", Err: err}
		}
	}

	body, err := json.Marshal(queryRequest{
		Version: pkg.Version,
		Package: queryPackage{Name: pkg.Name, Ecosystem: pkg.Ecosystem},
	})
	if err != nil {
		return nil, &types.ConnectorError{Service: serviceName, Msg: "request encode error", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, &types.ConnectorError{Service: serviceName, Msg: "request build error", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("Querying", log.Package(pkg.Name, pkg.Version))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &types.ConnectorError{Service: serviceName, Msg: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &types.ConnectorError{
			Service: serviceName,
			Msg:     fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(msg)),
		}
	}

	var qr queryResponse
	if err = json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return nil, &types.ConnectorError{Service: serviceName, Msg: "response decode error", Err: err}
	}
	return qr.Vulns, nil
}
