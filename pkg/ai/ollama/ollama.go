// Package ollama talks to a self-hosted Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vulnscope/vulnscope/pkg/ai"
	"github.com/vulnscope/vulnscope/pkg/log"
	"github.com/vulnscope/vulnscope/pkg/types"
)

const (
	DefaultURL   = "http://localhost:11434"
	DefaultModel = "llama2"

	serviceName = "ollama"
)

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

type Model struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}

type tagsResponse struct {
	Models []Model `json:"models"`
}

type Client struct {
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
	logger     *log.Logger
}

type Option func(*Client)

func WithURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithTimeout bounds each prompt. Zero means no limit beyond the context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultURL,
		model:      DefaultModel,
		timeout:    ai.DefaultTimeout,
		httpClient: &http.Client{},
		logger:     log.WithPrefix(serviceName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ ai.Connector = (*Client)(nil)

// Prompt sends one non-streaming generate request and returns the answer.
func (c *Client) Prompt(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", c.connErr(err, "request encode error")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", c.connErr(err, "request build error")
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", c.connErr(err, "request failed")
	}
	defer resp.Body.Close()

	var gr generateResponse
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if json.Unmarshal(msg, &gr) == nil && gr.Error != "" {
			msg = []byte(gr.Error)
		}
		return "", c.connErr(nil, fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(msg)))
	}
	if err = json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", c.connErr(err, "response decode error")
	}
	if !gr.Done {
		return "", c.connErr(nil, "incomplete response")
	}

	c.logger.Debug("Prompt answered", log.String("model", c.model), log.Duration("elapsed", time.Since(start)))
	return gr.Response, nil
}

// IsAvailable reports whether the server answers its model listing.
func (c *Client) IsAvailable(ctx context.Context) bool {
	_, err := c.Models(ctx)
	if err != nil {
		c.logger.Debug("Server unavailable", log.String("url", c.baseURL), log.Err(err))
		return false
	}
	return true
}

// Models lists the models installed on the server.
func (c *Client) Models(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, c.connErr(err, "request build error")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.connErr(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.connErr(nil, fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}
	var tr tagsResponse
	if err = json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, c.connErr(err, "response decode error")
	}
	return tr.Models, nil
}

func (c *Client) connErr(err error, msg string) error {
	return &types.ConnectorError{Service: serviceName, Msg: msg, Err: err}
}
