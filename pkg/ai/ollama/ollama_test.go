package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/vulnscope/vulnscope/pkg/ai/ollama"
	"github.com/vulnscope/vulnscope/pkg/types"
)

func TestClient_Prompt(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		response   string
		delay      time.Duration
		want       string
		wantErr    string
	}{
		{
			name:       "happy path",
			statusCode: http.StatusOK,
			response:   `{"model": "codellama", "response": "{\"vulnerabilities\": []}", "done": true}`,
			want:       `{"vulnerabilities": []}`,
		},
		{
			name:       "model not found",
			statusCode: http.StatusNotFound,
			response:   `{"error": "model 'codellama' not found"}`,
			wantErr:    "model 'codellama' not found",
		},
		{
			name:       "incomplete",
			statusCode: http.StatusOK,
			response:   `{"model": "codellama", "response": "{\"vuln", "done": false}`,
			wantErr:    "incomplete response",
		},
		{
			name:       "not JSON",
			statusCode: http.StatusOK,
			response:   `<html>`,
			wantErr:    "response decode error",
		},
		{
			name:       "timeout",
			statusCode: http.StatusOK,
			delay:      time.Second,
			response:   `{"done": true}`,
			wantErr:    "request failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/generate", r.URL.Path)

				var req map[string]any
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, map[string]any{
					"model":  "codellama",
					"prompt": "review this",
					"stream": false,
				}, req)

				if tt.delay > 0 {
					select {
					case <-time.After(tt.delay):
					case <-r.Context().Done():
						return
					}
				}
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.response))
			}))
			defer ts.Close()

			c := ollama.New(
				ollama.WithURL(ts.URL+"/"),
				ollama.WithModel("codellama"),
				ollama.WithTimeout(100*time.Millisecond),
			)
			got, err := c.Prompt(context.Background(), "review this")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)

				var ce *types.ConnectorError
				assert.True(t, xerrors.As(err, &ce))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_Models(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models": [
			{"name": "llama2:latest", "modified_at": "2024-05-01T10:00:00Z", "size": 3826793677},
			{"name": "codellama:7b", "modified_at": "2024-05-02T10:00:00Z", "size": 3825910662}
		]}`))
	}))
	defer ts.Close()

	c := ollama.New(ollama.WithURL(ts.URL))
	models, err := c.Models(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "llama2:latest", models[0].Name)
	assert.Equal(t, int64(3825910662), models[1].Size)

	assert.True(t, c.IsAvailable(context.Background()))
}

func TestClient_IsAvailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	assert.False(t, ollama.New(ollama.WithURL(ts.URL)).IsAvailable(context.Background()))

	ts.Close()
	assert.False(t, ollama.New(ollama.WithURL(ts.URL)).IsAvailable(context.Background()))
}
