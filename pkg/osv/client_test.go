package osv_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/vulnscope/vulnscope/pkg/db"
	"github.com/vulnscope/vulnscope/pkg/osv"
	"github.com/vulnscope/vulnscope/pkg/types"
)

var leftPad = types.Package{Name: "left-pad", Version: "1.3.0", Ecosystem: "npm"}

func TestClient_Query(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		response   string
		want       []types.Vulnerability
		wantErr    string
	}{
		{
			name:       "vulnerable",
			statusCode: http.StatusOK,
			response: `{"vulns": [{
				"id": "GHSA-1234",
				"summary": "ReDoS in left-pad",
				"severity": [{"type": "CVSS_V3", "score": "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:N/I:N/A:H"}]
			}]}`,
			want: []types.Vulnerability{
				{
					ID:       "GHSA-1234",
					Summary:  "ReDoS in left-pad",
					Severity: []types.SeverityScore{{Type: "CVSS_V3", Score: "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:N/I:N/A:H"}},
				},
			},
		},
		{
			name:       "empty object means not found",
			statusCode: http.StatusOK,
			response:   `{}`,
		},
		{
			name:       "server error",
			statusCode: http.StatusInternalServerError,
			response:   `internal`,
			wantErr:    "unexpected status 500",
		},
		{
			name:       "broken body",
			statusCode: http.StatusOK,
			response:   `{"vulns": [`,
			wantErr:    "response decode error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)

				var body map[string]any
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, map[string]any{
					"version": "1.3.0",
					"package": map[string]any{"name": "left-pad", "ecosystem": "npm"},
				}, body)

				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.response))
			}))
			defer ts.Close()

			c := osv.NewClient(osv.WithURL(ts.URL), osv.WithTimeout(5*time.Second))
			got, err := c.Query(context.Background(), leftPad)
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

func TestClient_QueryCancelled(t *testing.T) {
	done := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-done:
		}
	}))
	defer ts.Close()
	defer close(done)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := osv.NewClient(osv.WithURL(ts.URL)).Query(ctx, leftPad)
	var ce *types.ConnectorError
	require.True(t, xerrors.As(err, &ce))
}

func TestCachedLookup(t *testing.T) {
	vulns := []types.Vulnerability{{ID: "GHSA-1234"}}

	upstream := new(osv.MockLookup)
	upstream.ApplyQueryExpectation(osv.QueryExpectation{
		Args:    osv.QueryArgs{Package: leftPad},
		Returns: osv.QueryReturns{Vulnerabilities: vulns},
	})

	cache, err := db.Open(t.TempDir(), db.WithClock(clocktesting.NewFakeClock(time.Now())))
	require.NoError(t, err)
	defer cache.Close()

	lookup := osv.NewCachedLookup(upstream, cache)
	for range 3 {
		got, err := lookup.Query(context.Background(), leftPad)
		require.NoError(t, err)
		assert.Equal(t, vulns, got)
	}
	upstream.AssertNumberOfCalls(t, "Query", 1)
}

func TestCachedLookup_UpstreamError(t *testing.T) {
	upstream := new(osv.MockLookup)
	upstream.On("Query", mock.Anything, leftPad).Return(nil, &types.ConnectorError{Service: "osv", Msg: "down"})

	cache, err := db.Open(t.TempDir())
	require.NoError(t, err)
	defer cache.Close()

	lookup := osv.NewCachedLookup(upstream, cache)
	_, err = lookup.Query(context.Background(), leftPad)
	require.Error(t, err)

	_, hit, err := cache.GetLookup(leftPad)
	require.NoError(t, err)
	assert.False(t, hit)
}
