package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"prover-api/internal/claim"
	"prover-api/internal/config"
	"prover-api/internal/jobs"
	"prover-api/internal/prover"
	"prover-api/internal/worker"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	cfg     *config.Config
	service *Service
	server  *Server
}

func newTestEnv(t *testing.T, mutate func(*config.Config), claims ClaimChecker) *testEnv {
	t.Helper()

	cfg := testConfig(mutate)
	svc := newTestService(cfg, claims, nil)

	pool := worker.New(cfg, svc.Queue, svc.Registry, svc.Cache, prover.NewMock(common.Hash{}, 0), nil, svc.Metrics)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	t.Cleanup(func() {
		cancel()
		pool.Wait()
	})

	return &testEnv{cfg: cfg, service: svc, server: NewServer(cfg, svc, pool, svc.Metrics)}
}

func (e *testEnv) do(method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) prove(t *testing.T, req claim.ProveRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	return e.do(http.MethodPost, "/prove", body)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestProveEndToEnd(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	req := proveRequest(t, pubkey(1))

	rec := env.prove(t, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	accepted := decode[ProveResponse](t, rec)
	assert.Equal(t, "pending", accepted.Status)
	require.NotEmpty(t, accepted.JobID)

	var status StatusResponse
	require.Eventually(t, func() bool {
		rec := env.do(http.MethodGet, "/status/"+accepted.JobID, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		status = decode[StatusResponse](t, rec)
		return status.Status == "completed"
	}, 2*time.Second, 10*time.Millisecond)

	assert.True(t, strings.HasPrefix(status.ZKProof, "0x"))
	assert.Len(t, status.PublicValues, 2+4*32*2)
	assert.Empty(t, status.Code)

	// The same claim is now answered from the cache.
	rec = env.prove(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cached := decode[ProveResponse](t, rec)
	assert.Equal(t, "completed", cached.Status)
	assert.NotEqual(t, accepted.JobID, cached.JobID)
	assert.Equal(t, status.ZKProof, cached.ZKProof)
	assert.Equal(t, status.PublicValues, cached.PublicValues)
}

func TestProveRejectsMalformedJSON(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(http.MethodPost, "/prove", []byte(`{"ssAddress":`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "failed", resp.Status)
	assert.Equal(t, "invalid_input", resp.Code)
}

func TestProveRejectsInvalidFields(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	req := proveRequest(t, pubkey(1))
	req.EVMAddress = "0x1234"

	rec := env.prove(t, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", decode[ErrorResponse](t, rec).Code)
}

func TestProveBodyLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Server.BodyLimitBytes = 64 }, nil)

	rec := env.prove(t, proveRequest(t, pubkey(1)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "payload_too_large", decode[ErrorResponse](t, rec).Code)
}

func TestProveAlreadyClaimed(t *testing.T) {
	env := newTestEnv(t, nil, &fakeClaims{claimed: true})

	rec := env.prove(t, proveRequest(t, pubkey(1)))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_claimed", decode[ErrorResponse](t, rec).Code)
}

func TestProveIPRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.RateLimit.MaxRequests = 5
		c.RateLimit.IPMaxRequests = 1
	}, nil)

	rec := env.prove(t, proveRequest(t, pubkey(1)))
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = env.prove(t, proveRequest(t, pubkey(2)))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "rate_limited", resp.Code)
	require.NotNil(t, resp.RetryAfter)
	assert.Greater(t, *resp.RetryAfter, 0)
}

func TestStatusUnknownJob(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(http.MethodGet, "/status/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, rec).Code)
}

func TestStatusReportsFailure(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.service.Registry.Create("job-1", jobs.Pending())
	require.NoError(t, env.service.Registry.Transition("job-1", jobs.Failed(jobs.CodeTimeout, "exceeded 300 seconds")))

	rec := env.do(http.MethodGet, "/status/job-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[StatusResponse](t, rec)
	assert.Equal(t, "failed", status.Status)
	assert.Equal(t, "timeout", status.Code)
	assert.Equal(t, "timeout: exceeded 300 seconds", status.Error)
	assert.Empty(t, status.ZKProof)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Queue.Capacity = 7
		c.Queue.Workers = 3
	}, nil)

	rec := env.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	health := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 7, health.Queue.Capacity)
	assert.Equal(t, 3, health.Workers.Size)
	assert.Contains(t, health.Jobs, "pending")
	assert.Equal(t, "mock", health.Features.ProverMode)
	assert.False(t, health.Features.ClaimCheck)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Queue.Capacity = 7 }, nil)

	rec := env.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "prover_api_queue_capacity 7")
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, rec).Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	h := env.server.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", decode[ErrorResponse](t, rec).Code)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		proxyCount uint
		want       string
	}{
		{"no proxy ignores header", "203.0.113.9", 0, "192.0.2.1"},
		{"one proxy", "203.0.113.9", 1, "203.0.113.9"},
		{"two proxies", "198.51.100.1, 203.0.113.9, 10.0.0.2", 2, "203.0.113.9"},
		{"too few hops", "203.0.113.9", 2, "192.0.2.1"},
		{"missing header", "", 1, "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, GetClientIP(r, tt.proxyCount))
		})
	}
}
