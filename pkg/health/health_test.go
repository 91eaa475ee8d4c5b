package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passing(context.Context) error { return nil }

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func serve(t *testing.T, handler http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	return w
}

func runN(h *Health, probe Probe, n int) {
	for range n {
		for _, c := range h.checks[probe] {
			c.run(context.Background())
		}
	}
}

func TestLiveEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		check    CheckFunc
		runs     int
		wantCode int
		wantBody string
	}{
		{name: "Passing", check: passing, runs: 1, wantCode: http.StatusOK, wantBody: `{"status":"ok"}`},
		{name: "NotRunYet", check: failing("down"), runs: 0, wantCode: http.StatusOK, wantBody: `{"status":"ok"}`},
		{name: "BelowThreshold", check: failing("down"), runs: FailureThreshold - 1, wantCode: http.StatusOK, wantBody: `{"status":"ok"}`},
		{
			name:     "AtThreshold",
			check:    failing("connection refused"),
			runs:     FailureThreshold,
			wantCode: http.StatusServiceUnavailable,
			wantBody: `{"status":"unhealthy","checks":{"store":"connection refused"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			h.Register(Liveness, "store", time.Second, tt.check)
			runN(h, Liveness, tt.runs)

			w := serve(t, h.LiveEndpoint)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.JSONEq(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestCheck_Recovers(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)

	h := New()
	h.Register(Liveness, "flaky", time.Second, func(context.Context) error {
		if fail.Load() {
			return errors.New("flaky")
		}
		return nil
	})

	runN(h, Liveness, FailureThreshold)
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, h.LiveEndpoint).Code)

	fail.Store(false)
	runN(h, Liveness, SuccessThreshold)
	assert.Equal(t, http.StatusOK, serve(t, h.LiveEndpoint).Code)
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.Register(Readiness, "kv", time.Second, passing)
	h.Register(Liveness, "goroutines", time.Second, failing("too many"))
	runN(h, Liveness, FailureThreshold)

	w := serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"_readiness":"service is not ready"}}`, w.Body.String())
	assert.False(t, h.IsReady())

	h.SetReady(true)
	w = serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, w.Code, "liveness failures do not affect readiness")
	assert.True(t, h.IsReady())

	h.Register(Readiness, "queue", time.Second, failing("backlog"))
	runN(h, Readiness, FailureThreshold)
	assert.False(t, h.IsReady())
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"queue":"backlog"}}`, serve(t, h.ReadyEndpoint).Body.String())
}

func TestStartStop(t *testing.T) {
	var calls atomic.Int32
	h := New()
	h.Register(Readiness, "count", time.Second, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	h.Start(context.Background(), 10*time.Millisecond)
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	h.Stop()
	stopped := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load())

	h.Stop()
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestCheckers(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, GoroutineCountCheck(1_000_000)(ctx))
	assert.Error(t, GoroutineCountCheck(0)(ctx))

	assert.NoError(t, PingCheck(pinger{})(ctx))
	err := PingCheck(pinger{err: errors.New("refused")})(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping: refused")

	pending := 5
	assert.NoError(t, BacklogCheck(func() int { return pending }, 10)(ctx))
	pending = 11
	assert.EqualError(t, BacklogCheck(func() int { return pending }, 10)(ctx), "11 writes pending, limit 10")
}
