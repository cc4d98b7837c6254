package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/orderlink/internal/infrastructure/config"
	"github.com/nerrad567/orderlink/internal/infrastructure/logging"
	"github.com/nerrad567/orderlink/internal/messaging"
)

// fakeSource is a Source with fixed answers.
type fakeSource struct {
	health  error
	stats   messaging.Stats
	lastErr error
}

func (f *fakeSource) HealthCheck(context.Context) error { return f.health }
func (f *fakeSource) Stats() messaging.Stats            { return f.stats }
func (f *fakeSource) LastError() error                  { return f.lastErr }

func testServer(t *testing.T, src Source) *Server {
	t.Helper()
	log := logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "error", Format: "text"}, "test")
	srv, err := New(Deps{
		Config: config.StatusConfig{
			Address:      "127.0.0.1:0",
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		},
		Logger:  log,
		Source:  src,
		Version: "test",
	})
	require.NoError(t, err)
	return srv
}

func TestNew_RequiresAddressAndSource(t *testing.T) {
	_, err := New(Deps{Source: &fakeSource{}})
	assert.Error(t, err)

	_, err = New(Deps{Config: config.StatusConfig{Address: "127.0.0.1:0"}})
	assert.Error(t, err)
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name       string
		health     error
		wantStatus int
		wantCode   string
	}{
		{"connected", nil, http.StatusOK, ""},
		{"reconnecting", fmt.Errorf("%w: reconnecting", messaging.ErrNotConnected), http.StatusServiceUnavailable, ErrCodeUnavailable},
		{"closed", messaging.ErrClosed, http.StatusServiceUnavailable, ErrCodeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(t, &fakeSource{health: tt.health})
			rec := httptest.NewRecorder()
			srv.buildRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
			if tt.wantCode != "" {
				var body Error
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tt.wantCode, body.Code)
				assert.Contains(t, body.Message, tt.health.Error())
			}
		})
	}
}

func TestHandleStats(t *testing.T) {
	srv := testServer(t, &fakeSource{
		stats: messaging.Stats{
			State:         messaging.StateReconnecting,
			Destinations:  2,
			Subscriptions: 3,
			PendingSends:  1,
			FramesIn:      10,
			Reconnects:    4,
		},
		lastErr: errors.New("heartbeat timeout"),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))

	var resp StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "reconnecting", resp.State)
	assert.Equal(t, "heartbeat timeout", resp.LastError)
	assert.Equal(t, 2, resp.Destinations)
	assert.Equal(t, 3, resp.Subscriptions)
	assert.Equal(t, 1, resp.PendingSends)
	assert.Equal(t, uint64(10), resp.FramesIn)
	assert.Equal(t, uint64(4), resp.Reconnects)
	assert.Equal(t, "test", resp.Version)
}

func TestUnknownRoute(t *testing.T) {
	srv := testServer(t, &fakeSource{})
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	srv := testServer(t, &fakeSource{})
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_StartServeClose(t *testing.T) {
	srv := testServer(t, &fakeSource{})
	require.NoError(t, srv.Start(context.Background()))
	assert.Error(t, srv.Start(context.Background()), "second start")

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Close())
	_, err = http.Get("http://" + srv.Addr() + "/api/v1/health")
	assert.Error(t, err)
}
