package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/orderlink/internal/infrastructure/config"
	"github.com/nerrad567/orderlink/internal/infrastructure/influxdb"
	"github.com/nerrad567/orderlink/internal/messaging"
)

var _ messaging.Metrics = (*influxdb.Client)(nil)

// fakeInflux answers /ping and records line protocol posted to /api/v2/write.
type fakeInflux struct {
	srv *httptest.Server

	mu        sync.Mutex
	lines     []string
	failWrite bool
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{}
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/api/v2/write", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failWrite {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":"invalid","message":"bad point"}`))
			return
		}
		for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
			if line != "" {
				f.lines = append(f.lines, line)
			}
		}
		w.WriteHeader(http.StatusNoContent)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

// waitLines polls until n lines have been written. Flush returns once the
// batch is handed to the writer, not when the request completes.
func (f *fakeInflux) waitLines(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		lines := f.written()
		if len(lines) >= n || time.Now().After(deadline) {
			return lines
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (f *fakeInflux) config() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           f.srv.URL,
		Token:         "test-token",
		Org:           "orderlink",
		Bucket:        "telemetry",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func connect(t *testing.T, cfg config.InfluxDBConfig) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestConnect(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f.config())

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
}

func TestConnect_Disabled(t *testing.T) {
	f := newFakeInflux(t)
	cfg := f.config()
	cfg.Enabled = false

	_, err := influxdb.Connect(context.Background(), cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	f := newFakeInflux(t)
	cfg := f.config()
	f.srv.Close()

	_, err := influxdb.Connect(context.Background(), cfg)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	f := newFakeInflux(t)
	cfg := f.config()
	cfg.BatchSize = -5
	cfg.FlushInterval = 0

	client := connect(t, cfg)
	if !client.IsConnected() {
		t.Error("IsConnected() = false with default batch settings")
	}
}

func TestHealthCheck(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f.config())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	if err := client.HealthCheck(cancelled); err == nil {
		t.Error("HealthCheck() should fail for a cancelled context")
	}
}

func TestRecordTelemetry(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f.config())

	client.RecordState("connected")
	client.RecordReconnectAttempt(3)
	client.RecordMessage(messaging.DirectionIn, "/topic/order/42/location", 17)
	client.RecordDroppedFrame("malformed")
	client.Flush()

	lines := f.waitLines(t, 4)
	if len(lines) != 4 {
		t.Fatalf("written %d lines, want 4: %v", len(lines), lines)
	}

	tests := []struct {
		prefix string
		want   []string
	}{
		{influxdb.MeasurementState, []string{"state=connected", "value=1i"}},
		{influxdb.MeasurementReconnect, []string{"attempt=3i"}},
		{influxdb.MeasurementMessages, []string{"channel=/topic/order", "direction=in", "bytes=17i", `destination="/topic/order/42/location"`}},
		{influxdb.MeasurementDropped, []string{"reason=malformed"}},
	}
	for i, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			line := lines[i]
			if !strings.HasPrefix(line, tt.prefix) {
				t.Fatalf("line %q does not start with %q", line, tt.prefix)
			}
			for _, w := range tt.want {
				if !strings.Contains(line, w) {
					t.Errorf("line %q missing %q", line, w)
				}
			}
		})
	}
}

func TestWriteErrorsReachCallback(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f.config())

	errCh := make(chan error, 1)
	client.SetOnError(func(err error) {
		select {
		case errCh <- err:
		default:
		}
	})

	f.mu.Lock()
	f.failWrite = true
	f.mu.Unlock()

	client.WritePoint("custom", map[string]string{"source": "test"}, map[string]interface{}{"value": 1.5})
	client.Flush()

	select {
	case err := <-errCh:
		if !errors.Is(err, influxdb.ErrWriteFailed) {
			t.Errorf("callback error = %v, want ErrWriteFailed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("write error callback not invoked")
	}
}

func TestWritePointWithTime(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f.config())

	ts := time.Unix(1700000000, 0)
	client.WritePointWithTime("custom", nil, map[string]interface{}{"value": 88.8}, ts)
	client.Flush()

	lines := f.waitLines(t, 1)
	if len(lines) != 1 || !strings.HasSuffix(lines[0], " 1700000000000000000") {
		t.Errorf("written = %v, want one point at the given time", lines)
	}
}

func TestClose(t *testing.T) {
	f := newFakeInflux(t)
	client, err := influxdb.Connect(context.Background(), f.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	client.RecordState("closed")
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if lines := f.waitLines(t, 1); len(lines) != 1 {
		t.Errorf("Close() should flush pending points, got %v", lines)
	}

	// Writes after Close are dropped.
	client.RecordState("connected")
	client.Flush()
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if !errors.Is(client.HealthCheck(context.Background()), influxdb.ErrNotConnected) {
		t.Error("HealthCheck() after Close() should return ErrNotConnected")
	}
}
