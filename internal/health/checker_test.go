package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ── Stubs ────────────────────────────────────────────────────────────────

type stubSetter struct {
	mu       sync.Mutex
	statuses map[string]healthpb.HealthCheckResponse_ServingStatus
}

func newStubSetter() *stubSetter {
	return &stubSetter{statuses: make(map[string]healthpb.HealthCheckResponse_ServingStatus)}
}

func (s *stubSetter) SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[service] = status
}

func (s *stubSetter) get(service string) healthpb.HealthCheckResponse_ServingStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[service]
}

type flakyPinger struct {
	mu    sync.Mutex
	fails int
}

func (p *flakyPinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fails > 0 {
		p.fails--
		return errors.New("connection refused")
	}
	return nil
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestProbeEndpoint_success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := probeEndpoint(context.Background(), srv.Client(), srv.URL); err != nil {
		t.Errorf("expected probe to succeed, got %v", err)
	}
}

func TestProbeEndpoint_getFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := probeEndpoint(context.Background(), srv.Client(), srv.URL); err != nil {
		t.Errorf("expected GET fallback to succeed, got %v", err)
	}
}

func TestProbeEndpoint_failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := probeEndpoint(context.Background(), srv.Client(), srv.URL); err == nil {
		t.Error("expected probe to fail")
	}
}

func TestCheckAll_degradesAfterThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	setter := newStubSetter()
	var results []bool
	checker := New([]Probe{HTTPProbe("prover", srv.URL, srv.Client())}, setter, Config{
		ProbeTimeout:  5 * time.Second,
		FailThreshold: 3,
	}, zap.NewNop())
	checker.SetMetricsRecord(func(_ string, ok bool) { results = append(results, ok) })

	for i := 0; i < 2; i++ {
		checker.CheckAll(context.Background())
	}
	if setter.get(Service) != healthpb.HealthCheckResponse_SERVING {
		t.Fatal("degraded before reaching the threshold")
	}

	checker.CheckAll(context.Background())
	if setter.get(Service) != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING, got %s", setter.get(Service))
	}
	if setter.get(Service+"/prover") != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected prover NOT_SERVING, got %s", setter.get(Service+"/prover"))
	}
	if d := checker.Degraded(); len(d) != 1 || d[0] != "prover" {
		t.Errorf("Degraded() = %v", d)
	}
	if len(results) != 3 || results[0] {
		t.Errorf("metrics callback results = %v", results)
	}
}

func TestCheckAll_recoversOnSuccess(t *testing.T) {
	db := &flakyPinger{fails: 3}
	setter := newStubSetter()
	checker := New([]Probe{PingProbe("postgres", db)}, setter, Config{
		ProbeTimeout:  5 * time.Second,
		FailThreshold: 3,
	}, zap.NewNop())

	// Fail 3 times, then succeed.
	for i := 0; i < 4; i++ {
		checker.CheckAll(context.Background())
	}

	if setter.get(Service) != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING after recovery, got %s", setter.get(Service))
	}
	if len(checker.Degraded()) != 0 {
		t.Errorf("Degraded() = %v after recovery", checker.Degraded())
	}
}

func TestCheckAll_grpcHealthServer(t *testing.T) {
	srv := health.NewServer()
	checker := New([]Probe{PingProbe("postgres", &flakyPinger{fails: 1})}, srv, Config{FailThreshold: 1}, zap.NewNop())
	checker.CheckAll(context.Background())

	resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: Service})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %s, want NOT_SERVING", resp.Status)
	}
}
