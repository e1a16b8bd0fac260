// Package health probes ledgerd's dependencies and publishes the result
// through the gRPC health service.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the gRPC health service name of the whole server.
const Service = "memoryledger.Ledgerd"

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// Probe checks one dependency.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// StatusSetter receives serving status changes. *health.Server from
// google.golang.org/grpc/health implements it.
type StatusSetter interface {
	SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus)
}

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(probe string, success bool)

// Checker runs the probes periodically. A dependency is degraded after
// FailThreshold consecutive failures and healthy again after one success;
// the server is NOT_SERVING while any dependency is degraded.
type Checker struct {
	probes     []Probe
	setter     StatusSetter
	failCounts map[string]int
	mu         sync.Mutex
	cfg        Config
	onMetrics  MetricsRecordFunc
	logger     *zap.Logger
}

// New creates a Checker. The server starts out SERVING.
func New(probes []Probe, setter StatusSetter, cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}
	c := &Checker{
		probes:     probes,
		setter:     setter,
		failCounts: make(map[string]int),
		cfg:        cfg,
		logger:     logger,
	}
	setter.SetServingStatus(Service, healthpb.HealthCheckResponse_SERVING)
	for _, p := range probes {
		setter.SetServingStatus(Service+"/"+p.Name, healthpb.HealthCheckResponse_SERVING)
	}
	return c
}

// SetMetricsRecord configures the metrics recording callback.
func (c *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	c.onMetrics = fn
}

// Start runs the check loop until ctx is done.
func (c *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CheckAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// CheckAll runs every probe once, concurrently, and updates the serving
// status.
func (c *Checker) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, p := range c.probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
			err := p.Check(pctx)
			cancel()
			c.record(p.Name, err)
		}()
	}
	wg.Wait()

	status := healthpb.HealthCheckResponse_SERVING
	if len(c.Degraded()) > 0 {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	c.setter.SetServingStatus(Service, status)
}

func (c *Checker) record(name string, err error) {
	if c.onMetrics != nil {
		c.onMetrics(name, err == nil)
	}

	c.mu.Lock()
	prev := c.failCounts[name]
	if err == nil {
		c.failCounts[name] = 0
	} else {
		c.failCounts[name]++
	}
	count := c.failCounts[name]
	c.mu.Unlock()

	switch {
	case err == nil && prev >= c.cfg.FailThreshold:
		c.setter.SetServingStatus(Service+"/"+name, healthpb.HealthCheckResponse_SERVING)
		c.logger.Info("health: recovered", zap.String("probe", name))
	case err != nil && count == c.cfg.FailThreshold:
		c.setter.SetServingStatus(Service+"/"+name, healthpb.HealthCheckResponse_NOT_SERVING)
		c.logger.Warn("health: degraded",
			zap.String("probe", name),
			zap.Int("fail_count", count),
			zap.Error(err),
		)
	case err != nil:
		c.logger.Debug("health: probe failed", zap.String("probe", name), zap.Error(err))
	}
}

// Degraded returns the names of probes at or past the failure threshold.
func (c *Checker) Degraded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, p := range c.probes {
		if c.failCounts[p.Name] >= c.cfg.FailThreshold {
			out = append(out, p.Name)
		}
	}
	return out
}

// Pinger is implemented by *pgxpool.Pool and *eventlog.PostgresLog.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingProbe checks a database connection.
func PingProbe(name string, p Pinger) Probe {
	return Probe{Name: name, Check: p.Ping}
}

// HTTPProbe attempts HEAD then GET on url and succeeds on any 2xx response.
func HTTPProbe(name, url string, client *http.Client) Probe {
	if client == nil {
		client = http.DefaultClient
	}
	return Probe{Name: name, Check: func(ctx context.Context) error {
		return probeEndpoint(ctx, client, url)
	}}
}

type statusError int

func (e statusError) Error() string { return "unexpected status " + http.StatusText(int(e)) }

func probeEndpoint(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err == nil {
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err = client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode)
	}
	return nil
}
