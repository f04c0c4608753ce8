package device

import (
	"context"
	"sync"
	"time"
)

// MetricsSink receives fleet health samples from the monitor.
// Implemented by the InfluxDB client; a nil sink disables telemetry.
type MetricsSink interface {
	WriteFleetGauge(online, offline, unknown int)
	WriteLivenessTransition(hostname string, online bool)
}

// Monitor periodically sweeps the registry and marks devices offline
// once they have been silent past the configured timeout.
//
// Liveness is timeout-based: devices heartbeat on a fixed interval, and
// a device that misses several in a row is declared offline. The sweep
// period is independent of the heartbeat interval so detection latency
// can be tuned without touching device firmware.
type Monitor struct {
	registry *Registry
	timeout  time.Duration
	period   time.Duration
	logger   Logger
	metrics  MetricsSink

	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// NewMonitor creates a liveness monitor.
//
// Parameters:
//   - registry: The registry to sweep
//   - timeout: Silence duration after which a device is offline
//   - period: How often to sweep
func NewMonitor(registry *Registry, timeout, period time.Duration) *Monitor {
	return &Monitor{
		registry: registry,
		timeout:  timeout,
		period:   period,
		logger:   noopLogger{},
		stopCh:   make(chan struct{}),
	}
}

// SetLogger sets the logger for the monitor.
func (m *Monitor) SetLogger(logger Logger) {
	m.logger = logger
}

// SetMetrics sets an optional sink for fleet health telemetry.
func (m *Monitor) SetMetrics(sink MetricsSink) {
	m.metrics = sink
}

// Start launches the sweep loop in a background goroutine.
// The loop runs until Stop is called or the context is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.run(ctx)
	m.logger.Info("liveness monitor started",
		"timeout", m.timeout.String(),
		"period", m.period.String(),
	)
}

// Stop terminates the sweep loop and waits for it to exit.
// Safe to call multiple times.
func (m *Monitor) Stop() {
	m.stopped.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()
}

// run is the sweep loop.
func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

// sweep performs a single liveness pass over the registry.
func (m *Monitor) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-m.timeout)
	transitioned := m.registry.SweepOffline(ctx, cutoff)

	if len(transitioned) > 0 {
		m.logger.Info("liveness sweep marked devices offline",
			"count", len(transitioned),
			"hostnames", transitioned,
		)
	}

	if m.metrics != nil {
		for _, hostname := range transitioned {
			m.metrics.WriteLivenessTransition(hostname, false)
		}
		online, offline, unknown := m.registry.Counts()
		m.metrics.WriteFleetGauge(online, offline, unknown)
	}
}
