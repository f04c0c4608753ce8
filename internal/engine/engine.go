package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/doorhub-io/doorhub-core/internal/device"
	"github.com/doorhub-io/doorhub-core/internal/event"
	"github.com/doorhub-io/doorhub-core/internal/infrastructure/config"
	"github.com/doorhub-io/doorhub-core/internal/infrastructure/mqtt"
)

// Logger captures the logging operations the engine and its parts need.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Transport is the message bus surface the engine needs. Satisfied by
// the mqtt client.
type Transport interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	PublishCommand(topic string, payload []byte) error
}

// Metrics is the full time-series surface the engine fans points into.
// Satisfied by the influxdb client.
type Metrics interface {
	WriteAccessEvent(hostname, doorName, username string, granted bool, eventTime time.Time)
	WriteDeviceUptime(hostname string, uptimeSeconds int64)
	WriteLivenessTransition(hostname string, online bool)
	WriteFleetGauge(online, offline, unknown int)
}

// Engine owns the fleet-facing moving parts: the message router, the
// card-detection session, the command dispatcher, and the liveness
// monitor. It subscribes the router to the device topics on Start and
// tears everything down on Stop.
//
// Shutdown drops messages that arrived but were not yet applied; the
// transport's QoS handles redelivery of anything that matters on the
// next start.
type Engine struct {
	cfg        config.FleetConfig
	topics     mqtt.Topics
	transport  Transport
	registry   *device.Registry
	session    *DetectionSession
	dispatcher *Dispatcher
	router     *Router
	monitor    *device.Monitor
	bus        *event.Bus
	metrics    Metrics
	logger     Logger

	mu      sync.Mutex
	started bool
}

// New assembles an engine. users and logs may be nil; the router skips
// the corresponding reactions.
func New(cfg config.FleetConfig, transport Transport, registry *device.Registry, users UserLookup, logs AccessRecorder, bus *event.Bus) *Engine {
	topics := mqtt.NewTopics(cfg.TopicPrefix)
	session := NewDetectionSession()
	dispatcher := NewDispatcher(transport, registry, topics)
	router := NewRouter(topics, registry, session, dispatcher, users, logs, bus)
	monitor := device.NewMonitor(registry, cfg.OfflineTimeout(), cfg.GetMonitorPeriod())

	return &Engine{
		cfg:        cfg,
		topics:     topics,
		transport:  transport,
		registry:   registry,
		session:    session,
		dispatcher: dispatcher,
		router:     router,
		monitor:    monitor,
		bus:        bus,
		logger:     noopLogger{},
	}
}

// SetLogger attaches a logger to the engine and all its parts.
func (e *Engine) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	e.logger = logger
	e.router.SetLogger(logger)
	e.dispatcher.SetLogger(logger)
	e.registry.SetLogger(logger)
	e.monitor.SetLogger(logger)
}

// SetMetrics attaches a time-series sink to the router and monitor.
func (e *Engine) SetMetrics(metrics Metrics) {
	if metrics == nil {
		return
	}
	e.metrics = metrics
	e.router.SetMetrics(metrics)
	e.monitor.SetMetrics(metrics)
}

// Session returns the card-detection session for the API layer.
func (e *Engine) Session() *DetectionSession {
	return e.session
}

// Dispatcher returns the command dispatcher for the API layer.
func (e *Engine) Dispatcher() *Dispatcher {
	return e.dispatcher
}

// Start subscribes the router to the fleet topics and starts the
// liveness monitor. The context bounds the monitor's lifetime.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return ErrAlreadyStarted
	}

	// Liveness transitions from the registry feed the event fan-out.
	// The monitor sweep records offline metrics itself, so only the
	// message-driven online edge is metered here.
	e.registry.SetTransitionHook(func(d device.Device, online bool) {
		kind := event.KindDeviceOffline
		if online {
			kind = event.KindDeviceOnline
			if e.metrics != nil {
				e.metrics.WriteLivenessTransition(d.Hostname, true)
			}
		}
		e.bus.Publish(event.Event{
			Kind:     kind,
			Hostname: d.Hostname,
			Payload:  d,
		})
	})

	for _, sub := range []string{
		e.topics.AllDeviceSends(),
		e.topics.AllDeviceTags(),
		e.topics.LegacySend(),
	} {
		if err := e.transport.Subscribe(sub, 1, e.router.Handle); err != nil {
			return fmt.Errorf("engine: subscribing %q: %w", sub, err)
		}
	}

	e.monitor.Start(ctx)
	e.started = true
	e.logger.Info("fleet engine started",
		"topic_prefix", e.topics.Prefix(),
		"offline_timeout", e.cfg.OfflineTimeout(),
		"monitor_period", e.cfg.GetMonitorPeriod(),
	)
	return nil
}

// Stop halts the liveness monitor, detaches the router from the
// transport, and closes the event bus. The transport connection itself
// belongs to the caller and stays open.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return ErrNotStarted
	}

	e.monitor.Stop()

	for _, sub := range []string{
		e.topics.AllDeviceSends(),
		e.topics.AllDeviceTags(),
		e.topics.LegacySend(),
	} {
		if err := e.transport.Unsubscribe(sub); err != nil {
			e.logger.Warn("unsubscribe failed during shutdown",
				"topic", sub, "error", err)
		}
	}

	e.bus.Close()
	e.started = false
	e.logger.Info("fleet engine stopped")
	return nil
}
