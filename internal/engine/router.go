package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/doorhub-io/doorhub-core/internal/accesslog"
	"github.com/doorhub-io/doorhub-core/internal/device"
	"github.com/doorhub-io/doorhub-core/internal/event"
	"github.com/doorhub-io/doorhub-core/internal/infrastructure/mqtt"
	"github.com/doorhub-io/doorhub-core/internal/user"
)

// DeviceObserver is the registry operation the router needs: fold a
// message observation into the fleet state.
type DeviceObserver interface {
	Observe(ctx context.Context, obs device.Observation) error
}

// UserLookup resolves card UIDs to enrolled users, used to decide
// whether a scan is a candidate for detection capture.
type UserLookup interface {
	GetByCardUID(ctx context.Context, uid string) (*user.User, error)
}

// AccessRecorder persists access log entries.
type AccessRecorder interface {
	Append(ctx context.Context, entry *accesslog.Entry) error
}

// EventPublisher is the fan-out operation the router needs. Publishing
// must never block.
type EventPublisher interface {
	Publish(ev event.Event)
}

// MetricsSink receives time-series points for access traffic. May be a
// no-op when metrics are disabled.
type MetricsSink interface {
	WriteAccessEvent(hostname, doorName, username string, granted bool, eventTime time.Time)
	WriteDeviceUptime(hostname string, uptimeSeconds int64)
}

type noopMetrics struct{}

func (noopMetrics) WriteAccessEvent(string, string, string, bool, time.Time) {}
func (noopMetrics) WriteDeviceUptime(string, int64)                          {}

// CommandResult is the payload of a command-result event: a device
// acknowledgement or requested report, correlated to the originating
// dispatch when one is pending.
type CommandResult struct {
	Token    int64           `json:"token,omitempty"`
	Hostname string          `json:"hostname"`
	UID      string          `json:"uid,omitempty"`
	Cmd      string          `json:"cmd,omitempty"`
	Type     string          `json:"type,omitempty"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

// Router classifies inbound messages by topic shape, decodes them into
// typed events, and dispatches to the registry, the detection session,
// the access log, and the event fan-out.
//
// Every message from a device, whatever its type, counts as a liveness
// observation. Decode failures are logged and dropped; they never
// propagate back to the transport.
type Router struct {
	topics     mqtt.Topics
	registry   DeviceObserver
	session    *DetectionSession
	dispatcher *Dispatcher
	users      UserLookup
	logs       AccessRecorder
	bus        EventPublisher
	metrics    MetricsSink
	logger     Logger

	now func() time.Time
}

// NewRouter wires a router. dispatcher, logs, and users may be nil in
// reduced deployments; the corresponding reactions are skipped.
func NewRouter(topics mqtt.Topics, registry DeviceObserver, session *DetectionSession, dispatcher *Dispatcher, users UserLookup, logs AccessRecorder, bus EventPublisher) *Router {
	return &Router{
		topics:     topics,
		registry:   registry,
		session:    session,
		dispatcher: dispatcher,
		users:      users,
		logs:       logs,
		bus:        bus,
		metrics:    noopMetrics{},
		logger:     noopLogger{},
		now:        time.Now,
	}
}

// SetLogger attaches a logger. Pass nil to keep the current one.
func (r *Router) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// SetMetrics attaches a time-series sink.
func (r *Router) SetMetrics(metrics MetricsSink) {
	if metrics != nil {
		r.metrics = metrics
	}
}

// Handle processes one inbound message. It satisfies the transport's
// MessageHandler signature. The returned error is always nil for
// malformed traffic; bad messages are logged and dropped.
func (r *Router) Handle(topic string, payload []byte) error {
	receivedAt := r.now().UTC()

	hostname, leaf, ok := r.classify(topic)
	if !ok {
		r.logger.Debug("ignoring message on unrecognised topic", "topic", topic)
		return nil
	}

	switch leaf {
	case "tag":
		r.handleTag(topic, hostname, payload, receivedAt)
	case "send":
		r.handleSend(topic, hostname, payload, receivedAt)
	}
	return nil
}

// classify extracts the device hostname positionally from the topic.
// Recognised shapes are {prefix}/{hostname}/send, {prefix}/{hostname}/tag
// and the legacy shared {prefix}/send, where the hostname comes from the
// payload instead and is returned empty here.
func (r *Router) classify(topic string) (hostname, leaf string, ok bool) {
	parts := strings.Split(topic, "/")
	prefixParts := strings.Split(r.topics.Prefix(), "/")
	if len(parts) < len(prefixParts)+1 {
		return "", "", false
	}
	for i, p := range prefixParts {
		if parts[i] != p {
			return "", "", false
		}
	}

	rest := parts[len(prefixParts):]
	switch len(rest) {
	case 1:
		if rest[0] == "send" {
			return "", "send", true
		}
	case 2:
		if rest[1] == "send" || rest[1] == "tag" {
			return rest[0], rest[1], true
		}
	}
	return "", "", false
}

func (r *Router) handleTag(topic, hostname string, payload []byte, receivedAt time.Time) {
	msg, err := parseTagMessage(payload)
	if err != nil {
		r.logger.Warn("dropping undecodable tag message", "topic", topic, "error", err)
		return
	}
	if hostname == "" {
		hostname = msg.Hostname
	}
	if hostname == "" {
		r.logger.Warn("dropping tag message without hostname", "topic", topic)
		return
	}

	r.observe(device.Observation{Hostname: hostname, Seen: receivedAt})
	r.offerScan(string(msg.UID), hostname, receivedAt)
}

func (r *Router) handleSend(topic, hostname string, payload []byte, receivedAt time.Time) {
	msg, err := parseDeviceMessage(payload)
	if err != nil {
		r.logger.Warn("dropping undecodable message", "topic", topic, "error", err)
		return
	}
	if hostname == "" {
		hostname = msg.Hostname
	}
	if hostname == "" {
		r.logger.Warn("dropping message without hostname", "topic", topic, "type", msg.Type)
		return
	}

	switch msg.Type {
	case messageTypeHeartbeat:
		r.handleHeartbeat(hostname, msg, receivedAt)
	case messageTypeBoot:
		r.handleBoot(hostname, msg, receivedAt)
	case messageTypeAccess:
		r.handleAccess(topic, hostname, msg, payload, receivedAt)
	default:
		r.handleAck(hostname, msg, payload, receivedAt)
	}
}

func (r *Router) handleHeartbeat(hostname string, msg deviceMessage, receivedAt time.Time) {
	r.observe(device.Observation{
		Hostname:  hostname,
		IPAddress: msg.IP,
		Seen:      normalizeTimestamp(int64(msg.Time), receivedAt),
		Uptime:    int64(msg.Uptime),
	})
	if msg.Uptime > 0 {
		r.metrics.WriteDeviceUptime(hostname, int64(msg.Uptime))
	}
}

func (r *Router) handleBoot(hostname string, msg deviceMessage, receivedAt time.Time) {
	r.observe(device.Observation{
		Hostname:  hostname,
		IPAddress: msg.IP,
		Seen:      receivedAt,
	})
}

func (r *Router) handleAccess(topic, hostname string, msg deviceMessage, payload []byte, receivedAt time.Time) {
	eventTime := normalizeTimestamp(int64(msg.Time), receivedAt)

	r.observe(device.Observation{Hostname: hostname, Seen: eventTime})

	username := msg.Username
	if username == "" {
		username = unknownUsername
	}
	entry := &accesslog.Entry{
		Hostname:    hostname,
		DoorName:    msg.DoorName,
		Username:    username,
		CardUID:     string(msg.UID),
		Granted:     accessGranted(msg.IsKnown, msg.Access),
		KnownCard:   msg.IsKnown == "true",
		EventTime:   eventTime,
		SourceTopic: topic,
		RawPayload:  string(payload),
	}

	if r.logs != nil {
		if err := r.logs.Append(context.Background(), entry); err != nil {
			r.logger.Error("access log append failed",
				"hostname", hostname, "uid", entry.CardUID, "error", err)
		}
	}

	// An unenrolled card in an access event is still a detection
	// candidate; the log append above is independent of the capture.
	if !entry.KnownCard {
		r.offerScan(entry.CardUID, hostname, eventTime)
	}

	r.metrics.WriteAccessEvent(hostname, entry.DoorName, entry.Username, entry.Granted, eventTime)
	r.bus.Publish(event.Event{
		Kind:      event.KindAccess,
		Hostname:  hostname,
		Timestamp: eventTime,
		Payload:   entry,
	})
}

// handleAck treats any other typed message from a device as a potential
// command acknowledgement or report, such as the response to a
// getuserlist request.
func (r *Router) handleAck(hostname string, msg deviceMessage, payload []byte, receivedAt time.Time) {
	r.observe(device.Observation{Hostname: hostname, Seen: receivedAt})

	if msg.Type == "" && msg.Cmd == "" {
		r.logger.Debug("ignoring untyped device message", "hostname", hostname)
		return
	}

	result := CommandResult{
		Hostname: hostname,
		UID:      string(msg.UID),
		Cmd:      msg.Cmd,
		Type:     msg.Type,
		Raw:      json.RawMessage(payload),
	}
	if r.dispatcher != nil && result.UID != "" {
		if pending, ok := r.dispatcher.Resolve(hostname, result.UID); ok {
			result.Token = pending.Token
			if result.Cmd == "" {
				result.Cmd = pending.Cmd
			}
		}
	}

	r.bus.Publish(event.Event{
		Kind:      event.KindCommandResult,
		Hostname:  hostname,
		Timestamp: receivedAt,
		Payload:   result,
	})
}

// offerScan captures the UID in the detection session when it does not
// belong to an already-enrolled user, and emits a card-detected event
// for each successful capture.
func (r *Router) offerScan(uid, hostname string, at time.Time) {
	if uid == "" || r.session == nil || !r.session.Active() {
		return
	}

	if r.users != nil {
		_, err := r.users.GetByCardUID(context.Background(), uid)
		switch {
		case err == nil:
			// Enrolled cards are never captured as new.
			return
		case !errors.Is(err, user.ErrUserNotFound):
			r.logger.Error("card lookup failed, skipping capture",
				"uid", uid, "error", err)
			return
		}
	}

	if r.session.Offer(uid, hostname, at) {
		capture, _ := r.session.Peek()
		r.bus.Publish(event.Event{
			Kind:      event.KindCardDetected,
			Hostname:  hostname,
			Timestamp: at,
			Payload:   capture,
		})
	}
}

func (r *Router) observe(obs device.Observation) {
	if err := r.registry.Observe(context.Background(), obs); err != nil {
		r.logger.Error("registry observation failed",
			"hostname", obs.Hostname, "error", err)
	}
}
