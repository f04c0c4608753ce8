package engine

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/doorhub-io/doorhub-core/internal/device"
	"github.com/doorhub-io/doorhub-core/internal/infrastructure/mqtt"
	"github.com/doorhub-io/doorhub-core/internal/user"
)

// Outcome is the per-device result of a command publish. It reflects
// transport acceptance only; application on the device is confirmed
// asynchronously via a command-result event.
type Outcome string

const (
	// OutcomeSent means the transport accepted the command.
	OutcomeSent Outcome = "sent"

	// OutcomePublishFailed means the command could not be handed to the
	// transport. The caller decides whether to retry.
	OutcomePublishFailed Outcome = "publish_failed"
)

// CommandPublisher is the transport operation the dispatcher needs.
type CommandPublisher interface {
	PublishCommand(topic string, payload []byte) error
}

// DeviceDirectory resolves hostnames to device records. Commands carry
// the device's own IP address in the payload, which the firmware uses
// to ignore commands addressed to a different door.
type DeviceDirectory interface {
	Get(hostname string) (*device.Device, error)
}

// PendingCommand tracks a published command awaiting a device
// acknowledgement, correlated by hostname and card UID plus a
// monotonically increasing request token.
type PendingCommand struct {
	Token    int64     `json:"token"`
	Hostname string    `json:"hostname"`
	UID      string    `json:"uid"`
	Cmd      string    `json:"cmd"`
	IssuedAt time.Time `json:"issued_at"`
}

// Dispatcher builds and publishes per-device commands. Multi-device
// calls publish to each target independently and report a per-device
// Outcome; one failed target never aborts the rest. Devices that are
// currently offline are still sent commands, since the broker retains
// no presence requirement for publishing.
type Dispatcher struct {
	publisher CommandPublisher
	devices   DeviceDirectory
	topics    mqtt.Topics
	logger    Logger

	token atomic.Int64

	pendingMu sync.Mutex
	pending   map[string]PendingCommand
}

// NewDispatcher creates a dispatcher publishing through the given
// transport.
func NewDispatcher(publisher CommandPublisher, devices DeviceDirectory, topics mqtt.Topics) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		devices:   devices,
		topics:    topics,
		logger:    noopLogger{},
		pending:   make(map[string]PendingCommand),
	}
}

// SetLogger attaches a logger. Pass nil to keep the current one.
func (d *Dispatcher) SetLogger(logger Logger) {
	if logger != nil {
		d.logger = logger
	}
}

type addUserCommand struct {
	Cmd        string `json:"cmd"`
	DoorIP     string `json:"doorip"`
	UID        string `json:"uid"`
	User       string `json:"user"`
	AccessType int    `json:"acctype"`
	ValidSince int64  `json:"validsince"`
	ValidUntil int64  `json:"validuntil"`
}

type deleteUIDCommand struct {
	Cmd    string `json:"cmd"`
	DoorIP string `json:"doorip"`
	UID    string `json:"uid"`
}

type simpleCommand struct {
	Cmd    string `json:"cmd"`
	DoorIP string `json:"doorip"`
}

// Enroll pushes the user's card binding to every target device and
// returns one Outcome per requested hostname. The user must already
// carry a card UID; targets without a known device record report
// OutcomePublishFailed.
func (d *Dispatcher) Enroll(u user.User, targets []string, class user.AccessClass) map[string]Outcome {
	return d.fanOut(targets, func(hostname, doorIP string) ([]byte, string) {
		cmd := addUserCommand{
			Cmd:        "adduser",
			DoorIP:     doorIP,
			UID:        derefString(u.CardUID),
			User:       u.Name,
			AccessType: int(class),
			ValidSince: epochOrZero(u.ValidSince),
			ValidUntil: epochOrZero(u.ValidUntil),
		}
		payload, _ := json.Marshal(cmd)
		return payload, cmd.UID
	}, "adduser")
}

// Revoke removes the card UID from every target device.
func (d *Dispatcher) Revoke(uid string, targets []string) map[string]Outcome {
	return d.fanOut(targets, func(hostname, doorIP string) ([]byte, string) {
		payload, _ := json.Marshal(deleteUIDCommand{
			Cmd:    "deletuid",
			DoorIP: doorIP,
			UID:    uid,
		})
		return payload, uid
	}, "deletuid")
}

// OpenDoor triggers the relay on a single device. Fire and forget: the
// device protocol sends no acknowledgement, so the call succeeds once
// the transport accepts the message.
func (d *Dispatcher) OpenDoor(hostname string) (Outcome, error) {
	return d.publishSimple(hostname, "opendoor")
}

// RequestUserList asks a device to publish its local user table. The
// response arrives asynchronously as a command-result event.
func (d *Dispatcher) RequestUserList(hostname string) (Outcome, error) {
	return d.publishSimple(hostname, "getuserlist")
}

// SyncAccessClass republishes the user's binding to one device with the
// given access class. Idempotent: resending a class the device already
// holds overwrites the same local record with identical content.
func (d *Dispatcher) SyncAccessClass(u user.User, hostname string, class user.AccessClass) Outcome {
	outcomes := d.Enroll(u, []string{hostname}, class)
	return outcomes[hostname]
}

// NextToken returns a token unique for the lifetime of the dispatcher.
func (d *Dispatcher) NextToken() int64 {
	return d.token.Add(1)
}

// Resolve consumes the pending command matching an acknowledgement from
// hostname for the given card UID. Returns false when nothing matches,
// which happens for unsolicited device traffic.
func (d *Dispatcher) Resolve(hostname, uid string) (PendingCommand, bool) {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	key := pendingKey(hostname, uid)
	cmd, ok := d.pending[key]
	if ok {
		delete(d.pending, key)
	}
	return cmd, ok
}

// PendingCount returns the number of commands awaiting acknowledgement.
func (d *Dispatcher) PendingCount() int {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	return len(d.pending)
}

// fanOut publishes one command per target concurrently. Every requested
// hostname gets exactly one entry in the returned map.
func (d *Dispatcher) fanOut(targets []string, build func(hostname, doorIP string) (payload []byte, uid string), cmdName string) map[string]Outcome {
	outcomes := make(map[string]Outcome, len(targets))
	if len(targets) == 0 {
		return outcomes
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, hostname := range targets {
		wg.Add(1)
		go func(hostname string) {
			defer wg.Done()

			outcome := d.publishOne(hostname, build, cmdName)
			mu.Lock()
			outcomes[hostname] = outcome
			mu.Unlock()
		}(hostname)
	}
	wg.Wait()
	return outcomes
}

func (d *Dispatcher) publishOne(hostname string, build func(hostname, doorIP string) ([]byte, string), cmdName string) Outcome {
	dev, err := d.devices.Get(hostname)
	if err != nil {
		d.logger.Warn("command target not in registry",
			"hostname", hostname, "cmd", cmdName, "error", err)
		return OutcomePublishFailed
	}

	payload, uid := build(hostname, dev.IPAddress)
	if err := d.publisher.PublishCommand(d.topics.DeviceCommand(hostname), payload); err != nil {
		d.logger.Error("command publish failed",
			"hostname", hostname, "cmd", cmdName, "error", err)
		return OutcomePublishFailed
	}

	if uid != "" {
		d.trackPending(hostname, uid, cmdName)
	}

	d.logger.Debug("command published",
		"hostname", hostname, "cmd", cmdName, "uid", uid)
	return OutcomeSent
}

func (d *Dispatcher) publishSimple(hostname, cmdName string) (Outcome, error) {
	dev, err := d.devices.Get(hostname)
	if err != nil {
		return OutcomePublishFailed, err
	}

	payload, _ := json.Marshal(simpleCommand{Cmd: cmdName, DoorIP: dev.IPAddress})
	if err := d.publisher.PublishCommand(d.topics.DeviceCommand(hostname), payload); err != nil {
		d.logger.Error("command publish failed",
			"hostname", hostname, "cmd", cmdName, "error", err)
		return OutcomePublishFailed, err
	}
	return OutcomeSent, nil
}

func (d *Dispatcher) trackPending(hostname, uid, cmdName string) {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	d.pending[pendingKey(hostname, uid)] = PendingCommand{
		Token:    d.NextToken(),
		Hostname: hostname,
		UID:      uid,
		Cmd:      cmdName,
		IssuedAt: time.Now().UTC(),
	}
}

func pendingKey(hostname, uid string) string {
	return hostname + "\x00" + uid
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func epochOrZero(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.Unix()
}
