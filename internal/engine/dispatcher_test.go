package engine

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/doorhub-io/doorhub-core/internal/device"
	"github.com/doorhub-io/doorhub-core/internal/infrastructure/mqtt"
	"github.com/doorhub-io/doorhub-core/internal/user"
)

// fakePublisher records published commands and can fail selected topics.
type fakePublisher struct {
	mu         sync.Mutex
	published  map[string][][]byte
	failTopics map[string]bool
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{
		published:  make(map[string][][]byte),
		failTopics: make(map[string]bool),
	}
}

func (p *fakePublisher) PublishCommand(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failTopics[topic] {
		return errors.New("broker unavailable")
	}
	p.published[topic] = append(p.published[topic], payload)
	return nil
}

func (p *fakePublisher) lastPayload(t *testing.T, topic string) map[string]any {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	msgs := p.published[topic]
	if len(msgs) == 0 {
		t.Fatalf("nothing published on %q", topic)
	}
	var decoded map[string]any
	if err := json.Unmarshal(msgs[len(msgs)-1], &decoded); err != nil {
		t.Fatalf("undecodable payload on %q: %v", topic, err)
	}
	return decoded
}

// fakeDirectory serves device records from a fixed map.
type fakeDirectory struct {
	devices map[string]*device.Device
}

func (d *fakeDirectory) Get(hostname string) (*device.Device, error) {
	dev, ok := d.devices[hostname]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	return dev.DeepCopy(), nil
}

func testDirectory(hostnames ...string) *fakeDirectory {
	dir := &fakeDirectory{devices: make(map[string]*device.Device)}
	for i, h := range hostnames {
		dir.devices[h] = &device.Device{
			Hostname:  h,
			IPAddress: "10.0.0." + strconv.Itoa(i+1),
			Status:    device.StatusOnline,
		}
	}
	return dir
}

func cardUser(uid string) user.User {
	since := time.Unix(1700000000, 0).UTC()
	until := time.Unix(1800000000, 0).UTC()
	return user.User{
		ID:          "u-1",
		Name:        "Ada Lovelace",
		CardUID:     &uid,
		AccessClass: user.ClassAlways,
		ValidSince:  &since,
		ValidUntil:  &until,
	}
}

func TestDispatcher_EnrollReportsPerDeviceOutcomes(t *testing.T) {
	pub := newFakePublisher()
	topics := mqtt.NewTopics("esprfid")
	pub.failTopics[topics.DeviceCommand("door-b")] = true

	d := NewDispatcher(pub, testDirectory("door-a", "door-b", "door-c"), topics)

	outcomes := d.Enroll(cardUser("1234567890"), []string{"door-a", "door-b", "door-c"}, user.ClassAlways)

	want := map[string]Outcome{
		"door-a": OutcomeSent,
		"door-b": OutcomePublishFailed,
		"door-c": OutcomeSent,
	}
	if len(outcomes) != len(want) {
		t.Fatalf("outcomes = %v, want one entry per target", outcomes)
	}
	for host, outcome := range want {
		if outcomes[host] != outcome {
			t.Errorf("outcomes[%q] = %q, want %q", host, outcomes[host], outcome)
		}
	}
}

func TestDispatcher_EnrollPayloadShape(t *testing.T) {
	pub := newFakePublisher()
	topics := mqtt.NewTopics("esprfid")
	d := NewDispatcher(pub, testDirectory("door1"), topics)

	d.Enroll(cardUser("1234567890"), []string{"door1"}, user.ClassAdmin)

	payload := pub.lastPayload(t, "esprfid/door1/cmd")
	if payload["cmd"] != "adduser" {
		t.Errorf("cmd = %v", payload["cmd"])
	}
	if payload["uid"] != "1234567890" {
		t.Errorf("uid = %v", payload["uid"])
	}
	if payload["user"] != "Ada Lovelace" {
		t.Errorf("user = %v", payload["user"])
	}
	if payload["acctype"] != float64(user.ClassAdmin) {
		t.Errorf("acctype = %v, want %d", payload["acctype"], user.ClassAdmin)
	}
	if payload["validsince"] != float64(1700000000) {
		t.Errorf("validsince = %v", payload["validsince"])
	}
	if payload["validuntil"] != float64(1800000000) {
		t.Errorf("validuntil = %v", payload["validuntil"])
	}
	if ip, _ := payload["doorip"].(string); !strings.HasPrefix(ip, "10.0.0.") {
		t.Errorf("doorip = %v", payload["doorip"])
	}
}

func TestDispatcher_EnrollOpenEndedValidityIsZero(t *testing.T) {
	pub := newFakePublisher()
	d := NewDispatcher(pub, testDirectory("door1"), mqtt.NewTopics("esprfid"))

	u := cardUser("42")
	u.ValidSince = nil
	u.ValidUntil = nil
	d.Enroll(u, []string{"door1"}, user.ClassAlways)

	payload := pub.lastPayload(t, "esprfid/door1/cmd")
	if payload["validsince"] != float64(0) || payload["validuntil"] != float64(0) {
		t.Errorf("open-ended validity = %v / %v, want 0 / 0",
			payload["validsince"], payload["validuntil"])
	}
}

func TestDispatcher_RevokePayloadShape(t *testing.T) {
	pub := newFakePublisher()
	d := NewDispatcher(pub, testDirectory("door1"), mqtt.NewTopics("esprfid"))

	outcomes := d.Revoke("1234567890", []string{"door1"})
	if outcomes["door1"] != OutcomeSent {
		t.Fatalf("outcome = %q", outcomes["door1"])
	}

	payload := pub.lastPayload(t, "esprfid/door1/cmd")
	if payload["cmd"] != "deletuid" || payload["uid"] != "1234567890" {
		t.Errorf("payload = %v", payload)
	}
}

func TestDispatcher_UnknownTargetFailsWithoutAbortingBatch(t *testing.T) {
	pub := newFakePublisher()
	d := NewDispatcher(pub, testDirectory("door1"), mqtt.NewTopics("esprfid"))

	outcomes := d.Revoke("42", []string{"door1", "ghost"})
	if outcomes["door1"] != OutcomeSent {
		t.Errorf("outcomes[door1] = %q", outcomes["door1"])
	}
	if outcomes["ghost"] != OutcomePublishFailed {
		t.Errorf("outcomes[ghost] = %q", outcomes["ghost"])
	}
}

func TestDispatcher_OpenDoor(t *testing.T) {
	pub := newFakePublisher()
	d := NewDispatcher(pub, testDirectory("door1"), mqtt.NewTopics("esprfid"))

	outcome, err := d.OpenDoor("door1")
	if err != nil || outcome != OutcomeSent {
		t.Fatalf("OpenDoor() = %q, %v", outcome, err)
	}

	payload := pub.lastPayload(t, "esprfid/door1/cmd")
	if payload["cmd"] != "opendoor" {
		t.Errorf("payload = %v", payload)
	}

	// Fire and forget: nothing pending.
	if got := d.PendingCount(); got != 0 {
		t.Errorf("PendingCount() = %d, want 0", got)
	}
}

func TestDispatcher_OpenDoorUnknownDevice(t *testing.T) {
	d := NewDispatcher(newFakePublisher(), testDirectory(), mqtt.NewTopics("esprfid"))

	outcome, err := d.OpenDoor("ghost")
	if outcome != OutcomePublishFailed {
		t.Errorf("outcome = %q", outcome)
	}
	if !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("error = %v, want ErrDeviceNotFound", err)
	}
}

func TestDispatcher_RequestUserList(t *testing.T) {
	pub := newFakePublisher()
	d := NewDispatcher(pub, testDirectory("door1"), mqtt.NewTopics("esprfid"))

	if outcome, err := d.RequestUserList("door1"); err != nil || outcome != OutcomeSent {
		t.Fatalf("RequestUserList() = %q, %v", outcome, err)
	}
	payload := pub.lastPayload(t, "esprfid/door1/cmd")
	if payload["cmd"] != "getuserlist" {
		t.Errorf("payload = %v", payload)
	}
}

func TestDispatcher_SyncAccessClassIsRepeatable(t *testing.T) {
	pub := newFakePublisher()
	d := NewDispatcher(pub, testDirectory("door1"), mqtt.NewTopics("esprfid"))
	u := cardUser("42")

	first := d.SyncAccessClass(u, "door1", user.ClassDisabled)
	second := d.SyncAccessClass(u, "door1", user.ClassDisabled)
	if first != OutcomeSent || second != OutcomeSent {
		t.Fatalf("outcomes = %q, %q", first, second)
	}

	pub.mu.Lock()
	msgs := pub.published["esprfid/door1/cmd"]
	pub.mu.Unlock()
	if len(msgs) != 2 {
		t.Fatalf("published %d commands, want 2", len(msgs))
	}
	if string(msgs[0]) != string(msgs[1]) {
		t.Errorf("repeated sync produced different payloads:\n%s\n%s", msgs[0], msgs[1])
	}
}

func TestDispatcher_PendingResolution(t *testing.T) {
	pub := newFakePublisher()
	d := NewDispatcher(pub, testDirectory("door1"), mqtt.NewTopics("esprfid"))

	d.Enroll(cardUser("1234567890"), []string{"door1"}, user.ClassAlways)
	if got := d.PendingCount(); got != 1 {
		t.Fatalf("PendingCount() = %d, want 1", got)
	}

	pending, ok := d.Resolve("door1", "1234567890")
	if !ok {
		t.Fatal("Resolve() found nothing")
	}
	if pending.Cmd != "adduser" || pending.Token == 0 {
		t.Errorf("pending = %+v", pending)
	}

	// Resolution consumes the entry.
	if _, ok := d.Resolve("door1", "1234567890"); ok {
		t.Error("second Resolve() matched a consumed entry")
	}
}

func TestDispatcher_TokensIncrease(t *testing.T) {
	d := NewDispatcher(newFakePublisher(), testDirectory(), mqtt.NewTopics("esprfid"))

	prev := d.NextToken()
	for i := 0; i < 10; i++ {
		next := d.NextToken()
		if next <= prev {
			t.Fatalf("token %d not greater than %d", next, prev)
		}
		prev = next
	}
}
