package device

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// TransitionHook is called when a device's liveness changes. The device
// is a snapshot taken after the transition; online reports the new state.
//
// Hooks run synchronously under the registry's processing path and must
// not block.
type TransitionHook func(device Device, online bool)

// RemovalHook is called before a device is deleted, while its hostname
// still resolves. A hook error aborts the removal.
type RemovalHook func(ctx context.Context, device Device) error

// Registry is the authoritative in-memory view of the device fleet.
// It wraps a Repository for persistence: reads are served from the
// cache, writes go through to SQLite so the fleet survives restarts.
//
// Liveness transitions are emitted exactly once per state change. A
// heartbeat from an already-online device updates last_seen without
// firing the hook; a sweep over an already-offline device is a no-op.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Device // Cached devices by hostname
	cacheMu sync.RWMutex       // Protects cache
	logger  Logger

	hook     TransitionHook
	onRemove RemovalHook
	hookMu   sync.RWMutex
}

// NewRegistry creates a new device registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Device),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetTransitionHook sets the callback fired on liveness transitions.
func (r *Registry) SetTransitionHook(hook TransitionHook) {
	r.hookMu.Lock()
	r.hook = hook
	r.hookMu.Unlock()
}

// SetRemovalHook sets the callback fired before a device is removed.
func (r *Registry) SetRemovalHook(hook RemovalHook) {
	r.hookMu.Lock()
	r.onRemove = hook
	r.hookMu.Unlock()
}

// fireTransition invokes the transition hook if one is set.
func (r *Registry) fireTransition(d *Device, online bool) {
	r.hookMu.RLock()
	hook := r.hook
	r.hookMu.RUnlock()
	if hook != nil {
		hook(*d.DeepCopy(), online)
	}
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
//
// Loaded devices are reset to StatusUnknown: whatever liveness they had
// before the restart is stale, and the first message or sweep will
// settle it.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		d := devices[i].DeepCopy()
		d.Status = StatusUnknown
		r.cache[d.Hostname] = d
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// Observe folds a sighting of a device into the registry.
//
// Unknown hostnames are registered on first contact. LastSeen only moves
// forward: an out-of-order message older than the stored timestamp still
// proves the device is alive but does not rewind the clock. Any
// observation marks the device online; the offline-to-online transition
// fires the hook exactly once.
func (r *Registry) Observe(ctx context.Context, obs Observation) error {
	if err := validateHostname(obs.Hostname); err != nil {
		return err
	}

	r.cacheMu.Lock()

	d, ok := r.cache[obs.Hostname]
	if !ok {
		d = &Device{
			Hostname: obs.Hostname,
			Status:   StatusUnknown,
		}
		r.cache[obs.Hostname] = d
	}

	wasOnline := d.Status == StatusOnline

	if obs.IPAddress != "" {
		d.IPAddress = obs.IPAddress
	}
	if d.LastSeen == nil || obs.Seen.After(*d.LastSeen) {
		seen := obs.Seen
		d.LastSeen = &seen
	}
	if obs.Uptime > 0 {
		d.Uptime = obs.Uptime
	}
	if obs.Firmware != "" {
		d.Firmware = obs.Firmware
	}
	if len(obs.DoorNames) > 0 {
		d.DoorNames = append([]string(nil), obs.DoorNames...)
	}
	d.Status = StatusOnline

	snapshot := d.DeepCopy()

	// Persist before releasing the lock so two concurrent observations
	// of the same device cannot write the older snapshot last.
	err := r.repo.Save(ctx, snapshot)
	r.cacheMu.Unlock()

	if err != nil {
		return fmt.Errorf("persisting device: %w", err)
	}

	if !wasOnline {
		r.logger.Info("device online", "hostname", obs.Hostname)
		r.fireTransition(snapshot, true)
	}

	return nil
}

// Get retrieves a device by hostname.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) Get(hostname string) (*Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	d, ok := r.cache[hostname]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

// List returns all devices, online devices first, each group ordered by
// hostname. The returned devices are deep copies.
func (r *Registry) List() []Device {
	r.cacheMu.RLock()
	devices := make([]Device, 0, len(r.cache))
	for _, d := range r.cache {
		devices = append(devices, *d.DeepCopy())
	}
	r.cacheMu.RUnlock()

	sort.Slice(devices, func(i, j int) bool {
		iOnline := devices[i].Status == StatusOnline
		jOnline := devices[j].Status == StatusOnline
		if iOnline != jOnline {
			return iOnline
		}
		return devices[i].Hostname < devices[j].Hostname
	})

	return devices
}

// ListOnline returns the hostnames of all online devices, sorted.
func (r *Registry) ListOnline() []string {
	r.cacheMu.RLock()
	var hostnames []string
	for _, d := range r.cache {
		if d.Status == StatusOnline {
			hostnames = append(hostnames, d.Hostname)
		}
	}
	r.cacheMu.RUnlock()

	sort.Strings(hostnames)
	return hostnames
}

// Remove deletes a device from the registry and the database. The
// removal hook runs first, while the hostname still resolves, so
// collaborators can clean up device-bound state. A hook error aborts
// the removal and the device stays registered.
// Returns ErrDeviceNotFound if the device does not exist.
func (r *Registry) Remove(ctx context.Context, hostname string) error {
	r.cacheMu.RLock()
	d, ok := r.cache[hostname]
	var snapshot *Device
	if ok {
		snapshot = d.DeepCopy()
	}
	r.cacheMu.RUnlock()

	if !ok {
		return ErrDeviceNotFound
	}

	r.hookMu.RLock()
	onRemove := r.onRemove
	r.hookMu.RUnlock()
	if onRemove != nil {
		if err := onRemove(ctx, *snapshot); err != nil {
			return fmt.Errorf("removal hook for %q: %w", hostname, err)
		}
	}

	r.cacheMu.Lock()
	delete(r.cache, hostname)
	r.cacheMu.Unlock()

	if err := r.repo.Delete(ctx, hostname); err != nil {
		return err
	}

	r.logger.Info("device removed", "hostname", hostname)
	return nil
}

// SweepOffline marks every online device whose LastSeen is before the
// cutoff as offline, firing the transition hook once per device.
// It returns the hostnames that transitioned.
func (r *Registry) SweepOffline(ctx context.Context, cutoff time.Time) []string {
	r.cacheMu.Lock()
	var transitioned []*Device
	for _, d := range r.cache {
		if d.Status != StatusOnline {
			continue
		}
		if d.LastSeen == nil || d.LastSeen.Before(cutoff) {
			d.Status = StatusOffline
			d.OfflineCount++
			transitioned = append(transitioned, d.DeepCopy())
		}
	}
	r.cacheMu.Unlock()

	hostnames := make([]string, 0, len(transitioned))
	for _, d := range transitioned {
		if err := r.repo.Save(ctx, d); err != nil {
			r.logger.Error("persisting offline transition", "hostname", d.Hostname, "error", err)
		}
		r.logger.Warn("device offline", "hostname", d.Hostname, "offline_count", d.OfflineCount)
		r.fireTransition(d, false)
		hostnames = append(hostnames, d.Hostname)
	}

	sort.Strings(hostnames)
	return hostnames
}

// Counts returns the number of devices in each liveness state.
func (r *Registry) Counts() (online, offline, unknown int) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	for _, d := range r.cache {
		switch d.Status {
		case StatusOnline:
			online++
		case StatusOffline:
			offline++
		default:
			unknown++
		}
	}
	return online, offline, unknown
}

// Count returns the total number of devices in the registry.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// validateHostname rejects hostnames that are empty or would break the
// topic scheme.
func validateHostname(hostname string) error {
	if hostname == "" {
		return ErrInvalidHostname
	}
	if strings.ContainsAny(hostname, "/+#") {
		return fmt.Errorf("%w: %q", ErrInvalidHostname, hostname)
	}
	return nil
}
