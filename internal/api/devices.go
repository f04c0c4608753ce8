package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/doorhub-io/doorhub-core/internal/device"
	"github.com/doorhub-io/doorhub-core/internal/engine"
	"github.com/doorhub-io/doorhub-core/internal/event"
)

// ErrCodePublishFailed marks a transport-level command delivery failure.
const ErrCodePublishFailed = "publish_failed"

// handleListDevices returns the fleet ordered online-first.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.registry.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns a single device by hostname.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	hostname := chi.URLParam(r, "hostname")

	dev, err := s.registry.Get(hostname)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleDeleteDevice removes a device. The registry's removal hook
// cascades to permissions bound to the device before the hostname
// becomes unresolvable, so nothing references a ghost device.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	hostname := chi.URLParam(r, "hostname")
	ctx := r.Context()

	dev, err := s.registry.Get(hostname)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	if err := s.registry.Remove(ctx, hostname); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to delete device")
		return
	}

	if s.bus != nil {
		s.bus.Publish(event.Event{
			Kind:     event.KindDeviceRemoved,
			Hostname: hostname,
			Payload:  dev,
		})
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleDeviceStats returns fleet liveness counts.
func (s *Server) handleDeviceStats(w http.ResponseWriter, _ *http.Request) {
	online, offline, unknown := s.registry.Counts()
	writeJSON(w, http.StatusOK, map[string]any{
		"online":  online,
		"offline": offline,
		"unknown": unknown,
		"total":   s.registry.Count(),
	})
}

// handleOpenDoor triggers the relay on one device. Fire and forget; the
// device protocol sends no acknowledgement.
func (s *Server) handleOpenDoor(w http.ResponseWriter, r *http.Request) {
	hostname := chi.URLParam(r, "hostname")

	outcome, err := s.engine.Dispatcher().OpenDoor(hostname)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeError(w, http.StatusBadGateway, ErrCodePublishFailed, "command could not be published")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"hostname": hostname,
		"outcome":  outcome,
	})
}

// handleRequestUserList asks a device to publish its local user table.
// The response arrives asynchronously as a command-result event on the
// WebSocket stream.
func (s *Server) handleRequestUserList(w http.ResponseWriter, r *http.Request) {
	hostname := chi.URLParam(r, "hostname")

	outcome, err := s.engine.Dispatcher().RequestUserList(hostname)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeError(w, http.StatusBadGateway, ErrCodePublishFailed, "command could not be published")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"hostname": hostname,
		"outcome":  outcome,
	})
}

// handleSyncDevice re-pushes every permission bound to a device to the
// device's local user table. Useful after a device was re-flashed or
// replaced while keeping its hostname.
func (s *Server) handleSyncDevice(w http.ResponseWriter, r *http.Request) {
	hostname := chi.URLParam(r, "hostname")
	ctx := r.Context()

	if _, err := s.registry.Get(hostname); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	perms, err := s.users.ListPermissionsByDevice(ctx, hostname)
	if err != nil {
		writeInternalError(w, "failed to list device permissions")
		return
	}

	results := make(map[string]engine.Outcome, len(perms))
	for _, perm := range perms {
		u, getErr := s.users.GetByID(ctx, perm.UserID)
		if getErr != nil {
			s.logger.Warn("sync skipped user", "user_id", perm.UserID, "error", getErr)
			results[perm.UserID] = engine.OutcomePublishFailed
			continue
		}
		if !u.HasCard() {
			// Nothing to push for card-less users.
			continue
		}
		results[perm.UserID] = s.engine.Dispatcher().SyncAccessClass(*u, hostname, perm.AccessClass)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"hostname": hostname,
		"results":  results,
	})
}
