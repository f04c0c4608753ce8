package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/doorhub-io/doorhub-core/internal/engine"
	"github.com/doorhub-io/doorhub-core/internal/user"
)

// handleListUsers returns all users ordered by name.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// handleGetUser returns a single user by ID.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.users.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		writeInternalError(w, "failed to get user")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// handleCreateUser creates a new user. Binding a card UID that another
// user already holds is a conflict, never a silent overwrite.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var u user.User
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.users.Create(r.Context(), &u); err != nil {
		switch {
		case errors.Is(err, user.ErrUIDConflict):
			writeConflict(w, "card UID already bound to another user")
		case errors.Is(err, user.ErrInvalidUser), errors.Is(err, user.ErrInvalidAccessClass):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		default:
			writeInternalError(w, "failed to create user")
		}
		return
	}

	writeJSON(w, http.StatusCreated, u)
}

// handleUpdateUser partially updates a user. A card UID change is pushed
// to every device the user is bound to: the old UID is revoked and the
// new one enrolled with each binding's access class.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	existing, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		writeInternalError(w, "failed to get user")
		return
	}

	oldUID := ""
	if existing.CardUID != nil {
		oldUID = *existing.CardUID
	}

	updated := existing.DeepCopy()
	if err := json.NewDecoder(r.Body).Decode(updated); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	updated.ID = id // the identifier is immutable

	if err := s.users.Update(ctx, updated); err != nil {
		switch {
		case errors.Is(err, user.ErrUserNotFound):
			writeNotFound(w, "user not found")
		case errors.Is(err, user.ErrUIDConflict):
			writeConflict(w, "card UID already bound to another user")
		case errors.Is(err, user.ErrInvalidUser), errors.Is(err, user.ErrInvalidAccessClass):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		default:
			writeInternalError(w, "failed to update user")
		}
		return
	}

	newUID := ""
	if updated.CardUID != nil {
		newUID = *updated.CardUID
	}
	if newUID != oldUID {
		push := s.pushCardChange(r, *updated, oldUID)
		writeJSON(w, http.StatusOK, map[string]any{
			"user": updated,
			"push": push,
		})
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteUser removes a user, revoking their card from every bound
// device first. Permission rows cascade in the store.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		writeInternalError(w, "failed to get user")
		return
	}

	if u.HasCard() {
		targets := s.boundHostnames(r, id)
		if len(targets) > 0 {
			outcomes := s.engine.Dispatcher().Revoke(*u.CardUID, targets)
			s.logger.Info("revoked card on user delete",
				"user_id", id, "targets", len(targets), "outcomes", outcomes)
		}
	}

	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		writeInternalError(w, "failed to delete user")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListPermissions returns a user's device bindings.
func (s *Server) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.users.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		writeInternalError(w, "failed to get user")
		return
	}

	perms, err := s.users.ListPermissions(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to list permissions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"permissions": perms,
		"count":       len(perms),
	})
}

// setPermissionRequest is the body for PUT /users/{id}/permissions/{hostname}.
type setPermissionRequest struct {
	AccessClass user.AccessClass `json:"access_class"`
}

// handleSetPermission creates or updates a (user, device) binding and
// pushes the new state to that device only. Bindings on other devices
// are untouched; a class change resynchronises just the changed pair.
func (s *Server) handleSetPermission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	hostname := chi.URLParam(r, "hostname")
	ctx := r.Context()

	var req setPermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if !req.AccessClass.Valid() {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "invalid access class")
		return
	}

	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		writeInternalError(w, "failed to get user")
		return
	}

	perm := &user.Permission{
		UserID:         id,
		DeviceHostname: hostname,
		AccessClass:    req.AccessClass,
	}
	if err := s.users.SetPermission(ctx, perm); err != nil {
		writeInternalError(w, "failed to set permission")
		return
	}

	outcome := engine.Outcome("")
	if u.HasCard() {
		outcome = s.engine.Dispatcher().SyncAccessClass(*u, hostname, req.AccessClass)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"permission": perm,
		"outcome":    outcome,
	})
}

// handleDeletePermission removes a (user, device) binding and pushes a
// revoke command to that device.
func (s *Server) handleDeletePermission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	hostname := chi.URLParam(r, "hostname")
	ctx := r.Context()

	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		writeInternalError(w, "failed to get user")
		return
	}

	if err := s.users.DeletePermission(ctx, id, hostname); err != nil {
		if errors.Is(err, user.ErrPermissionNotFound) {
			writeNotFound(w, "permission not found")
			return
		}
		writeInternalError(w, "failed to delete permission")
		return
	}

	outcome := engine.Outcome("")
	if u.HasCard() {
		outcomes := s.engine.Dispatcher().Revoke(*u.CardUID, []string{hostname})
		outcome = outcomes[hostname]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"outcome": outcome,
	})
}

// pushCardChange propagates a card UID change to every device the user
// is bound to. The returned map has one outcome per bound device; a
// device where either the revoke or the enroll failed reports
// publish_failed, so a half-applied change stays visible to the caller.
func (s *Server) pushCardChange(r *http.Request, u user.User, oldUID string) map[string]engine.Outcome {
	targets := s.boundHostnames(r, u.ID)
	if len(targets) == 0 {
		return map[string]engine.Outcome{}
	}

	dispatcher := s.engine.Dispatcher()
	results := make(map[string]engine.Outcome, len(targets))

	if oldUID != "" {
		for hostname, outcome := range dispatcher.Revoke(oldUID, targets) {
			results[hostname] = outcome
			if outcome != engine.OutcomeSent {
				s.logger.Error("card revoke failed",
					"user_id", u.ID, "hostname", hostname, "outcome", outcome)
			}
		}
	}
	if u.HasCard() {
		perms, err := s.users.ListPermissions(r.Context(), u.ID)
		if err != nil {
			s.logger.Error("card change push failed", "user_id", u.ID, "error", err)
			for _, hostname := range targets {
				results[hostname] = engine.OutcomePublishFailed
			}
			return results
		}
		for _, perm := range perms {
			outcome := dispatcher.SyncAccessClass(u, perm.DeviceHostname, perm.AccessClass)
			if outcome != engine.OutcomeSent {
				s.logger.Error("card enroll failed",
					"user_id", u.ID, "hostname", perm.DeviceHostname, "outcome", outcome)
			}
			if prev, ok := results[perm.DeviceHostname]; !ok || prev == engine.OutcomeSent {
				results[perm.DeviceHostname] = outcome
			}
		}
	}
	return results
}

// boundHostnames returns the hostnames of every device the user has a
// permission binding on.
func (s *Server) boundHostnames(r *http.Request, userID string) []string {
	perms, err := s.users.ListPermissions(r.Context(), userID)
	if err != nil {
		s.logger.Error("listing permissions failed", "user_id", userID, "error", err)
		return nil
	}
	hostnames := make([]string, 0, len(perms))
	for _, perm := range perms {
		hostnames = append(hostnames, perm.DeviceHostname)
	}
	return hostnames
}
