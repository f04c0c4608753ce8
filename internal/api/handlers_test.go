package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/doorhub-io/doorhub-core/internal/accesslog"
	"github.com/doorhub-io/doorhub-core/internal/user"
)

// ─── Device Fleet Tests ────────────────────────────────────────────

func TestListDevices(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "front-door", "10.0.0.5")
	env.seedDevice(t, "back-door", "10.0.0.6")

	w := env.do(http.MethodGet, "/api/v1/devices", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	resp := decodeBody(t, w)
	if int(resp["count"].(float64)) != 2 {
		t.Errorf("count = %v, want 2", resp["count"])
	}
}

func TestGetDevice(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "front-door", "10.0.0.5")

	w := env.do(http.MethodGet, "/api/v1/devices/front-door", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	resp := decodeBody(t, w)
	if resp["hostname"] != "front-door" {
		t.Errorf("hostname = %v, want front-door", resp["hostname"])
	}
	if resp["ip_address"] != "10.0.0.5" {
		t.Errorf("ip_address = %v, want 10.0.0.5", resp["ip_address"])
	}
}

func TestGetDevice_NotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/devices/ghost", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestDeleteDevice_CascadesPermissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedDevice(t, "front-door", "10.0.0.5")

	uid := "DEADBEEF"
	u := &user.User{Name: "Alice", CardUID: &uid, AccessClass: user.ClassAlways}
	if err := env.users.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	perm := &user.Permission{UserID: u.ID, DeviceHostname: "front-door", AccessClass: user.ClassAlways}
	if err := env.users.SetPermission(ctx, perm); err != nil {
		t.Fatalf("SetPermission: %v", err)
	}

	w := env.do(http.MethodDelete, "/api/v1/devices/front-door", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusNoContent, w.Body.String())
	}

	if _, err := env.registry.Get("front-door"); err == nil {
		t.Error("device still present after delete")
	}
	perms, err := env.users.ListPermissionsByDevice(ctx, "front-door")
	if err != nil {
		t.Fatalf("ListPermissionsByDevice: %v", err)
	}
	if len(perms) != 0 {
		t.Errorf("permissions remaining = %d, want 0", len(perms))
	}
}

func TestDeviceStats(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "front-door", "10.0.0.5")

	w := env.do(http.MethodGet, "/api/v1/devices/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	resp := decodeBody(t, w)
	if int(resp["total"].(float64)) != 1 {
		t.Errorf("total = %v, want 1", resp["total"])
	}
	if int(resp["online"].(float64)) != 1 {
		t.Errorf("online = %v, want 1", resp["online"])
	}
}

func TestOpenDoor(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "front-door", "10.0.0.5")

	w := env.do(http.MethodPost, "/api/v1/devices/front-door/open", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusAccepted, w.Body.String())
	}

	resp := decodeBody(t, w)
	if resp["outcome"] != "sent" {
		t.Errorf("outcome = %v, want sent", resp["outcome"])
	}

	cmds := env.transport.commands("esprfid/front-door/cmd")
	if len(cmds) != 1 {
		t.Fatalf("published commands = %d, want 1", len(cmds))
	}

	var payload map[string]any
	if err := json.Unmarshal(cmds[0], &payload); err != nil {
		t.Fatalf("unmarshal command: %v", err)
	}
	if payload["cmd"] != "opendoor" {
		t.Errorf("cmd = %v, want opendoor", payload["cmd"])
	}
	if payload["doorip"] != "10.0.0.5" {
		t.Errorf("doorip = %v, want 10.0.0.5", payload["doorip"])
	}
}

func TestOpenDoor_UnknownDevice(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/devices/ghost/open", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRequestUserList(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "front-door", "10.0.0.5")

	w := env.do(http.MethodPost, "/api/v1/devices/front-door/userlist", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusAccepted, w.Body.String())
	}

	cmds := env.transport.commands("esprfid/front-door/cmd")
	if len(cmds) != 1 {
		t.Fatalf("published commands = %d, want 1", len(cmds))
	}

	var payload map[string]any
	if err := json.Unmarshal(cmds[0], &payload); err != nil {
		t.Fatalf("unmarshal command: %v", err)
	}
	if payload["cmd"] != "getuserlist" {
		t.Errorf("cmd = %v, want getuserlist", payload["cmd"])
	}
}

func TestSyncDevice_PushesBoundUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedDevice(t, "front-door", "10.0.0.5")

	uid := "CAFEF00D"
	u := &user.User{Name: "Bob", CardUID: &uid, AccessClass: user.ClassAlways}
	if err := env.users.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	perm := &user.Permission{UserID: u.ID, DeviceHostname: "front-door", AccessClass: user.ClassAdmin}
	if err := env.users.SetPermission(ctx, perm); err != nil {
		t.Fatalf("SetPermission: %v", err)
	}

	w := env.do(http.MethodPost, "/api/v1/devices/front-door/sync", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusAccepted, w.Body.String())
	}

	cmds := env.transport.commands("esprfid/front-door/cmd")
	if len(cmds) != 1 {
		t.Fatalf("published commands = %d, want 1", len(cmds))
	}

	var payload map[string]any
	if err := json.Unmarshal(cmds[0], &payload); err != nil {
		t.Fatalf("unmarshal command: %v", err)
	}
	if payload["cmd"] != "adduser" {
		t.Errorf("cmd = %v, want adduser", payload["cmd"])
	}
	if payload["uid"] != "CAFEF00D" {
		t.Errorf("uid = %v, want CAFEF00D", payload["uid"])
	}
	if payload["acctype"] != float64(user.ClassAdmin) {
		t.Errorf("acctype = %v, want %d", payload["acctype"], user.ClassAdmin)
	}
}

// ─── User and Permission Tests ─────────────────────────────────────

func TestCreateAndGetUser(t *testing.T) {
	env := newTestEnv(t)

	body := `{"name": "Alice", "card_uid": "DEADBEEF", "access_class": 1}`
	w := env.do(http.MethodPost, "/api/v1/users", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var created user.User
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal created: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected user ID to be generated")
	}

	w = env.do(http.MethodGet, "/api/v1/users/"+created.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, want %d", w.Code, http.StatusOK)
	}

	var got user.User
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal got: %v", err)
	}
	if got.Name != "Alice" {
		t.Errorf("name = %q, want Alice", got.Name)
	}
	if got.CardUID == nil || *got.CardUID != "DEADBEEF" {
		t.Errorf("card_uid = %v, want DEADBEEF", got.CardUID)
	}
}

func TestCreateUser_DuplicateUID(t *testing.T) {
	env := newTestEnv(t)

	body := `{"name": "Alice", "card_uid": "DEADBEEF", "access_class": 1}`
	if w := env.do(http.MethodPost, "/api/v1/users", body); w.Code != http.StatusCreated {
		t.Fatalf("first create status = %d", w.Code)
	}

	body = `{"name": "Mallory", "card_uid": "DEADBEEF", "access_class": 1}`
	w := env.do(http.MethodPost, "/api/v1/users", body)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestCreateUser_InvalidJSON(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/users", "not json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestUpdateUser_Rename(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u := &user.User{Name: "Alice", AccessClass: user.ClassAlways}
	if err := env.users.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}

	w := env.do(http.MethodPatch, "/api/v1/users/"+u.ID, `{"name": "Alicia"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	got, err := env.users.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Name != "Alicia" {
		t.Errorf("name = %q, want Alicia", got.Name)
	}
}

func TestUpdateUser_CardChangePushesToDevices(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedDevice(t, "front-door", "10.0.0.5")

	uid := "OLDCARD1"
	u := &user.User{Name: "Alice", CardUID: &uid, AccessClass: user.ClassAlways}
	if err := env.users.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	perm := &user.Permission{UserID: u.ID, DeviceHostname: "front-door", AccessClass: user.ClassAlways}
	if err := env.users.SetPermission(ctx, perm); err != nil {
		t.Fatalf("SetPermission: %v", err)
	}

	w := env.do(http.MethodPatch, "/api/v1/users/"+u.ID, `{"card_uid": "NEWCARD2"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	cmds := env.transport.commands("esprfid/front-door/cmd")
	if len(cmds) != 2 {
		t.Fatalf("published commands = %d, want 2 (revoke + enroll)", len(cmds))
	}

	var revoke, enroll map[string]any
	if err := json.Unmarshal(cmds[0], &revoke); err != nil {
		t.Fatalf("unmarshal revoke: %v", err)
	}
	if err := json.Unmarshal(cmds[1], &enroll); err != nil {
		t.Fatalf("unmarshal enroll: %v", err)
	}

	if revoke["cmd"] != "deletuid" || revoke["uid"] != "OLDCARD1" {
		t.Errorf("revoke = %v, want deletuid OLDCARD1", revoke)
	}
	if enroll["cmd"] != "adduser" || enroll["uid"] != "NEWCARD2" {
		t.Errorf("enroll = %v, want adduser NEWCARD2", enroll)
	}

	resp := decodeBody(t, w)
	push, ok := resp["push"].(map[string]any)
	if !ok {
		t.Fatalf("response missing push map: %v", resp)
	}
	if push["front-door"] != "sent" {
		t.Errorf(`push["front-door"] = %v, want "sent"`, push["front-door"])
	}
}

func TestUpdateUser_CardChangeReportsPartialFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedDevice(t, "front-door", "10.0.0.5")
	env.seedDevice(t, "lab-door", "10.0.0.6")
	env.transport.failTopic("esprfid/lab-door/cmd")

	uid := "OLDCARD1"
	u := &user.User{Name: "Alice", CardUID: &uid, AccessClass: user.ClassAlways}
	if err := env.users.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, hostname := range []string{"front-door", "lab-door"} {
		perm := &user.Permission{UserID: u.ID, DeviceHostname: hostname, AccessClass: user.ClassAlways}
		if err := env.users.SetPermission(ctx, perm); err != nil {
			t.Fatalf("SetPermission(%s): %v", hostname, err)
		}
	}

	w := env.do(http.MethodPatch, "/api/v1/users/"+u.ID, `{"card_uid": "NEWCARD2"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	resp := decodeBody(t, w)
	push, ok := resp["push"].(map[string]any)
	if !ok {
		t.Fatalf("response missing push map: %v", resp)
	}
	if push["front-door"] != "sent" {
		t.Errorf(`push["front-door"] = %v, want "sent"`, push["front-door"])
	}
	if push["lab-door"] != "publish_failed" {
		t.Errorf(`push["lab-door"] = %v, want "publish_failed"`, push["lab-door"])
	}
}

func TestDeleteUser_RevokesCard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedDevice(t, "front-door", "10.0.0.5")

	uid := "DEADBEEF"
	u := &user.User{Name: "Alice", CardUID: &uid, AccessClass: user.ClassAlways}
	if err := env.users.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	perm := &user.Permission{UserID: u.ID, DeviceHostname: "front-door", AccessClass: user.ClassAlways}
	if err := env.users.SetPermission(ctx, perm); err != nil {
		t.Fatalf("SetPermission: %v", err)
	}

	w := env.do(http.MethodDelete, "/api/v1/users/"+u.ID, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusNoContent, w.Body.String())
	}

	cmds := env.transport.commands("esprfid/front-door/cmd")
	if len(cmds) != 1 {
		t.Fatalf("published commands = %d, want 1", len(cmds))
	}
	var payload map[string]any
	if err := json.Unmarshal(cmds[0], &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload["cmd"] != "deletuid" || payload["uid"] != "DEADBEEF" {
		t.Errorf("payload = %v, want deletuid DEADBEEF", payload)
	}

	if _, err := env.users.GetByID(ctx, u.ID); err == nil {
		t.Error("user still present after delete")
	}
}

func TestSetPermission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedDevice(t, "front-door", "10.0.0.5")

	uid := "DEADBEEF"
	u := &user.User{Name: "Alice", CardUID: &uid, AccessClass: user.ClassAlways}
	if err := env.users.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}

	w := env.do(http.MethodPut, "/api/v1/users/"+u.ID+"/permissions/front-door", `{"access_class": 99}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	resp := decodeBody(t, w)
	if resp["outcome"] != "sent" {
		t.Errorf("outcome = %v, want sent", resp["outcome"])
	}

	perms, err := env.users.ListPermissions(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListPermissions: %v", err)
	}
	if len(perms) != 1 || perms[0].AccessClass != user.ClassAdmin {
		t.Errorf("permissions = %+v, want one admin binding", perms)
	}

	// The class change is pushed to the device immediately.
	cmds := env.transport.commands("esprfid/front-door/cmd")
	if len(cmds) != 1 {
		t.Fatalf("published commands = %d, want 1", len(cmds))
	}
}

func TestSetPermission_InvalidClass(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u := &user.User{Name: "Alice", AccessClass: user.ClassAlways}
	if err := env.users.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}

	w := env.do(http.MethodPut, "/api/v1/users/"+u.ID+"/permissions/front-door", `{"access_class": 42}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestDeletePermission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedDevice(t, "front-door", "10.0.0.5")

	uid := "DEADBEEF"
	u := &user.User{Name: "Alice", CardUID: &uid, AccessClass: user.ClassAlways}
	if err := env.users.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	perm := &user.Permission{UserID: u.ID, DeviceHostname: "front-door", AccessClass: user.ClassAlways}
	if err := env.users.SetPermission(ctx, perm); err != nil {
		t.Fatalf("SetPermission: %v", err)
	}

	w := env.do(http.MethodDelete, "/api/v1/users/"+u.ID+"/permissions/front-door", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	perms, err := env.users.ListPermissions(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListPermissions: %v", err)
	}
	if len(perms) != 0 {
		t.Errorf("permissions remaining = %d, want 0", len(perms))
	}

	cmds := env.transport.commands("esprfid/front-door/cmd")
	if len(cmds) != 1 {
		t.Fatalf("published commands = %d, want 1", len(cmds))
	}
	var payload map[string]any
	if err := json.Unmarshal(cmds[0], &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload["cmd"] != "deletuid" {
		t.Errorf("cmd = %v, want deletuid", payload["cmd"])
	}
}

func TestDeletePermission_NotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u := &user.User{Name: "Alice", AccessClass: user.ClassAlways}
	if err := env.users.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}

	w := env.do(http.MethodDelete, "/api/v1/users/"+u.ID+"/permissions/front-door", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestListPermissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u := &user.User{Name: "Alice", AccessClass: user.ClassAlways}
	if err := env.users.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, hostname := range []string{"front-door", "back-door"} {
		perm := &user.Permission{UserID: u.ID, DeviceHostname: hostname, AccessClass: user.ClassAlways}
		if err := env.users.SetPermission(ctx, perm); err != nil {
			t.Fatalf("SetPermission(%s): %v", hostname, err)
		}
	}

	w := env.do(http.MethodGet, "/api/v1/users/"+u.ID+"/permissions", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	resp := decodeBody(t, w)
	if int(resp["count"].(float64)) != 2 {
		t.Errorf("count = %v, want 2", resp["count"])
	}
}

// ─── Access Log Tests ──────────────────────────────────────────────

func seedAccessLog(t *testing.T, env *testEnv, hostname string, eventTime time.Time, granted bool) {
	t.Helper()
	err := env.logs.Append(context.Background(), &accesslog.Entry{
		Hostname:  hostname,
		DoorName:  "Front",
		Username:  "Alice",
		CardUID:   "DEADBEEF",
		Granted:   granted,
		KnownCard: true,
		EventTime: eventTime,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
}

func TestListAccessLogs(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC()
	seedAccessLog(t, env, "front-door", now.Add(-2*time.Hour), true)
	seedAccessLog(t, env, "front-door", now.Add(-time.Hour), false)
	seedAccessLog(t, env, "back-door", now, true)

	w := env.do(http.MethodGet, "/api/v1/access-logs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	resp := decodeBody(t, w)
	if int(resp["count"].(float64)) != 3 {
		t.Errorf("count = %v, want 3", resp["count"])
	}

	w = env.do(http.MethodGet, "/api/v1/access-logs?hostname=front-door", "")
	resp = decodeBody(t, w)
	if int(resp["count"].(float64)) != 2 {
		t.Errorf("hostname filter count = %v, want 2", resp["count"])
	}

	since := now.Add(-90 * time.Minute).Format(time.RFC3339)
	w = env.do(http.MethodGet, "/api/v1/access-logs?since="+since, "")
	resp = decodeBody(t, w)
	if int(resp["count"].(float64)) != 2 {
		t.Errorf("since filter count = %v, want 2", resp["count"])
	}

	w = env.do(http.MethodGet, "/api/v1/access-logs?limit=1", "")
	resp = decodeBody(t, w)
	if int(resp["count"].(float64)) != 1 {
		t.Errorf("limit count = %v, want 1", resp["count"])
	}
}

func TestListAccessLogs_BadQuery(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/access-logs?since=yesterday", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad since status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	w = env.do(http.MethodGet, "/api/v1/access-logs?limit=-5", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestAccessLogStats(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC()
	seedAccessLog(t, env, "front-door", now, true)
	seedAccessLog(t, env, "front-door", now, false)
	seedAccessLog(t, env, "back-door", now, true)

	w := env.do(http.MethodGet, "/api/v1/access-logs/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	resp := decodeBody(t, w)
	byDevice, ok := resp["by_device"].(map[string]any)
	if !ok {
		t.Fatalf("by_device is not a map: %T", resp["by_device"])
	}
	if int(byDevice["front-door"].(float64)) != 2 {
		t.Errorf("front-door count = %v, want 2", byDevice["front-door"])
	}
}

// ─── Detection Session Tests ───────────────────────────────────────

func TestDetection_StartPeekStop(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/detection/start", "")
	if w.Code != http.StatusOK {
		t.Fatalf("start status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	resp := decodeBody(t, w)
	if resp["active"] != true {
		t.Errorf("active = %v, want true", resp["active"])
	}
	if resp["scope"] != "enrollment" {
		t.Errorf("scope = %v, want enrollment", resp["scope"])
	}
	if resp["preempted"] != false {
		t.Errorf("preempted = %v, want false", resp["preempted"])
	}

	// Simulate a card scan arriving while detecting.
	env.srv.engine.Session().Offer("DEADBEEF", "front-door", time.Now().UTC())

	w = env.do(http.MethodGet, "/api/v1/detection", "")
	resp = decodeBody(t, w)
	if resp["active"] != true {
		t.Errorf("peek active = %v, want true", resp["active"])
	}
	capture, ok := resp["capture"].(map[string]any)
	if !ok {
		t.Fatalf("capture missing: %v", resp)
	}
	if capture["uid"] != "DEADBEEF" {
		t.Errorf("capture uid = %v, want DEADBEEF", capture["uid"])
	}

	// Peek does not consume the capture.
	w = env.do(http.MethodGet, "/api/v1/detection", "")
	resp = decodeBody(t, w)
	if _, ok := resp["capture"]; !ok {
		t.Error("capture consumed by peek")
	}

	w = env.do(http.MethodDelete, "/api/v1/detection", "")
	resp = decodeBody(t, w)
	if resp["active"] != false {
		t.Errorf("stop active = %v, want false", resp["active"])
	}

	w = env.do(http.MethodGet, "/api/v1/detection", "")
	resp = decodeBody(t, w)
	if resp["active"] != false {
		t.Errorf("peek after stop active = %v, want false", resp["active"])
	}
	if _, ok := resp["capture"]; ok {
		t.Error("capture survived stop")
	}
}

func TestDetection_StartWithScopePreempts(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(http.MethodPost, "/api/v1/detection/start", `{"scope": "audit"}`); w.Code != http.StatusOK {
		t.Fatalf("first start status = %d", w.Code)
	}

	w := env.do(http.MethodPost, "/api/v1/detection/start", `{"scope": "enrollment"}`)
	resp := decodeBody(t, w)
	if resp["preempted"] != true {
		t.Errorf("preempted = %v, want true", resp["preempted"])
	}
	if resp["scope"] != "enrollment" {
		t.Errorf("scope = %v, want enrollment", resp["scope"])
	}
}
