package slotd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/msgslot/internal/device"
	"github.com/danmuck/msgslot/internal/slot"
	"github.com/danmuck/msgslot/internal/testutil/testlog"
	"github.com/kylelemons/godebug/pretty"
)

func get(t *testing.T, a *Admin, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	a.HTTPRouter().ServeHTTP(rr, req)
	return rr
}

func TestAdminHealthAndReady(t *testing.T) {
	testlog.Start(t)
	svc := NewService(ServiceConfig{Name: "slotd-admin"})
	a := NewAdmin(svc)

	rr := get(t, a, "/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("health status=%d body=%s", rr.Code, rr.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body["status"] != "ok" || body["service"] != "slotd-admin" {
		t.Fatalf("unexpected health body: %#v", body)
	}

	if rr := get(t, a, "/ready"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before serving, got %d", rr.Code)
	}
	svc.ready.Store(true)
	if rr := get(t, a, "/ready"); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 while serving, got %d", rr.Code)
	}

	if rr := get(t, a, "/metrics"); rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "msgslot_") {
		t.Fatalf("metrics status=%d", rr.Code)
	}
}

func TestAdminDevicesAndSlots(t *testing.T) {
	testlog.Start(t)
	svc := NewService(ServiceConfig{Devices: map[string]uint32{"/dev/b": 2, "/dev/a": 1}})
	a := NewAdmin(svc)

	var devices struct {
		Major   uint32        `json:"major"`
		Devices []DeviceEntry `json:"devices"`
	}
	rr := get(t, a, "/devices")
	if err := json.Unmarshal(rr.Body.Bytes(), &devices); err != nil {
		t.Fatalf("decode devices: %v", err)
	}
	wantDevices := []DeviceEntry{{Path: "/dev/a", Minor: 1}, {Path: "/dev/b", Minor: 2}}
	if devices.Major != 235 {
		t.Fatalf("unexpected major: %d", devices.Major)
	}
	if diff := pretty.Compare(wantDevices, devices.Devices); diff != "" {
		t.Fatalf("devices mismatch (-want +got):\n%s", diff)
	}

	f, err := svc.Device().Open(2)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := f.Ioctl(device.CmdSetChannel, 4); err != nil {
		t.Fatalf("ioctl: %v", err)
	}
	if _, err := f.Write([]byte("secret")); err != nil {
		t.Fatalf("write: %v", err)
	}

	rr = get(t, a, "/slots")
	if strings.Contains(rr.Body.String(), "secret") {
		t.Fatalf("slots leaked message content: %s", rr.Body.String())
	}
	var slots struct {
		Slots     []slot.SlotInfo `json:"slots"`
		SlotCount int             `json:"slot_count"`
		Channels  int             `json:"channels"`
		OpenFiles int64           `json:"open_files"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &slots); err != nil {
		t.Fatalf("decode slots: %v", err)
	}
	if slots.SlotCount != 1 || slots.Channels != 1 || slots.OpenFiles != 1 {
		t.Fatalf("unexpected slot counts: %+v", slots)
	}
	want := []slot.SlotInfo{{Minor: 2, Channels: []slot.ChannelInfo{{ID: 4, Length: 6}}}}
	if diff := pretty.Compare(want, slots.Slots); diff != "" {
		t.Fatalf("slots mismatch (-want +got):\n%s", diff)
	}
}

func TestAdminTokenGuardsInventory(t *testing.T) {
	testlog.Start(t)
	svc := NewService(ServiceConfig{AdminToken: "s3cret"})
	a := NewAdmin(svc)

	for _, path := range []string{"/devices", "/slots"} {
		if rr := get(t, a, path); rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s without token: status=%d", path, rr.Code)
		}
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer s3cret")
		rr := httptest.NewRecorder()
		a.HTTPRouter().ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s with token: status=%d", path, rr.Code)
		}
	}
	if rr := get(t, a, "/health"); rr.Code != http.StatusOK {
		t.Fatalf("health should stay open, got %d", rr.Code)
	}
}

func TestAdminMetricsLabelRouteGroups(t *testing.T) {
	testlog.Start(t)
	svc := NewService(ServiceConfig{Name: "slotd-groups", AdminToken: "s3cret"})
	a := NewAdmin(svc)

	if rr := get(t, a, "/slots"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if rr := get(t, a, "/health"); rr.Code != http.StatusOK {
		t.Fatalf("health status=%d", rr.Code)
	}
	get(t, a, "/nowhere")

	body := get(t, a, "/metrics").Body.String()
	for _, want := range []string{
		`group="inventory",method="GET",node="slotd-groups",path="/slots",status="401"`,
		`group="probe",method="GET",node="slotd-groups",path="/health",status="200"`,
		`group="unrouted",method="GET",node="slotd-groups",path="/nowhere",status="404"`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %s", want)
		}
	}
}
