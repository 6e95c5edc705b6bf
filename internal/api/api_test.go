package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"gridwatch/internal/alerting"
	"gridwatch/internal/db"
	"gridwatch/internal/model"
	"gridwatch/internal/syncer"
)

func newTestServer(t *testing.T) (*gin.Engine, *db.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	h := &Handler{
		Store:     store,
		Generator: alerting.NewGenerator(store, nil),
		Poller:    syncer.NewPoller(store, syncer.Options{URL: "http://remote/api"}),
	}
	return NewRouter(h), store
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), into); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := newTestServer(t)
	w := doJSON(t, r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDeviceLifecycle(t *testing.T) {
	r, _ := newTestServer(t)

	w := doJSON(t, r, http.MethodPost, "/api/devices", gin.H{"name": "Feeder A", "location": "Basement"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var dev model.Device
	decode(t, w, &dev)
	if dev.ID == "" || dev.Name != "Feeder A" {
		t.Fatalf("unexpected device: %+v", dev)
	}

	w = doJSON(t, r, http.MethodGet, "/api/devices/"+dev.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPut, "/api/devices/"+dev.ID, gin.H{"name": "Feeder A2", "location": "Roof"})
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodDelete, "/api/devices/"+dev.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", w.Code)
	}
	w = doJSON(t, r, http.MethodGet, "/api/devices/"+dev.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", w.Code)
	}
}

func TestCreateDeviceEmptyName(t *testing.T) {
	r, _ := newTestServer(t)
	w := doJSON(t, r, http.MethodPost, "/api/devices", gin.H{"name": "   "})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestBindingValidation(t *testing.T) {
	r, store := newTestServer(t)
	dev := &model.Device{Name: "Feeder A"}
	if err := store.CreateDevice(context.Background(), dev); err != nil {
		t.Fatalf("seed device: %v", err)
	}

	w := doJSON(t, r, http.MethodPost, "/api/macs", gin.H{"device_id": dev.ID, "mac_address": "garbage"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid mac: expected 400, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/api/macs", gin.H{"device_id": "missing", "mac_address": "AA:BB:CC:DD:EE:01"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown device: expected 404, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/api/macs", gin.H{"device_id": dev.ID, "mac_address": "AA:BB:CC:DD:EE:01"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/api/macs", gin.H{"device_id": dev.ID, "mac_address": "aa:bb:cc:dd:ee:01"})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate: expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestIngestReading(t *testing.T) {
	r, store := newTestServer(t)
	dev := &model.Device{Name: "Feeder A"}
	if err := store.CreateDevice(context.Background(), dev); err != nil {
		t.Fatalf("seed device: %v", err)
	}
	b := &model.DeviceBinding{DeviceID: dev.ID, MacAddress: "AA:BB:CC:DD:EE:01"}
	if err := store.CreateBinding(context.Background(), b); err != nil {
		t.Fatalf("seed binding: %v", err)
	}

	payload := gin.H{
		"mac_address":  "AA:BB:CC:DD:EE:01",
		"reading_time": "2026-08-30T10:00:00Z",
		"r_voltage":    231.4,
	}
	w := doJSON(t, r, http.MethodPost, "/api/readings", payload)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	// Same (device, timestamp) again is a no-op, not an error.
	w = doJSON(t, r, http.MethodPost, "/api/readings", payload)
	if w.Code != http.StatusOK {
		t.Fatalf("duplicate: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/api/readings", gin.H{"mac_address": "11:22:33:44:55:66"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("unregistered: expected 404, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/api/readings", gin.H{"mac_address": "AA:BB:CC:DD:EE:01", "reading_time": "bogus"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad timestamp: expected 400, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/api/readings/latest/"+dev.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("latest: expected 200, got %d", w.Code)
	}
	var latest model.Reading
	decode(t, w, &latest)
	if latest.RVoltage == nil || *latest.RVoltage != 231.4 {
		t.Fatalf("latest reading mismatch: %+v", latest.Measurements)
	}
}

func TestIngestReadingWithoutTimestampUsesReceiptTime(t *testing.T) {
	r, store := newTestServer(t)
	dev := &model.Device{Name: "Feeder A"}
	if err := store.CreateDevice(context.Background(), dev); err != nil {
		t.Fatalf("seed device: %v", err)
	}
	b := &model.DeviceBinding{DeviceID: dev.ID, MacAddress: "AA:BB:CC:DD:EE:02"}
	if err := store.CreateBinding(context.Background(), b); err != nil {
		t.Fatalf("seed binding: %v", err)
	}

	before := time.Now().UTC().Add(-time.Second)
	w := doJSON(t, r, http.MethodPost, "/api/readings", gin.H{"mac_address": "AA:BB:CC:DD:EE:02"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created model.Reading
	decode(t, w, &created)
	if created.ReadingTime.Before(before) {
		t.Fatalf("expected receipt-time stamp, got %v", created.ReadingTime)
	}
}

func TestListAlertsRejectsBadFilters(t *testing.T) {
	r, _ := newTestServer(t)
	if w := doJSON(t, r, http.MethodGet, "/api/alerts?type=bogus", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad type: expected 400, got %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodGet, "/api/alerts?severity=bogus", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad severity: expected 400, got %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodGet, "/api/alerts?type=over_voltage&severity=critical", nil); w.Code != http.StatusOK {
		t.Fatalf("valid filters: expected 200, got %d", w.Code)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	r, _ := newTestServer(t)

	w := doJSON(t, r, http.MethodGet, "/api/settings", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", w.Code)
	}
	var s model.Settings
	decode(t, w, &s)
	if s.VoltageMax != 250 {
		t.Fatalf("expected default settings, got %+v", s)
	}

	w = doJSON(t, r, http.MethodPut, "/api/settings", gin.H{"voltage_max": 260})
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var updated struct {
		Settings model.Settings `json:"settings"`
	}
	decode(t, w, &updated)
	if updated.Settings.VoltageMax != 260 {
		t.Fatalf("update not applied: %+v", updated.Settings)
	}

	w = doJSON(t, r, http.MethodPut, "/api/settings", gin.H{"pf_min": 2.0})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid pf_min: expected 400, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/api/settings/reset", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d", w.Code)
	}
	decode(t, w, &updated)
	if updated.Settings.VoltageMax != 250 {
		t.Fatalf("reset not applied: %+v", updated.Settings)
	}
}

func TestGeneratorControlEndpoints(t *testing.T) {
	r, _ := newTestServer(t)

	w := doJSON(t, r, http.MethodGet, "/api/alerts/generator/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", w.Code)
	}
	var st alerting.Status
	decode(t, w, &st)
	if st.Running {
		t.Fatal("generator should start stopped")
	}

	if w := doJSON(t, r, http.MethodPost, "/api/alerts/generator/start", nil); w.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d", w.Code)
	}
	w = doJSON(t, r, http.MethodGet, "/api/alerts/generator/status", nil)
	decode(t, w, &st)
	if !st.Running {
		t.Fatal("generator should be running after start")
	}

	if w := doJSON(t, r, http.MethodPost, "/api/alerts/generator/stop", nil); w.Code != http.StatusOK {
		t.Fatalf("stop: expected 200, got %d", w.Code)
	}
	w = doJSON(t, r, http.MethodGet, "/api/alerts/generator/status", nil)
	decode(t, w, &st)
	if st.Running {
		t.Fatal("generator should be stopped after stop")
	}
}

func TestSyncStatusEndpoint(t *testing.T) {
	r, _ := newTestServer(t)
	w := doJSON(t, r, http.MethodGet, "/api/sync/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var st syncer.Status
	decode(t, w, &st)
	if st.Running {
		t.Fatal("poller should start stopped")
	}
	if st.URL != "http://remote/api" {
		t.Fatalf("unexpected url: %s", st.URL)
	}
}

func TestStatsEndpoint(t *testing.T) {
	r, store := newTestServer(t)
	dev := &model.Device{Name: "Feeder A"}
	if err := store.CreateDevice(context.Background(), dev); err != nil {
		t.Fatalf("seed device: %v", err)
	}

	w := doJSON(t, r, http.MethodGet, "/api/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var st db.Stats
	decode(t, w, &st)
	if st.Devices != 1 {
		t.Fatalf("expected 1 device in stats, got %d", st.Devices)
	}
}
