package alerting

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"gridwatch/internal/db"
	"gridwatch/internal/model"
)

func newTestStore(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func createTestDevice(t *testing.T, store *db.DB, name string) *model.Device {
	t.Helper()
	dev := &model.Device{Name: name}
	if err := store.CreateDevice(context.Background(), dev); err != nil {
		t.Fatalf("creating device: %v", err)
	}
	return dev
}

func insertTestReading(t *testing.T, store *db.DB, deviceID string, at time.Time, m model.Measurements) {
	t.Helper()
	r := &model.Reading{
		ID:           uuid.NewString(),
		DeviceID:     deviceID,
		ReadingTime:  at,
		Measurements: m,
	}
	if err := store.InsertReading(context.Background(), r); err != nil {
		t.Fatalf("inserting reading: %v", err)
	}
}

func listDeviceAlerts(t *testing.T, store *db.DB, deviceID string, typ model.AlertType) []model.Alert {
	t.Helper()
	alerts, _, err := store.ListAlerts(context.Background(), db.AlertFilter{DeviceID: deviceID, Type: typ})
	if err != nil {
		t.Fatalf("listing alerts: %v", err)
	}
	return alerts
}

func TestCheckOnceThresholdBreachCreatesAlert(t *testing.T) {
	store := newTestStore(t)
	gen := NewGenerator(store, nil)
	dev := createTestDevice(t, store, "Feeder A")

	insertTestReading(t, store, dev.ID, time.Now().UTC(), model.Measurements{RVoltage: f(260)})

	if outcome := gen.CheckOnce(context.Background()); outcome != "completed" {
		t.Fatalf("expected completed cycle, got %s", outcome)
	}

	alerts := listDeviceAlerts(t, store, dev.ID, model.AlertOverVoltage)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 over_voltage alert, got %d", len(alerts))
	}
	a := alerts[0]
	if a.Severity != model.SeverityCritical {
		t.Errorf("expected critical severity, got %s", a.Severity)
	}
	if a.Value == nil || *a.Value != 260 {
		t.Errorf("expected alert value 260, got %v", a.Value)
	}
	if a.Threshold == nil || *a.Threshold != 250 {
		t.Errorf("expected alert threshold 250, got %v", a.Threshold)
	}
	if a.ReadingID == nil {
		t.Error("expected alert to reference the triggering reading")
	}
}

func TestCheckOnceSuppressesWithinWindow(t *testing.T) {
	store := newTestStore(t)
	gen := NewGenerator(store, nil)
	dev := createTestDevice(t, store, "Feeder B")

	now := time.Now().UTC()
	insertTestReading(t, store, dev.ID, now.Add(-30*time.Second), model.Measurements{RVoltage: f(260)})
	gen.CheckOnce(context.Background())

	// A second breach inside the 5 minute window must not raise a second alert.
	insertTestReading(t, store, dev.ID, now, model.Measurements{RVoltage: f(265)})
	gen.CheckOnce(context.Background())

	alerts := listDeviceAlerts(t, store, dev.ID, model.AlertOverVoltage)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert after repeated breach, got %d", len(alerts))
	}
}

func TestCheckOnceReAlertsAfterWindowExpires(t *testing.T) {
	store := newTestStore(t)
	gen := NewGenerator(store, nil)
	dev := createTestDevice(t, store, "Feeder E")

	now := time.Now().UTC()
	insertTestReading(t, store, dev.ID, now.Add(-30*time.Second), model.Measurements{RVoltage: f(260)})
	gen.CheckOnce(context.Background())

	alerts := listDeviceAlerts(t, store, dev.ID, model.AlertOverVoltage)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}

	// Age the alert past the 5 minute voltage window. The duplicate search
	// only looks back that far, so a continuing breach raises a fresh alert
	// even while the old one is still unresolved.
	err := store.ORM.Model(&model.Alert{}).
		Where("id = ?", alerts[0].ID).
		Update("created_at", now.Add(-6*time.Minute)).Error
	if err != nil {
		t.Fatalf("aging alert: %v", err)
	}

	insertTestReading(t, store, dev.ID, now, model.Measurements{RVoltage: f(261)})
	gen.CheckOnce(context.Background())

	alerts = listDeviceAlerts(t, store, dev.ID, model.AlertOverVoltage)
	if len(alerts) != 2 {
		t.Fatalf("expected a second alert after the window expired, got %d", len(alerts))
	}
	for _, a := range alerts {
		if a.Resolved {
			t.Errorf("alert %s unexpectedly resolved", a.ID)
		}
	}
}

func TestCheckOnceResolvedAlertDoesNotSuppress(t *testing.T) {
	store := newTestStore(t)
	gen := NewGenerator(store, nil)
	dev := createTestDevice(t, store, "Feeder C")

	now := time.Now().UTC()
	insertTestReading(t, store, dev.ID, now.Add(-20*time.Second), model.Measurements{RVoltage: f(260)})
	gen.CheckOnce(context.Background())

	alerts := listDeviceAlerts(t, store, dev.ID, model.AlertOverVoltage)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if _, err := store.ResolveAlert(context.Background(), alerts[0].ID, "operator"); err != nil {
		t.Fatalf("resolving alert: %v", err)
	}

	insertTestReading(t, store, dev.ID, now, model.Measurements{RVoltage: f(262)})
	gen.CheckOnce(context.Background())

	alerts = listDeviceAlerts(t, store, dev.ID, model.AlertOverVoltage)
	if len(alerts) != 2 {
		t.Fatalf("expected a fresh alert after resolution, got %d total", len(alerts))
	}
}

func TestCheckOnceOfflineDevice(t *testing.T) {
	store := newTestStore(t)
	gen := NewGenerator(store, nil)
	stale := createTestDevice(t, store, "Basement Meter")
	fresh := createTestDevice(t, store, "Rooftop Meter")

	now := time.Now().UTC()
	// Default offline threshold is 60 minutes.
	insertTestReading(t, store, stale.ID, now.Add(-61*time.Minute), model.Measurements{RVoltage: f(230)})
	insertTestReading(t, store, fresh.ID, now.Add(-59*time.Minute), model.Measurements{RVoltage: f(230)})

	gen.CheckOnce(context.Background())

	alerts := listDeviceAlerts(t, store, stale.ID, model.AlertDeviceOffline)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 offline alert for stale device, got %d", len(alerts))
	}
	if alerts[0].Severity != model.SeverityCritical {
		t.Errorf("expected critical severity, got %s", alerts[0].Severity)
	}
	if got := listDeviceAlerts(t, store, fresh.ID, model.AlertDeviceOffline); len(got) != 0 {
		t.Fatalf("expected no offline alert for fresh device, got %d", len(got))
	}

	// A second cycle must suppress the duplicate.
	gen.CheckOnce(context.Background())
	if got := listDeviceAlerts(t, store, stale.ID, model.AlertDeviceOffline); len(got) != 1 {
		t.Fatalf("expected offline alert suppressed on second cycle, got %d", len(got))
	}
}

func TestCheckOnceNeverReportedDeviceIsOffline(t *testing.T) {
	store := newTestStore(t)
	gen := NewGenerator(store, nil)
	dev := createTestDevice(t, store, "Ghost Meter")

	gen.CheckOnce(context.Background())

	if got := listDeviceAlerts(t, store, dev.ID, model.AlertDeviceOffline); len(got) != 1 {
		t.Fatalf("expected offline alert for device with no readings, got %d", len(got))
	}
}

func TestCheckOnceSkippedWhenNotificationsDisabled(t *testing.T) {
	store := newTestStore(t)
	gen := NewGenerator(store, nil)
	dev := createTestDevice(t, store, "Muted Meter")

	disabled := false
	if _, err := store.UpdateSettings(context.Background(), db.SettingsUpdate{NotificationsEnabled: &disabled}); err != nil {
		t.Fatalf("disabling notifications: %v", err)
	}
	insertTestReading(t, store, dev.ID, time.Now().UTC(), model.Measurements{RVoltage: f(300)})

	if outcome := gen.CheckOnce(context.Background()); outcome != "skipped" {
		t.Fatalf("expected skipped cycle, got %s", outcome)
	}
	if got := listDeviceAlerts(t, store, dev.ID, ""); len(got) != 0 {
		t.Fatalf("expected no alerts with notifications disabled, got %d", len(got))
	}
}

func TestStartStopIdempotent(t *testing.T) {
	store := newTestStore(t)
	gen := NewGenerator(store, nil)

	if gen.Status().Running {
		t.Fatal("new generator should not be running")
	}

	gen.Start()
	gen.Start() // no-op
	if !gen.Status().Running {
		t.Fatal("generator should be running after Start")
	}
	if got := gen.Status().IntervalMS; got != 60000 {
		t.Errorf("expected default 60000ms interval, got %d", got)
	}

	gen.Stop()
	gen.Stop() // no-op
	if gen.Status().Running {
		t.Fatal("generator should be stopped after Stop")
	}
}

type captureHub struct {
	alerts []model.Alert
}

func (h *captureHub) BroadcastAlert(a model.Alert) { h.alerts = append(h.alerts, a) }

func TestCreatedAlertsAreBroadcast(t *testing.T) {
	store := newTestStore(t)
	hub := &captureHub{}
	gen := NewGenerator(store, hub)
	dev := createTestDevice(t, store, "Feeder D")

	insertTestReading(t, store, dev.ID, time.Now().UTC(), model.Measurements{BCurrent: f(45)})
	gen.CheckOnce(context.Background())

	var got *model.Alert
	for i := range hub.alerts {
		if hub.alerts[i].Type == model.AlertOverCurrent {
			got = &hub.alerts[i]
		}
	}
	if got == nil {
		t.Fatalf("expected an over_current broadcast, got %d alerts", len(hub.alerts))
	}
	if got.DeviceID != dev.ID {
		t.Errorf("broadcast alert for wrong device: %s", got.DeviceID)
	}
}
