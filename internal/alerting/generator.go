package alerting

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"gridwatch/internal/db"
	"gridwatch/internal/logger"
	"gridwatch/internal/metrics"
	"gridwatch/internal/model"
)

// Broadcaster pushes created alerts to live subscribers.
type Broadcaster interface {
	BroadcastAlert(alert model.Alert)
}

// Generator is the scheduled loop that derives alerts from device liveness
// and recent readings. Owned object: construct once, start/stop via methods.
// Start while running and Stop while stopped are no-ops.
type Generator struct {
	store *db.DB
	hub   Broadcaster

	mu       sync.Mutex
	running  bool
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}

	now func() time.Time
}

// Status describes the generator for the operational-control surface.
type Status struct {
	Running    bool  `json:"running"`
	IntervalMS int64 `json:"check_interval"`
}

// NewGenerator constructs a stopped generator. hub may be nil.
func NewGenerator(store *db.DB, hub Broadcaster) *Generator {
	return &Generator{
		store:    store,
		hub:      hub,
		interval: time.Minute,
		now:      time.Now,
	}
}

// Start launches the loop. The effective interval is re-read from settings
// here, so interval changes take effect on restart. Idempotent.
func (g *Generator) Start() {
	log := logger.WithComponent("alert_generator")

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		log.Warn().Msg("alert generator already running")
		return
	}

	if s, err := g.store.LoadSettings(context.Background()); err != nil {
		log.Error().Err(err).Msg("loading settings failed, using previous interval")
	} else if s.CheckInterval() > 0 {
		g.interval = s.CheckInterval()
	}

	g.running = true
	g.stop = make(chan struct{})
	g.done = make(chan struct{})
	go g.loop(g.stop, g.done)

	log.Info().Dur("interval", g.interval).Msg("alert generator started")
}

// Stop prevents the next scheduled cycle. An in-flight cycle is not
// interrupted. Idempotent.
func (g *Generator) Stop() {
	log := logger.WithComponent("alert_generator")

	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		log.Warn().Msg("alert generator not running")
		return
	}
	g.running = false
	close(g.stop)
	done := g.done
	g.mu.Unlock()

	<-done
	log.Info().Msg("alert generator stopped")
}

// Status returns the current state.
func (g *Generator) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Status{
		Running:    g.running,
		IntervalMS: g.interval.Milliseconds(),
	}
}

// loop runs an immediate first cycle, then fixed-delay cycles: the next
// timer is armed only after the current cycle's body completes, so cycles
// never overlap.
func (g *Generator) loop(stop, done chan struct{}) {
	defer close(done)
	for {
		g.runCycle()

		timer := time.NewTimer(g.currentInterval())
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (g *Generator) currentInterval() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.interval
}

// runCycle executes one cycle; all errors and panics are contained here so
// the timer keeps firing.
func (g *Generator) runCycle() {
	log := logger.WithComponent("alert_generator")
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("cycle panic recovered")
			metrics.AlertCyclesTotal.WithLabelValues("failed").Inc()
		}
	}()

	start := g.now()
	outcome := g.CheckOnce(context.Background())
	metrics.AlertCycleDuration.Observe(g.now().Sub(start).Seconds())
	metrics.AlertCyclesTotal.WithLabelValues(outcome).Inc()
}

// CheckOnce runs a single evaluation cycle and reports its outcome
// (completed, skipped or failed). Exported so tests and admin tooling can
// drive cycles without the timer.
func (g *Generator) CheckOnce(ctx context.Context) string {
	log := logger.WithComponent("alert_generator")

	settings, err := g.store.LoadSettings(ctx)
	if err != nil {
		// Skip offline/threshold checks for this cycle only.
		log.Error().Err(err).Msg("loading settings failed, skipping cycle")
		return "failed"
	}
	if !settings.NotificationsEnabled {
		return "skipped"
	}

	if err := g.checkOfflineDevices(ctx, settings); err != nil {
		log.Error().Err(err).Msg("offline check failed")
	}
	if err := g.checkThresholds(ctx, settings); err != nil {
		log.Error().Err(err).Msg("threshold check failed")
	}
	return "completed"
}

// checkOfflineDevices raises a device_offline alert for every device whose
// last reading is older than the offline cutoff, or that never reported.
// The cutoff itself doubles as the duplicate-search bound: an unresolved
// offline alert created at or after it suppresses a new one, so a silent
// device re-alerts once per threshold span rather than never again.
func (g *Generator) checkOfflineDevices(ctx context.Context, settings model.Settings) error {
	log := logger.WithComponent("alert_generator")

	devices, err := g.store.ListDevices(ctx)
	if err != nil {
		return err
	}
	cutoff := g.now().Add(-settings.OfflineThreshold())

	for _, dev := range devices {
		last, err := g.store.LatestReading(ctx, dev.ID)
		if err != nil {
			log.Error().Err(err).Str("device_id", dev.ID).Msg("latest reading lookup failed")
			continue
		}
		offline := last == nil || last.ReadingTime.Before(cutoff)
		if !offline {
			continue
		}

		existing, err := g.store.FindUnresolvedAlert(ctx, dev.ID, model.AlertDeviceOffline, cutoff)
		if err != nil {
			log.Error().Err(err).Str("device_id", dev.ID).Msg("duplicate alert lookup failed")
			continue
		}
		if existing != nil {
			metrics.AlertsSuppressedTotal.WithLabelValues(string(model.AlertDeviceOffline)).Inc()
			continue
		}

		g.createAlert(ctx, model.Alert{
			DeviceID: dev.ID,
			Type:     model.AlertDeviceOffline,
			Severity: model.SeverityCritical,
			Message: fmt.Sprintf("Device %s has not sent data for over %d minutes",
				dev.Name, settings.DeviceOfflineThresholdMin),
		}, dev.Name)
	}
	return nil
}

// checkThresholds evaluates readings produced since the last cycle boundary
// against the settings thresholds, suppressing duplicates per candidate
// window.
func (g *Generator) checkThresholds(ctx context.Context, settings model.Settings) error {
	log := logger.WithComponent("alert_generator")

	cutoff := g.now().Add(-g.currentInterval())
	readings, err := g.store.ReadingsSince(ctx, cutoff)
	if err != nil {
		return err
	}

	for i := range readings {
		reading := &readings[i]
		if reading.Device == nil {
			// Orphaned reading; its device was deleted mid-flight.
			continue
		}

		for _, cand := range Evaluate(&reading.Measurements, settings) {
			since := g.now().Add(-cand.Window)
			existing, err := g.store.FindUnresolvedAlert(ctx, reading.DeviceID, cand.Type, since)
			if err != nil {
				log.Error().Err(err).Str("device_id", reading.DeviceID).Msg("duplicate alert lookup failed")
				continue
			}
			if existing != nil {
				metrics.AlertsSuppressedTotal.WithLabelValues(string(cand.Type)).Inc()
				continue
			}

			value := cand.Value
			threshold := cand.Threshold
			readingID := reading.ID
			g.createAlert(ctx, model.Alert{
				DeviceID:  reading.DeviceID,
				Type:      cand.Type,
				Severity:  cand.Severity,
				Message:   cand.Message,
				ReadingID: &readingID,
				Value:     &value,
				Threshold: &threshold,
			}, reading.Device.Name)
		}
	}
	return nil
}

func (g *Generator) createAlert(ctx context.Context, alert model.Alert, deviceName string) {
	log := logger.WithComponent("alert_generator")

	if err := g.store.InsertAlert(ctx, &alert); err != nil {
		log.Error().Err(err).Str("device_id", alert.DeviceID).Str("type", string(alert.Type)).Msg("alert insert failed")
		return
	}
	metrics.AlertsCreatedTotal.WithLabelValues(string(alert.Type), string(alert.Severity)).Inc()
	log.Info().
		Str("device", deviceName).
		Str("type", string(alert.Type)).
		Str("severity", string(alert.Severity)).
		Msg(alert.Message)

	if g.hub != nil {
		g.hub.BroadcastAlert(alert)
	}
}
