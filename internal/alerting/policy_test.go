package alerting

import (
	"strings"
	"testing"

	"gridwatch/internal/model"
)

func f(v float64) *float64 { return &v }

func testSettings() model.Settings {
	s := model.DefaultSettings()
	s.VoltageMax = 250
	s.VoltageMin = 200
	s.CurrentMax = 30
	s.PFMin = 0.90
	return s
}

func TestEvaluateOverVoltage(t *testing.T) {
	m := model.Measurements{RVoltage: f(260)}
	cands := Evaluate(&m, testSettings())

	if len(cands) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(cands))
	}
	c := cands[0]
	if c.Type != model.AlertOverVoltage {
		t.Errorf("expected over_voltage, got %s", c.Type)
	}
	if c.Severity != model.SeverityCritical {
		t.Errorf("expected critical severity, got %s", c.Severity)
	}
	if c.Value != 260 || c.Threshold != 250 {
		t.Errorf("expected value=260 threshold=250, got value=%v threshold=%v", c.Value, c.Threshold)
	}
	if c.Phase != "R" {
		t.Errorf("expected phase R, got %s", c.Phase)
	}
	if want := "Phase R voltage exceeded maximum limit (260.0V > 250V)"; c.Message != want {
		t.Errorf("message mismatch:\n got: %s\nwant: %s", c.Message, want)
	}
	if c.Window != VoltageWindow {
		t.Errorf("expected voltage window, got %v", c.Window)
	}
}

func TestEvaluateInRangeVoltage(t *testing.T) {
	m := model.Measurements{RVoltage: f(235)}
	if cands := Evaluate(&m, testSettings()); len(cands) != 0 {
		t.Fatalf("expected no candidates for in-range voltage, got %d", len(cands))
	}
}

func TestEvaluateUnderVoltage(t *testing.T) {
	m := model.Measurements{YVoltage: f(185.5)}
	cands := Evaluate(&m, testSettings())

	if len(cands) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(cands))
	}
	c := cands[0]
	if c.Type != model.AlertUnderVoltage || c.Severity != model.SeverityWarning {
		t.Errorf("expected under_voltage/warning, got %s/%s", c.Type, c.Severity)
	}
	if c.Phase != "Y" {
		t.Errorf("expected phase Y, got %s", c.Phase)
	}
	if want := "Phase Y voltage below minimum limit (185.5V < 200V)"; c.Message != want {
		t.Errorf("message mismatch:\n got: %s\nwant: %s", c.Message, want)
	}
}

func TestEvaluateOverCurrent(t *testing.T) {
	m := model.Measurements{BCurrent: f(31.456)}
	cands := Evaluate(&m, testSettings())

	if len(cands) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(cands))
	}
	c := cands[0]
	if c.Type != model.AlertOverCurrent || c.Severity != model.SeverityCritical {
		t.Errorf("expected over_current/critical, got %s/%s", c.Type, c.Severity)
	}
	if !strings.Contains(c.Message, "31.46A > 30A") {
		t.Errorf("expected 2-decimal current in message, got: %s", c.Message)
	}
}

func TestEvaluateLowPowerFactor(t *testing.T) {
	m := model.Measurements{RPowerFactor: f(0.8512)}
	cands := Evaluate(&m, testSettings())

	if len(cands) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(cands))
	}
	c := cands[0]
	if c.Type != model.AlertLowPowerFactor || c.Severity != model.SeverityWarning {
		t.Errorf("expected low_power_factor/warning, got %s/%s", c.Type, c.Severity)
	}
	if c.Window != PowerFactorWindow {
		t.Errorf("expected power factor window, got %v", c.Window)
	}
	if !strings.Contains(c.Message, "0.851 < 0.9") {
		t.Errorf("expected 3-decimal power factor in message, got: %s", c.Message)
	}
}

func TestEvaluateAbsentFieldsSkipped(t *testing.T) {
	// Nil fields must be skipped, not treated as zero (which would trip
	// under_voltage and low_power_factor on every phase).
	m := model.Measurements{}
	if cands := Evaluate(&m, testSettings()); len(cands) != 0 {
		t.Fatalf("expected no candidates for empty measurements, got %d", len(cands))
	}
}

func TestEvaluateAllPhases(t *testing.T) {
	m := model.Measurements{
		RVoltage: f(260),
		YVoltage: f(261),
		BVoltage: f(262),
		RCurrent: f(35),
	}
	cands := Evaluate(&m, testSettings())
	if len(cands) != 4 {
		t.Fatalf("expected 4 candidates (3 voltage + 1 current), got %d", len(cands))
	}

	phases := map[string]bool{}
	for _, c := range cands {
		if c.Type == model.AlertOverVoltage {
			phases[c.Phase] = true
		}
	}
	for _, ph := range []string{"R", "Y", "B"} {
		if !phases[ph] {
			t.Errorf("missing over_voltage candidate for phase %s", ph)
		}
	}
}

func TestEvaluateBothVoltageBoundsIndependent(t *testing.T) {
	// A reading can violate voltage on one phase and power factor on another.
	m := model.Measurements{
		RVoltage:     f(190),
		YPowerFactor: f(0.7),
	}
	cands := Evaluate(&m, testSettings())
	if len(cands) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(cands))
	}
}
