package alerting

import (
	"fmt"
	"time"

	"gridwatch/internal/model"
)

// Suppression windows per checked quantity. An unresolved alert of the same
// type for the same device inside the window discards the candidate.
const (
	VoltageWindow     = 5 * time.Minute
	CurrentWindow     = 5 * time.Minute
	PowerFactorWindow = 10 * time.Minute
)

// Candidate is a potential alert derived from one reading against the
// current settings. It becomes an Alert only if not suppressed.
type Candidate struct {
	Type      model.AlertType
	Severity  model.Severity
	Phase     string
	Value     float64
	Threshold float64
	Window    time.Duration
	Message   string
}

// Evaluate applies the threshold policy to one reading. Pure: no stores, no
// clocks. Absent fields are skipped, not treated as zero. One candidate per
// phase per violated quantity.
func Evaluate(m *model.Measurements, s model.Settings) []Candidate {
	var out []Candidate
	for _, ph := range m.Phases() {
		if v := ph.Voltage; v != nil {
			if *v > s.VoltageMax {
				out = append(out, Candidate{
					Type:      model.AlertOverVoltage,
					Severity:  model.SeverityCritical,
					Phase:     ph.Label,
					Value:     *v,
					Threshold: s.VoltageMax,
					Window:    VoltageWindow,
					Message:   fmt.Sprintf("Phase %s voltage exceeded maximum limit (%.1fV > %gV)", ph.Label, *v, s.VoltageMax),
				})
			}
			if *v < s.VoltageMin {
				out = append(out, Candidate{
					Type:      model.AlertUnderVoltage,
					Severity:  model.SeverityWarning,
					Phase:     ph.Label,
					Value:     *v,
					Threshold: s.VoltageMin,
					Window:    VoltageWindow,
					Message:   fmt.Sprintf("Phase %s voltage below minimum limit (%.1fV < %gV)", ph.Label, *v, s.VoltageMin),
				})
			}
		}
		if c := ph.Current; c != nil && *c > s.CurrentMax {
			out = append(out, Candidate{
				Type:      model.AlertOverCurrent,
				Severity:  model.SeverityCritical,
				Phase:     ph.Label,
				Value:     *c,
				Threshold: s.CurrentMax,
				Window:    CurrentWindow,
				Message:   fmt.Sprintf("Phase %s current exceeded maximum limit (%.2fA > %gA)", ph.Label, *c, s.CurrentMax),
			})
		}
		if pf := ph.PowerFactor; pf != nil && *pf < s.PFMin {
			out = append(out, Candidate{
				Type:      model.AlertLowPowerFactor,
				Severity:  model.SeverityWarning,
				Phase:     ph.Label,
				Value:     *pf,
				Threshold: s.PFMin,
				Window:    PowerFactorWindow,
				Message:   fmt.Sprintf("Phase %s power factor below minimum (%.3f < %g)", ph.Label, *pf, s.PFMin),
			})
		}
	}
	return out
}
