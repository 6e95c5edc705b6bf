package model

import "time"

// AlertType classifies what condition raised an alert.
type AlertType string

const (
	AlertOverVoltage    AlertType = "over_voltage"
	AlertUnderVoltage   AlertType = "under_voltage"
	AlertOverCurrent    AlertType = "over_current"
	AlertLowPowerFactor AlertType = "low_power_factor"
	AlertDeviceOffline  AlertType = "device_offline"
	AlertSystemInfo     AlertType = "system_info"
)

// IsValid reports whether the type is one of the known classifications.
func (t AlertType) IsValid() bool {
	switch t {
	case AlertOverVoltage, AlertUnderVoltage, AlertOverCurrent,
		AlertLowPowerFactor, AlertDeviceOffline, AlertSystemInfo:
		return true
	default:
		return false
	}
}

// Severity ranks how urgent an alert is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityWarning, SeverityInfo:
		return true
	default:
		return false
	}
}

// Alert is a derived, resolvable event signaling a threshold breach or device
// silence. Created by the generator; mutated only by resolve operations;
// removed by age-based cleanup of resolved rows.
type Alert struct {
	ID       string    `gorm:"column:id;primaryKey" json:"id"`
	DeviceID string    `gorm:"column:device_id;index;index:idx_alert_dedup,priority:1" json:"device_id"`
	Type     AlertType `gorm:"column:alert_type;index:idx_alert_dedup,priority:2" json:"alert_type"`
	Severity Severity  `gorm:"column:severity;index" json:"severity"`
	Message  string    `gorm:"column:message" json:"message"`

	// ReadingID, Value and Threshold are set for threshold breaches only.
	ReadingID *string  `gorm:"column:reading_id" json:"reading_id,omitempty"`
	Value     *float64 `gorm:"column:value" json:"value,omitempty"`
	Threshold *float64 `gorm:"column:threshold" json:"threshold,omitempty"`

	Resolved   bool       `gorm:"column:resolved;index:idx_alert_dedup,priority:3" json:"resolved"`
	ResolvedAt *time.Time `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy string     `gorm:"column:resolved_by" json:"resolved_by,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;index;index:idx_alert_dedup,priority:4" json:"created_at"`

	Device *Device `gorm:"foreignKey:DeviceID;references:ID;constraint:OnDelete:CASCADE" json:"device,omitempty"`
}

func (Alert) TableName() string { return "alerts" }
