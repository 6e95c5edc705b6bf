package model

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// Validation errors surfaced to the API layer.
var (
	ErrEmptyDeviceName   = errors.New("device name cannot be empty")
	ErrInvalidMACAddress = errors.New("invalid MAC address format")
	ErrVoltageRange      = errors.New("voltage_min must be less than voltage_max")
	ErrVoltageMaxRange   = errors.New("voltage_max must be between 200 and 300")
	ErrVoltageMinRange   = errors.New("voltage_min must be between 150 and 240")
	ErrCurrentMaxRange   = errors.New("current_max must be between 1 and 100")
	ErrPowerFactorRange  = errors.New("pf_min must be between 0.5 and 1.0")
	ErrCheckInterval     = errors.New("alert_check_interval must be between 10s and 1h")
	ErrOfflineThreshold  = errors.New("device_offline_threshold must be between 5 and 1440 minutes")
)

var macPattern = regexp.MustCompile(`^([0-9A-F]{2}[:-]){5}[0-9A-F]{2}$`)

// Device is a registered energy meter.
type Device struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	Name      string    `gorm:"column:name;index" json:"name"`
	Location  string    `gorm:"column:location" json:"location"`
	CreatedAt time.Time `gorm:"column:created_at;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Device) TableName() string { return "devices" }

// DeviceBinding maps a physical MAC address to a device. Inbound readings
// are routed through this table instead of per-request credentials.
type DeviceBinding struct {
	ID         string    `gorm:"column:id;primaryKey" json:"id"`
	DeviceID   string    `gorm:"column:device_id;uniqueIndex:idx_binding_device_mac" json:"device_id"`
	MacAddress string    `gorm:"column:mac_address;uniqueIndex:idx_binding_device_mac;index" json:"mac_address"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`

	Device *Device `gorm:"foreignKey:DeviceID;references:ID;constraint:OnDelete:CASCADE" json:"device,omitempty"`
}

func (DeviceBinding) TableName() string { return "device_bindings" }

// NormalizeMAC upper-cases and trims a MAC-like identifier so lookups are
// case-insensitive exact matches.
func NormalizeMAC(mac string) string {
	return strings.ToUpper(strings.TrimSpace(mac))
}

// ValidateMAC reports whether the identifier is a well-formed MAC address
// after normalization.
func ValidateMAC(mac string) error {
	if !macPattern.MatchString(NormalizeMAC(mac)) {
		return ErrInvalidMACAddress
	}
	return nil
}

// Settings is the singleton of runtime-tunable thresholds and intervals.
// Exactly one row exists; the store creates it with defaults on first load.
type Settings struct {
	ID uint `gorm:"column:id;primaryKey" json:"-"`

	VoltageMax float64 `gorm:"column:voltage_max" json:"voltage_max"`
	VoltageMin float64 `gorm:"column:voltage_min" json:"voltage_min"`
	CurrentMax float64 `gorm:"column:current_max" json:"current_max"`
	PFMin      float64 `gorm:"column:pf_min" json:"pf_min"`

	NotificationsEnabled bool `gorm:"column:notifications_enabled" json:"notifications_enabled"`
	EmailAlertsEnabled   bool `gorm:"column:email_alerts_enabled" json:"email_alerts_enabled"`

	// AlertCheckIntervalMS is the generator cycle period in milliseconds.
	AlertCheckIntervalMS int64 `gorm:"column:alert_check_interval" json:"alert_check_interval"`

	// DeviceOfflineThresholdMin is the silence span, in minutes, after which
	// a device is considered offline.
	DeviceOfflineThresholdMin int `gorm:"column:device_offline_threshold" json:"device_offline_threshold"`

	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Settings) TableName() string { return "settings" }

// DefaultSettings returns the singleton populated with factory defaults.
func DefaultSettings() Settings {
	return Settings{
		ID:                        1,
		VoltageMax:                250,
		VoltageMin:                200,
		CurrentMax:                30,
		PFMin:                     0.90,
		NotificationsEnabled:      true,
		EmailAlertsEnabled:        true,
		AlertCheckIntervalMS:      60000,
		DeviceOfflineThresholdMin: 60,
	}
}

// CheckInterval returns the generator cycle period as a duration.
func (s Settings) CheckInterval() time.Duration {
	return time.Duration(s.AlertCheckIntervalMS) * time.Millisecond
}

// OfflineThreshold returns the device silence cutoff span as a duration.
func (s Settings) OfflineThreshold() time.Duration {
	return time.Duration(s.DeviceOfflineThresholdMin) * time.Minute
}

// Validate checks every field against its allowed range.
func (s Settings) Validate() error {
	if s.VoltageMax < 200 || s.VoltageMax > 300 {
		return ErrVoltageMaxRange
	}
	if s.VoltageMin < 150 || s.VoltageMin > 240 {
		return ErrVoltageMinRange
	}
	if s.VoltageMin >= s.VoltageMax {
		return ErrVoltageRange
	}
	if s.CurrentMax < 1 || s.CurrentMax > 100 {
		return ErrCurrentMaxRange
	}
	if s.PFMin < 0.5 || s.PFMin > 1.0 {
		return ErrPowerFactorRange
	}
	if s.AlertCheckIntervalMS < 10000 || s.AlertCheckIntervalMS > 3600000 {
		return ErrCheckInterval
	}
	if s.DeviceOfflineThresholdMin < 5 || s.DeviceOfflineThresholdMin > 1440 {
		return ErrOfflineThreshold
	}
	return nil
}
