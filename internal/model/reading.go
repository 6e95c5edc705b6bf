package model

import "time"

// Measurements is the flat set of electrical parameters a meter reports in
// one snapshot. Field names follow the device wire format so a remote record
// unmarshals directly into it. Pointers distinguish absent fields from zero
// values; absent fields are skipped by threshold evaluation.
type Measurements struct {
	// Phase R
	RVoltage           *float64  `gorm:"column:r_voltage" json:"r_voltage,omitempty"`
	RVoltageLineToLine *float64  `gorm:"column:r_voltage_line_to_line" json:"r_voltage_line_to_line,omitempty"`
	RCurrent           *float64  `gorm:"column:r_current" json:"r_current,omitempty"`
	RActivePower       *float64  `gorm:"column:r_active_power" json:"r_active_power,omitempty"`
	RReactivePower     *float64  `gorm:"column:r_reactive_power" json:"r_reactive_power,omitempty"`
	RApparentPower     *float64  `gorm:"column:r_apparent_power" json:"r_apparent_power,omitempty"`
	RPowerFactor       *float64  `gorm:"column:r_power_factor" json:"r_power_factor,omitempty"`
	RTHDVoltage        *float64  `gorm:"column:r_thd_voltage" json:"r_thd_voltage,omitempty"`
	RTHDCurrent        *float64  `gorm:"column:r_thd_current" json:"r_thd_current,omitempty"`
	RHarmonicsVoltage  []float64 `gorm:"column:r_harmonics_voltage;serializer:json" json:"r_harmonics_voltage,omitempty"`
	RHarmonicsCurrent  []float64 `gorm:"column:r_harmonics_current;serializer:json" json:"r_harmonics_current,omitempty"`
	RVoltageNeutral    *float64  `gorm:"column:r_voltage_neutral" json:"r_voltage_neutral,omitempty"`

	// Phase Y
	YVoltage           *float64  `gorm:"column:y_voltage" json:"y_voltage,omitempty"`
	YVoltageLineToLine *float64  `gorm:"column:y_voltage_line_to_line" json:"y_voltage_line_to_line,omitempty"`
	YCurrent           *float64  `gorm:"column:y_current" json:"y_current,omitempty"`
	YActivePower       *float64  `gorm:"column:y_active_power" json:"y_active_power,omitempty"`
	YReactivePower     *float64  `gorm:"column:y_reactive_power" json:"y_reactive_power,omitempty"`
	YApparentPower     *float64  `gorm:"column:y_apparent_power" json:"y_apparent_power,omitempty"`
	YPowerFactor       *float64  `gorm:"column:y_power_factor" json:"y_power_factor,omitempty"`
	YTHDVoltage        *float64  `gorm:"column:y_thd_voltage" json:"y_thd_voltage,omitempty"`
	YTHDCurrent        *float64  `gorm:"column:y_thd_current" json:"y_thd_current,omitempty"`
	YHarmonicsVoltage  []float64 `gorm:"column:y_harmonics_voltage;serializer:json" json:"y_harmonics_voltage,omitempty"`
	YHarmonicsCurrent  []float64 `gorm:"column:y_harmonics_current;serializer:json" json:"y_harmonics_current,omitempty"`
	YVoltageNeutral    *float64  `gorm:"column:y_voltage_neutral" json:"y_voltage_neutral,omitempty"`

	// Phase B
	BVoltage           *float64  `gorm:"column:b_voltage" json:"b_voltage,omitempty"`
	BVoltageLineToLine *float64  `gorm:"column:b_voltage_line_to_line" json:"b_voltage_line_to_line,omitempty"`
	BCurrent           *float64  `gorm:"column:b_current" json:"b_current,omitempty"`
	BActivePower       *float64  `gorm:"column:b_active_power" json:"b_active_power,omitempty"`
	BReactivePower     *float64  `gorm:"column:b_reactive_power" json:"b_reactive_power,omitempty"`
	BApparentPower     *float64  `gorm:"column:b_apparent_power" json:"b_apparent_power,omitempty"`
	BPowerFactor       *float64  `gorm:"column:b_power_factor" json:"b_power_factor,omitempty"`
	BTHDVoltage        *float64  `gorm:"column:b_thd_voltage" json:"b_thd_voltage,omitempty"`
	BTHDCurrent        *float64  `gorm:"column:b_thd_current" json:"b_thd_current,omitempty"`
	BHarmonicsVoltage  []float64 `gorm:"column:b_harmonics_voltage;serializer:json" json:"b_harmonics_voltage,omitempty"`
	BHarmonicsCurrent  []float64 `gorm:"column:b_harmonics_current;serializer:json" json:"b_harmonics_current,omitempty"`
	BVoltageNeutral    *float64  `gorm:"column:b_voltage_neutral" json:"b_voltage_neutral,omitempty"`

	// Line-to-line voltages
	RYVoltage *float64 `gorm:"column:ry_voltage" json:"ry_voltage,omitempty"`
	YBVoltage *float64 `gorm:"column:yb_voltage" json:"yb_voltage,omitempty"`
	BRVoltage *float64 `gorm:"column:br_voltage" json:"br_voltage,omitempty"`

	// Common parameters
	NeutralCurrent      *float64 `gorm:"column:neutral_current" json:"neutral_current,omitempty"`
	VoltageUnbalance    *float64 `gorm:"column:voltage_unbalance" json:"voltage_unbalance,omitempty"`
	CurrentUnbalance    *float64 `gorm:"column:current_unbalance" json:"current_unbalance,omitempty"`
	Frequency           *float64 `gorm:"column:frequency" json:"frequency,omitempty"`
	TotalEnergyKWH      *float64 `gorm:"column:total_energy_kwh" json:"total_energy_kwh,omitempty"`
	TotalEnergyKVAH     *float64 `gorm:"column:total_energy_kvah" json:"total_energy_kvah,omitempty"`
	TotalEnergyKVARH    *float64 `gorm:"column:total_energy_kvarh" json:"total_energy_kvarh,omitempty"`
	TransientEventCount *float64 `gorm:"column:transient_event_count" json:"transient_event_count,omitempty"`
	Temperature         *float64 `gorm:"column:temperature" json:"temperature,omitempty"`
	Humidity            *float64 `gorm:"column:humidity" json:"humidity,omitempty"`
}

// Reading is one timestamped measurement snapshot for a device. Rows are
// append-only; (device_id, reading_time) is the natural dedup key enforced by
// a unique index so a racing duplicate insert surfaces as a key conflict.
type Reading struct {
	ID          string    `gorm:"column:id;primaryKey" json:"id"`
	DeviceID    string    `gorm:"column:device_id;uniqueIndex:idx_reading_device_time;index:idx_reading_device_latest,priority:1" json:"device_id"`
	ReadingTime time.Time `gorm:"column:reading_time;uniqueIndex:idx_reading_device_time;index;index:idx_reading_device_latest,priority:2,sort:desc" json:"reading_time"`

	Measurements `gorm:"embedded"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`

	Device *Device `gorm:"foreignKey:DeviceID;references:ID;constraint:OnDelete:CASCADE" json:"device,omitempty"`
}

func (Reading) TableName() string { return "readings" }

// PhaseValues groups the threshold-checked quantities of one phase.
type PhaseValues struct {
	Label       string
	Voltage     *float64
	Current     *float64
	PowerFactor *float64
}

// Phases returns the R/Y/B quantities as a table so threshold checks iterate
// one parameterized routine instead of nine copies.
func (m *Measurements) Phases() [3]PhaseValues {
	return [3]PhaseValues{
		{Label: "R", Voltage: m.RVoltage, Current: m.RCurrent, PowerFactor: m.RPowerFactor},
		{Label: "Y", Voltage: m.YVoltage, Current: m.YCurrent, PowerFactor: m.YPowerFactor},
		{Label: "B", Voltage: m.BVoltage, Current: m.BCurrent, PowerFactor: m.BPowerFactor},
	}
}
