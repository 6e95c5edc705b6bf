package db

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"gridwatch/internal/model"
)

// LoadSettings returns the settings singleton, creating it with defaults the
// first time it is asked for. Never yields a second row.
func (d *DB) LoadSettings(ctx context.Context) (model.Settings, error) {
	var s model.Settings
	err := d.ORM.WithContext(ctx).First(&s, "id = ?", 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s = model.DefaultSettings()
		if err := d.ORM.WithContext(ctx).Create(&s).Error; err != nil {
			// A concurrent creator may have won; re-read.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				err = d.ORM.WithContext(ctx).First(&s, "id = ?", 1).Error
			}
			if err != nil {
				return model.Settings{}, err
			}
		}
		return s, nil
	}
	if err != nil {
		return model.Settings{}, err
	}
	return s, nil
}

// SettingsUpdate carries the optional fields of a settings change; nil fields
// keep their stored value.
type SettingsUpdate struct {
	VoltageMax                *float64 `json:"voltage_max"`
	VoltageMin                *float64 `json:"voltage_min"`
	CurrentMax                *float64 `json:"current_max"`
	PFMin                     *float64 `json:"pf_min"`
	NotificationsEnabled      *bool    `json:"notifications_enabled"`
	EmailAlertsEnabled        *bool    `json:"email_alerts_enabled"`
	AlertCheckIntervalMS      *int64   `json:"alert_check_interval"`
	DeviceOfflineThresholdMin *int     `json:"device_offline_threshold"`
}

// UpdateSettings applies a partial update after validating the merged result.
func (d *DB) UpdateSettings(ctx context.Context, u SettingsUpdate) (model.Settings, error) {
	s, err := d.LoadSettings(ctx)
	if err != nil {
		return model.Settings{}, err
	}
	if u.VoltageMax != nil {
		s.VoltageMax = *u.VoltageMax
	}
	if u.VoltageMin != nil {
		s.VoltageMin = *u.VoltageMin
	}
	if u.CurrentMax != nil {
		s.CurrentMax = *u.CurrentMax
	}
	if u.PFMin != nil {
		s.PFMin = *u.PFMin
	}
	if u.NotificationsEnabled != nil {
		s.NotificationsEnabled = *u.NotificationsEnabled
	}
	if u.EmailAlertsEnabled != nil {
		s.EmailAlertsEnabled = *u.EmailAlertsEnabled
	}
	if u.AlertCheckIntervalMS != nil {
		s.AlertCheckIntervalMS = *u.AlertCheckIntervalMS
	}
	if u.DeviceOfflineThresholdMin != nil {
		s.DeviceOfflineThresholdMin = *u.DeviceOfflineThresholdMin
	}
	if err := s.Validate(); err != nil {
		return model.Settings{}, err
	}
	if err := d.ORM.WithContext(ctx).Save(&s).Error; err != nil {
		return model.Settings{}, err
	}
	return s, nil
}

// ResetSettings restores the singleton to factory defaults.
func (d *DB) ResetSettings(ctx context.Context) (model.Settings, error) {
	if _, err := d.LoadSettings(ctx); err != nil {
		return model.Settings{}, err
	}
	s := model.DefaultSettings()
	if err := d.ORM.WithContext(ctx).Save(&s).Error; err != nil {
		return model.Settings{}, err
	}
	return s, nil
}
