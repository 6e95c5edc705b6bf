package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"gridwatch/internal/model"
)

// CreateDevice inserts a device, assigning an ID when absent.
func (d *DB) CreateDevice(ctx context.Context, dev *model.Device) error {
	dev.Name = strings.TrimSpace(dev.Name)
	if dev.Name == "" {
		return model.ErrEmptyDeviceName
	}
	if dev.ID == "" {
		dev.ID = uuid.NewString()
	}
	return d.ORM.WithContext(ctx).Create(dev).Error
}

// GetDevice returns a device by id, or nil when it does not exist.
func (d *DB) GetDevice(ctx context.Context, id string) (*model.Device, error) {
	var dev model.Device
	err := d.ORM.WithContext(ctx).First(&dev, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dev, nil
}

// ListDevices returns all devices ordered by creation time.
func (d *DB) ListDevices(ctx context.Context) ([]model.Device, error) {
	var devs []model.Device
	if err := d.ORM.WithContext(ctx).Order("created_at").Find(&devs).Error; err != nil {
		return nil, err
	}
	return devs, nil
}

// UpdateDevice changes the mutable fields of a device.
func (d *DB) UpdateDevice(ctx context.Context, id, name, location string) (*model.Device, error) {
	dev, err := d.GetDevice(ctx, id)
	if err != nil || dev == nil {
		return dev, err
	}
	if name = strings.TrimSpace(name); name != "" {
		dev.Name = name
	}
	dev.Location = strings.TrimSpace(location)
	if err := d.ORM.WithContext(ctx).Save(dev).Error; err != nil {
		return nil, err
	}
	return dev, nil
}

// DeleteDevice removes a device and cascades to its readings, bindings and
// alerts in one transaction.
func (d *DB) DeleteDevice(ctx context.Context, id string) error {
	return d.ORM.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("device_id = ?", id).Delete(&model.Reading{}).Error; err != nil {
			return err
		}
		if err := tx.Where("device_id = ?", id).Delete(&model.DeviceBinding{}).Error; err != nil {
			return err
		}
		if err := tx.Where("device_id = ?", id).Delete(&model.Alert{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Device{}, "id = ?", id).Error
	})
}

// CreateBinding provisions a MAC-address binding for a device. The MAC is
// normalized to uppercase before storage.
func (d *DB) CreateBinding(ctx context.Context, b *model.DeviceBinding) error {
	b.MacAddress = model.NormalizeMAC(b.MacAddress)
	if err := model.ValidateMAC(b.MacAddress); err != nil {
		return err
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return d.ORM.WithContext(ctx).Create(b).Error
}

// ListBindings returns bindings, optionally filtered by device, with the
// owning device preloaded.
func (d *DB) ListBindings(ctx context.Context, deviceID string) ([]model.DeviceBinding, error) {
	q := d.ORM.WithContext(ctx).Preload("Device").Order("created_at")
	if deviceID != "" {
		q = q.Where("device_id = ?", deviceID)
	}
	var bindings []model.DeviceBinding
	if err := q.Find(&bindings).Error; err != nil {
		return nil, err
	}
	return bindings, nil
}

// DeleteBinding removes one binding by id.
func (d *DB) DeleteBinding(ctx context.Context, id string) error {
	return d.ORM.WithContext(ctx).Delete(&model.DeviceBinding{}, "id = ?", id).Error
}

// FindDeviceByMAC resolves a MAC-like identifier to its bound device.
// Lookup is a case-insensitive exact match; nil means unregistered.
func (d *DB) FindDeviceByMAC(ctx context.Context, mac string) (*model.Device, error) {
	var binding model.DeviceBinding
	err := d.ORM.WithContext(ctx).
		Preload("Device").
		Where("mac_address = ?", model.NormalizeMAC(mac)).
		First(&binding).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return binding.Device, nil
}

// Stats aggregates store-wide counts for the stats endpoint.
type Stats struct {
	Devices           int64     `json:"devices"`
	Readings          int64     `json:"readings"`
	Alerts            int64     `json:"alerts"`
	UnresolvedAlerts  int64     `json:"unresolved_alerts"`
	CriticalAlerts    int64     `json:"critical_unresolved"`
	WarningAlerts     int64     `json:"warning_unresolved"`
	LatestReadingTime time.Time `json:"latest_reading_time"`
}

// CollectStats counts devices, readings and alerts.
func (d *DB) CollectStats(ctx context.Context) (Stats, error) {
	var st Stats
	g := d.ORM.WithContext(ctx)
	if err := g.Model(&model.Device{}).Count(&st.Devices).Error; err != nil {
		return st, err
	}
	if err := g.Model(&model.Reading{}).Count(&st.Readings).Error; err != nil {
		return st, err
	}
	if err := g.Model(&model.Alert{}).Count(&st.Alerts).Error; err != nil {
		return st, err
	}
	if err := g.Model(&model.Alert{}).Where("resolved = ?", false).Count(&st.UnresolvedAlerts).Error; err != nil {
		return st, err
	}
	if err := g.Model(&model.Alert{}).Where("resolved = ? AND severity = ?", false, model.SeverityCritical).Count(&st.CriticalAlerts).Error; err != nil {
		return st, err
	}
	if err := g.Model(&model.Alert{}).Where("resolved = ? AND severity = ?", false, model.SeverityWarning).Count(&st.WarningAlerts).Error; err != nil {
		return st, err
	}
	var last model.Reading
	err := g.Order("reading_time DESC").First(&last).Error
	if err == nil {
		st.LatestReadingTime = last.ReadingTime
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return st, err
	}
	return st, nil
}
