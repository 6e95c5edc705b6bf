package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"gridwatch/internal/model"
)

// InsertAlert persists a new alert.
func (d *DB) InsertAlert(ctx context.Context, a *model.Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return d.ORM.WithContext(ctx).Create(a).Error
}

// FindUnresolvedAlert returns the newest unresolved alert of the given type
// for the device created at or after since, or nil when none exists. Served
// by the composite (device_id, alert_type, resolved, created_at) index.
func (d *DB) FindUnresolvedAlert(ctx context.Context, deviceID string, t model.AlertType, since time.Time) (*model.Alert, error) {
	var a model.Alert
	err := d.ORM.WithContext(ctx).
		Where("device_id = ? AND alert_type = ? AND resolved = ? AND created_at >= ?",
			deviceID, t, false, since.UTC()).
		Order("created_at DESC").
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// AlertFilter narrows ListAlerts.
type AlertFilter struct {
	DeviceID string
	Type     model.AlertType
	Severity model.Severity
	Resolved *bool
	Limit    int
	Offset   int
}

// ListAlerts returns alerts matching the filter, newest first, with the
// owning device preloaded.
func (d *DB) ListAlerts(ctx context.Context, f AlertFilter) ([]model.Alert, int64, error) {
	q := d.ORM.WithContext(ctx).Model(&model.Alert{})
	if f.DeviceID != "" {
		q = q.Where("device_id = ?", f.DeviceID)
	}
	if f.Type != "" {
		q = q.Where("alert_type = ?", f.Type)
	}
	if f.Severity != "" {
		q = q.Where("severity = ?", f.Severity)
	}
	if f.Resolved != nil {
		q = q.Where("resolved = ?", *f.Resolved)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var rows []model.Alert
	err := q.Preload("Device").Order("created_at DESC").Limit(limit).Offset(f.Offset).Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ResolveAlert flips one alert to resolved, recording when and by whom.
// Returns the updated alert, or nil when the id is unknown.
func (d *DB) ResolveAlert(ctx context.Context, id, resolvedBy string) (*model.Alert, error) {
	var a model.Alert
	err := d.ORM.WithContext(ctx).First(&a, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !a.Resolved {
		now := time.Now().UTC()
		a.Resolved = true
		a.ResolvedAt = &now
		a.ResolvedBy = resolvedBy
		if err := d.ORM.WithContext(ctx).Save(&a).Error; err != nil {
			return nil, err
		}
	}
	return &a, nil
}

// ResolveAllAlerts bulk-resolves every unresolved alert, optionally scoped to
// one device. Returns how many rows changed.
func (d *DB) ResolveAllAlerts(ctx context.Context, deviceID, resolvedBy string) (int64, error) {
	now := time.Now().UTC()
	q := d.ORM.WithContext(ctx).Model(&model.Alert{}).Where("resolved = ?", false)
	if deviceID != "" {
		q = q.Where("device_id = ?", deviceID)
	}
	res := q.Updates(map[string]any{
		"resolved":    true,
		"resolved_at": now,
		"resolved_by": resolvedBy,
	})
	return res.RowsAffected, res.Error
}

// DeleteResolvedBefore purges resolved alerts created before the cutoff.
func (d *DB) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := d.ORM.WithContext(ctx).
		Where("resolved = ? AND created_at < ?", true, cutoff.UTC()).
		Delete(&model.Alert{})
	return res.RowsAffected, res.Error
}
