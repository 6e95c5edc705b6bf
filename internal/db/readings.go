package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"gridwatch/internal/model"
)

// InsertReading persists a new reading. A (device_id, reading_time) conflict
// returns ErrDuplicateReading so racing writers can treat it as a no-op.
func (d *DB) InsertReading(ctx context.Context, r *model.Reading) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.ReadingTime = r.ReadingTime.UTC()
	err := d.ORM.WithContext(ctx).Create(r).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateReading
	}
	return err
}

// ReadingExists reports whether a reading is already stored for the device at
// the exact timestamp.
func (d *DB) ReadingExists(ctx context.Context, deviceID string, t time.Time) (bool, error) {
	var count int64
	err := d.ORM.WithContext(ctx).Model(&model.Reading{}).
		Where("device_id = ? AND reading_time = ?", deviceID, t.UTC()).
		Count(&count).Error
	return count > 0, err
}

// LatestReading returns the most recent reading for a device, or nil when the
// device has never reported.
func (d *DB) LatestReading(ctx context.Context, deviceID string) (*model.Reading, error) {
	var r model.Reading
	err := d.ORM.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("reading_time DESC").
		First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ReadingsSince returns readings with reading_time at or after the cutoff,
// each populated with its owning device. Bounds the generator's work to one
// cycle window.
func (d *DB) ReadingsSince(ctx context.Context, cutoff time.Time) ([]model.Reading, error) {
	var rows []model.Reading
	err := d.ORM.WithContext(ctx).
		Preload("Device").
		Where("reading_time >= ?", cutoff.UTC()).
		Order("reading_time").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ReadingFilter narrows ListReadings.
type ReadingFilter struct {
	DeviceID string
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

// ListReadings returns readings matching the filter, newest first.
func (d *DB) ListReadings(ctx context.Context, f ReadingFilter) ([]model.Reading, int64, error) {
	q := d.ORM.WithContext(ctx).Model(&model.Reading{})
	if f.DeviceID != "" {
		q = q.Where("device_id = ?", f.DeviceID)
	}
	if !f.From.IsZero() {
		q = q.Where("reading_time >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		q = q.Where("reading_time <= ?", f.To.UTC())
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var rows []model.Reading
	err := q.Order("reading_time DESC").Limit(limit).Offset(f.Offset).Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// PurgeReadings bulk-deletes readings for a device; a zero device id purges
// every reading.
func (d *DB) PurgeReadings(ctx context.Context, deviceID string) (int64, error) {
	q := d.ORM.WithContext(ctx)
	if deviceID != "" {
		q = q.Where("device_id = ?", deviceID)
	} else {
		q = q.Where("1 = 1")
	}
	res := q.Delete(&model.Reading{})
	return res.RowsAffected, res.Error
}
