package db

import (
	"errors"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gridwatch/internal/model"
)

// ErrDuplicateReading marks an insert that lost the (device_id, reading_time)
// uniqueness race. Callers treat it as success-no-op.
var ErrDuplicateReading = errors.New("reading already exists for device at timestamp")

// DB wraps the sqlite connection.
type DB struct {
	ORM *gorm.DB
}

// Open opens the SQLite database using GORM and runs migrations.
func Open(path string) (*DB, error) {
	g, err := openORM(path)
	if err != nil {
		return nil, err
	}
	if err := migrateORM(g); err != nil {
		_ = closeORM(g)
		return nil, err
	}
	return &DB{ORM: g}, nil
}

func (d *DB) Close() error { return closeORM(d.ORM) }

// openORM opens a GORM SQLite connection with sane defaults.
func openORM(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
}

// migrateORM ensures the schema for all models exists.
func migrateORM(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Device{},
		&model.DeviceBinding{},
		&model.Reading{},
		&model.Alert{},
		&model.Settings{},
	)
}

// closeORM closes the underlying SQL DB associated with the GORM connection.
func closeORM(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
