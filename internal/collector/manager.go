package collector

import (
	"context"
	"sync"

	"gridwatch/internal/config"
	"gridwatch/internal/db"
	"gridwatch/internal/logger"
)

// Manager runs one MeterCollector per configured meter concurrently and
// waits for them on shutdown.
type Manager struct {
	store  *db.DB
	meters []config.MeterConfig

	wg sync.WaitGroup
}

func NewManager(store *db.DB, meters []config.MeterConfig) *Manager {
	return &Manager{store: store, meters: meters}
}

// Start launches every collector. Returns immediately; collectors stop when
// the context is cancelled.
func (m *Manager) Start(ctx context.Context) {
	log := logger.WithComponent("meter_manager")
	for _, cfg := range m.meters {
		c := NewMeterCollector(m.store, cfg)
		m.wg.Add(1)
		go func(c *MeterCollector) {
			defer m.wg.Done()
			if err := c.Run(ctx); err != nil {
				log.Error().Err(err).Str("meter", c.Cfg.Name).Msg("meter collector stopped")
			}
		}(c)
	}
	if len(m.meters) > 0 {
		log.Info().Int("meters", len(m.meters)).Msg("meter collectors started")
	}
}

// Wait blocks until all collectors have exited.
func (m *Manager) Wait() {
	m.wg.Wait()
}
