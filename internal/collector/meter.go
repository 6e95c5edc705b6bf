package collector

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	mb "github.com/goburrow/modbus"

	"gridwatch/internal/config"
	"gridwatch/internal/db"
	"gridwatch/internal/logger"
	"gridwatch/internal/metrics"
	"gridwatch/internal/model"
)

// MeterCollector polls one local modbus-TCP energy meter and feeds the
// decoded snapshots through the same dedup/insert path as remote sync.
// The meter is resolved to a device through its configured MAC binding.
type MeterCollector struct {
	Cfg   config.MeterConfig
	Store *db.DB

	handler *mb.TCPClientHandler
	now     func() time.Time
}

// NewMeterCollector builds a collector for one configured meter.
func NewMeterCollector(store *db.DB, cfg config.MeterConfig) *MeterCollector {
	return &MeterCollector{Cfg: cfg, Store: store, now: time.Now}
}

// Run connects and polls until the context is cancelled. The first poll
// happens immediately; subsequent polls are fixed-delay.
func (c *MeterCollector) Run(ctx context.Context) error {
	log := logger.WithComponent("meter").With().Str("meter", c.Cfg.Name).Logger()

	h := mb.NewTCPClientHandler(c.Cfg.Address)
	h.Timeout = c.Cfg.Timeout
	h.SlaveId = c.Cfg.SlaveID
	c.handler = h

	// initial connect with simple retries
	retry := c.Cfg.RetryCount
	for attempts := 0; attempts <= retry; attempts++ {
		if err := h.Connect(); err != nil {
			if attempts == retry {
				return fmt.Errorf("connect %s: %w", c.Cfg.Address, err)
			}
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		break
	}
	defer h.Close()

	client := mb.NewClient(h)
	log.Info().Str("address", c.Cfg.Address).Dur("interval", c.Cfg.PollInterval).Msg("meter collector started")

	for {
		if err := c.pollOnce(ctx, client); err != nil {
			log.Error().Err(err).Msg("poll failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.Cfg.PollInterval):
		}
	}
}

// pollOnce reads every configured register, assembles a reading stamped now,
// and stores it. A read failure triggers one reconnect-and-retry before the
// cycle is abandoned.
func (c *MeterCollector) pollOnce(ctx context.Context, client mb.Client) error {
	log := logger.WithComponent("meter").With().Str("meter", c.Cfg.Name).Logger()

	fields := make(map[string]float64, len(c.Cfg.Registers))
	for _, reg := range c.Cfg.Registers {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		val, err := c.readRegister(client, reg)
		if err != nil {
			if recErr := c.reconnect(); recErr == nil {
				val, err = c.readRegister(client, reg)
			}
			if err != nil {
				return fmt.Errorf("read %s@%d: %w", reg.Field, reg.Address, err)
			}
		}
		fields[reg.Field] = val
	}
	if len(fields) == 0 {
		return nil
	}

	device, err := c.Store.FindDeviceByMAC(ctx, c.Cfg.MacAddress)
	if err != nil {
		return err
	}
	if device == nil {
		log.Debug().Str("mac", c.Cfg.MacAddress).Msg("meter MAC not registered, dropping snapshot")
		return nil
	}

	measurements, err := measurementsFromFields(fields)
	if err != nil {
		return err
	}
	reading := model.Reading{
		DeviceID:     device.ID,
		ReadingTime:  c.now().UTC().Truncate(time.Second),
		Measurements: measurements,
	}
	if err := c.Store.InsertReading(ctx, &reading); err != nil {
		if errors.Is(err, db.ErrDuplicateReading) {
			return nil
		}
		return err
	}
	metrics.ReadingsIngestedTotal.WithLabelValues("modbus").Inc()
	dlog := logger.WithDevice(device.ID)
	dlog.Debug().Str("meter", c.Cfg.Name).Int("fields", len(fields)).Msg("snapshot stored")
	return nil
}

// measurementsFromFields maps wire-named register values onto the reading
// columns by round-tripping through the shared JSON field names.
func measurementsFromFields(fields map[string]float64) (model.Measurements, error) {
	var m model.Measurements
	b, err := json.Marshal(fields)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, err
	}
	return m, nil
}

func (c *MeterCollector) readRegister(client mb.Client, reg config.RegisterMap) (float64, error) {
	dt := strings.ToLower(reg.DataType)
	qty := uint16(1)
	if dt == "float32" || dt == "uint32" || dt == "int32" {
		qty = 2
	}

	var data []byte
	var err error
	switch strings.ToLower(reg.RegisterType) {
	case "", "holding":
		data, err = client.ReadHoldingRegisters(reg.Address, qty)
	case "input":
		data, err = client.ReadInputRegisters(reg.Address, qty)
	default:
		return 0, fmt.Errorf("unsupported register type: %s", reg.RegisterType)
	}
	if err != nil {
		return 0, err
	}
	return decodeRegister(data, dt, reg.ByteOrder, reg.Scale, reg.Offset)
}

func decodeRegister(data []byte, dt, byteOrder string, scale, offset float64) (float64, error) {
	apply := func(v float64) float64 { return v*scale + offset }

	switch dt {
	case "", "uint16":
		if len(data) < 2 {
			return 0, errors.New("insufficient data for uint16")
		}
		return apply(float64(binary.BigEndian.Uint16(data[:2]))), nil
	case "int16":
		if len(data) < 2 {
			return 0, errors.New("insufficient data for int16")
		}
		return apply(float64(int16(binary.BigEndian.Uint16(data[:2])))), nil
	case "float32":
		if len(data) < 4 {
			return 0, errors.New("insufficient data for float32")
		}
		u := binary.BigEndian.Uint32(reorder32(data[:4], byteOrder))
		return apply(float64(math.Float32frombits(u))), nil
	case "uint32":
		if len(data) < 4 {
			return 0, errors.New("insufficient data for uint32")
		}
		return apply(float64(binary.BigEndian.Uint32(reorder32(data[:4], byteOrder)))), nil
	case "int32":
		if len(data) < 4 {
			return 0, errors.New("insufficient data for int32")
		}
		return apply(float64(int32(binary.BigEndian.Uint32(reorder32(data[:4], byteOrder))))), nil
	default:
		return 0, fmt.Errorf("unsupported data type: %s", dt)
	}
}

// reorder32 returns a 4-byte slice reordered per byte-order string.
// Supported orders: "ABCD" (default), "DCBA", "BADC" (byte swap within words), "CDAB" (word swap).
func reorder32(in []byte, order string) []byte {
	var out [4]byte
	if len(in) < 4 {
		return append([]byte{}, in...)
	}
	switch strings.ToUpper(strings.TrimSpace(order)) {
	case "", "ABCD":
		copy(out[:], in[:4])
	case "DCBA":
		out[0], out[1], out[2], out[3] = in[3], in[2], in[1], in[0]
	case "BADC":
		out[0], out[1], out[2], out[3] = in[1], in[0], in[3], in[2]
	case "CDAB":
		out[0], out[1], out[2], out[3] = in[2], in[3], in[0], in[1]
	default:
		copy(out[:], in[:4])
	}
	return out[:]
}

// reconnect attempts to close and reopen the underlying handler.
func (c *MeterCollector) reconnect() error {
	if c.handler == nil {
		return errors.New("no handler")
	}
	c.handler.Close()
	time.Sleep(200 * time.Millisecond)
	return c.handler.Connect()
}
