package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"gridwatch/internal/db"
	"gridwatch/internal/logger"
	"gridwatch/internal/metrics"
	"gridwatch/internal/model"
)

// Fetcher retrieves one raw batch from the remote source. Failures are
// transport-level and count toward the auto-stop ceiling.
type Fetcher interface {
	FetchBatch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher is the production Fetcher with a bounded request timeout.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher builds a fetcher whose requests abort after timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) FetchBatch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("remote API returned %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// Options configures a Poller.
type Options struct {
	URL          string
	PollInterval time.Duration
	ErrorCeiling int
	Fetcher      Fetcher
}

// Poller is the scheduled loop that ingests remote readings. Owned object
// with idempotent Start/Stop; it also stops itself when consecutive fetch
// failures hit the configured ceiling, as a valve against hammering a dead
// endpoint.
type Poller struct {
	store   *db.DB
	fetcher Fetcher
	url     string

	interval time.Duration
	ceiling  int

	mu                sync.Mutex
	running           bool
	stop              chan struct{}
	done              chan struct{}
	consecutiveErrors int
	lastSuccess       time.Time
	successCount      uint64
	errorCount        uint64

	now func() time.Time
}

// Status describes the poller for the operational-control surface.
type Status struct {
	Running           bool       `json:"running"`
	LastSuccess       *time.Time `json:"last_success,omitempty"`
	SuccessCount      uint64     `json:"success_count"`
	ErrorCount        uint64     `json:"error_count"`
	ConsecutiveErrors int        `json:"consecutive_errors"`
	PollIntervalMS    int64      `json:"poll_interval"`
	URL               string     `json:"api_url"`
}

// NewPoller constructs a stopped poller.
func NewPoller(store *db.DB, opts Options) *Poller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	if opts.ErrorCeiling <= 0 {
		opts.ErrorCeiling = 10
	}
	if opts.Fetcher == nil {
		opts.Fetcher = NewHTTPFetcher(10 * time.Second)
	}
	return &Poller{
		store:    store,
		fetcher:  opts.Fetcher,
		url:      opts.URL,
		interval: opts.PollInterval,
		ceiling:  opts.ErrorCeiling,
		now:      time.Now,
	}
}

// Start launches the loop, clearing the consecutive-error counter so an
// operator restart after an auto-stop gets a fresh allowance. Idempotent.
func (p *Poller) Start() {
	log := logger.WithComponent("sync")

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		log.Warn().Msg("sync poller already running")
		return
	}
	p.running = true
	p.consecutiveErrors = 0
	metrics.SyncConsecutiveErrors.Set(0)
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.loop(p.stop, p.done)

	log.Info().Str("url", p.url).Dur("interval", p.interval).Msg("sync poller started")
}

// Stop prevents the next scheduled fetch. An in-flight cycle completes.
// Idempotent.
func (p *Poller) Stop() {
	log := logger.WithComponent("sync")

	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		log.Warn().Msg("sync poller not running")
		return
	}
	p.running = false
	close(p.stop)
	done := p.done
	p.mu.Unlock()

	<-done
	log.Info().Msg("sync poller stopped")
}

// Status returns the current state and counters.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Status{
		Running:           p.running,
		SuccessCount:      p.successCount,
		ErrorCount:        p.errorCount,
		ConsecutiveErrors: p.consecutiveErrors,
		PollIntervalMS:    p.interval.Milliseconds(),
		URL:               p.url,
	}
	if !p.lastSuccess.IsZero() {
		t := p.lastSuccess
		st.LastSuccess = &t
	}
	return st
}

// loop runs an immediate first fetch, then fixed-delay cycles. The next
// timer is armed only after the current cycle finishes, so cycles never
// overlap. It exits either on Stop or when the error ceiling is reached.
func (p *Poller) loop(stop, done chan struct{}) {
	defer close(done)
	log := logger.WithComponent("sync")
	for {
		p.runCycle()

		if p.ceilingReached() {
			log.Error().
				Int("ceiling", p.ceiling).
				Msg("too many consecutive errors, stopping sync poller")
			p.markStopped()
			return
		}

		timer := time.NewTimer(p.interval)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (p *Poller) ceilingReached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.consecutiveErrors >= p.ceiling
}

func (p *Poller) markStopped() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
}

// runCycle performs one fetch-and-store pass; errors and panics never escape
// to kill the loop.
func (p *Poller) runCycle() {
	log := logger.WithComponent("sync")
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("cycle panic recovered")
			p.recordFailure()
		}
	}()

	if err := p.SyncOnce(context.Background()); err != nil {
		log.Error().Err(err).Msg("fetch failed")
		p.recordFailure()
		return
	}
	p.recordSuccess()
}

// SyncOnce fetches one batch and ingests it. An error return means the
// transport failed; per-record problems are absorbed and logged. Exported so
// tests and admin tooling can drive cycles without the timer.
func (p *Poller) SyncOnce(ctx context.Context) error {
	log := logger.WithComponent("sync")

	start := p.now()
	body, err := p.fetcher.FetchBatch(ctx, p.url)
	metrics.SyncFetchDuration.Observe(p.now().Sub(start).Seconds())
	if err != nil {
		metrics.SyncFetchTotal.WithLabelValues("failed").Inc()
		return err
	}
	metrics.SyncFetchTotal.WithLabelValues("success").Inc()

	shape, records := NormalizeBatch(body)
	if shape == ShapeUnknown && len(body) > 0 {
		log.Warn().Int("bytes", len(body)).Msg("unrecognized payload shape, treating as empty batch")
		return nil
	}

	stored := 0
	for _, doc := range records {
		outcome := p.storeRecord(ctx, doc)
		metrics.SyncRecordsTotal.WithLabelValues(outcome).Inc()
		if outcome == "stored" {
			stored++
		}
	}
	if len(records) > 0 {
		log.Info().
			Str("shape", shape.String()).
			Int("records", len(records)).
			Int("stored", stored).
			Msg("batch processed")
	}
	return nil
}

// storeRecord resolves, deduplicates and persists one remote record.
// Returns the outcome label: stored, duplicate, unregistered, malformed or
// error. No outcome aborts the batch.
func (p *Poller) storeRecord(ctx context.Context, doc json.RawMessage) string {
	log := logger.WithComponent("sync")

	rec, err := ParseRecord(doc)
	if err != nil {
		log.Warn().Err(err).Msg("skipping malformed record")
		return "malformed"
	}

	device, err := p.store.FindDeviceByMAC(ctx, rec.MacAddress)
	if err != nil {
		log.Error().Err(err).Str("mac", rec.MacAddress).Msg("binding lookup failed")
		return "error"
	}
	if device == nil {
		// Unregistered devices are an expected steady-state condition.
		log.Debug().Str("mac", rec.MacAddress).Msg("unregistered device, skipping")
		return "unregistered"
	}

	ts, err := ParseTimestamp(rec.ReadingTime)
	if err != nil {
		log.Warn().Str("mac", rec.MacAddress).Str("reading_time", rec.ReadingTime).Msg("unparsable timestamp, skipping record")
		return "malformed"
	}

	exists, err := p.store.ReadingExists(ctx, device.ID, ts)
	if err != nil {
		log.Error().Err(err).Str("device_id", device.ID).Msg("dedup lookup failed")
		return "error"
	}
	if exists {
		return "duplicate"
	}

	reading := model.Reading{
		DeviceID:     device.ID,
		ReadingTime:  ts,
		Measurements: rec.Measurements,
	}
	if err := p.store.InsertReading(ctx, &reading); err != nil {
		if errors.Is(err, db.ErrDuplicateReading) {
			// Lost the race against direct ingestion; already stored.
			return "duplicate"
		}
		log.Error().Err(err).Str("device_id", device.ID).Msg("reading insert failed")
		return "error"
	}
	metrics.ReadingsIngestedTotal.WithLabelValues("sync").Inc()
	return "stored"
}

func (p *Poller) recordSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.successCount++
	p.consecutiveErrors = 0
	p.lastSuccess = p.now()
	metrics.SyncConsecutiveErrors.Set(0)
}

func (p *Poller) recordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errorCount++
	p.consecutiveErrors++
	metrics.SyncConsecutiveErrors.Set(float64(p.consecutiveErrors))
}
