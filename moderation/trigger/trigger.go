package trigger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const DefaultInterval = 30 * time.Second

var triggerCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modguard_trigger_requests",
	Help: "Number of detection pass requests, by whether a pass was scheduled",
}, []string{"result"})

var backgroundErrorCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "modguard_trigger_pass_errors",
	Help: "Number of background detection passes which failed or panicked",
})

type Debouncer struct {
	Logger *slog.Logger
	// Min time between scheduled passes. Defaults to DefaultInterval.
	Interval time.Duration
	Pass     func(ctx context.Context) error
	// Defaults to time.Now
	Now func() time.Time

	mu sync.Mutex
	// unix nanos of the last scheduled pass; zero if none
	lastRun atomic.Int64
	wg      sync.WaitGroup
}

func NewDebouncer(pass func(ctx context.Context) error, interval time.Duration, logger *slog.Logger) *Debouncer {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Debouncer{
		Logger:   logger,
		Interval: interval,
		Pass:     pass,
	}
}

func (d *Debouncer) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

func (d *Debouncer) interval() time.Duration {
	if d.Interval <= 0 {
		return DefaultInterval
	}
	return d.Interval
}

func (d *Debouncer) recent(now time.Time) bool {
	last := d.lastRun.Load()
	return last != 0 && now.Sub(time.Unix(0, last)) < d.interval()
}

// Schedules a background pass unless one was scheduled within the interval. Returns true if this call scheduled one.
//
// Never blocks on the pass itself, and never fails: pass errors and panics are logged.
func (d *Debouncer) MaybeTrigger() bool {
	now := d.now()
	if d.recent(now) {
		triggerCount.WithLabelValues("debounced").Inc()
		return false
	}

	d.mu.Lock()
	if d.recent(now) {
		d.mu.Unlock()
		triggerCount.WithLabelValues("debounced").Inc()
		return false
	}
	d.lastRun.Store(now.UnixNano())
	d.wg.Add(1)
	d.mu.Unlock()

	triggerCount.WithLabelValues("scheduled").Inc()
	go d.run()
	return true
}

func (d *Debouncer) run() {
	defer d.wg.Done()
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	defer func() {
		if r := recover(); r != nil {
			backgroundErrorCount.Inc()
			logger.Error("detection pass panic", "err", r)
		}
	}()

	if err := d.Pass(context.Background()); err != nil {
		backgroundErrorCount.Inc()
		logger.Error("background detection pass failed", "err", err)
	}
}

// Blocks until all scheduled passes have finished.
func (d *Debouncer) Wait() {
	d.wg.Wait()
}
