// Package prefetch warms the cache around recently analyzed parcels so that
// follow-up analyses of nearby land are served from cache.
package prefetch

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/property-analyzer/internal/geometry"
	"github.com/sells-group/property-analyzer/internal/model"
	"github.com/sells-group/property-analyzer/internal/monitoring"
)

// Defaults.
const (
	DefaultTick        = 30 * time.Second
	DefaultBatch       = 5
	DefaultMaxQueue    = 50
	DefaultMaxAge      = 10 * time.Minute
	DefaultTaskTimeout = 60 * time.Second
	DefaultSweep       = "@every 5m"
)

// Request identifies an analyzed area.
type Request struct {
	Center     model.LatLng
	Radius     float64
	Categories []model.Category
	Layers     []model.Layer
}

// Task is a queued warm-up for one area.
type Task struct {
	Center     model.LatLng
	Radius     float64
	Categories []model.Category
	Layers     []model.Layer
	Enqueued   time.Time
}

// Key identifies a task for deduplication.
func (t Task) Key() string {
	return fmt.Sprintf("%.4f|%.4f|%d", t.Center.Lat, t.Center.Lng, int64(math.Round(t.Radius)))
}

// Warmer fills the cache for a task. It returns how many datasets it had
// to fetch; zero means everything was already cached.
type Warmer interface {
	Warm(ctx context.Context, t Task) (int, error)
}

// Stats reports scheduler activity.
type Stats struct {
	Queued    int   `json:"queued"`
	Processed int64 `json:"processed"`
	Skipped   int64 `json:"skipped"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
	Running   bool  `json:"running"`
}

// Scheduler queues prefetch tasks and drains them in the background.
type Scheduler struct {
	warmer Warmer

	tick        time.Duration
	batch       int
	maxQueue    int
	maxAge      time.Duration
	taskTimeout time.Duration
	sweepSpec   string
	metrics     *monitoring.Metrics
	now         func() time.Time

	mu     sync.Mutex
	queue  []Task
	queued map[string]struct{}

	draining  atomic.Bool
	stopped   atomic.Bool
	processed atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	ctx       context.Context
	cancel    context.CancelFunc
	lifecycle sync.Mutex
	started   bool
	cron      *cron.Cron
	wg        sync.WaitGroup
	once      sync.Once
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTick sets how often the queue is drained.
func WithTick(d time.Duration) Option { return func(s *Scheduler) { s.tick = d } }

// WithBatch sets how many tasks one tick processes.
func WithBatch(n int) Option { return func(s *Scheduler) { s.batch = n } }

// WithMaxQueue caps the queue length.
func WithMaxQueue(n int) Option { return func(s *Scheduler) { s.maxQueue = n } }

// WithMaxAge sets how long a task may wait before the sweep drops it.
func WithMaxAge(d time.Duration) Option { return func(s *Scheduler) { s.maxAge = d } }

// WithTaskTimeout bounds each warm-up.
func WithTaskTimeout(d time.Duration) Option { return func(s *Scheduler) { s.taskTimeout = d } }

// WithSweep sets the cron spec of the stale-task sweep.
func WithSweep(spec string) Option { return func(s *Scheduler) { s.sweepSpec = spec } }

// WithMetrics reports queue length and outcomes.
func WithMetrics(m *monitoring.Metrics) Option { return func(s *Scheduler) { s.metrics = m } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

// New creates a Scheduler. Call Start to begin processing.
func New(w Warmer, opts ...Option) *Scheduler {
	s := &Scheduler{
		warmer:      w,
		tick:        DefaultTick,
		batch:       DefaultBatch,
		maxQueue:    DefaultMaxQueue,
		maxAge:      DefaultMaxAge,
		taskTimeout: DefaultTaskTimeout,
		sweepSpec:   DefaultSweep,
		now:         time.Now,
		queued:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	// Prefetching runs on its own context so request cancellation never
	// reaches it.
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Start launches the drain loop and the sweep job.
func (s *Scheduler) Start() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.stopped.Load() {
		return eris.New("prefetch: scheduler already stopped")
	}
	if s.started {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.sweepSpec, func() { s.Sweep() }); err != nil {
		return eris.Wrapf(err, "prefetch: invalid sweep spec %q", s.sweepSpec)
	}
	s.cron = c
	s.started = true
	s.cron.Start()

	s.wg.Add(1)
	go s.loop()

	zap.L().Info("prefetch: scheduler started",
		zap.Duration("tick", s.tick),
		zap.Int("batch", s.batch),
		zap.String("sweep", s.sweepSpec),
	)
	return nil
}

// Stop cancels in-flight warm-ups and waits for the loop and sweep to exit.
func (s *Scheduler) Stop() {
	s.once.Do(func() {
		s.lifecycle.Lock()
		defer s.lifecycle.Unlock()
		s.stopped.Store(true)
		s.cancel()
		if s.cron != nil {
			<-s.cron.Stop().Done()
		}
		s.wg.Wait()
		zap.L().Info("prefetch: scheduler stopped", zap.Int64("processed", s.processed.Load()))
	})
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	t := time.NewTicker(s.tick)
	defer t.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
			s.drain()
		}
	}
}

// Notify queues warm-ups around an analyzed area: the area itself at 1.5x
// radius and eight neighbours at 2x radius. It never blocks on I/O.
func (s *Scheduler) Notify(req Request) {
	if s.stopped.Load() || req.Radius <= 0 {
		return
	}
	tasks := neighbours(req, s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tasks {
		key := t.Key()
		if _, dup := s.queued[key]; dup {
			continue
		}
		s.queue = append(s.queue, t)
		s.queued[key] = struct{}{}
	}
	for len(s.queue) > s.maxQueue {
		delete(s.queued, s.queue[0].Key())
		s.queue = s.queue[1:]
		s.dropped.Add(1)
		s.metrics.PrefetchTask("dropped", 1)
	}
	s.metrics.PrefetchQueue(len(s.queue))
}

// neighbours places the self task and eight neighbours. Cardinal neighbours
// sit 0.7 radius away and diagonal ones 0.5 radius away.
func neighbours(req Request, now time.Time) []Task {
	task := func(center model.LatLng, radius float64) Task {
		return Task{
			Center:     center,
			Radius:     radius,
			Categories: req.Categories,
			Layers:     req.Layers,
			Enqueued:   now,
		}
	}

	out := make([]Task, 0, 9)
	out = append(out, task(req.Center, 1.5*req.Radius))
	for i := range 8 {
		bearing := float64(i) * 45
		offset := 0.7 * req.Radius
		if i%2 == 1 {
			offset = 0.5 * req.Radius
		}
		out = append(out, task(geometry.Destination(req.Center, bearing, offset), 2*req.Radius))
	}
	return out
}

// drain warms up to batch tasks. Overlapping drains are skipped.
func (s *Scheduler) drain() {
	if !s.draining.CompareAndSwap(false, true) {
		return
	}
	defer s.draining.Store(false)

	s.mu.Lock()
	n := min(s.batch, len(s.queue))
	batch := append([]Task(nil), s.queue[:n]...)
	s.queue = s.queue[n:]
	for _, t := range batch {
		delete(s.queued, t.Key())
	}
	remaining := len(s.queue)
	s.mu.Unlock()
	s.metrics.PrefetchQueue(remaining)

	for _, t := range batch {
		if s.ctx.Err() != nil {
			return
		}
		s.run(t)
	}
}

func (s *Scheduler) run(t Task) {
	ctx, cancel := context.WithTimeout(s.ctx, s.taskTimeout)
	defer cancel()

	fetched, err := s.warmer.Warm(ctx, t)
	switch {
	case err != nil:
		s.failed.Add(1)
		s.metrics.PrefetchTask("failed", 1)
		zap.L().Warn("prefetch: warm-up failed",
			zap.String("key", t.Key()),
			zap.Error(err),
		)
	case fetched == 0:
		s.skipped.Add(1)
		s.metrics.PrefetchTask("skipped", 1)
	default:
		s.processed.Add(1)
		s.metrics.PrefetchTask("processed", 1)
		zap.L().Debug("prefetch: warmed area",
			zap.String("key", t.Key()),
			zap.Int("fetched", fetched),
		)
	}
}

// Sweep drops tasks older than the maximum age and trims the queue to its
// cap, keeping the most recent.
func (s *Scheduler) Sweep() int {
	cutoff := s.now().Add(-s.maxAge)

	s.mu.Lock()
	kept := s.queue[:0]
	for _, t := range s.queue {
		if t.Enqueued.Before(cutoff) {
			delete(s.queued, t.Key())
			continue
		}
		kept = append(kept, t)
	}
	dropped := len(s.queue) - len(kept)
	for i := len(kept); i < len(s.queue); i++ {
		s.queue[i] = Task{}
	}
	s.queue = kept
	if over := len(s.queue) - s.maxQueue; over > 0 {
		for _, t := range s.queue[:over] {
			delete(s.queued, t.Key())
		}
		s.queue = s.queue[over:]
		dropped += over
	}
	remaining := len(s.queue)
	s.mu.Unlock()

	s.dropped.Add(int64(dropped))
	s.metrics.PrefetchTask("dropped", dropped)
	s.metrics.PrefetchQueue(remaining)
	if dropped > 0 {
		zap.L().Debug("prefetch: swept stale tasks", zap.Int("dropped", dropped), zap.Int("queued", remaining))
	}
	return dropped
}

// Stats returns a snapshot of scheduler activity.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	queued := len(s.queue)
	s.mu.Unlock()
	return Stats{
		Queued:    queued,
		Processed: s.processed.Load(),
		Skipped:   s.skipped.Load(),
		Failed:    s.failed.Load(),
		Dropped:   s.dropped.Load(),
		Running:   s.draining.Load(),
	}
}
