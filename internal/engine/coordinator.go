package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/studiospace/plankit/internal/geometry"
)

// State is the coordinator's position in the per-sample state machine.
type State int32

const (
	StateIdle State = iota
	StateSampling
	StateQuerying
	StateResolved
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSampling:
		return "sampling"
	case StateQuerying:
		return "querying"
	case StateResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Sample is one pointer position in screen coordinates.
type Sample struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	TimestampMs int64   `json:"timestampMs"`
}

// QueryStats describes how a HitResult was produced.
type QueryStats struct {
	ElapsedMs    float64        `json:"elapsedMs"`
	Candidates   int            `json:"candidates"`
	FirstInDwell bool           `json:"firstInDwell"`
	Budget       time.Duration  `json:"-"`
	Overrun      bool           `json:"overrun"`
	Plan         geometry.Point `json:"plan"`
	IndexVersion uint64         `json:"indexVersion"`
}

// HitResult is the outcome of one sample: a space id, or none when SpaceID
// is empty.
type HitResult struct {
	SpaceID string     `json:"spaceId,omitempty"`
	Seq     uint64     `json:"sampleSeq"`
	Stats   QueryStats `json:"stats"`
}

// None reports whether no space matched.
func (r HitResult) None() bool { return r.SpaceID == "" }

// Observer receives per-query and publish events. Implementations must
// not block.
type Observer interface {
	ObserveHit(HitResult)
	ObserveOverrun(HitResult)
	ObserveSuperseded(seq uint64)
	ObservePublish(*Snapshot)
}

// SnapshotSource yields the latest published snapshot.
type SnapshotSource interface {
	Snapshot() *Snapshot
}

// CoordinatorConfig holds the latency budgets. A sample begins a new dwell
// when no sample arrived within DwellReset before it (by pointer
// timestamp); the first sample of a dwell is held to FirstHoverBudget and
// the rest to FollowHoverBudget.
type CoordinatorConfig struct {
	FirstHoverBudget  time.Duration
	FollowHoverBudget time.Duration
	DwellReset        time.Duration
}

// DefaultCoordinatorConfig returns the standard hover budgets.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		FirstHoverBudget:  50 * time.Millisecond,
		FollowHoverBudget: 80 * time.Millisecond,
		DwellReset:        150 * time.Millisecond,
	}
}

type pending struct {
	sample    Sample
	seq       uint64
	started   time.Time
	firstHit  bool
	transform Transform
	snap      *Snapshot
}

// Coordinator turns pointer samples into HitResults for one view session.
// Only the most recent sample is resolved: a newer sample supersedes any
// sample still waiting or in flight, and superseded results are dropped.
type Coordinator struct {
	snaps SnapshotSource
	view  *Manager
	cfg   CoordinatorConfig
	obs   Observer
	emit  func(HitResult)
	now   func() time.Time

	seq   atomic.Uint64
	state atomic.Int32

	mu       sync.Mutex
	next     *pending
	lastTs   int64
	haveLast bool
	wake     chan struct{}
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithObserver sets the observer for hit, overrun and superseded events.
func WithObserver(o Observer) CoordinatorOption {
	return func(c *Coordinator) { c.obs = o }
}

// WithEmitter sets the function Run delivers results to.
func WithEmitter(fn func(HitResult)) CoordinatorOption {
	return func(c *Coordinator) { c.emit = fn }
}

// WithClock overrides the clock used for elapsed time.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates a coordinator reading snapshots from snaps and the
// view transform from view.
func NewCoordinator(snaps SnapshotSource, view *Manager, cfg CoordinatorConfig, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		snaps: snaps,
		view:  view,
		cfg:   cfg,
		obs:   logObserver{},
		emit:  func(HitResult) {},
		now:   time.Now,
		wake:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state of the sample being processed.
func (c *Coordinator) State() State { return State(c.state.Load()) }

// View returns the transform manager of this session.
func (c *Coordinator) View() *Manager { return c.view }

// begin moves to Sampling: it captures the sample together with the
// transform and snapshot in effect right now, and makes it the latest.
func (c *Coordinator) begin(s Sample) *pending {
	p := &pending{
		sample:    s,
		started:   c.now(),
		transform: c.view.Current(),
		snap:      c.snaps.Snapshot(),
	}

	c.mu.Lock()
	p.seq = c.seq.Add(1)
	p.firstHit = !c.haveLast || time.Duration(s.TimestampMs-c.lastTs)*time.Millisecond > c.cfg.DwellReset
	c.lastTs, c.haveLast = s.TimestampMs, true
	c.mu.Unlock()

	c.state.Store(int32(StateSampling))
	return p
}

// Submit queues a sample for Run and returns its sequence number. Any
// sample still waiting is superseded.
func (c *Coordinator) Submit(s Sample) uint64 {
	p := c.begin(s)

	c.mu.Lock()
	dropped := c.next
	if dropped != nil && dropped.seq > p.seq {
		// A concurrent Submit already queued a newer sample.
		dropped = p
	} else {
		c.next = p
	}
	c.mu.Unlock()
	if dropped != nil {
		c.obs.ObserveSuperseded(dropped.seq)
	}

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return p.seq
}

// Run resolves submitted samples until ctx is done, delivering each
// non-superseded result to the emitter.
func (c *Coordinator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.wake:
		}

		c.mu.Lock()
		p := c.next
		c.next = nil
		c.mu.Unlock()
		if p == nil {
			continue
		}

		if r, ok := c.resolve(p, true); ok {
			c.emit(r)
		}
	}
}

// HitTest resolves one sample synchronously. It counts as the latest
// sample, so it supersedes anything still queued for Run.
func (c *Coordinator) HitTest(s Sample) HitResult {
	r, _ := c.resolve(c.begin(s), false)
	return r
}

func (c *Coordinator) superseded(p *pending) bool {
	if c.seq.Load() == p.seq {
		return false
	}
	c.obs.ObserveSuperseded(p.seq)
	return true
}

// resolve runs Sampling -> Querying -> Resolved -> Idle. When preemptible
// it abandons the sample as soon as a newer one exists.
func (c *Coordinator) resolve(p *pending, preemptible bool) (HitResult, bool) {
	planPt := p.transform.Inverse(geometry.Pt(p.sample.X, p.sample.Y))
	if preemptible && c.superseded(p) {
		return HitResult{}, false
	}

	c.state.Store(int32(StateQuerying))
	var (
		id    string
		count int
		ver   uint64
	)
	if p.snap != nil {
		id, count = p.snap.Resolve(planPt)
		ver = p.snap.Version
	}
	if preemptible && c.superseded(p) {
		return HitResult{}, false
	}

	c.state.Store(int32(StateResolved))
	budget := c.cfg.FollowHoverBudget
	if p.firstHit {
		budget = c.cfg.FirstHoverBudget
	}
	elapsed := c.now().Sub(p.started)
	r := HitResult{
		SpaceID: id,
		Seq:     p.seq,
		Stats: QueryStats{
			ElapsedMs:    float64(elapsed) / float64(time.Millisecond),
			Candidates:   count,
			FirstInDwell: p.firstHit,
			Budget:       budget,
			Overrun:      budget > 0 && elapsed > budget,
			Plan:         planPt,
			IndexVersion: ver,
		},
	}

	c.obs.ObserveHit(r)
	if r.Stats.Overrun {
		c.obs.ObserveOverrun(r)
	}
	c.state.Store(int32(StateIdle))
	return r, true
}

// logObserver reports overruns through slog only.
type logObserver struct{}

func (logObserver) ObserveHit(HitResult)     {}
func (logObserver) ObserveSuperseded(uint64) {}

func (logObserver) ObservePublish(s *Snapshot) {
	slog.Debug("snapshot published", "floor", s.Floor.ID, "version", s.Version, "spaces", s.Set.Len())
}

func (logObserver) ObserveOverrun(r HitResult) {
	slog.Warn("hit test over budget",
		"seq", r.Seq,
		"elapsed_ms", r.Stats.ElapsedMs,
		"budget_ms", r.Stats.Budget.Milliseconds(),
		"first_in_dwell", r.Stats.FirstInDwell,
	)
}
