// Package syncer drives the periodic fetch-diff-persist-notify cycle.
//
// A cycle moves through FETCHING, DIFFING, PERSISTING and NOTIFYING, bailing
// straight back to idle on any failure. At most one cycle is ever in flight:
// a timer tick that lands while a cycle is running is dropped, not queued, so
// the campaign source never sees concurrent fetches and the known-id baseline
// can't race with itself.
package syncer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/castlebot/internal/campaign"
	"github.com/roach88/castlebot/internal/chat"
	"github.com/roach88/castlebot/internal/diff"
	"github.com/roach88/castlebot/internal/fetch"
	"github.com/roach88/castlebot/internal/notify"
)

// lastRunKey is the info-table setting holding the last cycle timestamp.
// Its absence marks the bot's very first run.
const lastRunKey = "lastrun"

// DefaultFetchTimeout bounds a single snapshot fetch. A fetch exceeding it is
// treated like any other fetch failure: skip the cycle.
const DefaultFetchTimeout = 30 * time.Second

// Store is the slice of the donation store a cycle needs.
// Implemented by *store.Store and by fakes in tests.
type Store interface {
	Setting(ctx context.Context, name string) (string, bool, error)
	SetSetting(ctx context.Context, name, val string) error
	SaveAggregate(ctx context.Context, agg campaign.Aggregate, updatedAt string) error
	InsertDonor(ctx context.Context, d campaign.Donor) (inserted bool, err error)
	DonorIDs(ctx context.Context) (map[int64]struct{}, error)
}

// Syncer is the single-worker sync loop.
//
// Thread-safety model:
//   - Run(): call from exactly one goroutine
//   - TrySync()/SyncOnce(): safe from any goroutine; a mutex serializes
//     cycles
//   - Healthy(): safe from any goroutine
type Syncer struct {
	fetcher      fetch.Fetcher
	store        Store
	client       chat.Client
	channelID    string
	ref          string
	interval     time.Duration
	fetchTimeout time.Duration
	now          func() time.Time

	// mu guards the one-cycle-in-flight invariant.
	mu sync.Mutex

	// live flips true after the first fully persisted cycle.
	live atomic.Bool
}

// Option allows configuration of syncer parameters.
type Option func(*Syncer)

// WithFetchTimeout overrides the per-fetch deadline.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Syncer) {
		s.fetchTimeout = d
	}
}

// WithNow overrides the wall clock. Used by tests to pin lastrun stamps.
func WithNow(now func() time.Time) Option {
	return func(s *Syncer) {
		s.now = now
	}
}

// New creates a Syncer posting to channelID for the given campaign reference.
func New(f fetch.Fetcher, st Store, client chat.Client, channelID, ref string, interval time.Duration, opts ...Option) *Syncer {
	s := &Syncer{
		fetcher:      f,
		store:        st,
		client:       client,
		channelID:    channelID,
		ref:          ref,
		interval:     interval,
		fetchTimeout: DefaultFetchTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Healthy reports whether at least one cycle has fully persisted.
// Exposed to the liveness endpoint.
func (s *Syncer) Healthy() bool {
	return s.live.Load()
}

// Run executes one cycle immediately, then one per tick until ctx is
// cancelled. Returns ctx.Err() on cancellation.
func (s *Syncer) Run(ctx context.Context) error {
	slog.Info("syncer starting", "campaign", s.ref, "interval", s.interval)

	s.TrySync(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("syncer stopping: context cancelled")
			return ctx.Err()
		case <-ticker.C:
			if !s.TrySync(ctx) {
				slog.Debug("tick dropped: cycle already in flight")
			}
		}
	}
}

// TrySync runs one cycle unless one is already in flight, in which case it
// returns false and does nothing. Cycle failures are logged here, not
// returned: the next tick is the retry mechanism.
func (s *Syncer) TrySync(ctx context.Context) bool {
	if !s.mu.TryLock() {
		return false
	}
	defer s.mu.Unlock()

	if err := s.runCycle(ctx); err != nil {
		slog.Warn("cycle abandoned", "stage", StageOf(err), "error", err)
	}
	return true
}

// SyncOnce runs exactly one cycle, waiting for any in-flight cycle to finish
// first, and returns its error. Used by the one-shot CLI mode.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runCycle(ctx)
}

func (s *Syncer) runCycle(ctx context.Context) error {
	log := slog.With("cycle", newCycleToken(), "campaign", s.ref)

	// FETCHING
	fctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	snap, err := s.fetcher.Fetch(fctx, s.ref)
	cancel()
	if err != nil {
		return &CycleError{Stage: StageFetch, Err: err}
	}
	log.Debug("snapshot fetched",
		"donors", len(snap.Donors),
		"total", snap.TotalAmount)

	// DIFFING. The known-id baseline is read fresh from the store every
	// cycle, never cached, so manual store edits between cycles are
	// respected.
	known, err := s.store.DonorIDs(ctx)
	if err != nil {
		return &CycleError{Stage: StageDiff, Err: err}
	}
	_, hasPriorRun, err := s.store.Setting(ctx, lastRunKey)
	if err != nil {
		return &CycleError{Stage: StageDiff, Err: err}
	}
	delta := diff.ComputeDelta(snap, known, hasPriorRun)

	// PERSISTING: aggregate first, then donors ascending by donation id, so
	// a crash mid-persist leaves a clean prefix of the new donors recorded.
	now := s.now().UTC().Format(time.RFC3339)
	agg := snap.Aggregate(s.ref)
	if err := s.store.SaveAggregate(ctx, agg, now); err != nil {
		return &CycleError{Stage: StagePersist, Err: err}
	}

	inserted := 0
	var insertErr error
	for _, d := range delta.New {
		ok, err := s.store.InsertDonor(ctx, d)
		if err != nil {
			insertErr = err
			break
		}
		if ok {
			inserted++
		}
	}
	if insertErr == nil && inserted != len(delta.New) {
		// Rows the diff saw as new but the store already had. Harmless
		// (idempotent insert) but worth a trace.
		log.Warn("insert count mismatch",
			"inserted", inserted,
			"expected", len(delta.New))
	}

	if err := s.store.SetSetting(ctx, lastRunKey, now); err != nil {
		// The donors above are already durable. Suppressing their
		// notification over a bookkeeping write would drop them silently
		// forever, so log and keep going.
		log.Error("lastrun write failed", "error", err)
	}

	if insertErr != nil {
		// Partial persist: stay silent this cycle. The missing donors are
		// still absent from the store, so the next cycle re-discovers and
		// notifies them.
		return &CycleError{Stage: StagePersist, Err: insertErr}
	}

	s.live.Store(true)

	// NOTIFYING
	if delta.FirstObservation {
		if err := s.client.PostMessage(ctx, s.channelID, notify.Welcome(s.ref)); err != nil {
			return &CycleError{Stage: StageNotify, Err: err}
		}
		log.Info("welcome posted")
		return nil
	}

	if len(delta.New) == 0 {
		log.Debug("no new donors")
		return nil
	}

	// One aggregated message for the whole delta, newest donor first.
	newestFirst := make([]campaign.Donor, len(delta.New))
	for i, d := range delta.New {
		newestFirst[len(delta.New)-1-i] = d
	}
	if err := s.client.PostMessage(ctx, s.channelID, notify.FormatDelta(newestFirst, agg)); err != nil {
		return &CycleError{Stage: StageNotify, Err: err}
	}
	log.Info("donation notification posted", "new_donors", len(delta.New))

	return nil
}

// newCycleToken returns a UUIDv7 correlation token for a cycle's log lines.
// UUIDv7 is time-ordered, so tokens sort chronologically in log queries.
func newCycleToken() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the entropy source does; fall back to v4.
		return uuid.NewString()
	}
	return id.String()
}
