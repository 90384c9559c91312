package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/castlebot/internal/campaign"
	"github.com/roach88/castlebot/internal/testutil"
)

// fakeFetcher serves a canned snapshot, or blocks until released.
type fakeFetcher struct {
	snap campaign.Snapshot
	err  error

	// when non-nil, Fetch signals started and blocks until release closes.
	started chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, ref string) (campaign.Snapshot, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
		select {
		case <-f.release:
		case <-ctx.Done():
			return campaign.Snapshot{}, ctx.Err()
		}
	}
	return f.snap, f.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeStore is an in-memory Store with per-operation failure injection.
type fakeStore struct {
	mu       sync.Mutex
	donors   map[int64]campaign.Donor
	settings map[string]string
	agg      campaign.Aggregate
	aggSaved bool

	idsErr     error
	settingErr error
	saveAggErr error
	setErr     error

	// failInsertID makes InsertDonor error for that donation id.
	failInsertID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		donors:   map[int64]campaign.Donor{},
		settings: map[string]string{},
	}
}

func (f *fakeStore) Setting(ctx context.Context, name string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settingErr != nil {
		return "", false, f.settingErr
	}
	val, ok := f.settings[name]
	return val, ok, nil
}

func (f *fakeStore) SetSetting(ctx context.Context, name, val string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.settings[name] = val
	return nil
}

func (f *fakeStore) SaveAggregate(ctx context.Context, agg campaign.Aggregate, updatedAt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveAggErr != nil {
		return f.saveAggErr
	}
	f.agg = agg
	f.aggSaved = true
	return nil
}

func (f *fakeStore) InsertDonor(ctx context.Context, d campaign.Donor) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsertID != 0 && d.DonationID == f.failInsertID {
		return false, errors.New("disk full")
	}
	if _, ok := f.donors[d.DonationID]; ok {
		return false, nil
	}
	f.donors[d.DonationID] = d
	return true, nil
}

func (f *fakeStore) DonorIDs(ctx context.Context) (map[int64]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idsErr != nil {
		return nil, f.idsErr
	}
	ids := make(map[int64]struct{}, len(f.donors))
	for id := range f.donors {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (f *fakeStore) donorCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.donors)
}

// recorderClient records posted messages, optionally failing.
type recorderClient struct {
	mu      sync.Mutex
	posted  []string
	postErr error
}

func (r *recorderClient) PostMessage(ctx context.Context, channelID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.postErr != nil {
		return r.postErr
	}
	r.posted = append(r.posted, text)
	return nil
}

func (r *recorderClient) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.posted...)
}

func snapWith(donors ...campaign.Donor) campaign.Snapshot {
	total := int64(0)
	for _, d := range donors {
		total += d.Amount
	}
	return campaign.Snapshot{
		Currency:      "$",
		Goal:          5000,
		DonationCount: int64(len(donors)),
		TotalAmount:   total,
		Donors:        donors,
	}
}

func testClock() *testutil.Clock {
	return testutil.NewClock(time.Date(2016, 5, 1, 12, 0, 0, 0, time.UTC))
}

func newTestSyncer(f *fakeFetcher, st *fakeStore, client *recorderClient) *Syncer {
	return New(f, st, client, "C123", "castle37", time.Minute, WithNow(testClock().Now))
}

func TestSyncOnce_FirstObservationPostsWelcome(t *testing.T) {
	f := &fakeFetcher{snap: snapWith(
		campaign.Donor{DonationID: 1, Name: "Ann", Amount: 10},
	)}
	st := newFakeStore()
	client := &recorderClient{}

	err := newTestSyncer(f, st, client).SyncOnce(context.Background())
	require.NoError(t, err)

	// Welcome instead of a donation notification, donors still persisted.
	msgs := client.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "castle37")
	assert.NotContains(t, msgs[0], "donated")

	assert.Equal(t, 1, st.donorCount())
	assert.Equal(t, "2016-05-01T12:00:00Z", st.settings["lastrun"])
	assert.True(t, st.aggSaved)
}

func TestSyncOnce_NewDonorsNotifiedNewestFirst(t *testing.T) {
	f := &fakeFetcher{snap: snapWith(
		campaign.Donor{DonationID: 5, Name: "Ann", Amount: 10},
		campaign.Donor{DonationID: 6, Name: "Bob", Amount: 20},
		campaign.Donor{DonationID: 7, Name: "Cara", Amount: 30},
	)}
	st := newFakeStore()
	st.donors[5] = campaign.Donor{DonationID: 5, Name: "Ann", Amount: 10}
	st.settings["lastrun"] = "2016-04-30T12:00:00Z"
	client := &recorderClient{}

	err := newTestSyncer(f, st, client).SyncOnce(context.Background())
	require.NoError(t, err)

	msgs := client.messages()
	require.Len(t, msgs, 1)
	// Newest-first: Cara's line renders before Bob's, Ann is absent.
	assert.Equal(t,
		"Cara donated $30\nBob donated $20\n\nNew Total: $60\n",
		msgs[0])

	assert.Equal(t, 3, st.donorCount())
}

func TestSyncOnce_NoNewDonorsStaysSilent(t *testing.T) {
	f := &fakeFetcher{snap: snapWith(
		campaign.Donor{DonationID: 1, Name: "Ann", Amount: 10},
	)}
	st := newFakeStore()
	st.donors[1] = campaign.Donor{DonationID: 1, Name: "Ann", Amount: 10}
	st.settings["lastrun"] = "2016-04-30T12:00:00Z"
	client := &recorderClient{}

	err := newTestSyncer(f, st, client).SyncOnce(context.Background())
	require.NoError(t, err)

	assert.Empty(t, client.messages())
	// Aggregate still overwritten every successful cycle.
	assert.True(t, st.aggSaved)
}

func TestSyncOnce_FetchErrorSkipsCycle(t *testing.T) {
	f := &fakeFetcher{err: errors.New("connection refused")}
	st := newFakeStore()
	client := &recorderClient{}

	err := newTestSyncer(f, st, client).SyncOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, StageFetch, StageOf(err))

	// No partial state change, no chat output.
	assert.False(t, st.aggSaved)
	assert.Equal(t, 0, st.donorCount())
	assert.Empty(t, client.messages())
}

func TestSyncOnce_StoreReadErrorAbortsBeforeWrites(t *testing.T) {
	f := &fakeFetcher{snap: snapWith(
		campaign.Donor{DonationID: 1, Name: "Ann", Amount: 10},
	)}
	st := newFakeStore()
	st.idsErr = errors.New("database is locked")
	client := &recorderClient{}

	err := newTestSyncer(f, st, client).SyncOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, StageDiff, StageOf(err))

	// Unreachable baseline must never be treated as "everything is new".
	assert.False(t, st.aggSaved)
	assert.Equal(t, 0, st.donorCount())
	assert.Empty(t, client.messages())
}

func TestSyncOnce_AggregateWriteFailureSuppressesNotification(t *testing.T) {
	f := &fakeFetcher{snap: snapWith(
		campaign.Donor{DonationID: 1, Name: "Ann", Amount: 10},
	)}
	st := newFakeStore()
	st.settings["lastrun"] = "2016-04-30T12:00:00Z"
	st.saveAggErr = errors.New("disk full")
	client := &recorderClient{}

	err := newTestSyncer(f, st, client).SyncOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, StagePersist, StageOf(err))
	assert.Empty(t, client.messages())
}

func TestSyncOnce_PartialInsertFailureRecoversNextCycle(t *testing.T) {
	snap := snapWith(
		campaign.Donor{DonationID: 5, Name: "Ann", Amount: 10},
		campaign.Donor{DonationID: 6, Name: "Bob", Amount: 20},
		campaign.Donor{DonationID: 7, Name: "Cara", Amount: 30},
	)
	f := &fakeFetcher{snap: snap}
	st := newFakeStore()
	st.donors[5] = campaign.Donor{DonationID: 5, Name: "Ann", Amount: 10}
	st.settings["lastrun"] = "2016-04-30T12:00:00Z"
	st.failInsertID = 7
	client := &recorderClient{}

	s := newTestSyncer(f, st, client)

	// Cycle 1: id 6 inserts, id 7 fails. Notification suppressed entirely.
	err := s.SyncOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, StagePersist, StageOf(err))
	assert.Empty(t, client.messages())
	assert.Equal(t, 2, st.donorCount())

	// Cycle 2: the store recovers; only the still-missing id 7 is new.
	st.mu.Lock()
	st.failInsertID = 0
	st.mu.Unlock()

	err = s.SyncOnce(context.Background())
	require.NoError(t, err)

	msgs := client.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Cara donated $30\n\nNew Total: $60\n", msgs[0])
	assert.Equal(t, 3, st.donorCount())
}

func TestSyncOnce_NotifyFailureLeavesStatePersisted(t *testing.T) {
	f := &fakeFetcher{snap: snapWith(
		campaign.Donor{DonationID: 1, Name: "Ann", Amount: 10},
	)}
	st := newFakeStore()
	st.settings["lastrun"] = "2016-04-30T12:00:00Z"
	client := &recorderClient{postErr: errors.New("channel_not_found")}

	err := newTestSyncer(f, st, client).SyncOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, StageNotify, StageOf(err))

	// Store state is correct; the failed post is not a reason to reprocess.
	assert.Equal(t, 1, st.donorCount())
	assert.True(t, st.aggSaved)
}

func TestSyncOnce_LastRunWriteFailureStillNotifies(t *testing.T) {
	f := &fakeFetcher{snap: snapWith(
		campaign.Donor{DonationID: 1, Name: "Ann", Amount: 10},
	)}
	st := newFakeStore()
	st.settings["lastrun"] = "2016-04-30T12:00:00Z"
	st.setErr = errors.New("disk full")
	client := &recorderClient{}

	err := newTestSyncer(f, st, client).SyncOnce(context.Background())
	require.NoError(t, err)

	// The donor is durable, so suppressing its notification over the
	// bookkeeping write would drop it forever.
	require.Len(t, client.messages(), 1)
	assert.Contains(t, client.messages()[0], "Ann donated $10")
}

func TestTrySync_DropsOverlappingTicks(t *testing.T) {
	f := &fakeFetcher{
		snap:    snapWith(),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	st := newFakeStore()
	st.settings["lastrun"] = "2016-04-30T12:00:00Z"
	client := &recorderClient{}
	s := newTestSyncer(f, st, client)

	done := make(chan bool)
	go func() {
		done <- s.TrySync(context.Background())
	}()

	// Wait until the first cycle is inside FETCHING.
	<-f.started

	// A second tick while the cycle is in flight is dropped, not queued.
	assert.False(t, s.TrySync(context.Background()))
	assert.Equal(t, 1, f.callCount())

	close(f.release)
	assert.True(t, <-done)
}

func TestHealthy_FlipsAfterFirstSuccessfulCycle(t *testing.T) {
	f := &fakeFetcher{snap: snapWith()}
	st := newFakeStore()
	st.settings["lastrun"] = "2016-04-30T12:00:00Z"
	client := &recorderClient{}
	s := newTestSyncer(f, st, client)

	assert.False(t, s.Healthy())
	require.NoError(t, s.SyncOnce(context.Background()))
	assert.True(t, s.Healthy())
}

func TestRun_CyclesOnStartupAndStopsOnCancel(t *testing.T) {
	f := &fakeFetcher{snap: snapWith()}
	st := newFakeStore()
	st.settings["lastrun"] = "2016-04-30T12:00:00Z"
	client := &recorderClient{}
	s := New(f, st, client, "C123", "castle37", 10*time.Millisecond, WithNow(testClock().Now))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error)
	go func() {
		errCh <- s.Run(ctx)
	}()

	// The unconditional startup cycle plus at least one tick.
	deadline := time.After(2 * time.Second)
	for f.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for ticker cycles")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	err := <-errCh
	assert.ErrorIs(t, err, context.Canceled)
}
