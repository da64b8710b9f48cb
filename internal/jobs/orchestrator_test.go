package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmwangi/dukatrans/internal/catalog"
	"github.com/nmwangi/dukatrans/internal/processor"
)

type fakeLister struct {
	mu     sync.Mutex
	pages  map[string]catalog.Page
	items  map[int64]catalog.Item
	getErr map[int64]error
	gets   []int64
}

func (l *fakeLister) ListItems(_ context.Context, cursor string) (catalog.Page, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	page, ok := l.pages[cursor]
	if !ok {
		return catalog.Page{}, errors.New("unknown cursor")
	}
	return page, nil
}

func (l *fakeLister) GetItem(_ context.Context, id int64) (*catalog.Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gets = append(l.gets, id)
	if err := l.getErr[id]; err != nil {
		return nil, err
	}
	item, ok := l.items[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return &item, nil
}

type fakeProc struct {
	mu          sync.Mutex
	delay       time.Duration
	failItems   map[int64]bool
	processed   []int64
	inFlight    int
	maxInFlight int
}

func (p *fakeProc) Process(_ context.Context, item catalog.Item) processor.Result {
	p.mu.Lock()
	p.inFlight++
	if p.inFlight > p.maxInFlight {
		p.maxInFlight = p.inFlight
	}
	p.mu.Unlock()

	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	p.mu.Lock()
	p.inFlight--
	p.processed = append(p.processed, item.ID)
	fail := p.failItems[item.ID]
	p.mu.Unlock()

	res := processor.Result{ItemID: item.ID}
	if fail {
		res.Failures = append(res.Failures, processor.Failure{
			ItemID: item.ID,
			Err:    errors.New("simulated failure"),
		})
	}
	return res
}

func itemsToPages(chunks ...[]catalog.Item) map[string]catalog.Page {
	pages := make(map[string]catalog.Page)
	cursor := ""
	for i, chunk := range chunks {
		next := ""
		if i < len(chunks)-1 {
			next = string(rune('a' + i))
		}
		pages[cursor] = catalog.Page{Items: chunk, NextCursor: next}
		cursor = next
	}
	return pages
}

func makeItems(ids ...int64) []catalog.Item {
	items := make([]catalog.Item, 0, len(ids))
	for _, id := range ids {
		items = append(items, catalog.Item{ID: id})
	}
	return items
}

func newTestOrchestrator(l *fakeLister, p *fakeProc, cfg Config) *Orchestrator {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 2
	}
	return NewOrchestrator(l, p, NewStatus(), cfg, nil, zerolog.Nop())
}

func waitComplete(t *testing.T, o *Orchestrator) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		return o.Status().Snapshot().State == StateComplete
	}, 2*time.Second, 10*time.Millisecond)
	return o.Status().Snapshot()
}

func TestOrchestrator_FullScan_CompletesAcrossPages(t *testing.T) {
	lister := &fakeLister{pages: itemsToPages(makeItems(1, 2, 3), makeItems(4, 5))}
	proc := &fakeProc{}
	o := newTestOrchestrator(lister, proc, Config{})

	require.NoError(t, o.StartFullScan(0))

	snap := waitComplete(t, o)
	assert.Equal(t, 5, snap.Total)
	assert.Equal(t, 5, snap.Done)
	assert.Zero(t, snap.Failed)
	assert.Len(t, proc.processed, 5)
}

func TestOrchestrator_FullScan_SingleFlight(t *testing.T) {
	lister := &fakeLister{pages: itemsToPages(makeItems(1, 2, 3, 4))}
	proc := &fakeProc{delay: 50 * time.Millisecond}
	o := newTestOrchestrator(lister, proc, Config{})

	require.NoError(t, o.StartFullScan(0))
	err := o.StartFullScan(0)
	require.ErrorIs(t, err, ErrBusy)

	waitComplete(t, o)
	require.NoError(t, o.StartFullScan(0), "gate reopens after completion")
	waitComplete(t, o)
}

func TestOrchestrator_Dispatch_BoundsConcurrencyByChunk(t *testing.T) {
	lister := &fakeLister{pages: itemsToPages(makeItems(1, 2, 3, 4, 5, 6, 7, 8))}
	proc := &fakeProc{delay: 20 * time.Millisecond}
	o := newTestOrchestrator(lister, proc, Config{ChunkSize: 3})

	require.NoError(t, o.StartFullScan(0))
	snap := waitComplete(t, o)

	assert.Equal(t, 8, snap.Done)
	assert.LessOrEqual(t, proc.maxInFlight, 3, "no more than one chunk in flight")
}

func TestOrchestrator_FullScan_RecordsFailures(t *testing.T) {
	lister := &fakeLister{pages: itemsToPages(makeItems(1, 2, 3))}
	proc := &fakeProc{failItems: map[int64]bool{2: true}}
	o := newTestOrchestrator(lister, proc, Config{})

	require.NoError(t, o.StartFullScan(0))
	snap := waitComplete(t, o)

	assert.Equal(t, 3, snap.Done)
	assert.Equal(t, 1, snap.Failed)
	require.Len(t, snap.Failures, 1)
	assert.Equal(t, int64(2), snap.Failures[0].ItemID)
}

func TestOrchestrator_FullScan_EnumerationFailureStillCompletes(t *testing.T) {
	lister := &fakeLister{pages: map[string]catalog.Page{}}
	o := newTestOrchestrator(lister, &fakeProc{}, Config{})

	require.NoError(t, o.StartFullScan(0))
	snap := waitComplete(t, o)
	assert.Zero(t, snap.Total)
	assert.Zero(t, snap.Done)
}

func TestOrchestrator_RetryFailed_ShrinksLedgerOnSuccess(t *testing.T) {
	lister := &fakeLister{
		pages: itemsToPages(makeItems(1, 2)),
		items: map[int64]catalog.Item{1: {ID: 1}, 2: {ID: 2}},
	}
	proc := &fakeProc{failItems: map[int64]bool{2: true}}
	o := newTestOrchestrator(lister, proc, Config{})

	require.NoError(t, o.StartFullScan(0))
	waitComplete(t, o)
	require.Len(t, o.Status().Failures(), 1)

	// The underlying cause is fixed; retry should clear the ledger.
	proc.mu.Lock()
	proc.failItems = nil
	proc.mu.Unlock()

	require.NoError(t, o.RetryFailed())
	snap := waitComplete(t, o)
	assert.Equal(t, 1, snap.Total, "retry dispatches only the failed item")
	assert.Equal(t, 1, snap.Done)
	assert.Empty(t, snap.Failures)
	assert.Contains(t, lister.gets, int64(2), "retry must re-fetch the full item")
}

func TestOrchestrator_RetryFailed_ReplacesInsteadOfAccumulating(t *testing.T) {
	lister := &fakeLister{
		pages: itemsToPages(makeItems(1)),
		items: map[int64]catalog.Item{1: {ID: 1}},
	}
	proc := &fakeProc{failItems: map[int64]bool{1: true}}
	o := newTestOrchestrator(lister, proc, Config{})

	require.NoError(t, o.StartFullScan(0))
	waitComplete(t, o)
	firstID := o.Status().Failures()[0].ID

	require.NoError(t, o.RetryFailed())
	snap := waitComplete(t, o)

	require.Len(t, snap.Failures, 1, "repeat failure must replace, not grow, the ledger")
	assert.NotEqual(t, firstID, snap.Failures[0].ID)
}

func TestOrchestrator_RetryFailed_EmptyLedgerIsNoOp(t *testing.T) {
	o := newTestOrchestrator(&fakeLister{}, &fakeProc{}, Config{})

	require.NoError(t, o.RetryFailed())
	assert.Equal(t, StateIdle, o.Status().Snapshot().State)
}

func TestOrchestrator_SingleItem_AdoptsGateWhenIdle(t *testing.T) {
	lister := &fakeLister{items: map[int64]catalog.Item{42: {ID: 42}}}
	proc := &fakeProc{}
	o := newTestOrchestrator(lister, proc, Config{})

	o.StartSingleItem(42)

	snap := waitComplete(t, o)
	assert.Equal(t, 1, snap.Total)
	assert.Equal(t, 1, snap.Done)
	assert.Equal(t, []int64{42}, proc.processed)
}

func TestOrchestrator_SingleItem_RunsAlongsideBulkWithoutDistortingCounters(t *testing.T) {
	lister := &fakeLister{
		pages: itemsToPages(makeItems(1, 2, 3, 4)),
		items: map[int64]catalog.Item{99: {ID: 99}},
	}
	proc := &fakeProc{delay: 40 * time.Millisecond}
	o := newTestOrchestrator(lister, proc, Config{})

	require.NoError(t, o.StartFullScan(0))
	o.StartSingleItem(99)

	snap := waitComplete(t, o)
	assert.Equal(t, 4, snap.Total, "single-item run must not inflate the bulk total")
	assert.Equal(t, 4, snap.Done)

	require.Eventually(t, func() bool {
		proc.mu.Lock()
		defer proc.mu.Unlock()
		for _, id := range proc.processed {
			if id == 99 {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond, "the webhook item still gets processed")
}

func TestOrchestrator_SingleItem_FetchFailureLandsInLedger(t *testing.T) {
	lister := &fakeLister{getErr: map[int64]error{7: errors.New("timeout")}}
	o := newTestOrchestrator(lister, &fakeProc{}, Config{})

	o.StartSingleItem(7)

	snap := waitComplete(t, o)
	require.Len(t, snap.Failures, 1)
	assert.Equal(t, int64(7), snap.Failures[0].ItemID)
	assert.Contains(t, snap.Failures[0].Error, "timeout")
}

func TestTimer_TickPrefersRetryOverFullScan(t *testing.T) {
	lister := &fakeLister{
		pages: itemsToPages(makeItems(1)),
		items: map[int64]catalog.Item{1: {ID: 1}},
	}
	proc := &fakeProc{failItems: map[int64]bool{1: true}}
	o := newTestOrchestrator(lister, proc, Config{})
	timer := NewTimer(o, zerolog.Nop())

	require.NoError(t, o.StartFullScan(0))
	waitComplete(t, o)
	require.Len(t, o.Status().Failures(), 1)

	proc.mu.Lock()
	proc.failItems = nil
	proc.mu.Unlock()

	timer.tick()
	snap := waitComplete(t, o)
	assert.Empty(t, snap.Failures)
	assert.Equal(t, 1, snap.Total, "tick with a non-empty ledger retries instead of rescanning")
}

func TestTimer_ScheduleRejectsBadExpression(t *testing.T) {
	o := newTestOrchestrator(&fakeLister{}, &fakeProc{}, Config{})
	timer := NewTimer(o, zerolog.Nop())
	require.Error(t, timer.Schedule("not a cron expr"))
}
