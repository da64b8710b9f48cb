package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nmwangi/dukatrans/internal/catalog"
	"github.com/nmwangi/dukatrans/internal/metrics"
	"github.com/nmwangi/dukatrans/internal/processor"
)

// ErrBusy is returned when a bulk run is rejected by the single-flight gate.
var ErrBusy = errors.New("a bulk job is already running")

// Lister is the slice of the catalog gateway the orchestrator needs.
type Lister interface {
	ListItems(ctx context.Context, cursor string) (catalog.Page, error)
	GetItem(ctx context.Context, id int64) (*catalog.Item, error)
}

// ItemProcessor runs the unit of work for one item.
type ItemProcessor interface {
	Process(ctx context.Context, item catalog.Item) processor.Result
}

type Config struct {
	ChunkSize  int
	ChunkPause time.Duration
}

// Orchestrator accepts triggers, enumerates work sets, and dispatches item
// processing under the chunked concurrency bound. Bulk runs (full scan,
// retry) are single-flight; single-item runs bypass the gate.
type Orchestrator struct {
	catalog   Lister
	proc      ItemProcessor
	status    *Status
	collector *metrics.Collector
	logger    zerolog.Logger

	chunkSize  int
	chunkPause time.Duration
}

func NewOrchestrator(lister Lister, proc ItemProcessor, status *Status, cfg Config, collector *metrics.Collector, logger zerolog.Logger) *Orchestrator {
	chunkSize := cfg.ChunkSize
	if chunkSize < 1 {
		chunkSize = 1
	}
	return &Orchestrator{
		catalog:    lister,
		proc:       proc,
		status:     status,
		collector:  collector,
		logger:     logger,
		chunkSize:  chunkSize,
		chunkPause: cfg.ChunkPause,
	}
}

func (o *Orchestrator) Status() *Status { return o.status }

// StartFullScan claims the gate, then asynchronously walks the whole catalog
// and dispatches every item. chunkSize <= 0 uses the configured default.
func (o *Orchestrator) StartFullScan(chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = o.chunkSize
	}
	if !o.status.TryStart(true) {
		return ErrBusy
	}
	o.collector.ScanStarted()
	o.logger.Info().Int("chunk_size", chunkSize).Msg("full scan accepted")

	// The run must outlive the trigger (an HTTP request or a cron tick), so
	// it runs on a fresh context. There is no cancellation primitive: once
	// dispatched, a run drains to completion.
	go o.runFullScan(context.Background(), chunkSize)
	return nil
}

func (o *Orchestrator) runFullScan(ctx context.Context, chunkSize int) {
	defer o.status.Finish()

	items, err := o.collectItems(ctx)
	if err != nil {
		o.logger.Error().Err(err).Msg("catalog enumeration failed")
		return
	}

	o.status.SetTotal(len(items))
	o.logger.Info().Int("items", len(items)).Msg("catalog enumerated")
	o.dispatch(ctx, items, chunkSize)
}

// StartSingleItem processes one item outside the bulk single-flight gate.
// When no bulk run is active it adopts the gate as a one-item job so status
// reads stay meaningful; otherwise it only touches the failure ledger.
func (o *Orchestrator) StartSingleItem(itemID int64) {
	tracked := o.status.TryStart(false)
	o.logger.Info().Int64("item_id", itemID).Bool("tracked", tracked).Msg("single item accepted")

	go func() {
		ctx := context.Background()
		if tracked {
			defer o.status.Finish()
			o.status.SetTotal(1)
		}

		item, err := o.catalog.GetItem(ctx, itemID)
		if err != nil {
			o.recordItemOutcome(tracked, itemID, []FailureRecord{
				newFailureRecord(itemID, 0, "", fmt.Errorf("fetch item: %w", err)),
			})
			return
		}
		o.processOne(ctx, *item, tracked)
	}()
}

// RetryFailed re-dispatches exactly the items in the failure ledger. Each
// item is re-fetched in full, since its text fields may need re-translation
// too. A successful item drops its ledger entries; a new failure replaces
// them.
func (o *Orchestrator) RetryFailed() error {
	itemIDs := distinctItemIDs(o.status.Failures())
	if len(itemIDs) == 0 {
		return nil
	}
	if !o.status.TryStart(false) {
		return ErrBusy
	}
	o.collector.ScanStarted()
	o.logger.Info().Int("items", len(itemIDs)).Msg("retry accepted")

	go o.runRetry(context.Background(), itemIDs)
	return nil
}

func (o *Orchestrator) runRetry(ctx context.Context, itemIDs []int64) {
	defer o.status.Finish()
	o.status.SetTotal(len(itemIDs))

	items := make([]catalog.Item, 0, len(itemIDs))
	for _, id := range itemIDs {
		item, err := o.catalog.GetItem(ctx, id)
		if err != nil {
			// Replace the stale ledger entries so the ledger never grows
			// under retry.
			o.status.RemoveFailures(id)
			o.status.ItemFailed(newFailureRecord(id, 0, "", fmt.Errorf("fetch item: %w", err)))
			continue
		}
		items = append(items, *item)
	}

	o.dispatch(ctx, items, o.chunkSize)
}

// dispatch partitions items into fixed-size chunks and processes one chunk
// concurrently at a time, fully draining it before the next starts. The
// pause between chunks keeps request patterns from bursting against
// rate-limited collaborators.
func (o *Orchestrator) dispatch(ctx context.Context, items []catalog.Item, chunkSize int) {
	for start := 0; start < len(items); start += chunkSize {
		end := min(start+chunkSize, len(items))

		g := new(errgroup.Group)
		for _, item := range items[start:end] {
			item := item
			g.Go(func() error {
				o.processOne(ctx, item, true)
				return nil
			})
		}
		_ = g.Wait()

		if end < len(items) && o.chunkPause > 0 {
			time.Sleep(o.chunkPause)
		}
	}
}

func (o *Orchestrator) processOne(ctx context.Context, item catalog.Item, tracked bool) {
	o.collector.ItemStarted()
	started := time.Now()

	res := o.proc.Process(ctx, item)

	records := make([]FailureRecord, 0, len(res.Failures))
	for _, f := range res.Failures {
		records = append(records, newFailureRecord(f.ItemID, f.ImageID, f.ImageSrc, f.Err))
	}
	o.recordItemOutcome(tracked, item.ID, records)

	o.collector.ItemFinished(res.Failed(), res.TranslatedImages, res.SkippedImages, time.Since(started))
	o.logger.Debug().
		Int64("item_id", item.ID).
		Int("translated_images", res.TranslatedImages).
		Int("skipped_images", res.SkippedImages).
		Int("failures", len(res.Failures)).
		Msg("item processed")
}

// recordItemOutcome applies one item's completion to the status store. Prior
// ledger entries for the item are always dropped first, so a success shrinks
// the ledger and a repeat failure replaces rather than accumulates.
func (o *Orchestrator) recordItemOutcome(tracked bool, itemID int64, records []FailureRecord) {
	o.status.RemoveFailures(itemID)
	switch {
	case len(records) == 0 && tracked:
		o.status.ItemSucceeded()
	case len(records) > 0 && tracked:
		o.status.ItemFailed(records...)
	case len(records) > 0:
		o.status.AppendFailures(records...)
	}
}

func (o *Orchestrator) collectItems(ctx context.Context) ([]catalog.Item, error) {
	var items []catalog.Item
	cursor := ""
	for {
		page, err := o.catalog.ListItems(ctx, cursor)
		if err != nil {
			return nil, fmt.Errorf("list items (cursor %q): %w", cursor, err)
		}
		items = append(items, page.Items...)
		if page.NextCursor == "" {
			return items, nil
		}
		cursor = page.NextCursor
	}
}

func distinctItemIDs(records []FailureRecord) []int64 {
	seen := make(map[int64]struct{}, len(records))
	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		if !rec.Retryable {
			continue
		}
		if _, ok := seen[rec.ItemID]; ok {
			continue
		}
		seen[rec.ItemID] = struct{}{}
		ids = append(ids, rec.ItemID)
	}
	return ids
}
