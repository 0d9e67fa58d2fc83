package app

import (
	"context"
	"time"

	"orderbot/internal/dispatch"
	"orderbot/internal/eventbus"
	"orderbot/internal/storage"
	logx "orderbot/pkg/logx"
)

const (
	journalBuffer   = 512
	journalBatch    = 64
	journalInterval = 500 * time.Millisecond
	journalFlushMax = 2 * time.Second
)

// journalEntry converts a scheduler event. Events from other publishers are skipped.
func journalEntry(runID string, e eventbus.Event) (storage.Entry, bool) {
	oe, ok := e.Data.(dispatch.OrderEvent)
	if !ok {
		return storage.Entry{}, false
	}
	return storage.Entry{
		At:       e.Time,
		RunID:    runID,
		Type:     e.Type,
		OrderID:  oe.OrderID,
		WorkerID: oe.WorkerID,
		Class:    oe.Class,
		Status:   oe.Status,
		Attempts: oe.Attempts,
		Reason:   oe.Reason,
	}, true
}

// journal copies bus events into the store in small batches. On cancel it
// drains whatever is buffered and writes it with a fresh deadline.
type journal struct {
	runID string
	store storage.Store
	log   logx.Logger

	batch []storage.Entry
}

func (j *journal) add(e eventbus.Event) {
	if ent, ok := journalEntry(j.runID, e); ok {
		j.batch = append(j.batch, ent)
	}
}

func (j *journal) flush(ctx context.Context) {
	if len(j.batch) == 0 {
		return
	}
	if err := j.store.Append(ctx, j.batch...); err != nil {
		j.log.Warn("journal append failed", logx.Int("entries", len(j.batch)), logx.Err(err))
	}
	j.batch = j.batch[:0]
}

func (j *journal) run(ctx context.Context, in <-chan eventbus.Event) error {
	t := time.NewTicker(journalInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			j.drain(in)
			fctx, cancel := context.WithTimeout(context.Background(), journalFlushMax)
			j.flush(fctx)
			cancel()
			return nil
		case e, ok := <-in:
			if !ok {
				j.flush(ctx)
				return nil
			}
			j.add(e)
			if len(j.batch) >= journalBatch {
				j.flush(ctx)
			}
		case <-t.C:
			j.flush(ctx)
		}
	}
}

func (j *journal) drain(in <-chan eventbus.Event) {
	for {
		select {
		case e, ok := <-in:
			if !ok {
				return
			}
			j.add(e)
		default:
			return
		}
	}
}
