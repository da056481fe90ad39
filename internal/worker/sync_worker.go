// Package worker exports recorded bills to the external ledger sheet.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tally/internal/amqp"
	"tally/internal/cache"
	"tally/internal/core"
	"tally/internal/sheets"
	"tally/internal/storage"
)

// SyncWorker moves bills from SQLite to the configured sheet appender. It is
// driven by AMQP messages, with a periodic pending scan as backup for lost
// messages.
type SyncWorker struct {
	storage   *storage.SQLiteRepository
	appender  sheets.BillAppender
	batchSize int

	// categoryNames avoids one lookup per exported bill. Renames show up
	// after the TTL, which is acceptable for an export label.
	categoryNames *cache.LRU[string]
}

func NewSyncWorker(storage *storage.SQLiteRepository, appender sheets.BillAppender, batchSize int) *SyncWorker {
	return &SyncWorker{
		storage:       storage,
		appender:      appender,
		batchSize:     batchSize,
		categoryNames: cache.NewLRU[string](256, 10*time.Minute),
	}
}

// HandleSyncMessage exports the bill named by one AMQP message.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.BillSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message", "bill_id", msg.BillID)

	bill, err := w.storage.Bill(ctx, msg.BillID)
	if err != nil {
		return fmt.Errorf("get bill from storage: %w", err)
	}
	if bill == nil {
		// The bill was removed after the message was queued; drop it.
		slog.WarnContext(ctx, "Bill in sync message no longer exists", "bill_id", msg.BillID)
		return nil
	}

	if err := w.exportBill(ctx, *bill); err != nil {
		return fmt.Errorf("export bill: %w", err)
	}
	return nil
}

// ProcessPending exports bills that never got a message through, up to one
// batch. Export failures are logged and skipped so one bad bill cannot
// stall the rest.
func (w *SyncWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.storage.PendingExportBills(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending bills: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending bills", "count", len(pending))

	for _, bill := range pending {
		if err := w.exportBill(ctx, bill); err != nil {
			slog.ErrorContext(ctx, "Failed to export bill", "bill_id", bill.ID, "error", err)
		}
	}
	return nil
}

// StartupSyncCheck drains bills left pending across worker downtime. It uses
// a larger batch than the periodic scan.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	pending, err := w.storage.PendingExportBills(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending bills for startup check: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending bills found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending bills on startup, processing...", "count", len(pending))

	synced := 0
	failed := 0
	for _, bill := range pending {
		if err := w.exportBill(ctx, bill); err != nil {
			slog.ErrorContext(ctx, "Failed to export bill during startup", "bill_id", bill.ID, "error", err)
			failed++
			continue
		}
		synced++
	}

	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(pending),
		"synced", synced,
		"errors", failed)

	return nil
}

// RunPeriodic scans for pending bills every interval until ctx is cancelled.
func (w *SyncWorker) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.ProcessPending(ctx); err != nil {
				slog.ErrorContext(ctx, "Pending scan failed", "error", err)
			}
		}
	}
}

func (w *SyncWorker) categoryName(ctx context.Context, bill core.Bill) (string, error) {
	if bill.CategoryID == nil {
		return core.UncategorizedLabel, nil
	}

	key := fmt.Sprintf("%s/%d", bill.Owner, *bill.CategoryID)
	if name, ok := w.categoryNames.Get(key); ok {
		return name, nil
	}

	cat, err := w.storage.CategoryByID(ctx, bill.Owner, *bill.CategoryID)
	if err != nil {
		return "", fmt.Errorf("resolve category %d: %w", *bill.CategoryID, err)
	}
	name := core.UncategorizedLabel
	if cat != nil {
		name = cat.Name
	}
	w.categoryNames.Set(key, name)
	return name, nil
}

func (w *SyncWorker) exportBill(ctx context.Context, bill core.Bill) error {
	categoryName, err := w.categoryName(ctx, bill)
	if err != nil {
		return err
	}

	ref, err := w.appender.Append(ctx, bill, categoryName)
	if err != nil {
		if markErr := w.storage.MarkExportError(ctx, bill.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error", "bill_id", bill.ID, "error", markErr)
		}
		return fmt.Errorf("append to sheet: %w", err)
	}

	if err := w.storage.MarkExported(ctx, bill.ID); err != nil {
		// The row landed in the sheet; a failed status write only risks a
		// duplicate export later.
		slog.ErrorContext(ctx, "Failed to mark as exported", "bill_id", bill.ID, "error", err)
	}

	slog.InfoContext(ctx, "Exported bill",
		"bill_id", bill.ID,
		"sheets_ref", ref,
		"amount_cents", bill.Amount.Cents)

	return nil
}
