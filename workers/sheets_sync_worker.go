// workers/sheets_sync_worker.go
package workers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"promo-bot/models"
	"promo-bot/services"
	"promo-bot/utils"
)

// SheetSource is the spreadsheet side of the mirror. utils.SheetsClient implements it.
type SheetSource interface {
	ReadEmails(ctx context.Context, sheetID string) ([]string, error)
	ReadPromos(ctx context.Context, sheetID string) ([]utils.PromoRow, error)
	MarkUsed(ctx context.Context, sheetID string, rows []int) error
}

type EmailMirror interface {
	Replace(ctx context.Context, emails []string) (int, error)
}

type CodeMirror interface {
	Import(ctx context.Context, codes []services.ImportedCode) (int64, error)
	PendingSheetUpdates(ctx context.Context) ([]models.PromoCode, error)
	MarkSheetSynced(ctx context.Context, codes []string) error
}

// SyncObserver is told about every successful sync. metrics.Metrics implements it.
type SyncObserver interface {
	SheetsSynced(at time.Time)
}

// SheetsSyncWorker mirrors the eligibility sheet into eligible_emails, imports
// unseen unused codes from the promo sheet and writes claims back to it.
type SheetsSyncWorker struct {
	source        SheetSource
	emails        EmailMirror
	codes         CodeMirror
	emailsSheetID string
	promosSheetID string
	interval      time.Duration
	observer      SyncObserver
	now           func() time.Time

	runMu    sync.Mutex // one sync at a time
	mu       sync.Mutex
	lastSync time.Time
	lastErr  error
}

func NewSheetsSyncWorker(source SheetSource, emails EmailMirror, codes CodeMirror, emailsSheetID, promosSheetID string, interval time.Duration, observer SyncObserver) *SheetsSyncWorker {
	return &SheetsSyncWorker{
		source:        source,
		emails:        emails,
		codes:         codes,
		emailsSheetID: emailsSheetID,
		promosSheetID: promosSheetID,
		interval:      interval,
		observer:      observer,
		now:           time.Now,
	}
}

// Run syncs once immediately and then on every tick until ctx is done.
func (w *SheetsSyncWorker) Run(ctx context.Context) {
	log.Printf("🔁 [SYNC] Starting Google Sheets sync worker (every %s)", w.interval)
	if err := w.SyncOnce(ctx); err != nil {
		log.Printf("⚠️ [SYNC] Initial sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.SyncOnce(ctx); err != nil {
				log.Printf("❌ [SYNC] Sync failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ [SYNC] Google Sheets sync worker stopped")
			return
		}
	}
}

// LastSync reports when the last successful sync finished and the error of
// the most recent attempt, if it failed.
func (w *SheetsSyncWorker) LastSync() (time.Time, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSync, w.lastErr
}

// SyncOnce runs one full sync. The three steps are independent; a failing one
// does not stop the others.
func (w *SheetsSyncWorker) SyncOnce(ctx context.Context) error {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	start := w.now()
	err := errors.Join(w.syncEmails(ctx), w.syncPromos(ctx))

	w.mu.Lock()
	w.lastErr = err
	if err == nil {
		w.lastSync = w.now()
	}
	w.mu.Unlock()

	if err != nil {
		return err
	}
	if w.observer != nil {
		w.observer.SheetsSynced(w.lastSync)
	}
	log.Printf("✅ [SYNC] Sheets synced in %s", w.now().Sub(start).Round(time.Millisecond))
	return nil
}

func (w *SheetsSyncWorker) syncEmails(ctx context.Context) error {
	emails, err := w.source.ReadEmails(ctx, w.emailsSheetID)
	if err != nil {
		return fmt.Errorf("read emails: %w", err)
	}
	n, err := w.emails.Replace(ctx, emails)
	if err != nil {
		return fmt.Errorf("mirror emails: %w", err)
	}
	log.Printf("📧 [SYNC] %d eligible email(s) mirrored", n)
	return nil
}

func (w *SheetsSyncWorker) syncPromos(ctx context.Context) error {
	rows, err := w.source.ReadPromos(ctx, w.promosSheetID)
	if err != nil {
		return fmt.Errorf("read promos: %w", err)
	}

	fresh := make([]services.ImportedCode, 0, len(rows))
	for _, r := range rows {
		if !r.Used {
			fresh = append(fresh, services.ImportedCode{Code: r.Code, Position: r.Row})
		}
	}
	var errs []error
	if _, err := w.codes.Import(ctx, fresh); err != nil {
		errs = append(errs, fmt.Errorf("import codes: %w", err))
	}
	if err := w.writeBack(ctx, rows); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// writeBack marks claimed codes as used in the promo sheet. Codes that are
// already TRUE there only get their synced flag set.
func (w *SheetsSyncWorker) writeBack(ctx context.Context, rows []utils.PromoRow) error {
	pending, err := w.codes.PendingSheetUpdates(ctx)
	if err != nil {
		return fmt.Errorf("pending sheet updates: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	byCode := make(map[string]utils.PromoRow, len(rows))
	for _, r := range rows {
		byCode[r.Code] = r
	}
	var toMark []int
	var synced []string
	for _, c := range pending {
		r, ok := byCode[c.Code]
		if !ok {
			log.Printf("⚠️ [SYNC] Claimed code %s is not in the promo sheet", c.Code)
			continue
		}
		if !r.Used {
			toMark = append(toMark, r.Row)
		}
		synced = append(synced, c.Code)
	}

	if err := w.source.MarkUsed(ctx, w.promosSheetID, toMark); err != nil {
		return fmt.Errorf("write back: %w", err)
	}
	if err := w.codes.MarkSheetSynced(ctx, synced); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	if len(toMark) > 0 {
		log.Printf("📝 [SYNC] Marked %d code(s) as used in the promo sheet", len(toMark))
	}
	return nil
}
