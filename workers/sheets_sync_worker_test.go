package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promo-bot/models"
	"promo-bot/services"
	"promo-bot/utils"
)

type fakeSource struct {
	emails    []string
	emailsErr error
	promos    []utils.PromoRow
	marked    []int
}

func (f *fakeSource) ReadEmails(context.Context, string) ([]string, error) {
	return f.emails, f.emailsErr
}

func (f *fakeSource) ReadPromos(context.Context, string) ([]utils.PromoRow, error) {
	return f.promos, nil
}

func (f *fakeSource) MarkUsed(_ context.Context, _ string, rows []int) error {
	f.marked = append(f.marked, rows...)
	return nil
}

type fakeEmails struct{ got []string }

func (f *fakeEmails) Replace(_ context.Context, emails []string) (int, error) {
	if len(emails) == 0 {
		return 0, services.ErrEmptyEligibilityList
	}
	f.got = emails
	return len(emails), nil
}

type fakeCodes struct {
	mu       sync.Mutex
	imported []services.ImportedCode
	pending  []models.PromoCode
	synced   []string
}

func (f *fakeCodes) Import(_ context.Context, codes []services.ImportedCode) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imported = append(f.imported, codes...)
	return int64(len(codes)), nil
}

func (f *fakeCodes) PendingSheetUpdates(context.Context) ([]models.PromoCode, error) {
	return f.pending, nil
}

func (f *fakeCodes) MarkSheetSynced(_ context.Context, codes []string) error {
	f.synced = append(f.synced, codes...)
	return nil
}

type syncCounter struct{ calls int }

func (s *syncCounter) SheetsSynced(time.Time) { s.calls++ }

func TestSyncOnce(t *testing.T) {
	source := &fakeSource{
		emails: []string{"a@example.com", "b@example.com"},
		promos: []utils.PromoRow{
			{Code: "OLD", Used: true, Row: 2},
			{Code: "C1", Used: false, Row: 3},
			{Code: "C2", Used: false, Row: 4},
			{Code: "C3", Used: true, Row: 5},
		},
	}
	emails := &fakeEmails{}
	codes := &fakeCodes{pending: []models.PromoCode{
		{Code: "C1", Status: models.CodeClaimed},
		{Code: "C3", Status: models.CodeClaimed},
		{Code: "GONE", Status: models.CodeClaimed},
	}}
	observer := &syncCounter{}
	w := NewSheetsSyncWorker(source, emails, codes, "emails", "promos", time.Minute, observer)

	require.NoError(t, w.SyncOnce(context.Background()))

	assert.Equal(t, source.emails, emails.got)
	assert.Equal(t, []services.ImportedCode{{Code: "C1", Position: 3}, {Code: "C2", Position: 4}}, codes.imported)
	assert.Equal(t, []int{3}, source.marked, "only rows not yet TRUE are written")
	assert.Equal(t, []string{"C1", "C3"}, codes.synced)
	assert.Equal(t, 1, observer.calls)

	at, err := w.LastSync()
	assert.NoError(t, err)
	assert.False(t, at.IsZero())
}

func TestSyncOnceKeepsGoingAfterEmailFailure(t *testing.T) {
	source := &fakeSource{
		emailsErr: errors.New("quota exceeded"),
		promos:    []utils.PromoRow{{Code: "C1", Row: 2}},
	}
	codes := &fakeCodes{}
	observer := &syncCounter{}
	w := NewSheetsSyncWorker(source, &fakeEmails{}, codes, "emails", "promos", time.Minute, observer)

	err := w.SyncOnce(context.Background())
	require.ErrorContains(t, err, "quota exceeded")
	assert.Len(t, codes.imported, 1)
	assert.Zero(t, observer.calls)

	at, lastErr := w.LastSync()
	assert.True(t, at.IsZero())
	assert.Error(t, lastErr)
}

func TestSyncOnceRefusesEmptyEmailList(t *testing.T) {
	source := &fakeSource{promos: nil}
	w := NewSheetsSyncWorker(source, &fakeEmails{}, &fakeCodes{}, "emails", "promos", time.Minute, nil)

	err := w.SyncOnce(context.Background())
	assert.ErrorIs(t, err, services.ErrEmptyEligibilityList)
}

func TestRunStopsOnCancel(t *testing.T) {
	source := &fakeSource{emails: []string{"a@example.com"}}
	codes := &fakeCodes{}
	w := NewSheetsSyncWorker(source, &fakeEmails{}, codes, "emails", "promos", 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		at, _ := w.LastSync()
		return !at.IsZero()
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
