package reminders_test

//go:generate mockgen -source=reminders.go -destination=mocks/mocks.go -package=mocks Store,Notifier,Counter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"promo-bot/models"
	"promo-bot/reminders"
	"promo-bot/reminders/mocks"
)

var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func participant(id int64, stage models.Stage, createdAgo time.Duration) models.Participant {
	return models.Participant{UserID: id, Stage: stage, CreatedAt: now.Add(-createdAgo)}
}

func TestDue(t *testing.T) {
	tests := []struct {
		elapsed time.Duration
		want    models.ReminderType
		ok      bool
	}{
		{59 * time.Minute, "", false},
		{time.Hour, models.ReminderIncomplete1h, true},
		{23 * time.Hour, models.ReminderIncomplete1h, true},
		{24 * time.Hour, models.ReminderIncomplete24h, true},
		{71 * time.Hour, models.ReminderIncomplete24h, true},
		{72 * time.Hour, models.ReminderIncomplete3d, true},
		{30 * 24 * time.Hour, models.ReminderIncomplete3d, true},
	}
	for _, tt := range tests {
		got, ok := reminders.Due(now.Add(-tt.elapsed), now)
		assert.Equal(t, tt.ok, ok, tt.elapsed)
		assert.Equal(t, tt.want, got, tt.elapsed)
	}
}

func TestIncompleteMessage(t *testing.T) {
	msg := reminders.IncompleteMessage(models.ReminderIncomplete24h, models.StageAwaitingINN, "Spring Campaign")
	assert.Contains(t, msg, "Spring Campaign")
	assert.Contains(t, msg, "ИНН")
	assert.True(t, strings.HasSuffix(msg, "/start чтобы продолжить."))

	assert.Empty(t, reminders.IncompleteMessage(models.ReminderIncomplete1h, models.StageCompleted, "x"))
	assert.Empty(t, reminders.IncompleteMessage(models.ReminderPromo, models.StageAwaitingEmail, "x"))
}

type fixture struct {
	store    *mocks.MockStore
	notifier *mocks.MockNotifier
	counter  *mocks.MockCounter
	svc      *reminders.Service
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	f := &fixture{
		store:    mocks.NewMockStore(ctrl),
		notifier: mocks.NewMockNotifier(ctrl),
		counter:  mocks.NewMockCounter(ctrl),
	}
	f.svc = reminders.New(f.store, f.notifier, "Spring Campaign",
		reminders.WithCounter(f.counter),
		reminders.WithClock(func() time.Time { return now }),
	)
	return f
}

func TestRunSendsLargestDueReminderOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.EXPECT().ListIncomplete(ctx, now.Add(-reminders.After1h)).Return([]models.Participant{
		participant(1, models.StageAwaitingEmail, 2*time.Hour),
		participant(2, models.StageAwaitingINN, 25*time.Hour),
		participant(3, models.StageAwaitingConfirmation, 4*24*time.Hour),
	}, nil)
	f.store.EXPECT().ListCompletedBefore(ctx, now.Add(-reminders.PromoAfter)).Return(nil, nil)

	f.store.EXPECT().SentReminders(ctx, int64(1)).Return(map[models.ReminderType]bool{}, nil)
	f.store.EXPECT().SentReminders(ctx, int64(2)).Return(map[models.ReminderType]bool{models.ReminderIncomplete1h: true}, nil)
	f.store.EXPECT().SentReminders(ctx, int64(3)).Return(map[models.ReminderType]bool{models.ReminderIncomplete3d: true}, nil)

	f.notifier.EXPECT().Send(ctx, int64(1), gomock.Any()).Return(nil)
	f.notifier.EXPECT().Send(ctx, int64(2), gomock.Any()).Return(nil)
	f.store.EXPECT().MarkReminderSent(ctx, int64(1), models.ReminderIncomplete1h).Return(true, nil)
	f.store.EXPECT().MarkReminderSent(ctx, int64(2), models.ReminderIncomplete24h).Return(true, nil)
	f.counter.EXPECT().ReminderSent("incomplete_1h")
	f.counter.EXPECT().ReminderSent("incomplete_24h")

	sent, err := f.svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
}

func TestRunSendsPromoReminder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := "PROMO-1"
	done := now.Add(-8 * 24 * time.Hour)

	f.store.EXPECT().ListIncomplete(ctx, gomock.Any()).Return(nil, nil)
	f.store.EXPECT().ListCompletedBefore(ctx, gomock.Any()).Return([]models.Participant{
		{UserID: 7, Stage: models.StageCompleted, PromoCode: &code, CompletedAt: &done},
	}, nil)
	f.store.EXPECT().SentReminders(ctx, int64(7)).Return(nil, nil)
	f.notifier.EXPECT().Send(ctx, int64(7), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ int64, text string) error {
			assert.Contains(t, text, "<code>PROMO-1</code>")
			return nil
		})
	f.store.EXPECT().MarkReminderSent(ctx, int64(7), models.ReminderPromo).Return(true, nil)
	f.counter.EXPECT().ReminderSent("promo_reminder")

	sent, err := f.svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestRunDeliveryFailures(t *testing.T) {
	t.Run("transient failure is retried on the next run", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.store.EXPECT().ListIncomplete(ctx, gomock.Any()).Return([]models.Participant{
			participant(1, models.StageAwaitingEmail, 2*time.Hour),
		}, nil)
		f.store.EXPECT().ListCompletedBefore(ctx, gomock.Any()).Return(nil, nil)
		f.store.EXPECT().SentReminders(ctx, int64(1)).Return(nil, nil)
		f.notifier.EXPECT().Send(ctx, int64(1), gomock.Any()).Return(errors.New("timeout"))

		sent, err := f.svc.Run(ctx)
		require.NoError(t, err)
		assert.Zero(t, sent)
	})

	t.Run("unreachable recipient is recorded and not retried", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.store.EXPECT().ListIncomplete(ctx, gomock.Any()).Return([]models.Participant{
			participant(1, models.StageAwaitingEmail, 2*time.Hour),
		}, nil)
		f.store.EXPECT().ListCompletedBefore(ctx, gomock.Any()).Return(nil, nil)
		f.store.EXPECT().SentReminders(ctx, int64(1)).Return(nil, nil)
		f.notifier.EXPECT().Send(ctx, int64(1), gomock.Any()).Return(reminders.ErrUndeliverable)
		f.store.EXPECT().MarkReminderSent(ctx, int64(1), models.ReminderIncomplete1h).Return(true, nil)

		sent, err := f.svc.Run(ctx)
		require.NoError(t, err)
		assert.Zero(t, sent)
	})

	t.Run("store failure aborts the run", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.store.EXPECT().ListIncomplete(ctx, gomock.Any()).Return(nil, errors.New("db down"))

		_, err := f.svc.Run(ctx)
		assert.ErrorContains(t, err, "db down")
	})
}

func TestNotifyCompletion(t *testing.T) {
	f := newFixture(t)
	email, inn, code := "john@example.com", "7707083893", "C1"

	f.notifier.EXPECT().NotifyAdmins(gomock.Any(), gomock.Any()).Do(func(_ context.Context, text string) {
		assert.Contains(t, text, "j**n@example.com")
		assert.Contains(t, text, "770***93")
		assert.Contains(t, text, "C1")
		assert.NotContains(t, text, inn)
	})
	f.svc.NotifyCompletion(context.Background(), &models.Participant{
		UserID: 5, Email: &email, INN: &inn, PromoCode: &code, Stage: models.StageCompleted,
	})
}
