// Package reminders nudges participants who stopped half way through the
// registration and reminds completed ones to use their promo code.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"promo-bot/models"
	"promo-bot/utils"
)

// Thresholds measured from the participant's creation (incomplete reminders)
// or completion (promo reminder).
const (
	After1h    = time.Hour
	After24h   = 24 * time.Hour
	After3d    = 72 * time.Hour
	PromoAfter = 7 * 24 * time.Hour
)

// ErrUndeliverable is returned by a Notifier when the recipient can never be
// reached (blocked the bot, deleted account). Such reminders count as sent.
var ErrUndeliverable = errors.New("recipient cannot be reached")

type Store interface {
	ListIncomplete(ctx context.Context, createdBefore time.Time) ([]models.Participant, error)
	ListCompletedBefore(ctx context.Context, t time.Time) ([]models.Participant, error)
	SentReminders(ctx context.Context, userID int64) (map[models.ReminderType]bool, error)
	MarkReminderSent(ctx context.Context, userID int64, typ models.ReminderType) (bool, error)
}

type Notifier interface {
	Send(ctx context.Context, userID int64, text string) error
	NotifyAdmins(ctx context.Context, text string)
}

// Counter is told about every delivered reminder. metrics.Metrics implements it.
type Counter interface {
	ReminderSent(kind string)
}

type Service struct {
	store    Store
	notifier Notifier
	counter  Counter
	campaign string
	now      func() time.Time
}

type Option func(*Service)

func WithCounter(c Counter) Option {
	return func(s *Service) { s.counter = c }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store Store, notifier Notifier, campaign string, opts ...Option) *Service {
	s := &Service{store: store, notifier: notifier, campaign: campaign, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Due returns the incomplete reminder matching the time elapsed since
// creation. Only the largest threshold passed is considered.
func Due(createdAt, now time.Time) (models.ReminderType, bool) {
	elapsed := now.Sub(createdAt)
	switch {
	case elapsed >= After3d:
		return models.ReminderIncomplete3d, true
	case elapsed >= After24h:
		return models.ReminderIncomplete24h, true
	case elapsed >= After1h:
		return models.ReminderIncomplete1h, true
	}
	return "", false
}

// Run performs one pass over incomplete and completed participants and
// returns how many reminders were delivered.
func (s *Service) Run(ctx context.Context) (int, error) {
	now := s.now()
	incomplete, err := s.store.ListIncomplete(ctx, now.Add(-After1h))
	if err != nil {
		return 0, fmt.Errorf("list incomplete: %w", err)
	}

	sent := 0
	for _, p := range incomplete {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		typ, ok := Due(p.CreatedAt, now)
		if !ok {
			continue
		}
		text := IncompleteMessage(typ, p.Stage, s.campaign)
		if text == "" {
			continue
		}
		if s.deliver(ctx, p.UserID, typ, text) {
			sent++
		}
	}

	completed, err := s.store.ListCompletedBefore(ctx, now.Add(-PromoAfter))
	if err != nil {
		return sent, fmt.Errorf("list completed: %w", err)
	}
	for _, p := range completed {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if p.PromoCode == nil {
			continue
		}
		if s.deliver(ctx, p.UserID, models.ReminderPromo, PromoMessage(*p.PromoCode)) {
			sent++
		}
	}

	if sent > 0 {
		log.Printf("🔔 [REMINDERS] %d reminder(s) sent", sent)
	}
	return sent, nil
}

// deliver sends one reminder unless it already went out.
func (s *Service) deliver(ctx context.Context, userID int64, typ models.ReminderType, text string) bool {
	already, err := s.store.SentReminders(ctx, userID)
	if err != nil {
		log.Printf("⚠️ [REMINDERS] Could not read reminder log of user %d: %v", userID, err)
		return false
	}
	if already[typ] {
		return false
	}

	sendErr := s.notifier.Send(ctx, userID, text)
	if sendErr != nil && !errors.Is(sendErr, ErrUndeliverable) {
		log.Printf("⚠️ [REMINDERS] Failed to send %s to user %d: %v", typ, userID, sendErr)
		return false
	}
	if _, err := s.store.MarkReminderSent(ctx, userID, typ); err != nil {
		log.Printf("⚠️ [REMINDERS] Failed to record %s for user %d: %v", typ, userID, err)
	}
	if sendErr != nil {
		log.Printf("🔕 [REMINDERS] User %d is unreachable, %s skipped", userID, typ)
		return false
	}
	if s.counter != nil {
		s.counter.ReminderSent(string(typ))
	}
	log.Printf("📨 [REMINDERS] %s sent to user %d", typ, userID)
	return true
}

// NotifyCompletion tells admins about a finished registration. It has the
// shape of registration.CompletionHook.
func (s *Service) NotifyCompletion(ctx context.Context, p *models.Participant) {
	s.notifier.NotifyAdmins(ctx, CompletionMessage(p, s.now()))
}

// CompletionMessage is the admin notice for a finished registration.
func CompletionMessage(p *models.Participant, at time.Time) string {
	return fmt.Sprintf("✅ <b>Регистрация завершена</b>\n\nID: %d\nEmail: %s\nИНН: %s\nПромокод: %s\nВремя: %s\n\n📊 Проверьте статистику: /admin_stats",
		p.UserID, utils.MaskEmail(p.EmailValue()), utils.MaskINN(p.INNValue()), p.PromoCodeValue(), at.Format("02.01.2006 15:04"))
}
