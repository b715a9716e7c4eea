// Package bot is the Telegram transport: it turns updates into registration
// transitions and the results back into messages.
package bot

import (
	"context"
	"errors"
	"log"
	"slices"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"promo-bot/models"
	"promo-bot/registration"
	"promo-bot/sentinel"
	"promo-bot/services"
)

// Sender is the part of *tgbotapi.BotAPI the bot uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Registration is implemented by *registration.Workflow.
type Registration interface {
	Start(ctx context.Context, userID int64, handle string) (*registration.Result, error)
	Dispatch(ctx context.Context, userID int64, text string) (*registration.Result, error)
	Confirm(ctx context.Context, userID int64, yes bool) (*registration.Result, error)
	Status(ctx context.Context, userID int64) (*registration.Result, error)
}

// StatsReporter is implemented by *services.MonitoringService.
type StatsReporter interface {
	DailyReport(ctx context.Context, campaign string) string
}

// Auditor is implemented by *services.AuditService.
type Auditor interface {
	Run(ctx context.Context) (*services.AuditReport, error)
}

// Observer is told how every update ended. metrics.Metrics implements it.
type Observer interface {
	ObserveUpdate(kind, outcome string, start time.Time)
}

type Settings struct {
	Campaign        string
	SupportUsername string
	RegistrationURL string
	PromoURL        string
	AdminIDs        []int64
}

const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeError    = "error"
	outcomePanic    = "panic"
	outcomeIgnored  = "ignored"

	updateTimeout = 30 * time.Second
)

type Bot struct {
	api      Sender
	flow     Registration
	texts    texts
	admins   []int64
	stats    StatsReporter
	auditor  Auditor
	observer Observer

	wg sync.WaitGroup
}

type Option func(*Bot)

func WithReports(stats StatsReporter, auditor Auditor) Option {
	return func(b *Bot) {
		b.stats = stats
		b.auditor = auditor
	}
}

func WithObserver(o Observer) Option {
	return func(b *Bot) { b.observer = o }
}

func New(api Sender, flow Registration, settings Settings, opts ...Option) *Bot {
	b := &Bot{
		api:    api,
		flow:   flow,
		texts:  texts{Settings: settings},
		admins: settings.AdminIDs,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run handles updates until ctx is cancelled or the channel is closed, then
// waits for in-flight handlers.
func (b *Bot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	log.Println("🤖 [BOT] Listening for updates")
	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			log.Println("🛑 [BOT] Stopping, waiting for in-flight updates")
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.Handle(ctx, upd)
			}()
		}
	}
}

// Handle processes one update. In-flight work outlives the caller's
// cancellation for up to updateTimeout so a confirmation is never cut in half.
func (b *Bot) Handle(ctx context.Context, upd tgbotapi.Update) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), updateTimeout)
	defer cancel()

	start := time.Now()
	kind, outcome := "other", outcomeIgnored
	defer func() {
		if r := recover(); r != nil {
			log.Printf("🔥 [BOT] Panic while handling update %d: %v", upd.UpdateID, r)
			outcome = outcomePanic
		}
		if b.observer != nil {
			b.observer.ObserveUpdate(kind, outcome, start)
		}
	}()

	switch {
	case upd.CallbackQuery != nil:
		kind = "callback"
		outcome = b.onCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil && upd.Message.From != nil && upd.Message.Chat != nil && upd.Message.Chat.IsPrivate():
		if upd.Message.IsCommand() {
			kind = "command"
			outcome = b.onCommand(ctx, upd.Message)
		} else {
			kind = "text"
			outcome = b.onText(ctx, upd.Message)
		}
	}
}

func (b *Bot) onCommand(ctx context.Context, msg *tgbotapi.Message) string {
	chatID, userID := msg.Chat.ID, msg.From.ID
	switch msg.Command() {
	case "start":
		res, err := b.flow.Start(ctx, userID, msg.From.UserName)
		if err != nil {
			return b.fail(chatID, res, err)
		}
		if res.Returning {
			b.reply(chatID, b.texts.returning(res.PromoCode), mainMenu())
			return outcomeOK
		}
		b.reply(chatID, b.texts.welcome(), removeKeyboard())
		return outcomeOK
	case "status":
		return b.status(ctx, chatID, userID)
	case "menu":
		b.reply(chatID, textMenu, mainMenu())
		return outcomeOK
	case "help":
		b.reply(chatID, b.texts.help(), mainMenu())
		return outcomeOK
	case "admin_stats":
		if !b.isAdmin(userID) || b.stats == nil {
			b.reply(chatID, textNoAccess, nil)
			return outcomeRejected
		}
		b.reply(chatID, b.stats.DailyReport(ctx, b.texts.Campaign), nil)
		return outcomeOK
	case "admin_audit":
		if !b.isAdmin(userID) || b.auditor == nil {
			b.reply(chatID, textNoAccess, nil)
			return outcomeRejected
		}
		report, err := b.auditor.Run(ctx)
		if err != nil {
			log.Printf("❌ [BOT] Audit requested by %d failed: %v", userID, err)
			b.reply(chatID, b.texts.unavailable(), nil)
			return outcomeError
		}
		b.reply(chatID, auditText(report.CheckedAt, report.ClaimedCodes, report.Completed,
			len(report.Leaked), len(report.Orphans), len(report.DuplicateINNs), len(report.DuplicateCodes)), nil)
		return outcomeOK
	}
	b.reply(chatID, textUnknown, mainMenu())
	return outcomeRejected
}

func (b *Bot) onText(ctx context.Context, msg *tgbotapi.Message) string {
	chatID, userID := msg.Chat.ID, msg.From.ID
	switch msg.Text {
	case buttonStatus:
		return b.status(ctx, chatID, userID)
	case buttonHelp:
		b.reply(chatID, b.texts.help(), mainMenu())
		return outcomeOK
	case buttonSupport:
		b.reply(chatID, b.texts.support(), mainMenu())
		return outcomeOK
	}

	res, err := b.flow.Dispatch(ctx, userID, msg.Text)
	if err != nil {
		if errors.Is(err, sentinel.ErrWrongStage) && res != nil && res.Stage == models.StageAwaitingConfirmation {
			return b.repromptConfirmation(ctx, chatID, userID)
		}
		return b.fail(chatID, res, err)
	}
	switch res.Stage {
	case models.StageAwaitingINN:
		b.reply(chatID, b.texts.emailAccepted(), nil)
	case models.StageAwaitingConfirmation:
		b.reply(chatID, b.texts.confirm(res.Email, res.INN), confirmationKeyboard())
	}
	return outcomeOK
}

func (b *Bot) onCallback(ctx context.Context, q *tgbotapi.CallbackQuery) string {
	if q.Data != callbackConfirmYes && q.Data != callbackConfirmNo {
		b.answer(q.ID, "")
		return outcomeIgnored
	}
	userID := q.From.ID
	chatID, messageID := userID, 0
	if q.Message != nil && q.Message.Chat != nil {
		chatID, messageID = q.Message.Chat.ID, q.Message.MessageID
	}

	yes := q.Data == callbackConfirmYes
	res, err := b.flow.Confirm(ctx, userID, yes)
	if err != nil {
		if errors.Is(err, sentinel.ErrWrongStage) {
			b.answer(q.ID, "⚠️ Эта кнопка больше не активна")
			return outcomeRejected
		}
		b.answer(q.ID, "")
		return b.fail(chatID, res, err)
	}

	if !yes {
		b.edit(chatID, messageID, textRestart)
		b.answer(q.ID, "Начинаем сначала")
		return outcomeOK
	}
	b.edit(chatID, messageID, b.texts.completed(res.PromoCode))
	b.reply(chatID, textMenu, mainMenu())
	b.answer(q.ID, "✅ Регистрация завершена!")
	return outcomeOK
}

func (b *Bot) status(ctx context.Context, chatID, userID int64) string {
	res, err := b.flow.Status(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		b.reply(chatID, textNotStarted, mainMenu())
		return outcomeOK
	}
	if err != nil {
		return b.fail(chatID, nil, err)
	}
	b.reply(chatID, b.texts.status(res), mainMenu())
	return outcomeOK
}

// repromptConfirmation shows the pending data again when the participant types
// instead of pressing a button.
func (b *Bot) repromptConfirmation(ctx context.Context, chatID, userID int64) string {
	res, err := b.flow.Status(ctx, userID)
	if err != nil || res.INN == "" {
		b.reply(chatID, textUseButtons, nil)
		return outcomeRejected
	}
	b.reply(chatID, textUseButtons+"\n\n"+b.texts.confirm(res.Email, res.INN), confirmationKeyboard())
	return outcomeRejected
}

// fail explains a workflow error to the participant and returns the outcome.
func (b *Bot) fail(chatID int64, res *registration.Result, err error) string {
	if res == nil {
		res = &registration.Result{}
	}
	if !sentinel.IsUserFacing(err) {
		log.Printf("❌ [BOT] Request in chat %d failed: %v", chatID, err)
		b.reply(chatID, b.texts.unavailable(), nil)
		return outcomeError
	}

	text := textUnknown
	switch {
	case errors.Is(err, sentinel.ErrInvalidFormat):
		text = textBadEmail
		if res.Stage == models.StageAwaitingINN {
			text = textBadINN
		}
	case errors.Is(err, sentinel.ErrNotEligible):
		text = b.texts.notEligible(res.Email)
	case errors.Is(err, sentinel.ErrAlreadyRegistered), errors.Is(err, sentinel.ErrConflict):
		text = b.texts.innTaken(res.INN)
	case errors.Is(err, sentinel.ErrPoolExhausted):
		text = b.texts.exhausted()
	case errors.Is(err, sentinel.ErrSessionExpired):
		text = textExpired
	case errors.Is(err, sentinel.ErrWrongStage) && res.Participant == nil:
		text = textNotStarted
	}
	b.reply(chatID, text, nil)
	return outcomeRejected
}

func (b *Bot) isAdmin(userID int64) bool {
	return slices.Contains(b.admins, userID)
}

func (b *Bot) reply(chatID int64, text string, markup any) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("⚠️ [BOT] Failed to send message to chat %d: %v", chatID, err)
	}
}

func (b *Bot) edit(chatID int64, messageID int, text string) {
	if messageID == 0 {
		b.reply(chatID, text, nil)
		return
	}
	msg := tgbotapi.NewEditMessageText(chatID, messageID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("⚠️ [BOT] Failed to edit message %d in chat %d: %v", messageID, chatID, err)
		b.reply(chatID, text, nil)
	}
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		log.Printf("⚠️ [BOT] Failed to answer callback %s: %v", callbackID, err)
	}
}
