package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"promo-bot/reminders"
)

// Notifier pushes messages outside of an update: reminders, admin alerts and
// reports.
type Notifier struct {
	api    Sender
	admins []int64
}

func NewNotifier(api Sender, admins []int64) *Notifier {
	return &Notifier{api: api, admins: admins}
}

// Send delivers text to a participant. A recipient that blocked the bot or no
// longer exists yields reminders.ErrUndeliverable.
func (n *Notifier) Send(ctx context.Context, userID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(userID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := n.api.Send(msg); err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && (apiErr.Code == http.StatusForbidden || apiErr.Message == "Bad Request: chat not found") {
			return fmt.Errorf("send to %d: %w: %s", userID, reminders.ErrUndeliverable, apiErr.Message)
		}
		return fmt.Errorf("send to %d: %w", userID, err)
	}
	return nil
}

// NotifyAdmins sends text to every admin. Failures are logged per recipient.
func (n *Notifier) NotifyAdmins(ctx context.Context, text string) {
	for _, id := range n.admins {
		if err := n.Send(ctx, id, text); err != nil {
			log.Printf("⚠️ [BOT] Failed to notify admin %d: %v", id, err)
		}
	}
}
