package bot

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

const (
	buttonStatus  = "📊 Мой статус"
	buttonHelp    = "ℹ️ Помощь"
	buttonSupport = "💬 Поддержка"

	callbackConfirmYes = "confirm_yes"
	callbackConfirmNo  = "confirm_no"
)

func mainMenu() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(buttonStatus)),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonHelp),
			tgbotapi.NewKeyboardButton(buttonSupport),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func confirmationKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Да, верно", callbackConfirmYes),
			tgbotapi.NewInlineKeyboardButtonData("❌ Изменить", callbackConfirmNo),
		),
	)
}

func removeKeyboard() tgbotapi.ReplyKeyboardRemove {
	return tgbotapi.NewRemoveKeyboard(true)
}
