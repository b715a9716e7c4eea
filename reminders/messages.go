package reminders

import (
	"fmt"

	"promo-bot/models"
)

var incompleteTexts = map[models.ReminderType]map[models.Stage]string{
	models.ReminderIncomplete1h: {
		models.StageAwaitingEmail: "⏰ <b>Напоминание</b>\n\n" +
			"Вы начали регистрацию в %s, но не завершили ввод email.\n\n" +
			"📧 Пожалуйста, введите ваш email, чтобы продолжить регистрацию и получить промокод на скидку.",
		models.StageAwaitingINN: "⏰ <b>Напоминание</b>\n\n" +
			"Вы начали регистрацию в %s, но не ввели ИНН вашей компании.\n\n" +
			"🏢 Пожалуйста, введите ИНН, чтобы завершить регистрацию и получить промокод.",
		models.StageAwaitingConfirmation: "⏰ <b>Напоминание</b>\n\n" +
			"Вы ввели все данные для %s, но не подтвердили регистрацию.\n\n" +
			"✅ Пожалуйста, подтвердите регистрацию, чтобы получить промокод.",
	},
	models.ReminderIncomplete24h: {
		models.StageAwaitingEmail: "🔄 <b>Продолжите регистрацию</b>\n\n" +
			"Прошло 24 часа с момента начала регистрации в %s. Не забудьте завершить процесс!\n\n" +
			"📧 Введите ваш email, чтобы получить промокод на скидку.",
		models.StageAwaitingINN: "🔄 <b>Продолжите регистрацию</b>\n\n" +
			"Прошло 24 часа с момента начала регистрации в %s. Завершите процесс!\n\n" +
			"🏢 Введите ИНН вашей компании, чтобы получить промокод.",
		models.StageAwaitingConfirmation: "🔄 <b>Продолжите регистрацию</b>\n\n" +
			"Прошло 24 часа с момента ввода данных для %s. Подтвердите регистрацию!\n\n" +
			"✅ Подтвердите регистрацию, чтобы получить промокод на скидку.",
	},
	models.ReminderIncomplete3d: {
		models.StageAwaitingEmail: "🎯 <b>Последний шанс!</b>\n\n" +
			"Прошло 3 дня с момента начала регистрации. Не упустите возможность получить промокод на скидку!\n\n" +
			"📧 Завершите регистрацию в %s и получите промокод.",
		models.StageAwaitingINN: "🎯 <b>Последний шанс!</b>\n\n" +
			"Прошло 3 дня с момента начала регистрации в %s. Завершите процесс!\n\n" +
			"🏢 Введите ИНН и получите промокод на скидку.",
		models.StageAwaitingConfirmation: "🎯 <b>Последний шанс!</b>\n\n" +
			"Прошло 3 дня с момента ввода данных для %s. Подтвердите регистрацию!\n\n" +
			"✅ Подтвердите регистрацию и получите промокод на скидку.",
	},
}

const continueHint = "\n\nОтправьте /start чтобы продолжить."

// IncompleteMessage is the reminder text for a participant stuck at stage.
// It is empty for combinations that get no reminder.
func IncompleteMessage(typ models.ReminderType, stage models.Stage, campaign string) string {
	tmpl, ok := incompleteTexts[typ][stage]
	if !ok {
		return ""
	}
	return fmt.Sprintf(tmpl, campaign) + continueHint
}

func PromoMessage(code string) string {
	return "🎟️ <b>Напоминание о промокоде</b>\n\n" +
		fmt.Sprintf("Не забудьте использовать ваш промокод: <code>%s</code>\n\n", code) +
		"💡 <b>Как использовать:</b>\n" +
		"• Перейдите на сайт Яндекс Путешествий\n" +
		"• Выберите отель или билеты\n" +
		"• Введите промокод при оплате\n" +
		"• Получите скидку!\n\n" +
		"📞 Если возникли вопросы, обращайтесь в поддержку."
}
