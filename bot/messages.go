package bot

import (
	"fmt"
	"html"
	"time"

	"promo-bot/models"
	"promo-bot/registration"
	"promo-bot/utils"
)

const (
	textMenu       = "📱 Главное меню:"
	textNotStarted = "❌ Вы ещё не начали регистрацию.\nНажмите /start для начала."
	textUnknown    = "❓ Я не понимаю эту команду.\n\nИспользуйте /help для просмотра доступных команд."
	textRestart    = "🔄 Хорошо, давайте начнём заново.\n\nВведите ваш email от YouTravel:"
	textBadEmail   = "❌ Неверный формат email.\n\nПожалуйста, введите корректный email адрес:"
	textBadINN     = "❌ Неверный формат ИНН.\n\nИНН должен содержать 10 или 12 цифр с верной контрольной суммой.\nПопробуйте ещё раз:"
	textUseButtons = "👆 Пожалуйста, подтвердите данные кнопками под сообщением."
	textExpired    = "⌛ Данные для подтверждения устарели.\n\nВведите <b>ИНН вашей компании</b> ещё раз (10 или 12 цифр):"
	textNoAccess   = "⛔ Команда доступна только администраторам."
	discountLine   = "Промокод даёт скидку 10% (до 10 000 ₽) на первое бронирование."
)

var stepNames = map[models.Stage]string{
	models.StageAwaitingEmail:        "📧 Ввод email",
	models.StageAwaitingINN:          "🏢 Ввод ИНН",
	models.StageAwaitingConfirmation: "✅ Подтверждение",
}

// texts renders the user-facing messages for one deployment.
type texts struct {
	Settings
}

func (t texts) welcome() string {
	return "👋 Привет! Это бот для регистрации в <b>B2B Яндекс.Путешествий</b>.\n\n" +
		"🎁 После регистрации вы получите промокод на <b>−10% (до 10 000 ₽)</b> на первое бронирование!\n\n" +
		"📝 Для начала, введите ваш email, который вы использовали при регистрации на YouTravel:"
}

func (t texts) returning(code string) string {
	return "👋 С возвращением!\n\n" +
		"✅ Вы уже зарегистрированы в Яндекс.Путешествиях\n" +
		fmt.Sprintf("🎟️ Ваш промокод: <code>%s</code>\n\n", html.EscapeString(code)) +
		"📋 " + discountLine
}

func (t texts) status(res *registration.Result) string {
	if res.Stage == models.StageCompleted {
		date := ""
		if res.Participant != nil && res.Participant.CompletedAt != nil {
			date = res.Participant.CompletedAt.Local().Format("02.01.2006 15:04")
		}
		return "✅ <b>Регистрация завершена</b>\n\n" +
			fmt.Sprintf("📧 Email: %s\n", html.EscapeString(utils.MaskEmail(res.Email))) +
			fmt.Sprintf("🏢 ИНН: %s\n", utils.MaskINN(res.INN)) +
			fmt.Sprintf("🎟️ Промокод: <code>%s</code>\n", html.EscapeString(res.PromoCode)) +
			fmt.Sprintf("📅 Дата: %s\n\n", date) +
			discountLine
	}
	step, ok := stepNames[res.Stage]
	if !ok {
		step = "Начало"
	}
	return "⏳ <b>Регистрация не завершена</b>\n\n" +
		fmt.Sprintf("📍 Текущий шаг: %s\n\n", step) +
		"Продолжите регистрацию, следуя инструкциям бота."
}

func (t texts) help() string {
	return "❓ <b>Помощь</b>\n\n" +
		"Этот бот помогает зарегистрироваться в B2B программе Яндекс.Путешествий и получить промокод на скидку.\n\n" +
		"<b>Команды:</b>\n" +
		"/start - Начать регистрацию\n" +
		"/status - Проверить статус регистрации\n" +
		"/menu - Показать главное меню\n" +
		"/help - Показать эту справку\n\n" +
		"<b>Процесс регистрации:</b>\n" +
		"1️⃣ Введите email от YouTravel\n" +
		"2️⃣ Зарегистрируйтесь в Яндекс.Путешествиях\n" +
		"3️⃣ Введите ИНН вашей компании\n" +
		"4️⃣ Получите промокод!\n\n" +
		"💬 Если возникли вопросы - свяжитесь с поддержкой."
}

func (t texts) support() string {
	return "💬 <b>Поддержка</b>\n\n" +
		"Если у вас возникли вопросы или проблемы, напишите:\n" +
		fmt.Sprintf("👤 @%s", t.SupportUsername)
}

func (t texts) notEligible(email string) string {
	return fmt.Sprintf("❌ Email <code>%s</code> не найден в базе YouTravel.\n\n", html.EscapeString(email)) +
		"Убедитесь, что вы:\n" +
		"• Зарегистрированы на YouTravel.me\n" +
		"• Ввели email правильно\n\n" +
		fmt.Sprintf("Попробуйте ещё раз или свяжитесь с @%s", t.SupportUsername)
}

func (t texts) emailAccepted() string {
	return "✅ Email подтверждён!\n\n" +
		"📋 <b>Следующий шаг:</b>\n" +
		"Зарегистрируйтесь в B2B Яндекс.Путешествий:\n" +
		fmt.Sprintf("🔗 %s\n\n", t.RegistrationURL) +
		"После регистрации введите <b>ИНН вашей компании</b> (10 или 12 цифр):"
}

func (t texts) innTaken(inn string) string {
	return fmt.Sprintf("❌ ИНН <code>%s</code> уже зарегистрирован.\n\n", utils.MaskINN(inn)) +
		"Каждая компания может зарегистрироваться только один раз.\n" +
		fmt.Sprintf("Если это ошибка, свяжитесь с @%s", t.SupportUsername)
}

func (t texts) confirm(email, inn string) string {
	return "📋 <b>Проверьте данные:</b>\n\n" +
		fmt.Sprintf("📧 Email: <code>%s</code>\n", html.EscapeString(email)) +
		fmt.Sprintf("🏢 ИНН: <code>%s</code>\n\n", inn) +
		"Всё верно?"
}

func (t texts) exhausted() string {
	return "❌ <b>Ошибка</b>\n\n" +
		"К сожалению, промокоды временно закончились.\n" +
		fmt.Sprintf("Пожалуйста, свяжитесь с @%s", t.SupportUsername)
}

func (t texts) unavailable() string {
	return "⚠️ Сервис временно недоступен. Попробуйте ещё раз через несколько минут.\n\n" +
		fmt.Sprintf("Если ошибка повторяется, напишите @%s", t.SupportUsername)
}

func (t texts) completed(code string) string {
	return "🎉 <b>Поздравляем! Регистрация завершена!</b>\n\n" +
		fmt.Sprintf("🎟️ Ваш промокод: <code>%s</code>\n\n", html.EscapeString(code)) +
		"💰 Промокод даёт скидку <b>−10% (до 10 000 ₽)</b> на первое бронирование в Яндекс.Путешествиях.\n\n" +
		"🔗 Используйте его при оформлении заказа:\n" +
		t.PromoURL + "\n\n" +
		"✈️ Приятных путешествий!"
}

func auditText(checkedAt time.Time, claimed, completed int64, leaked, orphans, dupINNs, dupCodes int) string {
	verdict := "✅ Расхождений не найдено"
	if claimed != completed || leaked+orphans+dupINNs+dupCodes > 0 {
		verdict = "⚠️ Найдены расхождения. Исправление: <code>promoadmin audit --repair</code>"
	}
	return fmt.Sprintf("🔍 <b>Аудит промокодов</b> (%s)\n\n", checkedAt.Local().Format("02.01.2006 15:04")) +
		fmt.Sprintf("• Выдано кодов: %d\n", claimed) +
		fmt.Sprintf("• Завершили регистрацию: %d\n", completed) +
		fmt.Sprintf("• Занято без участника: %d\n", leaked) +
		fmt.Sprintf("• Участники без кода в пуле: %d\n", orphans) +
		fmt.Sprintf("• Повторы ИНН: %d\n", dupINNs) +
		fmt.Sprintf("• Повторы промокодов: %d\n\n", dupCodes) +
		verdict
}
