// messages.go — тексты сообщений и подписи кнопок бота.
// Все пользовательские тексты собраны здесь, чтобы диалог можно было
// править, не трогая логику переходов.
package service

import (
	"fmt"

	"github.com/rprz/defectbot/internal/domain/model"
)

// Подписи кнопок меню. Router сопоставляет входящий текст с ними дословно.
const (
	BtnRegister  = "📝 Рег. несоответствия"
	BtnActs      = "📋 Акты о браке"
	BtnSearch    = "🔎 Поиск акта"
	BtnAssistant = "🤖 Помощник РПРЗ"
	BtnFormat    = "ℹ️ Формат номера акта"
	BtnBack      = "◀️ Назад"
	BtnDone      = "✅ Завершить"
)

// Команды бота.
const (
	CmdStart  = "/start"
	CmdHelp   = "/help"
	CmdCancel = "/cancel"
	CmdDone   = "/done"
)

// monthCallbackPrefix — префикс callback data кнопок выбора месяца.
const monthCallbackPrefix = "month:"

// Тексты сообщений.
const (
	msgWelcome = "👋 Привет! Это информационный бот завода РПРЗ для учета несоответствий.\n\n" +
		"🔹 Используйте кнопки меню для работы с ботом\n" +
		"🔹 Для получения справки введите команду /help"

	msgHelp = "🤖 Бот учета несоответствий РПРЗ 🤖\n\n" +
		"📋 Основные функции:\n" +
		"🔸 Регистрация актов о несоответствиях\n" +
		"🔸 Загрузка фотографий (до 3 шт.)\n" +
		"🔸 Просмотр актов по месяцам\n\n" +
		"📱 Команды:\n" +
		"🔹 /start - запуск бота и показ меню\n" +
		"🔹 /help - показ этой справки\n" +
		"🔹 /cancel - отмена текущей операции\n" +
		"🔹 /done - завершение загрузки фотографий\n\n" +
		"📸 При загрузке фотографий:\n" +
		"• Отправляйте фото в максимальном качестве\n" +
		"• Поддерживаемые форматы: JPG, JPEG, PNG, GIF, BMP\n" +
		"• Максимум 3 фотографии на один акт"

	msgActNumberPrompt = "📝 Введите номер акта о браке (от 1 до 4 цифр)."

	msgActNumberFormat = "ℹ️ Формат номера акта о браке: от 1 до 4 цифр (например, 1234). " +
		"Введите его при регистрации несоответствия."

	msgActNumberInvalid = "❌ Ошибка! Номер акта должен содержать от 1 до 4 цифр. " +
		"Без пробелов и букв. Попробуйте снова."

	msgPhotosPrompt = "📸 Теперь загрузите фотографии несоответствия (от 1 до 3 шт.):\n\n" +
		"⚠️ Важно! Отправляйте фото в максимальном качестве!\n" +
		"✅ Поддерживаемые форматы: JPG, JPEG, PNG, GIF, BMP"

	msgPhotoLimit = "📸 Достигнут лимит фотографий (максимум 3)."

	msgNeedPhoto = "Необходимо загрузить хотя бы одну фотографию!"

	msgDownloadFailed = "⚠️ Не удалось получить файл из Telegram. Отправьте фото ещё раз."

	msgSaveFailed = "Произошла ошибка при сохранении акта. Попробуйте еще раз."

	msgCancelled = "❌ Регистрация акта отменена."

	msgUseButtons = "⚠️ Пожалуйста, используйте кнопки меню."

	msgNoActs = "📂 Актов не найдено"

	msgMonthMenuTitle = "📅 Выберите месяц для просмотра актов:"

	msgSearchStub = "🔍 Функция поиска акта находится в разработке и будет доступна в ближайшее время."

	msgAssistantStub = "🤖 Функция Помощник РПРЗ находится в разработке и будет доступна в ближайшее время."
)

// msgDuplicate возвращает сообщение о занятом номере акта.
func msgDuplicate(number string) string {
	return fmt.Sprintf("❌ Акт №%s уже зарегистрирован!", number)
}

// msgPhotoAccepted возвращает сообщение о принятой фотографии.
func msgPhotoAccepted(have int) string {
	return fmt.Sprintf("✅ Фото принято (%d/%d). Осталось можно загрузить: %d 📸",
		have, model.MaxPhotos, model.MaxPhotos-have)
}

// msgUnsupportedFormat возвращает сообщение о неподдерживаемом формате.
func msgUnsupportedFormat() string {
	return fmt.Sprintf("❌ Пожалуйста, отправьте фото в формате: %s.\n\n"+
		"Совет: Если фото не принимается, попробуйте отправить его как файл (документ) через скрепку.\n\n"+
		"Используйте кнопку %s для отмены.", model.AcceptedFormatsLabel(), BtnBack)
}

// msgRegistered возвращает сообщение об успешной регистрации акта.
func msgRegistered(number string) string {
	return fmt.Sprintf("✅ Акт №%s успешно зарегистрирован!", number)
}
