// Пакет transport — контракт между логикой бота и чат-транспортом.
//
// Бизнес-логика (internal/service) работает только с типами этого
// пакета; единственная реализация интерфейсов — адаптер Telegram
// (internal/transport/telegram). Это позволяет тестировать машину
// состояний регистрации без сети.
package transport

import (
	"context"
	"io"
)

// Keyboard — клавиатура, прикрепляемая к исходящему сообщению.
// Отрисовка конкретных кнопок — забота адаптера транспорта.
type Keyboard int

const (
	// KeyboardNone — без клавиатуры
	KeyboardNone Keyboard = iota
	// KeyboardMain — главное меню бота
	KeyboardMain
	// KeyboardBack — только кнопка «Назад»
	KeyboardBack
	// KeyboardPhotoStage — кнопки «Завершить» и «Назад» на этапе фотографий
	KeyboardPhotoStage
)

// MonthOption — пункт inline-меню выбора месяца.
type MonthOption struct {
	// Key — callback data кнопки, например «month:2025-08»
	Key string
	// Label — подпись кнопки, например «Август 2025 (3 актов)»
	Label string
}

// Attachment — вложение входящего сообщения (фото или документ).
type Attachment struct {
	// FileID — идентификатор файла у транспорта
	FileID string
	// Filename — имя файла; для сжатых фотографий задаётся адаптером
	Filename string
	// MIMEType — MIME-тип, если транспорт его сообщает
	MIMEType string
}

// Inbound — входящее сообщение пользователя в транспортно-независимом виде.
type Inbound struct {
	// UserID — идентификатор пользователя
	UserID int64
	// ChatID — чат для ответа
	ChatID int64
	// Text — текст сообщения либо callback data inline-кнопки
	Text string
	// Attachment — вложение, nil для текстовых сообщений
	Attachment *Attachment
}

// Messenger — отправка сообщений пользователю.
type Messenger interface {
	// SendMessage отправляет текст с указанной клавиатурой.
	SendMessage(ctx context.Context, chatID int64, text string, kb Keyboard) error

	// SendPrompt отправляет текст в режиме принудительного ответа:
	// следующее сообщение пользователя трактуется как прямой ответ.
	// Используется только для запроса номера акта.
	SendPrompt(ctx context.Context, chatID int64, text string) error

	// SendMonthMenu отправляет inline-меню выбора месяца.
	SendMonthMenu(ctx context.Context, chatID int64, text string, months []MonthOption) error
}

// Downloader — получение содержимого вложений.
type Downloader interface {
	// Resolve возвращает прямую ссылку на скачивание файла.
	// Ошибка означает, что файл недоступен у транспорта.
	Resolve(ctx context.Context, fileID string) (string, error)

	// Fetch открывает поток данных по ссылке, полученной из Resolve.
	// Закрытие ReadCloser — обязанность вызывающего кода.
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}
