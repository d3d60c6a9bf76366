// Пакет telegram — адаптер Telegram Bot API к контракту transport.
//
// Адаптер переводит обновления long polling в transport.Inbound и
// отрисовывает абстрактные клавиатуры в разметку Telegram. Бизнес-логика
// типов Telegram не видит.
package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rprz/defectbot/internal/service"
	"github.com/rprz/defectbot/internal/transport"
)

// pollTimeout — таймаут long polling в секундах.
const pollTimeout = 30

// Handler — обработчик одного входящего сообщения.
type Handler func(ctx context.Context, in transport.Inbound)

// Client — клиент Telegram Bot API.
// Реализует transport.Messenger и transport.Downloader.
type Client struct {
	api        *tgbotapi.BotAPI
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент Telegram.
// apiURL — базовый адрес Bot API (BOT_TELEGRAM_API_URL).
func New(token, apiURL string, logger *slog.Logger) (*Client, error) {
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, apiURL+"/bot%s/%s")
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к Telegram API: %w", err)
	}

	logger = logger.With(slog.String("component", "telegram"))
	logger.Info("Подключение к Telegram установлено",
		slog.String("bot", api.Self.UserName),
	)

	return &Client{
		api:        api,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}, nil
}

// Run запускает цикл long polling и блокируется до отмены контекста.
//
// Обновления обрабатываются последовательно: Telegram доставляет
// сообщения одного чата по порядку, и обработка сообщения целиком
// завершается до следующего.
func (c *Client) Run(ctx context.Context, handler Handler) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout

	updates := c.api.GetUpdatesChan(u)
	c.logger.Info("Приём обновлений запущен")

	for {
		select {
		case <-ctx.Done():
			c.api.StopReceivingUpdates()
			c.logger.Info("Приём обновлений остановлен")
			return
		case upd, ok := <-updates:
			if !ok {
				c.logger.Info("Канал обновлений закрыт")
				return
			}

			in, callbackID := mapUpdate(upd)

			// Callback подтверждаем сразу, чтобы у кнопки пропали "часики"
			if callbackID != "" {
				if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
					c.logger.Warn("Ошибка подтверждения callback",
						slog.String("error", err.Error()),
					)
				}
			}

			if in != nil {
				handler(ctx, *in)
			}
		}
	}
}

// mapUpdate переводит обновление Telegram в transport.Inbound.
// Вторым значением возвращается идентификатор callback для подтверждения.
// Обновления без сообщения и без callback игнорируются (nil).
func mapUpdate(upd tgbotapi.Update) (*transport.Inbound, string) {
	if cq := upd.CallbackQuery; cq != nil && cq.Message != nil {
		return &transport.Inbound{
			UserID: cq.From.ID,
			ChatID: cq.Message.Chat.ID,
			Text:   cq.Data,
		}, cq.ID
	}

	m := upd.Message
	if m == nil || m.From == nil {
		return nil, ""
	}

	in := &transport.Inbound{
		UserID: m.From.ID,
		ChatID: m.Chat.ID,
		Text:   m.Text,
	}

	switch {
	case len(m.Photo) > 0:
		// Сжатое фото: Telegram формат и имя не сообщает, но фото
		// всегда перекодировано в JPEG. Берём самый крупный размер.
		largest := m.Photo[len(m.Photo)-1]
		in.Attachment = &transport.Attachment{
			FileID:   largest.FileID,
			Filename: "photo.jpg",
			MIMEType: "image/jpeg",
		}
	case m.Document != nil:
		in.Attachment = &transport.Attachment{
			FileID:   m.Document.FileID,
			Filename: m.Document.FileName,
			MIMEType: m.Document.MimeType,
		}
	}

	return in, ""
}

// keyboardFor отрисовывает абстрактную клавиатуру в разметку Telegram.
// Для KeyboardNone возвращается nil: текущая клавиатура чата не меняется.
func keyboardFor(kb transport.Keyboard) any {
	switch kb {
	case transport.KeyboardMain:
		return tgbotapi.NewReplyKeyboard(
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(service.BtnRegister),
				tgbotapi.NewKeyboardButton(service.BtnActs),
			),
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(service.BtnSearch),
				tgbotapi.NewKeyboardButton(service.BtnAssistant),
			),
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(service.BtnFormat),
			),
		)
	case transport.KeyboardBack:
		return tgbotapi.NewReplyKeyboard(
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(service.BtnBack),
			),
		)
	case transport.KeyboardPhotoStage:
		return tgbotapi.NewReplyKeyboard(
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(service.BtnDone),
			),
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(service.BtnBack),
			),
		)
	default:
		return nil
	}
}

// SendMessage отправляет текст с указанной клавиатурой.
func (c *Client) SendMessage(_ context.Context, chatID int64, text string, kb transport.Keyboard) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup := keyboardFor(kb); markup != nil {
		msg.ReplyMarkup = markup
	}

	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("не удалось отправить сообщение в чат %d: %w", chatID, err)
	}
	return nil
}

// SendPrompt отправляет текст в режиме принудительного ответа.
func (c *Client) SendPrompt(_ context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.ForceReply{ForceReply: true, Selective: true}

	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("не удалось отправить запрос в чат %d: %w", chatID, err)
	}
	return nil
}

// SendMonthMenu отправляет inline-меню выбора месяца, по кнопке в строке.
func (c *Client) SendMonthMenu(_ context.Context, chatID int64, text string, months []transport.MonthOption) error {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(months))
	for _, m := range months {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(m.Label, m.Key),
		))
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)

	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("не удалось отправить меню в чат %d: %w", chatID, err)
	}
	return nil
}

// Resolve возвращает прямую ссылку на скачивание файла.
func (c *Client) Resolve(_ context.Context, fileID string) (string, error) {
	url, err := c.api.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("не удалось получить ссылку на файл %s: %w", fileID, err)
	}
	return url, nil
}

// Fetch открывает поток содержимого файла по прямой ссылке.
func (c *Client) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("не удалось сформировать запрос: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("не удалось скачать файл: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("не удалось скачать файл: статус %d", resp.StatusCode)
	}

	return resp.Body, nil
}

// Проверка на этапе компиляции
var (
	_ transport.Messenger  = (*Client)(nil)
	_ transport.Downloader = (*Client)(nil)
)
