// router.go — маршрутизация входящих сообщений по этапу диалога.
//
// Одно входящее сообщение обрабатывается полностью (чтение состояния,
// переход, ответ) до следующего: транспорт доставляет сообщения одного
// пользователя строго последовательно, поэтому внутри одной сессии
// дополнительная синхронизация не нужна.
package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rprz/defectbot/internal/domain/session"
	"github.com/rprz/defectbot/internal/transport"
)

// updatesTotal — входящие сообщения по виду.
var updatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bot_updates_total",
	Help: "Количество входящих сообщений по виду",
}, []string{"kind"})

// Router — диспетчер входящих сообщений.
type Router struct {
	sessions *session.Store
	reg      *RegistrationService
	acts     *ActsService
	msgr     transport.Messenger
	logger   *slog.Logger
}

// NewRouter создаёт диспетчер входящих сообщений.
func NewRouter(
	sessions *session.Store,
	reg *RegistrationService,
	acts *ActsService,
	msgr transport.Messenger,
	logger *slog.Logger,
) *Router {
	return &Router{
		sessions: sessions,
		reg:      reg,
		acts:     acts,
		msgr:     msgr,
		logger:   logger.With(slog.String("component", "router")),
	}
}

// Handle обрабатывает одно входящее сообщение.
//
// Порядок разбора: сквозные команды и кнопка «Назад» работают на любом
// этапе; затем сообщение трактуется согласно этапу диалога; отсутствие
// сессии означает главное меню.
func (r *Router) Handle(ctx context.Context, in transport.Inbound) {
	updatesTotal.WithLabelValues(kindOf(in)).Inc()

	// Вложения разбираются по этапу до текстовых веток
	if in.Attachment != nil {
		r.handleAttachment(ctx, in)
		return
	}

	// Сквозные команды: доступны на любом этапе
	switch in.Text {
	case BtnBack:
		r.reg.Back(ctx, in.UserID, in.ChatID)
		return
	case CmdCancel:
		r.reg.Cancel(ctx, in.UserID, in.ChatID)
		return
	case CmdStart:
		r.sessions.Clear(in.UserID)
		r.send(ctx, in.ChatID, msgWelcome, transport.KeyboardMain)
		r.logger.Info("Пользователь запустил бота", slog.Int64("user_id", in.UserID))
		return
	case CmdHelp:
		r.send(ctx, in.ChatID, msgHelp, transport.KeyboardMain)
		return
	}

	// Callback выбора месяца приходит с inline-кнопки независимо от этапа
	if strings.HasPrefix(in.Text, monthCallbackPrefix) {
		r.acts.MonthDetails(ctx, in.ChatID, in.Text)
		return
	}

	sess := r.sessions.Get(in.UserID)
	if sess == nil {
		r.handleIdle(ctx, in)
		return
	}

	switch sess.Stage {
	case session.StageAwaitingActNumber:
		r.reg.HandleActNumber(ctx, sess, strings.TrimSpace(in.Text))

	case session.StageAwaitingPhotos:
		switch in.Text {
		case BtnDone, CmdDone:
			r.reg.Finish(ctx, sess)
		default:
			// Текст на этапе фотографий — не фото
			r.send(ctx, in.ChatID, msgUnsupportedFormat(), transport.KeyboardPhotoStage)
		}

	default:
		r.handleIdle(ctx, in)
	}
}

// handleAttachment направляет вложение машине состояний либо
// подсказывает меню, если диалог не начат.
func (r *Router) handleAttachment(ctx context.Context, in transport.Inbound) {
	sess := r.sessions.Get(in.UserID)
	if sess == nil || sess.Stage != session.StageAwaitingPhotos {
		r.send(ctx, in.ChatID, msgUseButtons, transport.KeyboardMain)
		return
	}
	r.reg.HandlePhoto(ctx, sess, in.Attachment)
}

// handleIdle разбирает кнопки главного меню.
func (r *Router) handleIdle(ctx context.Context, in transport.Inbound) {
	switch in.Text {
	case BtnRegister:
		r.reg.Start(ctx, in.UserID, in.ChatID)
	case BtnActs:
		r.acts.MonthMenu(ctx, in.UserID, in.ChatID)
	case BtnSearch:
		r.acts.Search(ctx, in.UserID, in.ChatID)
	case BtnAssistant:
		r.acts.Assistant(ctx, in.UserID, in.ChatID)
	case BtnFormat:
		r.send(ctx, in.ChatID, msgActNumberFormat, transport.KeyboardMain)
	default:
		r.send(ctx, in.ChatID, msgUseButtons, transport.KeyboardMain)
	}
}

// send отправляет сообщение, логируя ошибку доставки.
func (r *Router) send(ctx context.Context, chatID int64, text string, kb transport.Keyboard) {
	if err := r.msgr.SendMessage(ctx, chatID, text, kb); err != nil {
		r.logger.Error("Ошибка отправки сообщения",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()),
		)
	}
}

// kindOf классифицирует входящее сообщение для метрики.
func kindOf(in transport.Inbound) string {
	switch {
	case in.Attachment != nil:
		return "attachment"
	case strings.HasPrefix(in.Text, monthCallbackPrefix):
		return "callback"
	default:
		return "text"
	}
}
