// registration.go — машина состояний регистрации акта о несоответствии.
//
// Этапы диалога: idle → awaiting_act_number → awaiting_photos → завершение.
// Сессия уничтожается на любом исходе: успех, дубликат, отмена, возврат
// в меню, сбой сохранения. Машина состояний — единственный владелец
// мутаций сессии; транспорт сессию не трогает.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rprz/defectbot/internal/domain/model"
	"github.com/rprz/defectbot/internal/domain/session"
	"github.com/rprz/defectbot/internal/storage/actindex"
	"github.com/rprz/defectbot/internal/storage/actstore"
	"github.com/rprz/defectbot/internal/transport"
	"github.com/rprz/defectbot/internal/validation"
)

// Prometheus метрики регистрации
var (
	// registrationsTotal — исходы диалогов регистрации.
	registrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_registrations_total",
		Help: "Количество диалогов регистрации актов по исходам",
	}, []string{"result"})

	// photosTotal — принятые и отклонённые фотографии.
	photosTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_photos_total",
		Help: "Количество обработанных фотографий по результату",
	}, []string{"result"})

	// actsTotal — текущее количество актов в хранилище.
	actsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bot_acts_total",
		Help: "Текущее количество зарегистрированных актов",
	})

	// sessionsActive — количество активных сессий регистрации.
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bot_sessions_active",
		Help: "Количество активных сессий регистрации",
	})
)

// Исходы диалога регистрации (метка result в bot_registrations_total).
const (
	resultCompleted = "completed"
	resultDuplicate = "duplicate"
	resultCancelled = "cancelled"
	resultFailed    = "failed"
)

// RegistrationService — машина состояний регистрации акта.
type RegistrationService struct {
	sessions *session.Store
	store    *actstore.Store
	idx      *actindex.Index
	msgr     transport.Messenger
	dl       transport.Downloader
	logger   *slog.Logger
}

// NewRegistrationService создаёт машину состояний регистрации.
func NewRegistrationService(
	sessions *session.Store,
	store *actstore.Store,
	idx *actindex.Index,
	msgr transport.Messenger,
	dl transport.Downloader,
	logger *slog.Logger,
) *RegistrationService {
	return &RegistrationService{
		sessions: sessions,
		store:    store,
		idx:      idx,
		msgr:     msgr,
		dl:       dl,
		logger:   logger.With(slog.String("component", "registration")),
	}
}

// Start начинает диалог регистрации: сбрасывает остатки старой сессии
// и запрашивает номер акта принудительным ответом.
func (s *RegistrationService) Start(ctx context.Context, userID, chatID int64) {
	s.sessions.Clear(userID)
	s.sessions.Set(&session.Session{
		UserID: userID,
		ChatID: chatID,
		Stage:  session.StageAwaitingActNumber,
	})
	sessionsActive.Set(float64(s.sessions.Len()))

	s.logger.Info("Начата регистрация акта", slog.Int64("user_id", userID))

	if err := s.msgr.SendPrompt(ctx, chatID, msgActNumberPrompt); err != nil {
		s.logger.Error("Ошибка отправки запроса номера акта",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// HandleActNumber обрабатывает текст на этапе ввода номера акта.
func (s *RegistrationService) HandleActNumber(ctx context.Context, sess *session.Session, text string) {
	if !validation.ActNumber(text) {
		s.logger.Warn("Некорректный номер акта",
			slog.Int64("user_id", sess.UserID),
			slog.String("input", text),
		)
		s.send(ctx, sess.ChatID, msgActNumberInvalid, transport.KeyboardBack)
		return
	}

	// Проверка занятости номера: быстрый индекс, затем диск.
	// Финальная защита — эксклюзивное создание директории при сохранении.
	taken := s.idx.Has(text)
	if !taken {
		var err error
		taken, err = s.store.Exists(text)
		if err != nil {
			s.logger.Error("Ошибка проверки занятости номера",
				slog.String("act_number", text),
				slog.String("error", err.Error()),
			)
			s.finishWithError(ctx, sess)
			return
		}
	}
	if taken {
		s.logger.Warn("Попытка регистрации занятого номера",
			slog.Int64("user_id", sess.UserID),
			slog.String("act_number", text),
		)
		registrationsTotal.WithLabelValues(resultDuplicate).Inc()
		s.clearSession(sess.UserID)
		s.send(ctx, sess.ChatID, msgDuplicate(text), transport.KeyboardMain)
		return
	}

	sess.ActNumber = text
	sess.Stage = session.StageAwaitingPhotos
	sess.Photos = nil
	s.sessions.Set(sess)

	s.logger.Info("Номер акта принят",
		slog.Int64("user_id", sess.UserID),
		slog.String("act_number", text),
	)
	s.send(ctx, sess.ChatID, msgPhotosPrompt, transport.KeyboardPhotoStage)
}

// HandlePhoto обрабатывает вложение на этапе загрузки фотографий.
func (s *RegistrationService) HandlePhoto(ctx context.Context, sess *session.Session, att *transport.Attachment) {
	if len(sess.Photos) >= model.MaxPhotos {
		s.send(ctx, sess.ChatID, msgPhotoLimit, transport.KeyboardNone)
		s.Finish(ctx, sess)
		return
	}

	ext, ok := validation.ClassifyImage(att.Filename, att.MIMEType)
	if !ok {
		s.logger.Warn("Отклонено вложение неподдерживаемого формата",
			slog.Int64("user_id", sess.UserID),
			slog.String("filename", att.Filename),
			slog.String("mime_type", att.MIMEType),
		)
		photosTotal.WithLabelValues("rejected").Inc()
		s.send(ctx, sess.ChatID, msgUnsupportedFormat(), transport.KeyboardPhotoStage)
		return
	}

	// Ссылку на скачивание получаем сразу: если файл недоступен,
	// пользователь узнаёт об этом немедленно и может отправить заново.
	url, err := s.dl.Resolve(ctx, att.FileID)
	if err != nil {
		s.logger.Error("Ошибка получения ссылки на файл",
			slog.Int64("user_id", sess.UserID),
			slog.String("file_id", att.FileID),
			slog.String("error", err.Error()),
		)
		photosTotal.WithLabelValues("download_failed").Inc()
		s.send(ctx, sess.ChatID, msgDownloadFailed, transport.KeyboardPhotoStage)
		return
	}

	sess.Photos = append(sess.Photos, session.PhotoRef{
		FileID: att.FileID,
		URL:    url,
		Ext:    ext,
	})
	s.sessions.Set(sess)
	photosTotal.WithLabelValues("accepted").Inc()

	s.logger.Info("Фото принято",
		slog.Int64("user_id", sess.UserID),
		slog.String("act_number", sess.ActNumber),
		slog.Int("count", len(sess.Photos)),
	)
	s.send(ctx, sess.ChatID, msgPhotoAccepted(len(sess.Photos)), transport.KeyboardPhotoStage)

	if len(sess.Photos) >= model.MaxPhotos {
		s.Finish(ctx, sess)
	}
}

// Finish завершает регистрацию: сохраняет акт и уведомляет пользователя.
// Вызывается автоматически при третьем фото и явно по команде завершения.
func (s *RegistrationService) Finish(ctx context.Context, sess *session.Session) {
	if len(sess.Photos) == 0 {
		s.send(ctx, sess.ChatID, msgNeedPhoto, transport.KeyboardPhotoStage)
		return
	}

	photos := make([]actstore.PhotoSource, 0, len(sess.Photos))
	for _, ref := range sess.Photos {
		url := ref.URL
		photos = append(photos, actstore.PhotoSource{
			Ext: ref.Ext,
			Open: func(ctx context.Context) (io.ReadCloser, error) {
				return s.dl.Fetch(ctx, url)
			},
		})
	}

	ownerID := strconv.FormatInt(sess.UserID, 10)
	entry, err := s.store.Persist(ctx, sess.ActNumber, ownerID, photos)
	if err != nil {
		if errors.Is(err, actstore.ErrActExists) {
			// Гонка: номер заняли между проверкой и сохранением.
			s.logger.Warn("Номер занят при сохранении",
				slog.String("act_number", sess.ActNumber),
			)
			registrationsTotal.WithLabelValues(resultDuplicate).Inc()
			s.clearSession(sess.UserID)
			s.send(ctx, sess.ChatID, msgDuplicate(sess.ActNumber), transport.KeyboardMain)
			return
		}

		s.logger.Error("Ошибка сохранения акта",
			slog.String("act_number", sess.ActNumber),
			slog.String("error", err.Error()),
		)
		s.finishWithError(ctx, sess)
		return
	}

	s.idx.Add(entry.Dir, entry.Meta)
	actsTotal.Set(float64(s.idx.Len()))
	registrationsTotal.WithLabelValues(resultCompleted).Inc()
	s.clearSession(sess.UserID)

	s.logger.Info("Акт зарегистрирован",
		slog.Int64("user_id", sess.UserID),
		slog.String("act_number", sess.ActNumber),
		slog.Int("photo_count", entry.Meta.PhotoCount),
	)
	s.send(ctx, sess.ChatID, msgRegistered(sess.ActNumber), transport.KeyboardMain)
}

// Cancel отменяет текущий диалог регистрации.
func (s *RegistrationService) Cancel(ctx context.Context, userID, chatID int64) {
	s.logger.Info("Регистрация отменена", slog.Int64("user_id", userID))
	registrationsTotal.WithLabelValues(resultCancelled).Inc()
	s.clearSession(userID)
	s.send(ctx, chatID, msgCancelled, transport.KeyboardMain)
}

// Back возвращает пользователя в главное меню, сбрасывая сессию.
// Частично собранный акт никогда не сохраняется.
func (s *RegistrationService) Back(ctx context.Context, userID, chatID int64) {
	s.logger.Info("Возврат в главное меню", slog.Int64("user_id", userID))
	s.clearSession(userID)
	s.send(ctx, chatID, msgWelcome, transport.KeyboardMain)
}

// finishWithError сообщает о сбое и сбрасывает сессию: пользователь
// начинает регистрацию заново, «застрявших» диалогов не остаётся.
func (s *RegistrationService) finishWithError(ctx context.Context, sess *session.Session) {
	registrationsTotal.WithLabelValues(resultFailed).Inc()
	s.clearSession(sess.UserID)
	s.send(ctx, sess.ChatID, msgSaveFailed, transport.KeyboardMain)
}

// clearSession удаляет сессию и обновляет метрику активных сессий.
func (s *RegistrationService) clearSession(userID int64) {
	s.sessions.Clear(userID)
	sessionsActive.Set(float64(s.sessions.Len()))
}

// send отправляет сообщение, логируя ошибку доставки.
// Доставка best-effort: сбой транспорта не меняет состояние диалога.
func (s *RegistrationService) send(ctx context.Context, chatID int64, text string, kb transport.Keyboard) {
	if err := s.msgr.SendMessage(ctx, chatID, text, kb); err != nil {
		s.logger.Error("Ошибка отправки сообщения",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()),
		)
	}
}
