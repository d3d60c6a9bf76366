// acts.go — просмотр зарегистрированных актов по месяцам
// и заглушки функций, находящихся в разработке.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/rprz/defectbot/internal/storage/actindex"
	"github.com/rprz/defectbot/internal/transport"
)

// monthNames — названия месяцев для подписей кнопок.
var monthNames = [...]string{
	"Январь", "Февраль", "Март", "Апрель", "Май", "Июнь",
	"Июль", "Август", "Сентябрь", "Октябрь", "Ноябрь", "Декабрь",
}

// ActsService — просмотр актов по месяцам через индекс.
type ActsService struct {
	idx    *actindex.Index
	msgr   transport.Messenger
	logger *slog.Logger
}

// NewActsService создаёт сервис просмотра актов.
func NewActsService(idx *actindex.Index, msgr transport.Messenger, logger *slog.Logger) *ActsService {
	return &ActsService{
		idx:    idx,
		msgr:   msgr,
		logger: logger.With(slog.String("component", "acts")),
	}
}

// MonthMenu отправляет inline-меню месяцев с количеством актов.
// Месяцы отсортированы от новых к старым.
func (s *ActsService) MonthMenu(ctx context.Context, userID, chatID int64) {
	s.logger.Info("Запрошен просмотр актов", slog.Int64("user_id", userID))

	counts := s.idx.MonthCounts()
	if len(counts) == 0 {
		s.send(ctx, chatID, msgNoActs, transport.KeyboardMain)
		return
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	months := make([]transport.MonthOption, 0, len(keys))
	for _, k := range keys {
		months = append(months, transport.MonthOption{
			Key:   monthCallbackPrefix + k,
			Label: fmt.Sprintf("%s (%d актов)", monthLabel(k), counts[k]),
		})
	}

	if err := s.msgr.SendMonthMenu(ctx, chatID, msgMonthMenuTitle, months); err != nil {
		s.logger.Error("Ошибка отправки меню месяцев",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()),
		)
	}
}

// MonthDetails отправляет список номеров актов выбранного месяца.
// data — callback data кнопки вида "month:ГГГГ-ММ".
func (s *ActsService) MonthDetails(ctx context.Context, chatID int64, data string) {
	month := strings.TrimPrefix(data, monthCallbackPrefix)

	numbers := s.idx.ByMonth(month)
	if len(numbers) == 0 {
		s.send(ctx, chatID, msgNoActs, transport.KeyboardMain)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📋 Акты за %s:\n", monthLabel(month))
	for _, n := range numbers {
		fmt.Fprintf(&b, "• Акт №%s\n", n)
	}

	s.send(ctx, chatID, b.String(), transport.KeyboardMain)
}

// Search — заглушка функции поиска акта.
func (s *ActsService) Search(ctx context.Context, userID, chatID int64) {
	s.logger.Info("Запрошен поиск акта", slog.Int64("user_id", userID))
	s.send(ctx, chatID, msgSearchStub, transport.KeyboardMain)
}

// Assistant — заглушка функции помощника РПРЗ.
func (s *ActsService) Assistant(ctx context.Context, userID, chatID int64) {
	s.logger.Info("Запрошен помощник РПРЗ", slog.Int64("user_id", userID))
	s.send(ctx, chatID, msgAssistantStub, transport.KeyboardMain)
}

// send отправляет сообщение, логируя ошибку доставки.
func (s *ActsService) send(ctx context.Context, chatID int64, text string, kb transport.Keyboard) {
	if err := s.msgr.SendMessage(ctx, chatID, text, kb); err != nil {
		s.logger.Error("Ошибка отправки сообщения",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()),
		)
	}
}

// monthLabel преобразует ключ ГГГГ-ММ в подпись вида «Август 2025».
// Некорректный ключ возвращается как есть.
func monthLabel(key string) string {
	t, err := time.Parse("2006-01", key)
	if err != nil {
		return key
	}
	return fmt.Sprintf("%s %d", monthNames[t.Month()-1], t.Year())
}
