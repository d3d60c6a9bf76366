// Пакет session — потокобезопасное in-memory хранилище сессий регистрации.
//
// Сессия существует только на время диалога регистрации акта:
// создаётся при входе в диалог, уничтожается при завершении, отмене
// или возврате в меню. Отсутствие сессии означает, что пользователь
// находится в главном меню (stage idle).
//
// Сообщения одного пользователя Telegram доставляет строго
// последовательно, поэтому блокировка нужна только для изоляции
// сессий разных пользователей между собой.
package session

import (
	"sync"
	"time"
)

// Stage — этап диалога регистрации акта.
type Stage string

const (
	// StageIdle — диалог не начат (сессии нет)
	StageIdle Stage = "idle"
	// StageAwaitingActNumber — ожидается ввод номера акта
	StageAwaitingActNumber Stage = "awaiting_act_number"
	// StageAwaitingPhotos — ожидается загрузка фотографий
	StageAwaitingPhotos Stage = "awaiting_photos"
)

// PhotoRef — ссылка на принятую, но ещё не сохранённую фотографию.
// Скачивание выполняется только при финализации акта.
type PhotoRef struct {
	// FileID — идентификатор файла в Telegram
	FileID string
	// URL — прямая ссылка на скачивание, полученная при приёме
	URL string
	// Ext — расширение файла из допустимого списка (без точки)
	Ext string
}

// Session — состояние диалога регистрации одного пользователя.
type Session struct {
	// UserID — идентификатор пользователя (ключ хранилища)
	UserID int64
	// ChatID — чат для отправки ответов
	ChatID int64
	// Stage — текущий этап диалога
	Stage Stage
	// ActNumber — номер акта, устанавливается при переходе к фотографиям
	ActNumber string
	// Photos — принятые фотографии (0-3), только на этапе awaiting_photos
	Photos []PhotoRef
	// UpdatedAt — время последней активности, для таймаута неактивности
	UpdatedAt time.Time
}

// Store — потокобезопасное хранилище сессий, ключ — идентификатор
// пользователя. Сессии разных пользователей полностью независимы.
type Store struct {
	mu      sync.Mutex
	byUser  map[int64]*Session
	timeout time.Duration
}

// NewStore создаёт хранилище сессий.
// timeout — таймаут неактивности: сессия, не обновлявшаяся дольше,
// считается брошенной и удаляется при следующем обращении.
// timeout <= 0 отключает таймаут.
func NewStore(timeout time.Duration) *Store {
	return &Store{
		byUser:  make(map[int64]*Session),
		timeout: timeout,
	}
}

// Get возвращает копию сессии пользователя или nil, если сессии нет
// либо она просрочена. Просроченная сессия удаляется.
func (s *Store) Get(userID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byUser[userID]
	if !ok {
		return nil
	}

	if s.timeout > 0 && time.Since(sess.UpdatedAt) > s.timeout {
		delete(s.byUser, userID)
		return nil
	}

	copied := *sess
	copied.Photos = append([]PhotoRef(nil), sess.Photos...)
	return &copied
}

// Set сохраняет сессию, обновляя время последней активности.
func (s *Store) Set(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *sess
	copied.Photos = append([]PhotoRef(nil), sess.Photos...)
	copied.UpdatedAt = time.Now()
	s.byUser[sess.UserID] = &copied
}

// Clear удаляет сессию пользователя. Отсутствие сессии не ошибка.
func (s *Store) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byUser, userID)
}

// Len возвращает количество активных сессий (для метрик).
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byUser)
}

// StageOf возвращает этап диалога пользователя.
// Отсутствие или просроченность сессии трактуется как StageIdle.
func (s *Store) StageOf(userID int64) Stage {
	sess := s.Get(userID)
	if sess == nil {
		return StageIdle
	}
	return sess.Stage
}
