package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rprz/defectbot/internal/domain/model"
	"github.com/rprz/defectbot/internal/domain/session"
	"github.com/rprz/defectbot/internal/storage/actindex"
	"github.com/rprz/defectbot/internal/storage/actstore"
	"github.com/rprz/defectbot/internal/transport"
)

// sentMessage — отправленное фейковым транспортом сообщение.
type sentMessage struct {
	chatID int64
	text   string
	kb     transport.Keyboard
}

// fakeMessenger — реализация transport.Messenger для тестов.
type fakeMessenger struct {
	messages []sentMessage
	prompts  []string
	menus    [][]transport.MonthOption
}

func (m *fakeMessenger) SendMessage(_ context.Context, chatID int64, text string, kb transport.Keyboard) error {
	m.messages = append(m.messages, sentMessage{chatID: chatID, text: text, kb: kb})
	return nil
}

func (m *fakeMessenger) SendPrompt(_ context.Context, chatID int64, text string) error {
	m.prompts = append(m.prompts, text)
	return nil
}

func (m *fakeMessenger) SendMonthMenu(_ context.Context, chatID int64, text string, months []transport.MonthOption) error {
	m.menus = append(m.menus, months)
	return nil
}

// last возвращает последнее отправленное сообщение.
func (m *fakeMessenger) last(t *testing.T) sentMessage {
	t.Helper()
	if len(m.messages) == 0 {
		t.Fatal("Нет отправленных сообщений")
	}
	return m.messages[len(m.messages)-1]
}

// fakeDownloader — реализация transport.Downloader для тестов.
type fakeDownloader struct {
	resolveErr error
	content    string
	failURLs   map[string]bool // ссылки, для которых Fetch возвращает ошибку
}

func (d *fakeDownloader) Resolve(_ context.Context, fileID string) (string, error) {
	if d.resolveErr != nil {
		return "", d.resolveErr
	}
	return "https://files.local/" + fileID, nil
}

func (d *fakeDownloader) Fetch(_ context.Context, url string) (io.ReadCloser, error) {
	if d.failURLs[url] {
		return nil, errors.New("файл недоступен")
	}
	return io.NopCloser(strings.NewReader(d.content)), nil
}

// testEnv — собранный стенд сервисного слоя поверх временного хранилища.
type testEnv struct {
	sessions *session.Store
	store    *actstore.Store
	idx      *actindex.Index
	msgr     *fakeMessenger
	dl       *fakeDownloader
	reg      *RegistrationService
	acts     *ActsService
	router   *Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	st, err := actstore.New(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("Ошибка создания хранилища: %v", err)
	}

	idx := actindex.New(logger)
	idx.BuildFromStore(st)

	sessions := session.NewStore(0)
	msgr := &fakeMessenger{}
	dl := &fakeDownloader{content: "photo-bytes"}

	reg := NewRegistrationService(sessions, st, idx, msgr, dl, logger)
	acts := NewActsService(idx, msgr, logger)
	router := NewRouter(sessions, reg, acts, msgr, logger)

	return &testEnv{
		sessions: sessions,
		store:    st,
		idx:      idx,
		msgr:     msgr,
		dl:       dl,
		reg:      reg,
		acts:     acts,
		router:   router,
	}
}

// handle прогоняет текстовое сообщение через маршрутизатор.
func (e *testEnv) handle(text string) {
	e.router.Handle(context.Background(), transport.Inbound{
		UserID: 100,
		ChatID: 200,
		Text:   text,
	})
}

// handlePhoto прогоняет вложение-фотографию через маршрутизатор.
func (e *testEnv) handlePhoto(fileID string) {
	e.router.Handle(context.Background(), transport.Inbound{
		UserID: 100,
		ChatID: 200,
		Attachment: &transport.Attachment{
			FileID:   fileID,
			Filename: "photo.jpg",
			MIMEType: "image/jpeg",
		},
	})
}

// actDir возвращает директорию акта с указанным номером, если она есть.
func actDir(t *testing.T, st *actstore.Store, number string) string {
	t.Helper()
	entries, _ := st.ScanAll()
	for _, e := range entries {
		if e.Meta.ActNumber == number {
			return e.Dir
		}
	}
	return ""
}

func TestRegistration_HappyPath(t *testing.T) {
	env := newTestEnv(t)

	env.handle(BtnRegister)
	if len(env.msgr.prompts) != 1 {
		t.Fatalf("Хотели 1 запрос номера акта, получили %d", len(env.msgr.prompts))
	}
	if got := env.sessions.StageOf(100); got != session.StageAwaitingActNumber {
		t.Fatalf("Хотели этап %q, получили %q", session.StageAwaitingActNumber, got)
	}

	env.handle("1234")
	if got := env.sessions.StageOf(100); got != session.StageAwaitingPhotos {
		t.Fatalf("Хотели этап %q, получили %q", session.StageAwaitingPhotos, got)
	}

	env.handlePhoto("f1")
	env.handle(BtnDone)

	dir := actDir(t, env.store, "1234")
	if dir == "" {
		t.Fatal("Акт №1234 не найден в хранилище")
	}

	meta, err := env.store.ReadMetadata(dir)
	if err != nil {
		t.Fatalf("Ошибка чтения метаданных: %v", err)
	}
	if meta.PhotoCount != 1 {
		t.Errorf("Хотели photo_count 1, получили %d", meta.PhotoCount)
	}
	if meta.OwnerID != "100" {
		t.Errorf("Хотели owner_id %q, получили %q", "100", meta.OwnerID)
	}

	if _, err := os.Stat(filepath.Join(dir, "photo_1.jpg")); err != nil {
		t.Errorf("Файл photo_1.jpg не записан: %v", err)
	}

	if !env.idx.Has("1234") {
		t.Error("Акт №1234 отсутствует в индексе после регистрации")
	}
	if got := env.sessions.StageOf(100); got != session.StageIdle {
		t.Errorf("Сессия не сброшена после регистрации, этап %q", got)
	}

	last := env.msgr.last(t)
	if last.text != msgRegistered("1234") {
		t.Errorf("Хотели %q, получили %q", msgRegistered("1234"), last.text)
	}
	if last.kb != transport.KeyboardMain {
		t.Errorf("Хотели главное меню, получили клавиатуру %d", last.kb)
	}
}

func TestRegistration_InvalidActNumber(t *testing.T) {
	env := newTestEnv(t)

	env.handle(BtnRegister)

	for _, input := range []string{"12345", "12a", "", "12 34"} {
		env.handle(input)
		if got := env.msgr.last(t).text; got != msgActNumberInvalid {
			t.Errorf("Ввод %q: хотели %q, получили %q", input, msgActNumberInvalid, got)
		}
		if got := env.sessions.StageOf(100); got != session.StageAwaitingActNumber {
			t.Errorf("Ввод %q: этап изменился на %q", input, got)
		}
	}

	// После ошибок корректный номер по-прежнему принимается
	env.handle("0042")
	if got := env.sessions.StageOf(100); got != session.StageAwaitingPhotos {
		t.Errorf("Хотели этап %q, получили %q", session.StageAwaitingPhotos, got)
	}
}

func TestRegistration_DuplicateNumber(t *testing.T) {
	env := newTestEnv(t)

	// Занимаем номер напрямую через хранилище
	entry, err := env.store.Persist(context.Background(), "55", "1", nil)
	if err != nil {
		t.Fatalf("Ошибка подготовки акта: %v", err)
	}
	env.idx.Add(entry.Dir, entry.Meta)

	env.handle(BtnRegister)
	env.handle("55")

	if got := env.msgr.last(t).text; got != msgDuplicate("55") {
		t.Errorf("Хотели %q, получили %q", msgDuplicate("55"), got)
	}
	if got := env.sessions.StageOf(100); got != session.StageIdle {
		t.Errorf("Сессия не сброшена после дубликата, этап %q", got)
	}
}

func TestRegistration_DuplicateOnDiskOnly(t *testing.T) {
	env := newTestEnv(t)

	// Акт есть на диске, но отсутствует в индексе: проверка Exists
	// должна поймать занятость без сверки
	if _, err := env.store.Persist(context.Background(), "77", "1", nil); err != nil {
		t.Fatalf("Ошибка подготовки акта: %v", err)
	}

	env.handle(BtnRegister)
	env.handle("77")

	if got := env.msgr.last(t).text; got != msgDuplicate("77") {
		t.Errorf("Хотели %q, получили %q", msgDuplicate("77"), got)
	}
}

func TestRegistration_AutoFinalizeAtLimit(t *testing.T) {
	env := newTestEnv(t)

	env.handle(BtnRegister)
	env.handle("7")
	env.handlePhoto("f1")
	env.handlePhoto("f2")
	env.handlePhoto("f3")

	dir := actDir(t, env.store, "7")
	if dir == "" {
		t.Fatal("Акт №7 не сохранён после третьего фото")
	}

	meta, err := env.store.ReadMetadata(dir)
	if err != nil {
		t.Fatalf("Ошибка чтения метаданных: %v", err)
	}
	if meta.PhotoCount != model.MaxPhotos {
		t.Errorf("Хотели photo_count %d, получили %d", model.MaxPhotos, meta.PhotoCount)
	}
	if got := env.sessions.StageOf(100); got != session.StageIdle {
		t.Errorf("Сессия не сброшена после автозавершения, этап %q", got)
	}
}

func TestRegistration_RejectUnsupportedAttachment(t *testing.T) {
	env := newTestEnv(t)

	env.handle(BtnRegister)
	env.handle("9")

	env.router.Handle(context.Background(), transport.Inbound{
		UserID: 100,
		ChatID: 200,
		Attachment: &transport.Attachment{
			FileID:   "doc1",
			Filename: "отчёт.txt",
			MIMEType: "text/plain",
		},
	})

	if got := env.msgr.last(t).text; got != msgUnsupportedFormat() {
		t.Errorf("Хотели %q, получили %q", msgUnsupportedFormat(), got)
	}
	if got := env.sessions.StageOf(100); got != session.StageAwaitingPhotos {
		t.Errorf("Этап изменился после отклонённого вложения: %q", got)
	}
	if dir := actDir(t, env.store, "9"); dir != "" {
		t.Error("Акт сохранён несмотря на отсутствие принятых фото")
	}
}

func TestRegistration_BackDiscardsPartialAct(t *testing.T) {
	env := newTestEnv(t)

	env.handle(BtnRegister)
	env.handle("33")
	env.handlePhoto("f1")
	env.handle(BtnBack)

	if dir := actDir(t, env.store, "33"); dir != "" {
		t.Error("Частично собранный акт сохранён после возврата в меню")
	}
	if env.idx.Has("33") {
		t.Error("Частично собранный акт попал в индекс")
	}
	if got := env.sessions.StageOf(100); got != session.StageIdle {
		t.Errorf("Сессия не сброшена после возврата, этап %q", got)
	}

	// Номер остаётся свободным
	env.handle(BtnRegister)
	env.handle("33")
	if got := env.sessions.StageOf(100); got != session.StageAwaitingPhotos {
		t.Errorf("Номер 33 не принят повторно, этап %q", got)
	}
}

func TestRegistration_DoneWithoutPhotos(t *testing.T) {
	env := newTestEnv(t)

	env.handle(BtnRegister)
	env.handle("8")
	env.handle(BtnDone)

	if got := env.msgr.last(t).text; got != msgNeedPhoto {
		t.Errorf("Хотели %q, получили %q", msgNeedPhoto, got)
	}
	if got := env.sessions.StageOf(100); got != session.StageAwaitingPhotos {
		t.Errorf("Этап изменился после завершения без фото: %q", got)
	}
	if dir := actDir(t, env.store, "8"); dir != "" {
		t.Error("Пустой акт сохранён")
	}
}

func TestRegistration_ResolveFailureAllowsResend(t *testing.T) {
	env := newTestEnv(t)

	env.handle(BtnRegister)
	env.handle("15")

	env.dl.resolveErr = errors.New("file not found")
	env.handlePhoto("f1")

	if got := env.msgr.last(t).text; got != msgDownloadFailed {
		t.Errorf("Хотели %q, получили %q", msgDownloadFailed, got)
	}
	if got := env.sessions.StageOf(100); got != session.StageAwaitingPhotos {
		t.Errorf("Этап изменился после недоступного файла: %q", got)
	}

	// Повторная отправка после восстановления принимается
	env.dl.resolveErr = nil
	env.handlePhoto("f1")
	env.handle(BtnDone)

	if dir := actDir(t, env.store, "15"); dir == "" {
		t.Error("Акт №15 не сохранён после повторной отправки фото")
	}
}

func TestRegistration_FetchFailureDegradesCount(t *testing.T) {
	env := newTestEnv(t)

	env.handle(BtnRegister)
	env.handle("21")
	env.handlePhoto("f1")
	env.handlePhoto("f2")

	// Второе фото становится недоступно к моменту сохранения
	env.dl.failURLs = map[string]bool{"https://files.local/f2": true}
	env.handle(BtnDone)

	dir := actDir(t, env.store, "21")
	if dir == "" {
		t.Fatal("Акт №21 не сохранён")
	}

	meta, err := env.store.ReadMetadata(dir)
	if err != nil {
		t.Fatalf("Ошибка чтения метаданных: %v", err)
	}
	if meta.PhotoCount != 1 {
		t.Errorf("Хотели photo_count 1, получили %d", meta.PhotoCount)
	}
	if _, err := os.Stat(filepath.Join(dir, "photo_2.jpg")); !os.IsNotExist(err) {
		t.Error("Файл несохранённого фото присутствует в директории акта")
	}
}

func TestRegistration_RaceOnPersist(t *testing.T) {
	env := newTestEnv(t)

	env.handle(BtnRegister)
	env.handle("44")
	env.handlePhoto("f1")

	// Номер занимают между проверкой и сохранением
	if _, err := env.store.Persist(context.Background(), "44", "999", nil); err != nil {
		t.Fatalf("Ошибка подготовки акта: %v", err)
	}

	env.handle(BtnDone)

	if got := env.msgr.last(t).text; got != msgDuplicate("44") {
		t.Errorf("Хотели %q, получили %q", msgDuplicate("44"), got)
	}
	if got := env.sessions.StageOf(100); got != session.StageIdle {
		t.Errorf("Сессия не сброшена после гонки, этап %q", got)
	}
}

func TestRegistration_MetadataTimestampUTC(t *testing.T) {
	env := newTestEnv(t)

	env.handle(BtnRegister)
	env.handle("5")
	env.handlePhoto("f1")
	env.handle(BtnDone)

	dir := actDir(t, env.store, "5")
	if dir == "" {
		t.Fatal("Акт №5 не сохранён")
	}

	raw, err := os.ReadFile(filepath.Join(dir, model.MetadataFilename))
	if err != nil {
		t.Fatalf("Ошибка чтения info.json: %v", err)
	}

	var payload struct {
		RegisteredAt time.Time `json:"registered_at"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("Ошибка разбора info.json: %v", err)
	}
	if payload.RegisteredAt.Location() != time.UTC {
		t.Errorf("Хотели метку времени в UTC, получили %v", payload.RegisteredAt.Location())
	}
}
