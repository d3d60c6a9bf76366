package service

import (
	"context"
	"testing"

	"github.com/rprz/defectbot/internal/domain/session"
	"github.com/rprz/defectbot/internal/transport"
)

func TestRouter_StartCommand(t *testing.T) {
	env := newTestEnv(t)

	// /start посреди диалога сбрасывает сессию и показывает меню
	env.handle(BtnRegister)
	env.handle(CmdStart)

	last := env.msgr.last(t)
	if last.text != msgWelcome {
		t.Errorf("Хотели %q, получили %q", msgWelcome, last.text)
	}
	if last.kb != transport.KeyboardMain {
		t.Errorf("Хотели главное меню, получили клавиатуру %d", last.kb)
	}
	if got := env.sessions.StageOf(100); got != session.StageIdle {
		t.Errorf("Сессия не сброшена командой /start, этап %q", got)
	}
}

func TestRouter_HelpCommand(t *testing.T) {
	env := newTestEnv(t)

	env.handle(CmdHelp)

	if got := env.msgr.last(t).text; got != msgHelp {
		t.Errorf("Хотели справку, получили %q", got)
	}
}

func TestRouter_CancelDuringPhotos(t *testing.T) {
	env := newTestEnv(t)

	env.handle(BtnRegister)
	env.handle("12")
	env.handlePhoto("f1")
	env.handle(CmdCancel)

	if got := env.msgr.last(t).text; got != msgCancelled {
		t.Errorf("Хотели %q, получили %q", msgCancelled, got)
	}
	if got := env.sessions.StageOf(100); got != session.StageIdle {
		t.Errorf("Сессия не сброшена отменой, этап %q", got)
	}
	if dir := actDir(t, env.store, "12"); dir != "" {
		t.Error("Отменённый акт сохранён")
	}
}

func TestRouter_UnknownTextInMenu(t *testing.T) {
	env := newTestEnv(t)

	env.handle("привет")

	if got := env.msgr.last(t).text; got != msgUseButtons {
		t.Errorf("Хотели %q, получили %q", msgUseButtons, got)
	}
}

func TestRouter_FormatButton(t *testing.T) {
	env := newTestEnv(t)

	env.handle(BtnFormat)

	if got := env.msgr.last(t).text; got != msgActNumberFormat {
		t.Errorf("Хотели %q, получили %q", msgActNumberFormat, got)
	}
}

func TestRouter_AttachmentWithoutSession(t *testing.T) {
	env := newTestEnv(t)

	env.handlePhoto("f1")

	if got := env.msgr.last(t).text; got != msgUseButtons {
		t.Errorf("Хотели %q, получили %q", msgUseButtons, got)
	}
}

func TestRouter_TextDuringPhotoStage(t *testing.T) {
	env := newTestEnv(t)

	env.handle(BtnRegister)
	env.handle("3")
	env.handle("вот фото")

	if got := env.msgr.last(t).text; got != msgUnsupportedFormat() {
		t.Errorf("Хотели %q, получили %q", msgUnsupportedFormat(), got)
	}
	if got := env.sessions.StageOf(100); got != session.StageAwaitingPhotos {
		t.Errorf("Этап изменился после текста на этапе фото: %q", got)
	}
}

func TestRouter_ActNumberTrimmed(t *testing.T) {
	env := newTestEnv(t)

	env.handle(BtnRegister)
	env.handle("  1234  ")

	if got := env.sessions.StageOf(100); got != session.StageAwaitingPhotos {
		t.Errorf("Номер с окаймляющими пробелами не принят, этап %q", got)
	}
}

func TestRouter_StubButtons(t *testing.T) {
	env := newTestEnv(t)

	env.handle(BtnSearch)
	if got := env.msgr.last(t).text; got != msgSearchStub {
		t.Errorf("Хотели %q, получили %q", msgSearchStub, got)
	}

	env.handle(BtnAssistant)
	if got := env.msgr.last(t).text; got != msgAssistantStub {
		t.Errorf("Хотели %q, получили %q", msgAssistantStub, got)
	}
}

func TestRouter_SessionsIsolatedByUser(t *testing.T) {
	env := newTestEnv(t)

	env.handle(BtnRegister) // пользователь 100
	env.router.Handle(context.Background(), transport.Inbound{
		UserID: 101,
		ChatID: 201,
		Text:   BtnRegister,
	})

	env.handle("11")
	env.router.Handle(context.Background(), transport.Inbound{
		UserID: 101,
		ChatID: 201,
		Text:   "22",
	})

	sess100 := env.sessions.Get(100)
	sess101 := env.sessions.Get(101)
	if sess100 == nil || sess101 == nil {
		t.Fatal("Сессии пользователей не найдены")
	}
	if sess100.ActNumber != "11" {
		t.Errorf("Пользователь 100: хотели номер %q, получили %q", "11", sess100.ActNumber)
	}
	if sess101.ActNumber != "22" {
		t.Errorf("Пользователь 101: хотели номер %q, получили %q", "22", sess101.ActNumber)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		in   transport.Inbound
		want string
	}{
		{"текст", transport.Inbound{Text: "1234"}, "text"},
		{"вложение", transport.Inbound{Attachment: &transport.Attachment{FileID: "f1"}}, "attachment"},
		{"callback месяца", transport.Inbound{Text: "month:2025-08"}, "callback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := kindOf(tt.in); got != tt.want {
				t.Errorf("Хотели %q, получили %q", tt.want, got)
			}
		})
	}
}
