package session

import (
	"sync"
	"testing"
	"time"
)

func TestStore_GetMissing(t *testing.T) {
	st := NewStore(0)

	if sess := st.Get(42); sess != nil {
		t.Errorf("Get: хотели nil для отсутствующей сессии, получили %+v", sess)
	}
	if stage := st.StageOf(42); stage != StageIdle {
		t.Errorf("StageOf: хотели %q, получили %q", StageIdle, stage)
	}
}

func TestStore_SetGetClear(t *testing.T) {
	st := NewStore(0)

	st.Set(&Session{
		UserID:    1,
		ChatID:    100,
		Stage:     StageAwaitingPhotos,
		ActNumber: "1234",
		Photos:    []PhotoRef{{FileID: "f1", Ext: "jpg"}},
	})

	sess := st.Get(1)
	if sess == nil {
		t.Fatal("Get: хотели сессию, получили nil")
	}
	if sess.Stage != StageAwaitingPhotos {
		t.Errorf("Stage: хотели %q, получили %q", StageAwaitingPhotos, sess.Stage)
	}
	if sess.ActNumber != "1234" {
		t.Errorf("ActNumber: хотели 1234, получили %q", sess.ActNumber)
	}
	if len(sess.Photos) != 1 {
		t.Errorf("Photos: хотели 1 фото, получили %d", len(sess.Photos))
	}

	st.Clear(1)
	if sess := st.Get(1); sess != nil {
		t.Errorf("Get после Clear: хотели nil, получили %+v", sess)
	}
}

// Get возвращает копию: изменение результата не должно влиять на хранилище.
func TestStore_GetReturnsCopy(t *testing.T) {
	st := NewStore(0)
	st.Set(&Session{UserID: 1, Stage: StageAwaitingPhotos, Photos: []PhotoRef{{FileID: "f1"}}})

	sess := st.Get(1)
	sess.Photos = append(sess.Photos, PhotoRef{FileID: "f2"})
	sess.Stage = StageIdle

	again := st.Get(1)
	if len(again.Photos) != 1 {
		t.Errorf("Photos после мутации копии: хотели 1, получили %d", len(again.Photos))
	}
	if again.Stage != StageAwaitingPhotos {
		t.Errorf("Stage после мутации копии: хотели %q, получили %q", StageAwaitingPhotos, again.Stage)
	}
}

func TestStore_Timeout(t *testing.T) {
	st := NewStore(50 * time.Millisecond)
	st.Set(&Session{UserID: 1, Stage: StageAwaitingActNumber})

	if sess := st.Get(1); sess == nil {
		t.Fatal("Get: хотели свежую сессию, получили nil")
	}

	time.Sleep(80 * time.Millisecond)

	if sess := st.Get(1); sess != nil {
		t.Errorf("Get: хотели nil для просроченной сессии, получили %+v", sess)
	}
	if st.Len() != 0 {
		t.Errorf("Len: хотели 0 после удаления просроченной сессии, получили %d", st.Len())
	}
}

// Сессии разных пользователей независимы при конкурентном доступе.
func TestStore_ConcurrentUsers(t *testing.T) {
	st := NewStore(0)

	var wg sync.WaitGroup
	for i := int64(1); i <= 50; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			st.Set(&Session{UserID: userID, Stage: StageAwaitingActNumber})
			st.Set(&Session{UserID: userID, Stage: StageAwaitingPhotos, ActNumber: "1"})
			if sess := st.Get(userID); sess == nil || sess.Stage != StageAwaitingPhotos {
				t.Errorf("пользователь %d: сессия потеряна или искажена", userID)
			}
		}(i)
	}
	wg.Wait()

	if st.Len() != 50 {
		t.Errorf("Len: хотели 50, получили %d", st.Len())
	}
}
