package actindex

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rprz/defectbot/internal/domain/model"
	"github.com/rprz/defectbot/internal/storage/actstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func metaAt(number string, registered time.Time) *model.ActMetadata {
	return &model.ActMetadata{
		ActNumber:    number,
		RegisteredAt: registered,
		OwnerID:      "1",
		PhotoCount:   1,
	}
}

func TestIndex_AddHasRemove(t *testing.T) {
	idx := New(testLogger())

	if idx.Has("123") {
		t.Error("Has: хотели false для пустого индекса")
	}

	idx.Add("/storage/2025-08-01/123", metaAt("123", time.Now().UTC()))

	if !idx.Has("123") {
		t.Error("Has: хотели true после Add")
	}
	if idx.Len() != 1 {
		t.Errorf("Len: хотели 1, получили %d", idx.Len())
	}

	if !idx.Remove("123") {
		t.Error("Remove: хотели true для существующего акта")
	}
	if idx.Remove("123") {
		t.Error("Remove повторно: хотели false")
	}
	if idx.Has("123") {
		t.Error("Has после Remove: хотели false")
	}
}

func TestIndex_BuildFromStore(t *testing.T) {
	st, err := actstore.New(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("Ошибка создания Store: %v", err)
	}

	photo := actstore.PhotoSource{
		Ext: "jpg",
		Open: func(_ context.Context) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("x")), nil
		},
	}
	for _, n := range []string{"1", "22", "333"} {
		if _, err := st.Persist(context.Background(), n, "1", []actstore.PhotoSource{photo}); err != nil {
			t.Fatalf("Persist %s: %v", n, err)
		}
	}

	idx := New(testLogger())
	if idx.IsReady() {
		t.Error("IsReady: хотели false до построения")
	}

	corrupt := idx.BuildFromStore(st)
	if corrupt != 0 {
		t.Errorf("BuildFromStore: хотели 0 повреждённых, получили %d", corrupt)
	}
	if !idx.IsReady() {
		t.Error("IsReady: хотели true после построения")
	}
	if idx.Len() != 3 {
		t.Errorf("Len: хотели 3, получили %d", idx.Len())
	}
	for _, n := range []string{"1", "22", "333"} {
		if !idx.Has(n) {
			t.Errorf("Has(%s): хотели true", n)
		}
	}
}

func TestIndex_MonthCounts(t *testing.T) {
	idx := New(testLogger())

	aug := time.Date(2025, 8, 15, 10, 0, 0, 0, time.UTC)
	sep := time.Date(2025, 9, 2, 9, 30, 0, 0, time.UTC)

	idx.Add("/s/a", metaAt("1", aug))
	idx.Add("/s/b", metaAt("2", aug.Add(24*time.Hour)))
	idx.Add("/s/c", metaAt("3", sep))

	counts := idx.MonthCounts()
	if counts["2025-08"] != 2 {
		t.Errorf("2025-08: хотели 2, получили %d", counts["2025-08"])
	}
	if counts["2025-09"] != 1 {
		t.Errorf("2025-09: хотели 1, получили %d", counts["2025-09"])
	}
}

func TestIndex_ByMonth(t *testing.T) {
	idx := New(testLogger())

	base := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	idx.Add("/s/a", metaAt("10", base))
	idx.Add("/s/b", metaAt("20", base.Add(48*time.Hour)))
	idx.Add("/s/c", metaAt("30", base.Add(24*time.Hour)))
	idx.Add("/s/d", metaAt("40", time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)))

	got := idx.ByMonth("2025-08")
	want := []string{"20", "30", "10"} // новые первые
	if len(got) != len(want) {
		t.Fatalf("ByMonth: хотели %d актов, получили %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ByMonth[%d]: хотели %s, получили %s", i, want[i], got[i])
		}
	}

	if empty := idx.ByMonth("2024-01"); len(empty) != 0 {
		t.Errorf("ByMonth для пустого месяца: хотели 0, получили %d", len(empty))
	}
}
