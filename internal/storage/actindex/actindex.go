// Пакет actindex — потокобезопасный in-memory индекс зарегистрированных актов.
//
// Индекс строится при старте сканированием хранилища и обновляется
// синхронно при сохранении и удалении актов. Обслуживает быструю
// проверку занятости номера и меню просмотра актов по месяцам
// без обращения к диску.
//
// Не персистентный: при рестарте пересобирается из info.json.
package actindex

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/rprz/defectbot/internal/domain/model"
	"github.com/rprz/defectbot/internal/storage/actstore"
)

// monthLayout — ключ месяца в группировке актов.
const monthLayout = "2006-01"

// Entry — запись индекса об одном акте.
type Entry struct {
	// Dir — абсолютный путь к директории акта
	Dir string
	// Meta — метаданные акта
	Meta *model.ActMetadata
}

// Index — потокобезопасный индекс актов, ключ — номер акта.
type Index struct {
	mu     sync.RWMutex
	acts   map[string]*Entry
	ready  bool
	logger *slog.Logger
}

// New создаёт пустой индекс. Для заполнения вызовите BuildFromStore.
func New(logger *slog.Logger) *Index {
	return &Index{
		acts:   make(map[string]*Entry),
		logger: logger.With(slog.String("component", "actindex")),
	}
}

// BuildFromStore строит индекс сканированием хранилища.
// Заменяет текущее содержимое; после построения индекс готов.
// Возвращает количество повреждённых записей, пропущенных при сканировании.
func (idx *Index) BuildFromStore(st *actstore.Store) int {
	entries, corrupt := st.ScanAll()

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.acts = make(map[string]*Entry, len(entries))
	for _, e := range entries {
		meta := *e.Meta
		idx.acts[e.Meta.ActNumber] = &Entry{Dir: e.Dir, Meta: &meta}
	}
	idx.ready = true

	idx.logger.Info("Индекс актов построен",
		slog.Int("acts", len(idx.acts)),
		slog.Int("corrupt", corrupt),
	)

	return corrupt
}

// IsReady возвращает true, если индекс построен и готов к использованию.
func (idx *Index) IsReady() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.ready
}

// Add добавляет акт в индекс. Существующая запись с тем же номером
// перезаписывается.
func (idx *Index) Add(dir string, meta *model.ActMetadata) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	copied := *meta
	idx.acts[meta.ActNumber] = &Entry{Dir: dir, Meta: &copied}
}

// Remove удаляет акт из индекса по номеру.
// Возвращает true, если акт был найден и удалён.
func (idx *Index) Remove(number string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.acts[number]; !ok {
		return false
	}
	delete(idx.acts, number)
	return true
}

// Has проверяет занятость номера акта.
func (idx *Index) Has(number string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	_, ok := idx.acts[number]
	return ok
}

// Len возвращает количество актов в индексе.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.acts)
}

// MonthCounts возвращает количество актов по месяцам регистрации.
// Ключ — месяц в формате ГГГГ-ММ.
func (idx *Index) MonthCounts() map[string]int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	counts := make(map[string]int)
	for _, e := range idx.acts {
		counts[e.Meta.RegisteredAt.Format(monthLayout)]++
	}
	return counts
}

// ByMonth возвращает номера актов, зарегистрированных в указанном
// месяце (ГГГГ-ММ), отсортированные по дате регистрации (новые первые).
func (idx *Index) ByMonth(month string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var entries []*Entry
	for _, e := range idx.acts {
		if e.Meta.RegisteredAt.Format(monthLayout) == month {
			entries = append(entries, e)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Meta.RegisteredAt.After(entries[j].Meta.RegisteredAt)
	})

	numbers := make([]string, len(entries))
	for i, e := range entries {
		numbers[i] = e.Meta.ActNumber
	}
	return numbers
}
