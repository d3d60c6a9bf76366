// Пакет actstore — операции с актами на диске.
//
// Раскладка хранилища:
//
//	<root>/<ГГГГ-ММ-ДД>/<номер_акта>/photo_1.<ext>
//	<root>/<ГГГГ-ММ-ДД>/<номер_акта>/photo_2.<ext>
//	<root>/<ГГГГ-ММ-ДД>/<номер_акта>/info.json
//
// Номер акта уникален глобально, по всем датированным поддиректориям.
// Эксклюзивное создание директории акта (os.Mkdir) — единственный
// примитив синхронизации: проигравшая гонку регистрация получает
// ErrActExists до какой-либо записи данных.
package actstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rprz/defectbot/internal/domain/model"
)

// dateLayout — формат датированной поддиректории.
const dateLayout = "2006-01-02"

// ErrActExists — акт с таким номером уже зарегистрирован.
var ErrActExists = errors.New("акт с таким номером уже зарегистрирован")

// Store — файловое хранилище актов.
type Store struct {
	root   string
	logger *slog.Logger
}

// PhotoSource — источник данных одной фотографии при сохранении акта.
// Open вызывается в момент записи; ошибки открытия и чтения не
// прерывают сохранение акта целиком, а уменьшают photo_count.
type PhotoSource struct {
	// Ext — расширение файла из допустимого списка (без точки)
	Ext string
	// Open открывает поток данных фотографии
	Open func(ctx context.Context) (io.ReadCloser, error)
}

// Entry — найденный при сканировании акт.
type Entry struct {
	// Dir — абсолютный путь к директории акта
	Dir string
	// Meta — метаданные из info.json
	Meta *model.ActMetadata
}

// New создаёт хранилище актов. Проверяет и создаёт корневую
// директорию, если она не существует.
func New(root string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию хранилища %s: %w", root, err)
	}

	return &Store{
		root:   root,
		logger: logger.With(slog.String("component", "actstore")),
	}, nil
}

// Root возвращает корневую директорию хранилища.
func (s *Store) Root() string {
	return s.root
}

// Exists проверяет, занят ли номер акта в любой датированной
// поддиректории. Директория акта считается занятой независимо от
// наличия info.json: наполовину записанный акт тоже блокирует номер.
func (s *Store) Exists(number string) (bool, error) {
	dates, err := os.ReadDir(s.root)
	if err != nil {
		return false, fmt.Errorf("ошибка чтения хранилища %s: %w", s.root, err)
	}

	for _, d := range dates {
		if !d.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, d.Name(), number)); err == nil {
			return true, nil
		}
	}
	return false, nil
}

// Persist сохраняет акт: создаёт директорию номера (эксклюзивно),
// записывает фотографии и info.json.
//
// Семантика частичных сбоев: ошибка записи отдельной фотографии
// логируется и пропускается — photo_count отражает только успешно
// записанные файлы. Ошибка записи info.json фатальна для акта:
// директория удаляется целиком, чтобы номер не остался занят
// актом без метаданных.
func (s *Store) Persist(ctx context.Context, number, ownerID string, photos []PhotoSource) (*Entry, error) {
	now := time.Now().UTC()

	dateDir := filepath.Join(s.root, now.Format(dateLayout))
	if err := os.MkdirAll(dateDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать датированную директорию %s: %w", dateDir, err)
	}

	// Эксклюзивное создание — финальная защита от гонки двух сессий,
	// одновременно выбравших свободный номер.
	actDir := filepath.Join(dateDir, number)
	if err := os.Mkdir(actDir, 0o750); err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("акт №%s: %w", number, ErrActExists)
		}
		return nil, fmt.Errorf("не удалось создать директорию акта %s: %w", actDir, err)
	}

	if len(photos) > model.MaxPhotos {
		photos = photos[:model.MaxPhotos]
	}

	saved := 0
	for i, p := range photos {
		name := fmt.Sprintf("photo_%d.%s", i+1, p.Ext)
		if err := s.writePhoto(ctx, filepath.Join(actDir, name), p); err != nil {
			s.logger.Error("Ошибка сохранения фото",
				slog.String("act_number", number),
				slog.String("photo", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		saved++
		s.logger.Debug("Фото сохранено",
			slog.String("act_number", number),
			slog.String("photo", name),
		)
	}

	meta := &model.ActMetadata{
		ActNumber:       number,
		RegisteredAt:    now,
		OwnerID:         ownerID,
		PhotoCount:      saved,
		AcceptedFormats: model.AcceptedFormatsLabel(),
	}

	if err := writeMetadata(filepath.Join(actDir, model.MetadataFilename), meta); err != nil {
		// Акт без info.json невидим для сверки и очистки, но блокирует
		// номер — откатываем директорию целиком.
		if rmErr := os.RemoveAll(actDir); rmErr != nil {
			s.logger.Error("Ошибка отката директории акта",
				slog.String("act_dir", actDir),
				slog.String("error", rmErr.Error()),
			)
		}
		return nil, fmt.Errorf("ошибка записи метаданных акта №%s: %w", number, err)
	}

	s.logger.Info("Акт сохранён",
		slog.String("act_number", number),
		slog.String("owner_id", ownerID),
		slog.Int("photo_count", saved),
	)

	return &Entry{Dir: actDir, Meta: meta}, nil
}

// writePhoto записывает одну фотографию: temp файл → fsync → atomic rename.
func (s *Store) writePhoto(ctx context.Context, path string, p PhotoSource) error {
	rc, err := p.Open(ctx)
	if err != nil {
		return fmt.Errorf("ошибка получения данных фото: %w", err)
	}
	defer rc.Close()

	tmpPath := tmpName(path)
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return nil
}

// writeMetadata атомарно записывает info.json.
func writeMetadata(path string, meta *model.ActMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации метаданных: %w", err)
	}

	tmpPath := tmpName(path)
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return nil
}

// ReadMetadata читает и десериализует info.json из директории акта.
func (s *Store) ReadMetadata(actDir string) (*model.ActMetadata, error) {
	path := filepath.Join(actDir, model.MetadataFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения %s: %w", path, err)
	}

	var meta model.ActMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("ошибка десериализации %s: %w", path, err)
	}

	return &meta, nil
}

// ScanAll обходит все датированные поддиректории и возвращает акты
// с читаемым info.json. Повреждённые или нечитаемые записи логируются
// и пропускаются, их количество возвращается вторым значением.
func (s *Store) ScanAll() ([]Entry, int) {
	var entries []Entry
	corrupt := 0

	dates, err := os.ReadDir(s.root)
	if err != nil {
		s.logger.Error("Ошибка чтения корня хранилища",
			slog.String("root", s.root),
			slog.String("error", err.Error()),
		)
		return nil, 0
	}

	for _, d := range dates {
		if !d.IsDir() {
			continue
		}
		dateDir := filepath.Join(s.root, d.Name())

		acts, err := os.ReadDir(dateDir)
		if err != nil {
			s.logger.Warn("Ошибка чтения датированной директории",
				slog.String("dir", dateDir),
				slog.String("error", err.Error()),
			)
			continue
		}

		for _, a := range acts {
			if !a.IsDir() {
				continue
			}
			actDir := filepath.Join(dateDir, a.Name())

			meta, err := s.ReadMetadata(actDir)
			if err != nil {
				s.logger.Warn("Пропущен акт с повреждёнными метаданными",
					slog.String("dir", actDir),
					slog.String("error", err.Error()),
				)
				corrupt++
				continue
			}
			entries = append(entries, Entry{Dir: actDir, Meta: meta})
		}
	}

	return entries, corrupt
}

// Delete рекурсивно удаляет директорию акта.
// Путь обязан находиться внутри корня хранилища.
func (s *Store) Delete(actDir string) error {
	rel, err := filepath.Rel(s.root, actDir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("путь %s вне корня хранилища %s", actDir, s.root)
	}

	if err := os.RemoveAll(actDir); err != nil {
		return fmt.Errorf("ошибка удаления акта %s: %w", actDir, err)
	}
	return nil
}

// UsageBytes возвращает суммарный размер файлов хранилища (для метрик).
func (s *Store) UsageBytes() int64 {
	var total int64
	_ = filepath.WalkDir(s.root, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

// tmpName генерирует уникальное имя временного файла рядом с целевым.
// Уникальный суффикс исключает коллизии при повторных попытках записи.
func tmpName(path string) string {
	return path + ".tmp-" + uuid.New().String()[:8]
}
