// Пакет validation — чистые функции проверки пользовательского ввода:
// синтаксис номера акта и допустимость формата фотографии.
// Функции не имеют побочных эффектов и не трогают состояние сессии.
package validation

import (
	"path/filepath"
	"strings"

	"github.com/rprz/defectbot/internal/domain/model"
)

// ActNumber проверяет корректность номера акта: непустая строка
// из 1-4 десятичных цифр ASCII. Номер сравнивается как строка,
// ведущие нули значимы ("012" и "12" — разные номера).
func ActNumber(s string) bool {
	if len(s) < 1 || len(s) > 4 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ClassifyImage определяет расширение фотографии по имени файла,
// с fallback на MIME-тип для вложений без расширения.
// Возвращает расширение из допустимого списка (без точки, нижний
// регистр) и признак успеха. Отказ не означает ошибку — вызывающий
// код сообщает пользователю о неподдерживаемом формате.
func ClassifyImage(filename, mimeType string) (string, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if isSupported(ext) {
		return ext, true
	}

	// Fallback для канала доставки, где имя файла не несёт расширения:
	// MIME вида image/jpeg даёт подтип jpeg.
	if sub, ok := strings.CutPrefix(strings.ToLower(mimeType), "image/"); ok {
		if isSupported(sub) {
			return sub, true
		}
	}

	return "", false
}

// isSupported проверяет расширение по допустимому списку.
func isSupported(ext string) bool {
	for _, s := range model.SupportedFormats {
		if ext == s {
			return true
		}
	}
	return false
}
