// Пакет model — доменные модели бота учёта несоответствий.
// ActMetadata — единая структура метаданных акта, используется
// как in-memory представление и как формат info.json на диске.
package model

import (
	"strings"
	"time"
)

// MaxPhotos — максимальное количество фотографий на один акт.
const MaxPhotos = 3

// MetadataFilename — имя файла метаданных в директории акта.
const MetadataFilename = "info.json"

// SupportedFormats — допустимые расширения фотографий (нижний регистр).
var SupportedFormats = []string{"jpg", "jpeg", "png", "gif", "bmp"}

// AcceptedFormatsLabel возвращает список поддерживаемых форматов
// в верхнем регистре для сообщений пользователю и info.json.
// Пример: "JPG, JPEG, PNG, GIF, BMP".
func AcceptedFormatsLabel() string {
	return strings.ToUpper(strings.Join(SupportedFormats, ", "))
}

// ActMetadata — метаданные акта. Соответствует содержимому info.json.
type ActMetadata struct {
	// ActNumber — номер акта (от 1 до 4 цифр, строковый ключ)
	ActNumber string `json:"act_number"`

	// RegisteredAt — дата и время регистрации (UTC)
	RegisteredAt time.Time `json:"registered_at"`

	// OwnerID — идентификатор пользователя, зарегистрировавшего акт
	OwnerID string `json:"owner_id"`

	// PhotoCount — количество успешно сохранённых фотографий (1-3)
	PhotoCount int `json:"photo_count"`

	// AcceptedFormats — список поддерживаемых форматов на момент регистрации
	AcceptedFormats string `json:"accepted_formats"`
}

// OlderThan проверяет, старше ли акт указанного количества дней.
// Используется очисткой для определения актов на удаление.
func (m *ActMetadata) OlderThan(now time.Time, days int) bool {
	return m.RegisteredAt.Before(now.AddDate(0, 0, -days))
}
