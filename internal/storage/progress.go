// Package storage реализует файловое хранилище результатов экспорта:
// документ прогресса и парные CSV/JSON представления наборов записей,
// разложенные по каталогам сессий.
package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"telegram-exporter/internal/domain"
)

// ProgressStore хранит состояние возобновляемого экспорта: один JSON-документ
// на сессию, по ключу на каждый вид экспорта.
type ProgressStore struct {
	exportsDir string
	clock      func() time.Time
	log        *slog.Logger
}

// ProgressOption — функциональная опция хранилища прогресса.
type ProgressOption func(*ProgressStore)

// WithProgressClock подменяет источник времени (для тестов).
func WithProgressClock(clock func() time.Time) ProgressOption {
	return func(s *ProgressStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithProgressLogger устанавливает логгер хранилища.
func WithProgressLogger(l *slog.Logger) ProgressOption {
	return func(s *ProgressStore) {
		if l != nil {
			s.log = l
		}
	}
}

// NewProgressStore создает хранилище прогресса поверх каталога экспортов.
func NewProgressStore(exportsDir string, opts ...ProgressOption) *ProgressStore {
	s := &ProgressStore{
		exportsDir: exportsDir,
		clock:      time.Now,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ProgressStore) path(session string) string {
	return filepath.Join(s.exportsDir, session, fmt.Sprintf("export_progress_%s.json", session))
}

// Load читает прогресс сессии. Отсутствующий или нечитаемый файл трактуется
// как отсутствие прогресса: возвращается пустая карта, ошибка не фатальна.
func (s *ProgressStore) Load(session string) (domain.ProgressMap, error) {
	data, err := os.ReadFile(s.path(session))
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("Не удалось прочитать файл прогресса, считаем прогресс пустым", "session", session, "error", err)
		}
		return domain.ProgressMap{}, nil
	}

	var progress domain.ProgressMap
	if err := json.Unmarshal(data, &progress); err != nil {
		s.log.Warn("Файл прогресса поврежден, считаем прогресс пустым", "session", session, "error", err)
		return domain.ProgressMap{}, nil
	}
	if progress == nil {
		progress = domain.ProgressMap{}
	}
	return progress, nil
}

// Save выполняет чтение-изменение-запись: загружает всю карту прогресса,
// заменяет запись одного вида и переписывает документ целиком.
// Каждый вызов проставляет текущее время. Координация параллельных
// писателей не предусмотрена: конвейер строго последовательный.
func (s *ProgressStore) Save(session string, kind domain.ExportKind, entry domain.ProgressEntry) error {
	progress, err := s.Load(session)
	if err != nil {
		return err
	}

	entry.Timestamp = s.clock().Format(time.RFC3339)
	if entry.ProcessedItems == nil {
		entry.ProcessedItems = []int64{}
	}
	progress[kind] = entry

	if err := os.MkdirAll(filepath.Dir(s.path(session)), 0o755); err != nil {
		return fmt.Errorf("не удалось создать каталог сессии: %w", err)
	}

	data, err := json.MarshalIndent(progress, "", "  ")
	if err != nil {
		return fmt.Errorf("не удалось сериализовать прогресс: %w", err)
	}
	if err := os.WriteFile(s.path(session), data, 0o644); err != nil {
		return fmt.Errorf("не удалось записать файл прогресса: %w", err)
	}
	return nil
}
