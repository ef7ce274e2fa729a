package storage

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"telegram-exporter/internal/domain"
)

// tabularRecord — запись, умеющая отдать себя строкой CSV в фиксированном
// порядке колонок своего набора.
type tabularRecord interface {
	CSVRow() []string
}

// FileStore пишет наборы записей в парные файлы: CSV и JSON, всегда синхронно.
// Все файлы — UTF-8 без принудительного экранирования не-ASCII символов.
type FileStore struct {
	exportsDir string
	log        *slog.Logger
}

// FileOption — функциональная опция файлового хранилища.
type FileOption func(*FileStore)

// WithFileLogger устанавливает логгер хранилища.
func WithFileLogger(l *slog.Logger) FileOption {
	return func(s *FileStore) {
		if l != nil {
			s.log = l
		}
	}
}

// NewFileStore создает хранилище поверх каталога экспортов.
func NewFileStore(exportsDir string, opts ...FileOption) *FileStore {
	s := &FileStore{
		exportsDir: exportsDir,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FileStore) sessionDir(session string) string {
	return filepath.Join(s.exportsDir, session)
}

func (s *FileStore) sessionFile(session, template string) string {
	return filepath.Join(s.sessionDir(session), fmt.Sprintf(template, session))
}

// Пути файлов наборов. Шаблоны — часть внешнего формата.
const (
	contactsCSVTemplate = "telegram_contacts_%s.csv"
	contactsJSONTmpl    = "telegram_contacts_%s.json"
	chatsCSVTemplate    = "telegram_chats_%s.csv"
	dialogsJSONTmpl     = "telegram_dialogs_%s.json"
	membersCSVTemplate  = "telegram_chat_members_%s.csv"
	membersJSONTmpl     = "telegram_chat_members_%s.json"
	matchesCSVTemplate  = "telegram_nicknames_matches_%s.csv"
	matchesJSONTmpl     = "telegram_nicknames_matches_%s.json"
	matchesXLSXTmpl     = "telegram_nicknames_matches_%s.xlsx"
)

// SaveContacts безусловно заменяет оба представления набора контактов.
func (s *FileStore) SaveContacts(session string, contacts []domain.Contact) (int, error) {
	if contacts == nil {
		contacts = []domain.Contact{}
	}
	if err := s.writeFull(session, contactsCSVTemplate, contactsJSONTmpl, domain.ContactColumns, toRows(contacts), contacts); err != nil {
		return 0, err
	}
	return len(contacts), nil
}

// LoadContacts читает ранее выгруженный набор контактов.
// Отсутствие файла — не ошибка: возвращается пустой срез.
func (s *FileStore) LoadContacts(session string) ([]domain.Contact, error) {
	return loadJSON[domain.Contact](s.sessionFile(session, contactsJSONTmpl))
}

// SaveDialogs безусловно заменяет оба представления набора диалогов.
func (s *FileStore) SaveDialogs(session string, dialogs []domain.Dialog) (int, error) {
	if dialogs == nil {
		dialogs = []domain.Dialog{}
	}
	if err := s.writeFull(session, chatsCSVTemplate, dialogsJSONTmpl, domain.DialogColumns, toRows(dialogs), dialogs); err != nil {
		return 0, err
	}
	return len(dialogs), nil
}

// LoadDialogs читает ранее выгруженный набор диалогов.
func (s *FileStore) LoadDialogs(session string) ([]domain.Dialog, error) {
	return loadJSON[domain.Dialog](s.sessionFile(session, dialogsJSONTmpl))
}

// AppendChatMembers дописывает участников к уже существующим файлам.
// CSV открывается в режиме дозаписи, если файл уже есть, иначе создается
// с заголовком. JSON перечитывается, дополняется и переписывается целиком,
// так что структурный файл всегда содержит все дозаписанное.
// Пустой список — no-op, возвращается 0.
func (s *FileStore) AppendChatMembers(session string, members []domain.ChatMember) (int, error) {
	if len(members) == 0 {
		return 0, nil
	}

	if err := os.MkdirAll(s.sessionDir(session), 0o755); err != nil {
		return 0, fmt.Errorf("не удалось создать каталог сессии: %w", err)
	}

	csvPath := s.sessionFile(session, membersCSVTemplate)
	if err := appendCSV(csvPath, domain.MemberColumns, toRows(members)); err != nil {
		return 0, err
	}

	jsonPath := s.sessionFile(session, membersJSONTmpl)
	existing, err := loadJSON[domain.ChatMember](jsonPath)
	if err != nil {
		// Порченый JSON трактуем как пустой, чтобы дозапись не останавливала экспорт.
		s.log.Warn("JSON участников поврежден, перезаписываем заново", "session", session, "error", err)
		existing = nil
	}
	if err := writeJSON(jsonPath, append(existing, members...)); err != nil {
		return 0, err
	}

	return len(members), nil
}

// LoadChatMembers читает ранее выгруженный набор участников.
func (s *FileStore) LoadChatMembers(session string) ([]domain.ChatMember, error) {
	return loadJSON[domain.ChatMember](s.sessionFile(session, membersJSONTmpl))
}

// ResetChatMembers удаляет оба файла участников перед свежим (не
// возобновляемым) запуском.
func (s *FileStore) ResetChatMembers(session string) error {
	for _, template := range []string{membersCSVTemplate, membersJSONTmpl} {
		path := s.sessionFile(session, template)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("не удалось удалить %s: %w", path, err)
		}
	}
	return nil
}

// SaveMatches безусловно заменяет оба представления набора совпадений.
func (s *FileStore) SaveMatches(session string, matches []domain.MatchRecord) (int, error) {
	if matches == nil {
		matches = []domain.MatchRecord{}
	}
	if err := s.writeFull(session, matchesCSVTemplate, matchesJSONTmpl, domain.MatchColumns, toRows(matches), matches); err != nil {
		return 0, err
	}
	return len(matches), nil
}

// LoadMatches читает ранее сохраненный набор совпадений.
func (s *FileStore) LoadMatches(session string) ([]domain.MatchRecord, error) {
	return loadJSON[domain.MatchRecord](s.sessionFile(session, matchesJSONTmpl))
}

// writeFull переписывает CSV (заголовок + все строки) и JSON набора.
func (s *FileStore) writeFull(session, csvTemplate, jsonTemplate string, columns []string, rows [][]string, payload any) error {
	if err := os.MkdirAll(s.sessionDir(session), 0o755); err != nil {
		return fmt.Errorf("не удалось создать каталог сессии: %w", err)
	}
	if err := replaceCSV(s.sessionFile(session, csvTemplate), columns, rows); err != nil {
		return err
	}
	return writeJSON(s.sessionFile(session, jsonTemplate), payload)
}

func toRows[T tabularRecord](records []T) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, r.CSVRow())
	}
	return rows
}

func replaceCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("не удалось создать CSV %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("не удалось записать заголовок CSV: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("не удалось записать строки CSV: %w", err)
	}
	w.Flush()
	return w.Error()
}

func appendCSV(path string, header []string, rows [][]string) error {
	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("не удалось открыть CSV %s для дозаписи: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("не удалось записать заголовок CSV: %w", err)
		}
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("не удалось записать строки CSV: %w", err)
	}
	w.Flush()
	return w.Error()
}

// writeJSON пишет значение с отступом в два пробела и без экранирования
// HTML-символов, сохраняя нелатинские имена как есть.
func writeJSON(path string, payload any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("не удалось сериализовать JSON для %s: %w", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("не удалось записать %s: %w", path, err)
	}
	return nil
}

// loadJSON читает JSON-массив записей. Отсутствие файла — пустой результат,
// порча файла — ошибка, решение о мягкой деградации за вызывающим.
func loadJSON[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("не удалось прочитать %s: %w", path, err)
	}

	var records []T
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("не удалось разобрать %s: %w", path, err)
	}
	return records, nil
}
