// Package session управляет реестром сессий Telegram: файлами сессий gotd
// и метаданными с учетными данными API.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Info — метаданные одной сессии. Учетные данные хранятся как
// непрозрачные строки и интерпретируются только клиентом Telegram.
type Info struct {
	APIID    string `json:"api_id"`
	APIHash  string `json:"api_hash"`
	Phone    string `json:"phone"`
	Created  string `json:"created"`
	LastUsed string `json:"last_used"`
}

// Entry — элемент списка сессий.
type Entry struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	APIID    string `json:"api_id"`
	Created  string `json:"created"`
	LastUsed string `json:"last_used"`
}

// Credentials — тройка, необходимая для подключения.
type Credentials struct {
	APIID   string
	APIHash string
	Phone   string
}

// Manager хранит сессии в одном каталоге: <name>.session (блоб транспорта)
// и <name>_info.json (метаданные).
type Manager struct {
	dir   string
	clock func() time.Time
	log   *slog.Logger
}

// Option — функциональная опция для настройки менеджера.
type Option func(*Manager)

// WithClock подменяет источник времени (для тестов).
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithLogger устанавливает логгер менеджера.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// NewManager создает менеджер и гарантирует существование каталога сессий.
func NewManager(dir string, opts ...Option) (*Manager, error) {
	m := &Manager{
		dir:   dir,
		clock: time.Now,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("не удалось создать каталог сессий %s: %w", dir, err)
	}
	return m, nil
}

// NameFromPhone строит детерминированное имя сессии из номера телефона:
// все не буквенно-цифровые символы отбрасываются, добавляется префикс session_.
func NameFromPhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	return "session_" + b.String()
}

// SessionPath возвращает путь к файлу сессии транспорта.
func (m *Manager) SessionPath(name string) string {
	return filepath.Join(m.dir, name+".session")
}

func (m *Manager) infoPath(name string) string {
	return filepath.Join(m.dir, name+"_info.json")
}

// Exists сообщает, существует ли файл сессии.
func (m *Manager) Exists(name string) bool {
	_, err := os.Stat(m.SessionPath(name))
	return err == nil
}

// Save записывает метаданные новой сессии, проставляя created и last_used.
func (m *Manager) Save(name string, creds Credentials) error {
	now := m.clock().Format(time.RFC3339)
	info := Info{
		APIID:    creds.APIID,
		APIHash:  creds.APIHash,
		Phone:    creds.Phone,
		Created:  now,
		LastUsed: now,
	}
	return m.writeInfo(name, info)
}

// Get читает метаданные сессии. Отсутствие или порча файла — не ошибка,
// возвращается пустая структура.
func (m *Manager) Get(name string) Info {
	data, err := os.ReadFile(m.infoPath(name))
	if err != nil {
		return Info{}
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		m.log.Warn("Файл метаданных сессии поврежден", "session", name, "error", err)
		return Info{}
	}
	return info
}

// Credentials возвращает учетные данные сессии или ошибку, если
// метаданные неполны. Неполные учетные данные фатальны для подключения.
func (m *Manager) Credentials(name string) (Credentials, error) {
	info := m.Get(name)
	if info.APIID == "" || info.APIHash == "" || info.Phone == "" {
		return Credentials{}, fmt.Errorf("сессия %s не содержит полных учетных данных", name)
	}
	return Credentials{APIID: info.APIID, APIHash: info.APIHash, Phone: info.Phone}, nil
}

// TouchLastUsed обновляет отметку последнего использования сессии.
func (m *Manager) TouchLastUsed(name string) error {
	info := m.Get(name)
	info.LastUsed = m.clock().Format(time.RFC3339)
	return m.writeInfo(name, info)
}

// List возвращает все сессии каталога, отсортированные по last_used
// от новых к старым.
func (m *Manager) List() ([]Entry, error) {
	files, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать каталог сессий: %w", err)
	}

	var entries []Entry
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".session") {
			continue
		}
		name := strings.TrimSuffix(f.Name(), ".session")
		info := m.Get(name)
		entries = append(entries, Entry{
			Name:     name,
			Phone:    info.Phone,
			APIID:    info.APIID,
			Created:  info.Created,
			LastUsed: info.LastUsed,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastUsed > entries[j].LastUsed
	})
	return entries, nil
}

// Delete удаляет файл сессии и ее метаданные.
func (m *Manager) Delete(name string) error {
	for _, path := range []string{m.SessionPath(name), m.infoPath(name)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("не удалось удалить %s: %w", path, err)
		}
	}
	return nil
}

func (m *Manager) writeInfo(name string, info Info) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("не удалось сериализовать метаданные сессии: %w", err)
	}
	if err := os.WriteFile(m.infoPath(name), data, 0o600); err != nil {
		return fmt.Errorf("не удалось записать метаданные сессии: %w", err)
	}
	return nil
}
