// Package matcher сверяет выгруженные наборы записей с файлом ников
// и строит объединенный отчет о совпадениях.
package matcher

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"telegram-exporter/internal/domain"
	"telegram-exporter/internal/ports"
)

// Подписи источников в колонке found_in_chat.
const (
	contactsLabel = "Контакты"
	dialogsLabel  = "Личные сообщения"
)

// Matcher читает ранее выгруженные JSON-наборы сессии и ищет в них
// точные (без учета регистра) совпадения юзернеймов с целевым списком.
type Matcher struct {
	store         ports.ExportStore
	nicknamesPath string
	log           *slog.Logger
}

// Option — функциональная опция сверки.
type Option func(*Matcher)

// WithLogger устанавливает логгер сверки.
func WithLogger(l *slog.Logger) Option {
	return func(m *Matcher) {
		if l != nil {
			m.log = l
		}
	}
}

// New создает Matcher поверх хранилища экспортов.
func New(store ports.ExportStore, nicknamesPath string, opts ...Option) *Matcher {
	m := &Matcher{
		store:         store,
		nicknamesPath: nicknamesPath,
		log:           slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LoadTargets читает файл ников: по одному нику на строку, пустые строки
// пропускаются, все ники приводятся к нижнему регистру. Отсутствие или
// нечитаемость файла — не ошибка: возвращается пустое множество.
func (m *Matcher) LoadTargets() map[string]struct{} {
	f, err := os.Open(m.nicknamesPath)
	if err != nil {
		m.log.Warn("Файл ников недоступен, сверять нечего", "path", m.nicknamesPath, "error", err)
		return map[string]struct{}{}
	}
	defer f.Close()

	targets := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		nick := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if nick != "" {
			targets[nick] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		m.log.Warn("Ошибка чтения файла ников", "path", m.nicknamesPath, "error", err)
	}

	m.log.Info("Загружен список ников", "path", m.nicknamesPath, "count", len(targets))
	return targets
}

// CrossReference сканирует три набора сессии в фиксированном порядке
// (контакты, диалоги, участники), собирает совпадения в единую схему,
// сохраняет отчет и возвращает статистику по источникам.
// Отсутствующие наборы пропускаются.
func (m *Matcher) CrossReference(session string) (domain.MatchSummary, error) {
	var summary domain.MatchSummary

	targets := m.LoadTargets()
	if len(targets) == 0 {
		return summary, nil
	}

	var matches []domain.MatchRecord

	contacts, err := m.store.LoadContacts(session)
	if err != nil {
		m.log.Warn("Не удалось прочитать контакты, пропускаем сверку контактов", "session", session, "error", err)
	}
	for _, c := range contacts {
		if nick, ok := matchNick(c.Username, targets); ok {
			matches = append(matches, matchFromContact(c, nick))
			summary.Contacts++
		}
	}

	dialogs, err := m.store.LoadDialogs(session)
	if err != nil {
		m.log.Warn("Не удалось прочитать диалоги, пропускаем сверку диалогов", "session", session, "error", err)
	}
	for _, d := range dialogs {
		if nick, ok := matchNick(d.Username, targets); ok {
			matches = append(matches, matchFromDialog(d, nick))
			summary.Chats++
		}
	}

	members, err := m.store.LoadChatMembers(session)
	if err != nil {
		m.log.Warn("Не удалось прочитать участников, пропускаем сверку участников", "session", session, "error", err)
	}
	for _, mb := range members {
		if nick, ok := matchNick(mb.Username, targets); ok {
			matches = append(matches, matchFromMember(mb, nick))
			summary.ChatMembers++
		}
	}

	if len(matches) == 0 {
		m.log.Info("Совпадений не найдено", "session", session)
		return summary, nil
	}

	if _, err := m.store.SaveMatches(session, matches); err != nil {
		return summary, fmt.Errorf("не удалось сохранить совпадения: %w", err)
	}

	m.log.Info("Сверка завершена",
		"session", session,
		"contacts", summary.Contacts,
		"chats", summary.Chats,
		"chat_members", summary.ChatMembers,
		"total", summary.Total(),
	)
	return summary, nil
}

// matchNick проверяет точное совпадение юзернейма без учета регистра.
// Пустой юзернейм кандидатом не является.
func matchNick(username string, targets map[string]struct{}) (string, bool) {
	if username == "" {
		return "", false
	}
	nick := strings.ToLower(username)
	_, ok := targets[nick]
	return nick, ok
}

// Правила заполнения объединенной схемы по источникам:
//
//	поле               contacts   chats        chat_members
//	is_contact         true       как есть     false
//	is_premium         false      false        как есть
//	is_verified        false      false        как есть
//	last_message_date  ""         как есть     ""
//	unread_count       0          как есть     0

func matchFromContact(c domain.Contact, nick string) domain.MatchRecord {
	return domain.MatchRecord{
		Source:          string(domain.KindContacts),
		FoundInChat:     contactsLabel,
		ChatID:          "",
		ID:              c.ID,
		FirstName:       c.FirstName,
		LastName:        c.LastName,
		Username:        c.Username,
		Phone:           c.Phone,
		IsBot:           c.IsBot,
		IsContact:       true,
		IsPremium:       false,
		IsVerified:      false,
		LastMessageDate: "",
		UnreadCount:     0,
		MatchedNick:     nick,
	}
}

func matchFromDialog(d domain.Dialog, nick string) domain.MatchRecord {
	return domain.MatchRecord{
		Source:          string(domain.KindChats),
		FoundInChat:     dialogsLabel,
		ChatID:          strconv.FormatInt(d.ID, 10),
		ID:              d.ID,
		FirstName:       d.FirstName,
		LastName:        d.LastName,
		Username:        d.Username,
		Phone:           d.Phone,
		IsBot:           false,
		IsContact:       d.IsContact,
		IsPremium:       false,
		IsVerified:      false,
		LastMessageDate: d.LastMessageDate,
		UnreadCount:     d.UnreadCount,
		MatchedNick:     nick,
	}
}

func matchFromMember(m domain.ChatMember, nick string) domain.MatchRecord {
	return domain.MatchRecord{
		Source:          string(domain.KindChatMembers),
		FoundInChat:     fmt.Sprintf("%s (%s)", m.ChatTitle, m.ChatType),
		ChatID:          strconv.FormatInt(m.ChatID, 10),
		ID:              m.UserID,
		FirstName:       m.FirstName,
		LastName:        m.LastName,
		Username:        m.Username,
		Phone:           m.Phone,
		IsBot:           m.IsBot,
		IsContact:       false,
		IsPremium:       m.IsPremium,
		IsVerified:      m.IsVerified,
		LastMessageDate: "",
		UnreadCount:     0,
		MatchedNick:     nick,
	}
}
