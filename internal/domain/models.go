package domain

import "strconv"

// ExportKind определяет вид экспорта. Значения совпадают с ключами
// в файле прогресса и не должны меняться между версиями.
type ExportKind string

const (
	KindContacts    ExportKind = "contacts"
	KindChats       ExportKind = "chats"
	KindChatMembers ExportKind = "chat_members"
)

// Contact представляет один контакт аккаунта.
// Отсутствующие у Telegram поля нормализуются в "" / false при построении.
type Contact struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	Phone     string `json:"phone"`
	IsBot     bool   `json:"is_bot"`
	IsContact bool   `json:"is_contact"`
}

// Dialog представляет личный диалог (переписку один на один).
type Dialog struct {
	ID              int64  `json:"id"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Username        string `json:"username"`
	Phone           string `json:"phone"`
	IsContact       bool   `json:"is_contact"`
	LastMessageDate string `json:"last_message_date"`
	UnreadCount     int    `json:"unread_count"`
}

// GroupChat — единица работы при экспорте участников: одна группа или канал.
// AccessHash нужен для повторного запроса участников канала.
type GroupChat struct {
	ID         int64
	Title      string
	Type       string // "group" или "channel"
	AccessHash int64
	IsChannel  bool
}

// ChatMember представляет одного участника группы или канала.
type ChatMember struct {
	ChatID     int64  `json:"chat_id"`
	ChatTitle  string `json:"chat_title"`
	ChatType   string `json:"chat_type"`
	UserID     int64  `json:"user_id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Username   string `json:"username"`
	Phone      string `json:"phone"`
	IsBot      bool   `json:"is_bot"`
	IsPremium  bool   `json:"is_premium"`
	IsVerified bool   `json:"is_verified"`
}

// MatchRecord — результат сверки с файлом ников: запись одного из трех
// наборов, приведенная к единой схеме. Поля, отсутствующие в источнике,
// заполняются значениями по умолчанию (см. пакет matcher).
type MatchRecord struct {
	Source          string `json:"source"`
	FoundInChat     string `json:"found_in_chat"`
	ChatID          string `json:"chat_id"`
	ID              int64  `json:"id"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Username        string `json:"username"`
	Phone           string `json:"phone"`
	IsBot           bool   `json:"is_bot"`
	IsContact       bool   `json:"is_contact"`
	IsPremium       bool   `json:"is_premium"`
	IsVerified      bool   `json:"is_verified"`
	LastMessageDate string `json:"last_message_date"`
	UnreadCount     int    `json:"unread_count"`
	MatchedNick     string `json:"matched_nick"`
}

// MatchSummary — статистика совпадений по источникам.
type MatchSummary struct {
	Contacts    int
	Chats       int
	ChatMembers int
}

// Total возвращает общее количество совпадений.
func (s MatchSummary) Total() int {
	return s.Contacts + s.Chats + s.ChatMembers
}

// Фиксированный порядок колонок табличных файлов. Порядок — часть
// внешнего формата и не зависит от содержимого записей.
var (
	ContactColumns = []string{"id", "first_name", "last_name", "username", "phone", "is_bot", "is_contact"}
	DialogColumns  = []string{"id", "first_name", "last_name", "username", "phone", "is_contact", "last_message_date", "unread_count"}
	MemberColumns  = []string{"chat_id", "chat_title", "chat_type", "user_id", "first_name", "last_name", "username", "phone", "is_bot", "is_premium", "is_verified"}
	MatchColumns   = []string{"source", "found_in_chat", "chat_id", "id", "first_name", "last_name", "username", "phone", "is_bot", "is_contact", "is_premium", "is_verified", "last_message_date", "unread_count", "matched_nick"}
)

// CSVRow возвращает значения контакта в порядке ContactColumns.
func (c Contact) CSVRow() []string {
	return []string{
		strconv.FormatInt(c.ID, 10),
		c.FirstName,
		c.LastName,
		c.Username,
		c.Phone,
		strconv.FormatBool(c.IsBot),
		strconv.FormatBool(c.IsContact),
	}
}

// CSVRow возвращает значения диалога в порядке DialogColumns.
func (d Dialog) CSVRow() []string {
	return []string{
		strconv.FormatInt(d.ID, 10),
		d.FirstName,
		d.LastName,
		d.Username,
		d.Phone,
		strconv.FormatBool(d.IsContact),
		d.LastMessageDate,
		strconv.Itoa(d.UnreadCount),
	}
}

// CSVRow возвращает значения участника в порядке MemberColumns.
func (m ChatMember) CSVRow() []string {
	return []string{
		strconv.FormatInt(m.ChatID, 10),
		m.ChatTitle,
		m.ChatType,
		strconv.FormatInt(m.UserID, 10),
		m.FirstName,
		m.LastName,
		m.Username,
		m.Phone,
		strconv.FormatBool(m.IsBot),
		strconv.FormatBool(m.IsPremium),
		strconv.FormatBool(m.IsVerified),
	}
}

// CSVRow возвращает значения совпадения в порядке MatchColumns.
func (r MatchRecord) CSVRow() []string {
	return []string{
		r.Source,
		r.FoundInChat,
		r.ChatID,
		strconv.FormatInt(r.ID, 10),
		r.FirstName,
		r.LastName,
		r.Username,
		r.Phone,
		strconv.FormatBool(r.IsBot),
		strconv.FormatBool(r.IsContact),
		strconv.FormatBool(r.IsPremium),
		strconv.FormatBool(r.IsVerified),
		r.LastMessageDate,
		strconv.Itoa(r.UnreadCount),
		r.MatchedNick,
	}
}
