package ports

import (
	"context"

	"telegram-exporter/internal/domain"
)

// ContactSource отдает полный список контактов аккаунта.
type ContactSource interface {
	Contacts(ctx context.Context) ([]domain.Contact, error)
}

// DialogSource отдает полный список личных диалогов.
type DialogSource interface {
	Dialogs(ctx context.Context) ([]domain.Dialog, error)
}

// GroupMemberSource отдает список групп и каналов и участников одной группы.
// ChatMembers выполняет единичную выборку с внутренним ограничением объема;
// постраничный обход снаружи не предполагается.
type GroupMemberSource interface {
	GroupChats(ctx context.Context) ([]domain.GroupChat, error)
	ChatMembers(ctx context.Context, chat domain.GroupChat) ([]domain.ChatMember, error)
}

// AccountSource объединяет все три способности удаленного источника.
type AccountSource interface {
	ContactSource
	DialogSource
	GroupMemberSource
}

// ProgressStore сохраняет и восстанавливает состояние возобновляемого экспорта.
// Load никогда не считает отсутствие или порчу файла фатальной ошибкой.
type ProgressStore interface {
	Load(session string) (domain.ProgressMap, error)
	Save(session string, kind domain.ExportKind, entry domain.ProgressEntry) error
}

// ExportStore пишет и читает выгруженные наборы записей. Каждая операция
// записи синхронно обновляет и табличное (CSV), и структурное (JSON)
// представление набора.
type ExportStore interface {
	SaveContacts(session string, contacts []domain.Contact) (int, error)
	LoadContacts(session string) ([]domain.Contact, error)

	SaveDialogs(session string, dialogs []domain.Dialog) (int, error)
	LoadDialogs(session string) ([]domain.Dialog, error)

	AppendChatMembers(session string, members []domain.ChatMember) (int, error)
	LoadChatMembers(session string) ([]domain.ChatMember, error)
	ResetChatMembers(session string) error

	SaveMatches(session string, matches []domain.MatchRecord) (int, error)
}
