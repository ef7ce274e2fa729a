package export

import (
	"context"
	"sync"

	"telegram-exporter/internal/domain"
)

// mockSource — источник аккаунта с подменяемыми функциями и счетчиками вызовов.
type mockSource struct {
	contactsFunc    func(ctx context.Context) ([]domain.Contact, error)
	dialogsFunc     func(ctx context.Context) ([]domain.Dialog, error)
	groupChatsFunc  func(ctx context.Context) ([]domain.GroupChat, error)
	chatMembersFunc func(ctx context.Context, chat domain.GroupChat) ([]domain.ChatMember, error)

	contactsCalls    int
	dialogsCalls     int
	groupChatsCalls  int
	chatMembersCalls int
}

func (m *mockSource) Contacts(ctx context.Context) ([]domain.Contact, error) {
	m.contactsCalls++
	if m.contactsFunc != nil {
		return m.contactsFunc(ctx)
	}
	return nil, nil
}

func (m *mockSource) Dialogs(ctx context.Context) ([]domain.Dialog, error) {
	m.dialogsCalls++
	if m.dialogsFunc != nil {
		return m.dialogsFunc(ctx)
	}
	return nil, nil
}

func (m *mockSource) GroupChats(ctx context.Context) ([]domain.GroupChat, error) {
	m.groupChatsCalls++
	if m.groupChatsFunc != nil {
		return m.groupChatsFunc(ctx)
	}
	return nil, nil
}

func (m *mockSource) ChatMembers(ctx context.Context, chat domain.GroupChat) ([]domain.ChatMember, error) {
	m.chatMembersCalls++
	if m.chatMembersFunc != nil {
		return m.chatMembersFunc(ctx, chat)
	}
	return nil, nil
}

// memProgress — хранилище прогресса в памяти, запоминающее историю сохранений.
type memProgress struct {
	mu      sync.Mutex
	data    map[string]domain.ProgressMap
	history []domain.ProgressEntry

	saveErr error
}

func newMemProgress() *memProgress {
	return &memProgress{data: map[string]domain.ProgressMap{}}
}

func (p *memProgress) Load(session string) (domain.ProgressMap, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	progress, ok := p.data[session]
	if !ok {
		return domain.ProgressMap{}, nil
	}
	copied := make(domain.ProgressMap, len(progress))
	for k, v := range progress {
		copied[k] = v
	}
	return copied, nil
}

func (p *memProgress) Save(session string, kind domain.ExportKind, entry domain.ProgressEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saveErr != nil {
		return p.saveErr
	}
	if entry.ProcessedItems == nil {
		entry.ProcessedItems = []int64{}
	}
	if p.data[session] == nil {
		p.data[session] = domain.ProgressMap{}
	}
	p.data[session][kind] = entry
	p.history = append(p.history, entry)
	return nil
}

func (p *memProgress) entry(session string, kind domain.ExportKind) (domain.ProgressEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	progress, ok := p.data[session]
	if !ok {
		return domain.ProgressEntry{}, false
	}
	entry, ok := progress[kind]
	return entry, ok
}

// memStore — хранилище экспортов в памяти.
type memStore struct {
	contacts []domain.Contact
	dialogs  []domain.Dialog
	members  []domain.ChatMember
	matches  []domain.MatchRecord

	appendBatches [][]domain.ChatMember
	resetCalls    int

	saveContactsErr error
	saveDialogsErr  error
	appendErr       error
	loadContactsErr error
	loadDialogsErr  error
	loadMembersErr  error
}

func (s *memStore) SaveContacts(session string, contacts []domain.Contact) (int, error) {
	if s.saveContactsErr != nil {
		return 0, s.saveContactsErr
	}
	s.contacts = append([]domain.Contact(nil), contacts...)
	return len(contacts), nil
}

func (s *memStore) LoadContacts(session string) ([]domain.Contact, error) {
	if s.loadContactsErr != nil {
		return nil, s.loadContactsErr
	}
	return append([]domain.Contact(nil), s.contacts...), nil
}

func (s *memStore) SaveDialogs(session string, dialogs []domain.Dialog) (int, error) {
	if s.saveDialogsErr != nil {
		return 0, s.saveDialogsErr
	}
	s.dialogs = append([]domain.Dialog(nil), dialogs...)
	return len(dialogs), nil
}

func (s *memStore) LoadDialogs(session string) ([]domain.Dialog, error) {
	if s.loadDialogsErr != nil {
		return nil, s.loadDialogsErr
	}
	return append([]domain.Dialog(nil), s.dialogs...), nil
}

func (s *memStore) AppendChatMembers(session string, members []domain.ChatMember) (int, error) {
	if s.appendErr != nil {
		return 0, s.appendErr
	}
	if len(members) == 0 {
		return 0, nil
	}
	s.members = append(s.members, members...)
	s.appendBatches = append(s.appendBatches, members)
	return len(members), nil
}

func (s *memStore) LoadChatMembers(session string) ([]domain.ChatMember, error) {
	if s.loadMembersErr != nil {
		return nil, s.loadMembersErr
	}
	return append([]domain.ChatMember(nil), s.members...), nil
}

func (s *memStore) ResetChatMembers(session string) error {
	s.resetCalls++
	s.members = nil
	s.appendBatches = nil
	return nil
}

func (s *memStore) SaveMatches(session string, matches []domain.MatchRecord) (int, error) {
	s.matches = append([]domain.MatchRecord(nil), matches...)
	return len(matches), nil
}
