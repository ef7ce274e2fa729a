package matcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-exporter/internal/domain"
	"telegram-exporter/internal/storage"
)

func writeNicknames(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nicknames.txt")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))
	return path
}

func TestLoadTargets(t *testing.T) {
	t.Run("lowercases and skips blank lines", func(t *testing.T) {
		path := writeNicknames(t, "Alice\n\n  BOB  \ncharlie\n")
		m := New(storage.NewFileStore(t.TempDir()), path)

		targets := m.LoadTargets()
		assert.Equal(t, map[string]struct{}{
			"alice":   {},
			"bob":     {},
			"charlie": {},
		}, targets)
	})

	t.Run("missing file is empty set", func(t *testing.T) {
		m := New(storage.NewFileStore(t.TempDir()), filepath.Join(t.TempDir(), "missing.txt"))
		assert.Empty(t, m.LoadTargets())
	})
}

func TestMatchNick(t *testing.T) {
	targets := map[string]struct{}{"alice": {}}

	t.Run("exact match is case-insensitive", func(t *testing.T) {
		nick, ok := matchNick("Alice", targets)
		require.True(t, ok)
		assert.Equal(t, "alice", nick)

		_, ok = matchNick("ALICE", targets)
		assert.True(t, ok)
	})

	t.Run("partial match does not count", func(t *testing.T) {
		_, ok := matchNick("alice2", targets)
		assert.False(t, ok)
	})

	t.Run("empty username never matches", func(t *testing.T) {
		_, ok := matchNick("", map[string]struct{}{"": {}})
		assert.False(t, ok)
	})
}

func TestCrossReference(t *testing.T) {
	store := storage.NewFileStore(t.TempDir())
	session := "session_1"

	_, err := store.SaveContacts(session, []domain.Contact{
		{ID: 1, FirstName: "Анна", Username: "Alice", Phone: "+7999", IsContact: true},
		{ID: 2, Username: "nobody"},
	})
	require.NoError(t, err)

	_, err = store.SaveDialogs(session, []domain.Dialog{
		{ID: 3, Username: "bob", IsContact: false, LastMessageDate: "2024-05-01T12:00:00Z", UnreadCount: 4},
	})
	require.NoError(t, err)

	_, err = store.AppendChatMembers(session, []domain.ChatMember{
		{ChatID: 10, ChatTitle: "Рабочий чат", ChatType: "group", UserID: 4, Username: "carol", IsPremium: true, IsVerified: true},
	})
	require.NoError(t, err)

	path := writeNicknames(t, "alice\nBob\ncarol\n")
	m := New(store, path)

	summary, err := m.CrossReference(session)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Contacts)
	assert.Equal(t, 1, summary.Chats)
	assert.Equal(t, 1, summary.ChatMembers)
	assert.Equal(t, 3, summary.Total())

	matches, err := store.LoadMatches(session)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	// Порядок источников фиксирован: контакты, диалоги, участники.
	contact, dialog, member := matches[0], matches[1], matches[2]

	t.Run("contact defaults", func(t *testing.T) {
		assert.Equal(t, "contacts", contact.Source)
		assert.Equal(t, "Контакты", contact.FoundInChat)
		assert.Equal(t, "", contact.ChatID)
		assert.True(t, contact.IsContact)
		assert.False(t, contact.IsPremium)
		assert.False(t, contact.IsVerified)
		assert.Equal(t, "", contact.LastMessageDate)
		assert.Equal(t, 0, contact.UnreadCount)
		assert.Equal(t, "alice", contact.MatchedNick)
		assert.Equal(t, "Alice", contact.Username)
	})

	t.Run("dialog passthrough", func(t *testing.T) {
		assert.Equal(t, "chats", dialog.Source)
		assert.Equal(t, "Личные сообщения", dialog.FoundInChat)
		assert.Equal(t, "3", dialog.ChatID)
		assert.False(t, dialog.IsContact)
		assert.Equal(t, "2024-05-01T12:00:00Z", dialog.LastMessageDate)
		assert.Equal(t, 4, dialog.UnreadCount)
	})

	t.Run("member defaults", func(t *testing.T) {
		assert.Equal(t, "chat_members", member.Source)
		assert.Equal(t, "Рабочий чат (group)", member.FoundInChat)
		assert.Equal(t, "10", member.ChatID)
		assert.False(t, member.IsContact)
		assert.True(t, member.IsPremium)
		assert.True(t, member.IsVerified)
		assert.Equal(t, "", member.LastMessageDate)
	})
}

func TestCrossReferenceNoTargets(t *testing.T) {
	store := storage.NewFileStore(t.TempDir())
	m := New(store, filepath.Join(t.TempDir(), "missing.txt"))

	summary, err := m.CrossReference("session_1")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total())
}

func TestCrossReferenceNoMatchesDoesNotWriteReport(t *testing.T) {
	store := storage.NewFileStore(t.TempDir())
	session := "session_1"

	_, err := store.SaveContacts(session, []domain.Contact{{ID: 1, Username: "nobody"}})
	require.NoError(t, err)

	m := New(store, writeNicknames(t, "alice\n"))
	summary, err := m.CrossReference(session)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total())

	matches, err := store.LoadMatches(session)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestCrossReferenceMissingSetsAreSkipped(t *testing.T) {
	store := storage.NewFileStore(t.TempDir())
	session := "session_1"

	// Выгружены только контакты, остальных наборов нет.
	_, err := store.SaveContacts(session, []domain.Contact{{ID: 1, Username: "alice", IsContact: true}})
	require.NoError(t, err)

	m := New(store, writeNicknames(t, "alice\n"))
	summary, err := m.CrossReference(session)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Contacts)
	assert.Equal(t, 0, summary.Chats)
	assert.Equal(t, 0, summary.ChatMembers)
}
