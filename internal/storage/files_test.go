package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-exporter/internal/domain"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(t.TempDir())
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestSaveContactsReplacesBothFiles(t *testing.T) {
	s := newTestFileStore(t)

	first := []domain.Contact{
		{ID: 1, FirstName: "Анна", Username: "anna", Phone: "+79991112233", IsContact: true},
		{ID: 2, FirstName: "Борис", IsBot: true, IsContact: true},
	}
	n, err := s.SaveContacts("session_1", first)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Повторное сохранение полностью заменяет набор, а не дополняет его.
	second := []domain.Contact{{ID: 3, FirstName: "Вера", IsContact: true}}
	n, err = s.SaveContacts("session_1", second)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	csvPath := filepath.Join(s.exportsDir, "session_1", fmt.Sprintf(contactsCSVTemplate, "session_1"))
	rows := readCSV(t, csvPath)
	require.Len(t, rows, 2)
	assert.Equal(t, domain.ContactColumns, rows[0])
	assert.Equal(t, "Вера", rows[1][1])

	loaded, err := s.LoadContacts("session_1")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, second[0], loaded[0])
}

func TestSaveContactsNonLatinSurvivesJSON(t *testing.T) {
	s := newTestFileStore(t)

	_, err := s.SaveContacts("session_1", []domain.Contact{{ID: 1, FirstName: "Дмитрий", LastName: "Ёлкин", IsContact: true}})
	require.NoError(t, err)

	jsonPath := filepath.Join(s.exportsDir, "session_1", fmt.Sprintf(contactsJSONTmpl, "session_1"))
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)

	// Нелатинские имена хранятся как есть, без \u-экранирования.
	assert.Contains(t, string(data), "Дмитрий")
	assert.Contains(t, string(data), "Ёлкин")
	assert.NotContains(t, string(data), `\u`)
}

func TestSaveDialogsEmptySetWritesHeaderOnly(t *testing.T) {
	s := newTestFileStore(t)

	n, err := s.SaveDialogs("session_1", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	csvPath := filepath.Join(s.exportsDir, "session_1", fmt.Sprintf(chatsCSVTemplate, "session_1"))
	rows := readCSV(t, csvPath)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.DialogColumns, rows[0])

	// JSON при этом содержит пустой массив, а не null.
	jsonPath := filepath.Join(s.exportsDir, "session_1", fmt.Sprintf(dialogsJSONTmpl, "session_1"))
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(string(data)))
}

func TestAppendChatMembersAccumulates(t *testing.T) {
	s := newTestFileStore(t)

	batchA := []domain.ChatMember{
		{ChatID: 10, ChatTitle: "Чат А", ChatType: "group", UserID: 1, Username: "u1"},
		{ChatID: 10, ChatTitle: "Чат А", ChatType: "group", UserID: 2, Username: "u2"},
	}
	batchB := []domain.ChatMember{
		{ChatID: 20, ChatTitle: "Канал Б", ChatType: "channel", UserID: 3, Username: "u3"},
	}

	n, err := s.AppendChatMembers("session_1", batchA)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.AppendChatMembers("session_1", batchB)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	csvPath := filepath.Join(s.exportsDir, "session_1", fmt.Sprintf(membersCSVTemplate, "session_1"))
	rows := readCSV(t, csvPath)
	// Один заголовок и три строки данных, порядок дозаписи сохранен.
	require.Len(t, rows, 4)
	assert.Equal(t, domain.MemberColumns, rows[0])
	assert.Equal(t, "u1", rows[1][6])
	assert.Equal(t, "u3", rows[3][6])

	loaded, err := s.LoadChatMembers("session_1")
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	assert.Equal(t, batchA[0], loaded[0])
	assert.Equal(t, batchB[0], loaded[2])
}

func TestAppendChatMembersEmptyIsNoop(t *testing.T) {
	s := newTestFileStore(t)

	n, err := s.AppendChatMembers("session_1", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Файлы не создаются вовсе.
	csvPath := filepath.Join(s.exportsDir, "session_1", fmt.Sprintf(membersCSVTemplate, "session_1"))
	_, statErr := os.Stat(csvPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestAppendChatMembersCorruptJSONRewritten(t *testing.T) {
	s := newTestFileStore(t)

	jsonPath := filepath.Join(s.exportsDir, "session_1", fmt.Sprintf(membersJSONTmpl, "session_1"))
	require.NoError(t, os.MkdirAll(filepath.Dir(jsonPath), 0o755))
	require.NoError(t, os.WriteFile(jsonPath, []byte("{broken"), 0o644))

	n, err := s.AppendChatMembers("session_1", []domain.ChatMember{{ChatID: 1, UserID: 7}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	loaded, err := s.LoadChatMembers("session_1")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, int64(7), loaded[0].UserID)
}

func TestResetChatMembers(t *testing.T) {
	s := newTestFileStore(t)

	_, err := s.AppendChatMembers("session_1", []domain.ChatMember{{ChatID: 1, UserID: 1}})
	require.NoError(t, err)

	require.NoError(t, s.ResetChatMembers("session_1"))

	loaded, err := s.LoadChatMembers("session_1")
	require.NoError(t, err)
	assert.Empty(t, loaded)

	// Сброс несуществующих файлов не является ошибкой.
	assert.NoError(t, s.ResetChatMembers("session_1"))
}

func TestLoadContactsMissingFile(t *testing.T) {
	s := newTestFileStore(t)

	loaded, err := s.LoadContacts("session_unknown")
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestLoadContactsCorruptFileIsError(t *testing.T) {
	s := newTestFileStore(t)

	jsonPath := filepath.Join(s.exportsDir, "session_1", fmt.Sprintf(contactsJSONTmpl, "session_1"))
	require.NoError(t, os.MkdirAll(filepath.Dir(jsonPath), 0o755))
	require.NoError(t, os.WriteFile(jsonPath, []byte("{broken"), 0o644))

	_, err := s.LoadContacts("session_1")
	assert.Error(t, err)
}

func TestSaveMatchesRoundTrip(t *testing.T) {
	s := newTestFileStore(t)

	matches := []domain.MatchRecord{
		{Source: "contacts", FoundInChat: "Контакты", ID: 1, Username: "alice", IsContact: true, MatchedNick: "alice"},
	}
	n, err := s.SaveMatches("session_1", matches)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	loaded, err := s.LoadMatches("session_1")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, matches[0], loaded[0])

	csvPath := filepath.Join(s.exportsDir, "session_1", fmt.Sprintf(matchesCSVTemplate, "session_1"))
	rows := readCSV(t, csvPath)
	require.Len(t, rows, 2)
	assert.Equal(t, domain.MatchColumns, rows[0])
}

func TestSaveMatchesWorkbook(t *testing.T) {
	s := newTestFileStore(t)

	matches := []domain.MatchRecord{
		{Source: "contacts", FoundInChat: "Контакты", ID: 1, Username: "alice", MatchedNick: "alice"},
		{Source: "chat_members", FoundInChat: "Чат (group)", ChatID: "10", ID: 2, Username: "bob", MatchedNick: "bob"},
	}
	path, err := s.SaveMatchesWorkbook("session_1", matches)
	require.NoError(t, err)

	info, statErr := os.Stat(path)
	require.NoError(t, statErr)
	assert.Greater(t, info.Size(), int64(0))
	assert.True(t, strings.HasSuffix(path, ".xlsx"))
}

func TestSessionsDoNotShareFiles(t *testing.T) {
	s := newTestFileStore(t)

	_, err := s.SaveContacts("session_a", []domain.Contact{{ID: 1, IsContact: true}})
	require.NoError(t, err)

	loaded, err := s.LoadContacts("session_b")
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
