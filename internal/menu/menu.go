// Package menu реализует интерактивное консольное меню экспортера:
// управление сессиями, запуск выгрузок и сверка ников.
package menu

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"telegram-exporter/internal/domain"
	"telegram-exporter/internal/session"
)

// ExportRunner запускает выгрузку одного вида для сессии.
// Возвращает число выгруженных записей за этот запуск.
type ExportRunner func(ctx context.Context, sessionName string, kind domain.ExportKind, resume bool) (int, error)

// MatchRunner запускает сверку ников для сессии.
type MatchRunner func(sessionName string) (domain.MatchSummary, error)

// ReportRunner строит XLSX-отчет о совпадениях и возвращает путь к нему.
type ReportRunner func(sessionName string) (string, error)

// ProgressLoader читает прогресс выгрузок одной сессии.
type ProgressLoader func(sessionName string) (domain.ProgressMap, error)

// Menu связывает ввод пользователя с операциями экспортера. Текущая
// сессия хранится только внутри меню и передается операциям явно.
type Menu struct {
	in       *bufio.Reader
	out      io.Writer
	sessions *session.Manager
	export   ExportRunner
	match    MatchRunner
	report   ReportRunner
	progress ProgressLoader
	log      *slog.Logger

	defaultAPIID   string
	defaultAPIHash string

	current string
}

// Option — функциональная опция меню.
type Option func(*Menu)

// WithLogger устанавливает логгер меню.
func WithLogger(l *slog.Logger) Option {
	return func(m *Menu) {
		if l != nil {
			m.log = l
		}
	}
}

// WithIO подменяет потоки ввода и вывода (для тестов).
func WithIO(in io.Reader, out io.Writer) Option {
	return func(m *Menu) {
		m.in = bufio.NewReader(in)
		m.out = out
	}
}

// WithDefaultCredentials задает api_id и api_hash, подставляемые при
// создании сессии, если пользователь оставил поле пустым.
func WithDefaultCredentials(apiID, apiHash string) Option {
	return func(m *Menu) {
		m.defaultAPIID = apiID
		m.defaultAPIHash = apiHash
	}
}

// New создает меню поверх менеджера сессий и операций экспортера.
func New(sessions *session.Manager, export ExportRunner, match MatchRunner, report ReportRunner, progress ProgressLoader, in io.Reader, out io.Writer, opts ...Option) *Menu {
	m := &Menu{
		in:       bufio.NewReader(in),
		out:      out,
		sessions: sessions,
		export:   export,
		match:    match,
		report:   report,
		progress: progress,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run крутит главный цикл меню до выхода пользователя или отмены контекста.
func (m *Menu) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		m.printMain()
		choice, err := m.readLine()
		if err != nil {
			return err
		}

		switch choice {
		case "1":
			if err := m.sessionMenu(ctx); err != nil {
				return err
			}
		case "2":
			m.runExport(ctx, domain.KindContacts)
		case "3":
			m.runExport(ctx, domain.KindChats)
		case "4":
			m.runExport(ctx, domain.KindChatMembers)
		case "5":
			m.runExportAll(ctx)
		case "6":
			m.runMatch()
		case "7":
			m.runReport()
		case "0":
			fmt.Fprintln(m.out, "До свидания.")
			return nil
		default:
			fmt.Fprintln(m.out, "Неизвестный пункт меню.")
		}
	}
}

func (m *Menu) printMain() {
	current := m.current
	if current == "" {
		current = "не выбрана"
	}
	fmt.Fprintf(m.out, "\n=== Экспорт аккаунта Telegram (сессия: %s) ===\n", current)
	fmt.Fprintln(m.out, "1. Сессии: выбор, создание, удаление")
	fmt.Fprintln(m.out, "2. Экспорт контактов")
	fmt.Fprintln(m.out, "3. Экспорт личных диалогов")
	fmt.Fprintln(m.out, "4. Экспорт участников групп и каналов")
	fmt.Fprintln(m.out, "5. Экспорт всего")
	fmt.Fprintln(m.out, "6. Сверка с файлом ников")
	fmt.Fprintln(m.out, "7. XLSX-отчет о совпадениях")
	fmt.Fprintln(m.out, "0. Выход")
	fmt.Fprint(m.out, "Выберите пункт: ")
}

// sessionMenu показывает таблицу сессий и выполняет одну операцию над ними.
func (m *Menu) sessionMenu(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := m.sessions.List()
	if err != nil {
		fmt.Fprintf(m.out, "Не удалось получить список сессий: %v\n", err)
		return nil
	}
	m.printSessions(entries)

	fmt.Fprintln(m.out, "n. Новая сессия")
	fmt.Fprintln(m.out, "d. Удалить сессию")
	fmt.Fprintln(m.out, "0. Назад")
	fmt.Fprint(m.out, "Выберите сессию или действие: ")

	choice, err := m.readLine()
	if err != nil {
		return err
	}

	switch choice {
	case "0", "":
		return nil
	case "n":
		return m.createSession()
	case "d":
		return m.deleteSession(entries)
	default:
		idx, err := strconv.Atoi(choice)
		if err != nil || idx < 1 || idx > len(entries) {
			fmt.Fprintln(m.out, "Нет такой сессии.")
			return nil
		}
		m.current = entries[idx-1].Name
		if err := m.sessions.TouchLastUsed(m.current); err != nil {
			m.log.Warn("Не удалось обновить отметку использования сессии", "session", m.current, "error", err)
		}
		fmt.Fprintf(m.out, "Выбрана сессия %s.\n", m.current)
		return nil
	}
}

// printSessions выводит таблицу сессий с выравниванием по ширине рун.
func (m *Menu) printSessions(entries []session.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(m.out, "Сохраненных сессий нет.")
		return
	}

	headers := []string{"#", "Сессия", "Телефон", "Последнее использование"}
	rows := make([][]string, 0, len(entries))
	for i, e := range entries {
		rows = append(rows, []string{strconv.Itoa(i + 1), e.Name, e.Phone, e.LastUsed})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	printRow := func(row []string) {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = runewidth.FillRight(cell, widths[i])
		}
		fmt.Fprintln(m.out, strings.Join(cells, "  "))
	}

	printRow(headers)
	for _, row := range rows {
		printRow(row)
	}
}

// createSession запрашивает номер телефона и учетные данные API,
// регистрирует сессию и делает ее текущей. Имя сессии выводится из
// номера телефона детерминированно.
func (m *Menu) createSession() error {
	fmt.Fprint(m.out, "Номер телефона (например +79991234567): ")
	phone, err := m.readLine()
	if err != nil {
		return err
	}
	if phone == "" {
		fmt.Fprintln(m.out, "Номер телефона обязателен.")
		return nil
	}

	apiID, err := m.readWithDefault("api_id", m.defaultAPIID)
	if err != nil {
		return err
	}
	apiHash, err := m.readWithDefault("api_hash", m.defaultAPIHash)
	if err != nil {
		return err
	}
	if apiID == "" || apiHash == "" {
		fmt.Fprintln(m.out, "api_id и api_hash обязательны.")
		return nil
	}

	name := session.NameFromPhone(phone)
	if err := m.sessions.Save(name, session.Credentials{APIID: apiID, APIHash: apiHash, Phone: phone}); err != nil {
		fmt.Fprintf(m.out, "Не удалось сохранить сессию: %v\n", err)
		return nil
	}

	m.current = name
	fmt.Fprintf(m.out, "Сессия %s создана и выбрана. Вход будет выполнен при первой выгрузке.\n", name)
	return nil
}

func (m *Menu) deleteSession(entries []session.Entry) error {
	fmt.Fprint(m.out, "Номер сессии для удаления: ")
	choice, err := m.readLine()
	if err != nil {
		return err
	}
	idx, convErr := strconv.Atoi(choice)
	if convErr != nil || idx < 1 || idx > len(entries) {
		fmt.Fprintln(m.out, "Нет такой сессии.")
		return nil
	}

	name := entries[idx-1].Name
	fmt.Fprintf(m.out, "Удалить сессию %s вместе с файлом входа? [y/N]: ", name)
	if !m.confirm() {
		fmt.Fprintln(m.out, "Отменено.")
		return nil
	}

	if err := m.sessions.Delete(name); err != nil {
		fmt.Fprintf(m.out, "Не удалось удалить сессию: %v\n", err)
		return nil
	}
	if m.current == name {
		m.current = ""
	}
	fmt.Fprintf(m.out, "Сессия %s удалена.\n", name)
	return nil
}

// runExport запускает выгрузку одного вида для текущей сессии,
// предварительно спросив про возобновление, если есть незавершенный
// прогресс.
func (m *Menu) runExport(ctx context.Context, kind domain.ExportKind) {
	if m.current == "" {
		fmt.Fprintln(m.out, "Сначала выберите сессию (пункт 1).")
		return
	}

	resume := m.askResume(kind)
	count, err := m.export(ctx, m.current, kind, resume)
	if err != nil {
		fmt.Fprintf(m.out, "Выгрузка прервана: %v\n", err)
		fmt.Fprintln(m.out, "Прогресс сохранен, выгрузку можно продолжить позже.")
		return
	}
	fmt.Fprintf(m.out, "Готово: %s, записей за запуск: %d.\n", kindLabel(kind), count)
}

// runExportAll выгружает все три вида подряд, останавливаясь на первой
// ошибке.
func (m *Menu) runExportAll(ctx context.Context) {
	if m.current == "" {
		fmt.Fprintln(m.out, "Сначала выберите сессию (пункт 1).")
		return
	}

	for _, kind := range []domain.ExportKind{domain.KindContacts, domain.KindChats, domain.KindChatMembers} {
		resume := m.askResume(kind)
		count, err := m.export(ctx, m.current, kind, resume)
		if err != nil {
			fmt.Fprintf(m.out, "Выгрузка %s прервана: %v\n", kindLabel(kind), err)
			fmt.Fprintln(m.out, "Прогресс сохранен, выгрузку можно продолжить позже.")
			return
		}
		fmt.Fprintf(m.out, "Готово: %s, записей за запуск: %d.\n", kindLabel(kind), count)
	}
}

// askResume предлагает продолжить незавершенную выгрузку. Без прогресса
// или при завершенной выгрузке вопрос не задается: завершенную выгрузку
// конвейер при resume просто пропустит, поэтому по умолчанию начинаем
// заново.
func (m *Menu) askResume(kind domain.ExportKind) bool {
	progress, err := m.progress(m.current)
	if err != nil {
		return false
	}
	entry, ok := progress[kind]
	if !ok || entry.Finished || entry.Completed == 0 {
		return false
	}

	fmt.Fprintf(m.out, "Найден незавершенный прогресс %s: %d из %d (%d%%). Продолжить? [y/N]: ",
		kindLabel(kind), entry.Completed, entry.Total, entry.Percent())
	return m.confirm()
}

func (m *Menu) runMatch() {
	if m.current == "" {
		fmt.Fprintln(m.out, "Сначала выберите сессию (пункт 1).")
		return
	}

	summary, err := m.match(m.current)
	if err != nil {
		fmt.Fprintf(m.out, "Сверка не удалась: %v\n", err)
		return
	}
	if summary.Total() == 0 {
		fmt.Fprintln(m.out, "Совпадений не найдено.")
		return
	}
	fmt.Fprintf(m.out, "Совпадений: %d (контакты: %d, диалоги: %d, участники: %d).\n",
		summary.Total(), summary.Contacts, summary.Chats, summary.ChatMembers)
}

func (m *Menu) runReport() {
	if m.current == "" {
		fmt.Fprintln(m.out, "Сначала выберите сессию (пункт 1).")
		return
	}

	path, err := m.report(m.current)
	if err != nil {
		fmt.Fprintf(m.out, "Не удалось построить отчет: %v\n", err)
		return
	}
	fmt.Fprintf(m.out, "Отчет сохранен: %s\n", path)
}

func (m *Menu) readLine() (string, error) {
	line, err := m.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (m *Menu) readWithDefault(prompt, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(m.out, "%s [%s]: ", prompt, def)
	} else {
		fmt.Fprintf(m.out, "%s: ", prompt)
	}
	value, err := m.readLine()
	if err != nil {
		return "", err
	}
	if value == "" {
		return def, nil
	}
	return value, nil
}

func (m *Menu) confirm() bool {
	answer, err := m.readLine()
	if err != nil {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes" || answer == "д" || answer == "да"
}

func kindLabel(kind domain.ExportKind) string {
	switch kind {
	case domain.KindContacts:
		return "контакты"
	case domain.KindChats:
		return "личные диалоги"
	case domain.KindChatMembers:
		return "участники групп"
	default:
		return string(kind)
	}
}
