// Package export реализует возобновляемые конвейеры выгрузки: контакты,
// личные диалоги и участники групп. Конвейер строго последовательный:
// один запрос к источнику или одна запись на диск за раз.
package export

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"telegram-exporter/internal/domain"
	"telegram-exporter/internal/ports"
)

// DefaultCheckpointEvery — шаг контрольных точек для контактов и диалогов.
// Участники групп фиксируются после каждого чата.
const DefaultCheckpointEvery = 10

// Exporter управляет всеми тремя видами экспорта одной сессии.
type Exporter struct {
	source          ports.AccountSource
	store           ports.ExportStore
	progress        ports.ProgressStore
	log             *slog.Logger
	checkpointEvery int
}

// Option — функциональная опция конвейера.
type Option func(*Exporter)

// WithLogger устанавливает логгер конвейера.
func WithLogger(l *slog.Logger) Option {
	return func(e *Exporter) {
		if l != nil {
			e.log = l
		}
	}
}

// WithCheckpointEvery задает шаг контрольных точек для контактов и диалогов.
func WithCheckpointEvery(n int) Option {
	return func(e *Exporter) {
		if n > 0 {
			e.checkpointEvery = n
		}
	}
}

// New создает конвейер поверх источника и хранилищ.
func New(source ports.AccountSource, store ports.ExportStore, progress ports.ProgressStore, opts ...Option) *Exporter {
	e := &Exporter{
		source:          source,
		store:           store,
		progress:        progress,
		log:             slog.Default(),
		checkpointEvery: DefaultCheckpointEvery,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Contacts выгружает все контакты сессии. При resume конвейер продолжает
// с сохраненной позиции и перед записью сливает хвост с ранее сохраненным
// набором, дедуплицируя по id, чтобы возобновление не теряло уже
// выгруженные записи.
func (e *Exporter) Contacts(ctx context.Context, session string, resume bool) (int, error) {
	log := e.log.With("run_id", uuid.NewString(), "session", session, "kind", domain.KindContacts)

	entry, found := e.loadEntry(session, domain.KindContacts)
	if resume && found && entry.Finished {
		log.Info("Экспорт уже завершен, пропускаем", "total", entry.Total)
		return entry.Total, nil
	}

	contacts, err := e.source.Contacts(ctx)
	if err != nil {
		return 0, fmt.Errorf("не удалось получить контакты: %w", err)
	}
	total := len(contacts)

	completed := 0
	if resume && found {
		completed = clamp(entry.Completed, 0, total)
		log.Info("Продолжаем с сохраненной позиции", "completed", completed, "total", total)
	}

	tail := contacts[completed:]
	if err := e.walkUnits(ctx, session, domain.KindContacts, completed, total, len(tail)); err != nil {
		return completed, err
	}

	records := tail
	if completed > 0 {
		records = mergeByKey(e.loadPriorContacts(session, log), tail, func(c domain.Contact) int64 { return c.ID })
	}

	if _, err := e.store.SaveContacts(session, records); err != nil {
		return completed, fmt.Errorf("не удалось сохранить контакты: %w", err)
	}
	if err := e.progress.Save(session, domain.KindContacts, finishedEntry(total)); err != nil {
		return total, err
	}

	log.Info("Экспорт контактов завершен", "total", total, "written", len(records))
	return total, nil
}

// Dialogs выгружает все личные диалоги сессии. Семантика возобновления
// и слияния совпадает с Contacts.
func (e *Exporter) Dialogs(ctx context.Context, session string, resume bool) (int, error) {
	log := e.log.With("run_id", uuid.NewString(), "session", session, "kind", domain.KindChats)

	entry, found := e.loadEntry(session, domain.KindChats)
	if resume && found && entry.Finished {
		log.Info("Экспорт уже завершен, пропускаем", "total", entry.Total)
		return entry.Total, nil
	}

	dialogs, err := e.source.Dialogs(ctx)
	if err != nil {
		return 0, fmt.Errorf("не удалось получить диалоги: %w", err)
	}
	total := len(dialogs)

	completed := 0
	if resume && found {
		completed = clamp(entry.Completed, 0, total)
		log.Info("Продолжаем с сохраненной позиции", "completed", completed, "total", total)
	}

	tail := dialogs[completed:]
	if err := e.walkUnits(ctx, session, domain.KindChats, completed, total, len(tail)); err != nil {
		return completed, err
	}

	records := tail
	if completed > 0 {
		records = mergeByKey(e.loadPriorDialogs(session, log), tail, func(d domain.Dialog) int64 { return d.ID })
	}

	if _, err := e.store.SaveDialogs(session, records); err != nil {
		return completed, fmt.Errorf("не удалось сохранить диалоги: %w", err)
	}
	if err := e.progress.Save(session, domain.KindChats, finishedEntry(total)); err != nil {
		return total, err
	}

	log.Info("Экспорт диалогов завершен", "total", total, "written", len(records))
	return total, nil
}

// ChatMembers выгружает участников всех доступных групп и каналов.
// Единица возобновления — чат: после каждого чата участники немедленно
// дозаписываются в файлы, а прогресс с списком обработанных чатов
// сохраняется. Ошибка получения участников одного чата логируется,
// чат помечается обработанным и не будет повторен при возобновлении.
// Возвращает количество выгруженных участников за этот запуск.
func (e *Exporter) ChatMembers(ctx context.Context, session string, resume bool) (int, error) {
	log := e.log.With("run_id", uuid.NewString(), "session", session, "kind", domain.KindChatMembers)

	entry, found := e.loadEntry(session, domain.KindChatMembers)
	if resume && found && entry.Finished {
		log.Info("Экспорт уже завершен, пропускаем", "total", entry.Total)
		return 0, nil
	}

	chats, err := e.source.GroupChats(ctx)
	if err != nil {
		return 0, fmt.Errorf("не удалось получить список групп: %w", err)
	}
	total := len(chats)

	var processed []int64
	if resume && found {
		// Чаты, покинутые между запусками, выбрасываются из списка
		// обработанных: иначе счетчик обгонит общее число чатов.
		processed = retainKnown(entry.ProcessedItems, chats)
		log.Info("Продолжаем с сохраненной позиции", "completed", len(processed), "total", total)
	} else {
		// Свежий запуск начинает вывод с чистого листа.
		if err := e.store.ResetChatMembers(session); err != nil {
			return 0, fmt.Errorf("не удалось очистить прежний вывод: %w", err)
		}
	}

	if total == 0 {
		log.Info("Группы и каналы не найдены, выгружать нечего")
		return 0, nil
	}

	processedSet := make(map[int64]struct{}, len(processed))
	for _, id := range processed {
		processedSet[id] = struct{}{}
	}

	completed := len(processed)
	written := 0

	for _, chat := range chats {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		if _, done := processedSet[chat.ID]; done {
			continue
		}

		members, err := e.source.ChatMembers(ctx, chat)
		switch {
		case err != nil && ctx.Err() != nil:
			return written, ctx.Err()
		case err != nil:
			// Недоступность участников одного чата не останавливает экспорт.
			log.Warn("Не удалось получить участников, чат пропущен",
				"chat_id", chat.ID, "chat_title", chat.Title, "error", err)
		case len(members) > 0:
			n, werr := e.store.AppendChatMembers(session, members)
			if werr != nil {
				return written, fmt.Errorf("не удалось дозаписать участников чата %d: %w", chat.ID, werr)
			}
			written += n
			log.Info("Участники чата выгружены", "chat_id", chat.ID, "chat_title", chat.Title, "members", n)
		}

		processed = append(processed, chat.ID)
		processedSet[chat.ID] = struct{}{}
		completed++

		if err := e.progress.Save(session, domain.KindChatMembers, domain.ProgressEntry{
			Completed:      completed,
			Total:          total,
			Finished:       completed >= total,
			ProcessedItems: processed,
		}); err != nil {
			return written, err
		}
	}

	if err := e.progress.Save(session, domain.KindChatMembers, domain.ProgressEntry{
		Completed:      total,
		Total:          total,
		Finished:       true,
		ProcessedItems: processed,
	}); err != nil {
		return written, err
	}

	log.Info("Экспорт участников завершен", "chats", total, "members", written)
	return written, nil
}

// walkUnits проходит по оставшимся единицам работы, сохраняя контрольную
// точку каждые checkpointEvery единиц. Сами записи уже получены от
// источника, здесь фиксируется только продвижение.
func (e *Exporter) walkUnits(ctx context.Context, session string, kind domain.ExportKind, completed, total, remaining int) error {
	for i := 0; i < remaining; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		done := completed + i + 1
		if done%e.checkpointEvery == 0 {
			if err := e.progress.Save(session, kind, domain.ProgressEntry{
				Completed: done,
				Total:     total,
				Finished:  false,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Exporter) loadEntry(session string, kind domain.ExportKind) (domain.ProgressEntry, bool) {
	progress, err := e.progress.Load(session)
	if err != nil {
		e.log.Warn("Не удалось загрузить прогресс, начинаем с нуля", "session", session, "error", err)
		return domain.ProgressEntry{}, false
	}
	entry, ok := progress[kind]
	return entry, ok
}

func (e *Exporter) loadPriorContacts(session string, log *slog.Logger) []domain.Contact {
	prior, err := e.store.LoadContacts(session)
	if err != nil {
		log.Warn("Прежний набор контактов нечитаем, пишем только новые записи", "error", err)
		return nil
	}
	return prior
}

func (e *Exporter) loadPriorDialogs(session string, log *slog.Logger) []domain.Dialog {
	prior, err := e.store.LoadDialogs(session)
	if err != nil {
		log.Warn("Прежний набор диалогов нечитаем, пишем только новые записи", "error", err)
		return nil
	}
	return prior
}

// retainKnown возвращает только те идентификаторы обработанных чатов,
// которые присутствуют в свежем списке. Гарантирует completed <= total
// при любых изменениях списка чатов между запусками.
func retainKnown(processed []int64, chats []domain.GroupChat) []int64 {
	known := make(map[int64]struct{}, len(chats))
	for _, chat := range chats {
		known[chat.ID] = struct{}{}
	}
	kept := make([]int64, 0, len(processed))
	for _, id := range processed {
		if _, ok := known[id]; ok {
			kept = append(kept, id)
		}
	}
	return kept
}

// mergeByKey объединяет прежний набор с новым хвостом, отбрасывая из хвоста
// записи, чей естественный ключ уже встречался.
func mergeByKey[T any](prior, tail []T, key func(T) int64) []T {
	seen := make(map[int64]struct{}, len(prior))
	for _, r := range prior {
		seen[key(r)] = struct{}{}
	}
	merged := prior
	for _, r := range tail {
		if _, dup := seen[key(r)]; dup {
			continue
		}
		seen[key(r)] = struct{}{}
		merged = append(merged, r)
	}
	return merged
}

func finishedEntry(total int) domain.ProgressEntry {
	return domain.ProgressEntry{Completed: total, Total: total, Finished: true}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
