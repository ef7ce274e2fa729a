// Package telegram реализует AccountSource поверх клиента gotd:
// аутентификация, выборка контактов, диалогов и участников групп.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"golang.org/x/term"

	trm "telegram-exporter/internal/pkg/term"
)

var (
	// ErrNotConnected возвращается, когда запрос выполнен до успешного Connect.
	ErrNotConnected = errors.New("telegram client is not connected")
	// floodWaitRegex извлекает длительность ожидания из ошибки FLOOD_WAIT.
	floodWaitRegex = regexp.MustCompile(`FLOOD_WAIT \((\d+)\)`)
)

// Config содержит все, что нужно для подключения одного аккаунта.
type Config struct {
	APIID       string
	APIHash     string
	PhoneNumber string
	SessionPath string
	// MemberFetchLimit ограничивает число участников, запрашиваемых из
	// одного чата. Выборка внутри — постраничная, но наружу отдается
	// единым списком.
	MemberFetchLimit int
	// DialogFetchLimit ограничивает размер запроса списка диалогов.
	DialogFetchLimit int
	// MaxFloodWait — предельное ожидание FLOOD_WAIT, которое клиент
	// готов пересидеть сам; более длинные ожидания отдаются как ошибка.
	MaxFloodWait time.Duration
}

// rawAPI — методы Telegram API, используемые источником.
// Интерфейс позволяет подменять API в тестах.
type rawAPI interface {
	ContactsGetContacts(ctx context.Context, hash int64) (tg.ContactsContactsClass, error)
	MessagesGetDialogs(ctx context.Context, request *tg.MessagesGetDialogsRequest) (tg.MessagesDialogsClass, error)
	ChannelsGetParticipants(ctx context.Context, request *tg.ChannelsGetParticipantsRequest) (tg.ChannelsChannelParticipantsClass, error)
	MessagesGetFullChat(ctx context.Context, chatid int64) (*tg.MessagesChatFull, error)
	UsersGetUsers(ctx context.Context, request []tg.InputUserClass) ([]tg.UserClass, error)
}

// runner абстрагирует фоновый запуск клиента gotd.
type runner interface {
	Run(ctx context.Context, f func(ctx context.Context) error) error
	API() rawAPI
	Auth() auth.FlowClient
}

type prodRunner struct {
	*telegram.Client
}

func (p *prodRunner) API() rawAPI {
	return p.Client.API()
}

func (p *prodRunner) Auth() auth.FlowClient {
	return p.Client.Auth()
}

type authFlow interface {
	Run(ctx context.Context, client auth.FlowClient) error
}

// Client — последовательный источник данных аккаунта. Подключение
// выполняется один раз, далее запросы идут по одному.
type Client struct {
	cfg        Config
	tgRunner   runner
	authFlow   authFlow
	isTerminal func(fd int) bool
	clock      func() time.Time
	sleep      func(d time.Duration)
	log        *slog.Logger

	startOnce sync.Once
	ready     chan struct{}
	runErr    chan error
}

// ClientOption — функциональная опция клиента.
type ClientOption func(*Client)

// WithLogger устанавливает логгер клиента.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient создает клиент с файловым хранилищем сессии gotd и
// интерактивной аутентификацией через терминал.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	apiID, err := strconv.Atoi(cfg.APIID)
	if err != nil {
		return nil, fmt.Errorf("api_id %q не является числом: %w", cfg.APIID, err)
	}

	if cfg.MemberFetchLimit <= 0 {
		cfg.MemberFetchLimit = 10000
	}
	if cfg.DialogFetchLimit <= 0 {
		cfg.DialogFetchLimit = 500
	}
	if cfg.MaxFloodWait <= 0 {
		cfg.MaxFloodWait = time.Minute
	}

	termAuth := trm.NewTerminal(cfg.PhoneNumber)
	sessionStorage := &session.FileStorage{Path: cfg.SessionPath}

	tgClient := telegram.NewClient(apiID, cfg.APIHash, telegram.Options{
		SessionStorage: sessionStorage,
	})

	c := &Client{
		cfg:        cfg,
		tgRunner:   &prodRunner{Client: tgClient},
		authFlow:   auth.NewFlow(termAuth, auth.SendCodeOptions{}),
		isTerminal: func(fd int) bool { return term.IsTerminal(fd) },
		clock:      time.Now,
		sleep:      time.Sleep,
		log:        slog.Default(),
		ready:      make(chan struct{}),
		runErr:     make(chan error, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Connect запускает фоновый процесс клиента и блокируется до успешной
// аутентификации, ошибки транспорта или отмены контекста. Соединение
// живет, пока жив переданный контекст.
func (c *Client) Connect(ctx context.Context) error {
	c.startOnce.Do(func() {
		go func() {
			err := c.tgRunner.Run(ctx, func(runCtx context.Context) error {
				// Легкий запрос проверяет, жива ли сохраненная сессия.
				if _, err := c.tgRunner.API().UsersGetUsers(runCtx, []tg.InputUserClass{&tg.InputUserSelf{}}); err != nil {
					c.log.WarnContext(runCtx, "Сохраненная сессия недействительна, требуется интерактивный вход", "error", err)
					if !c.isTerminal(int(os.Stdin.Fd())) {
						return fmt.Errorf("сессия недействительна, а интерактивный вход вне терминала невозможен: %w", err)
					}
					if authErr := c.authFlow.Run(runCtx, c.tgRunner.Auth()); authErr != nil {
						return fmt.Errorf("интерактивная аутентификация не удалась: %w", authErr)
					}
					c.log.InfoContext(runCtx, "Аутентификация прошла успешно, сессия сохранена", "session_path", c.cfg.SessionPath)
				}

				close(c.ready)
				<-runCtx.Done()
				return runCtx.Err()
			})

			c.runErr <- err
			close(c.runErr)
		}()
	})

	select {
	case <-c.ready:
		c.log.InfoContext(ctx, "Клиент Telegram подключен", "session_path", c.cfg.SessionPath)
		return nil
	case err, ok := <-c.runErr:
		if !ok || err == nil {
			return ErrNotConnected
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) api() (rawAPI, error) {
	select {
	case <-c.ready:
		return c.tgRunner.API(), nil
	default:
		return nil, ErrNotConnected
	}
}

// do выполняет один запрос API, пересиживая короткий FLOOD_WAIT один раз.
func (c *Client) do(ctx context.Context, op string, f func(ctx context.Context) error) error {
	err := f(ctx)
	if err == nil {
		return nil
	}

	if wait, ok := parseFloodWait(err); ok && wait <= c.cfg.MaxFloodWait {
		c.log.WarnContext(ctx, "Получен FLOOD_WAIT, ждем и повторяем", "operation", op, "wait", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		c.sleep(wait)
		return f(ctx)
	}
	return err
}

// parseFloodWait извлекает длительность ожидания из текста ошибки.
func parseFloodWait(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	matches := floodWaitRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0, false
	}
	seconds, convErr := strconv.Atoi(matches[1])
	if convErr != nil {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}
