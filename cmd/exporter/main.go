package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telegram-exporter/internal/domain"
	"telegram-exporter/internal/export"
	applog "telegram-exporter/internal/log"
	"telegram-exporter/internal/matcher"
	"telegram-exporter/internal/menu"
	"telegram-exporter/internal/pkg/config"
	"telegram-exporter/internal/server"
	"telegram-exporter/internal/session"
	"telegram-exporter/internal/storage"
	"telegram-exporter/internal/telegram"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application run failed", "error", err)
		os.Exit(1)
	}
}

// run инкапсулирует всю логику инициализации и запуска приложения.
func run() error {
	// 1. Загрузка конфигурации
	cfg, err := config.LoadConfig()
	if err != nil {
		// Логгер еще не инициализирован, выводим в stderr
		_, _ = fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Инициализация логгера с маскировкой секретов
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	logger := applog.NewMaskedLogger(handler)
	slog.SetDefault(logger)

	// 3. Валидация конфигурации (после инициализации логгера)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// 4. Инициализация зависимостей
	sessions, err := session.NewManager(cfg.Paths.SessionsDir, session.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}
	fileStore := storage.NewFileStore(cfg.Paths.ExportsDir, storage.WithFileLogger(logger))
	progressStore := storage.NewProgressStore(cfg.Paths.ExportsDir, storage.WithProgressLogger(logger))
	matchSvc := matcher.New(fileStore, cfg.Paths.NicknamesFile, matcher.WithLogger(logger))

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// Клиенты подключаются лениво, по одному на сессию, и живут до
	// завершения приложения.
	clients := make(map[string]*telegram.Client)
	connect := func(ctx context.Context, name string) (*telegram.Client, error) {
		if c, ok := clients[name]; ok {
			return c, nil
		}
		creds, err := sessions.Credentials(name)
		if err != nil {
			return nil, err
		}
		client, err := telegram.NewClient(telegram.Config{
			APIID:            creds.APIID,
			APIHash:          creds.APIHash,
			PhoneNumber:      creds.Phone,
			SessionPath:      sessions.SessionPath(name),
			MemberFetchLimit: cfg.Export.MemberFetchLimit,
			DialogFetchLimit: cfg.Export.DialogFetchLimit,
			MaxFloodWait:     time.Duration(cfg.Export.MaxFloodWaitSeconds) * time.Second,
		}, telegram.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		// Соединение живет в контексте приложения, а не одной выгрузки.
		if err := client.Connect(appCtx); err != nil {
			return nil, err
		}
		if err := sessions.TouchLastUsed(name); err != nil {
			logger.Warn("Не удалось обновить отметку использования сессии", "session", name, "error", err)
		}
		clients[name] = client
		return client, nil
	}

	runExport := func(ctx context.Context, name string, kind domain.ExportKind, resume bool) (int, error) {
		client, err := connect(ctx, name)
		if err != nil {
			return 0, err
		}
		exporter := export.New(client, fileStore, progressStore,
			export.WithLogger(logger),
			export.WithCheckpointEvery(cfg.Export.CheckpointEvery),
		)
		switch kind {
		case domain.KindContacts:
			return exporter.Contacts(ctx, name, resume)
		case domain.KindChats:
			return exporter.Dialogs(ctx, name, resume)
		case domain.KindChatMembers:
			return exporter.ChatMembers(ctx, name, resume)
		default:
			return 0, fmt.Errorf("неизвестный вид экспорта: %s", kind)
		}
	}

	runReport := func(name string) (string, error) {
		matches, err := fileStore.LoadMatches(name)
		if err != nil {
			return "", fmt.Errorf("не удалось прочитать совпадения: %w", err)
		}
		if len(matches) == 0 {
			return "", fmt.Errorf("совпадений нет, сначала выполните сверку")
		}
		return fileStore.SaveMatchesWorkbook(name, matches)
	}

	// 5. Опциональный HTTP-сервер статуса
	var srv *server.Server
	serverDone := make(chan struct{})
	if cfg.Server.Enabled {
		srv = server.New(cfg, sessions, progressStore)
		go func() {
			defer close(serverDone)
			slog.Info("Starting status server", "addr", cfg.Address())
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("Server error", "error", err)
			}
		}()
	} else {
		close(serverDone)
	}

	// 6. Обработка сигналов: выгрузки сохраняют прогресс на контрольных
	// точках, поэтому прерывание безопасно.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		fmt.Fprintln(os.Stdout, "\nПолучен сигнал завершения. Прогресс сохранен, выгрузку можно продолжить при следующем запуске.")
		appCancel()
	}()

	// 7. Главный цикл меню
	m := menu.New(sessions, runExport, matchSvc.CrossReference, runReport, progressStore.Load,
		os.Stdin, os.Stdout,
		menu.WithLogger(logger),
		menu.WithDefaultCredentials(cfg.Telegram.APIID, cfg.Telegram.APIHash),
	)
	menuErr := m.Run(appCtx)
	if menuErr != nil && menuErr != context.Canceled {
		slog.Error("Menu loop failed", "error", menuErr)
	}

	// 8. Корректное завершение
	appCancel()
	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.DefaultShutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server forced to shutdown", "error", err)
		}
	}
	<-serverDone

	slog.Info("Application exited gracefully")
	return nil
}
