// Package config предоставляет управление конфигурацией приложения
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Telegram содержит учетные данные приложения Telegram API.
// Номер телефона вводится в меню при создании сессии, поэтому здесь
// его нет: одна пара api_id/api_hash обслуживает все сессии.
type Telegram struct {
	APIID   string `json:"api_id" yaml:"api_id"`
	APIHash string `json:"api_hash" yaml:"api_hash"`
}

// Paths содержит каталоги и файлы, с которыми работает экспортер.
type Paths struct {
	SessionsDir   string `json:"sessions_dir" yaml:"sessions_dir"`
	ExportsDir    string `json:"exports_dir" yaml:"exports_dir"`
	NicknamesFile string `json:"nicknames_file" yaml:"nicknames_file"`
}

// Export содержит настройки конвейеров выгрузки.
type Export struct {
	CheckpointEvery     int `json:"checkpoint_every" yaml:"checkpoint_every"`
	MemberFetchLimit    int `json:"member_fetch_limit" yaml:"member_fetch_limit"`
	DialogFetchLimit    int `json:"dialog_fetch_limit" yaml:"dialog_fetch_limit"`
	MaxFloodWaitSeconds int `json:"max_flood_wait_seconds" yaml:"max_flood_wait_seconds"`
}

// Server содержит конфигурацию HTTP-сервера статуса.
type Server struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Host    string `json:"host" yaml:"host"`
	Port    int    `json:"port" yaml:"port"`
}

// Logging содержит конфигурацию логирования
type Logging struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text, json
}

// Config содержит конфигурацию приложения
type Config struct {
	Telegram Telegram `json:"telegram" yaml:"telegram"`
	Paths    Paths    `json:"paths" yaml:"paths"`
	Export   Export   `json:"export" yaml:"export"`
	Server   Server   `json:"server" yaml:"server"`
	Logging  Logging  `json:"logging" yaml:"logging"`
}

// LoadConfig загружает конфигурацию из config.yml, переменных окружения
// и .env файла. YAML имеет приоритет; недостающие значения добираются
// из окружения и значений по умолчанию.
func LoadConfig() (*Config, error) {
	// .env файла может не быть, это нормально.
	_ = godotenv.Load()

	cfg, err := loadFromYAML("config.yml")
	if err != nil {
		cfg = &Config{}
	}
	cfg.applyEnv()
	cfg.applyDefaults()

	return cfg, nil
}

// loadFromYAML загружает конфигурацию из YAML-файла
func loadFromYAML(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать файл конфигурации %s: %w", filename, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("не удалось разобрать YAML конфигурацию: %w", err)
	}

	return &cfg, nil
}

// applyEnv подставляет значения из переменных окружения в пустые поля.
func (c *Config) applyEnv() {
	if c.Telegram.APIID == "" {
		c.Telegram.APIID = os.Getenv("API_ID")
	}
	if c.Telegram.APIHash == "" {
		c.Telegram.APIHash = os.Getenv("API_HASH")
	}
	if c.Paths.SessionsDir == "" {
		c.Paths.SessionsDir = os.Getenv("SESSIONS_DIR")
	}
	if c.Paths.ExportsDir == "" {
		c.Paths.ExportsDir = os.Getenv("EXPORTS_DIR")
	}
	if c.Paths.NicknamesFile == "" {
		c.Paths.NicknamesFile = os.Getenv("NICKNAMES_FILE")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = os.Getenv("LOG_LEVEL")
	}
}

// applyDefaults заполняет оставшиеся пустые поля значениями по умолчанию.
func (c *Config) applyDefaults() {
	if c.Paths.SessionsDir == "" {
		c.Paths.SessionsDir = DefaultSessionsDir
	}
	if c.Paths.ExportsDir == "" {
		c.Paths.ExportsDir = DefaultExportsDir
	}
	if c.Paths.NicknamesFile == "" {
		c.Paths.NicknamesFile = DefaultNicknamesFile
	}
	if c.Export.CheckpointEvery <= 0 {
		c.Export.CheckpointEvery = DefaultCheckpointEvery
	}
	if c.Export.MemberFetchLimit <= 0 {
		c.Export.MemberFetchLimit = DefaultMemberFetchLimit
	}
	if c.Export.DialogFetchLimit <= 0 {
		c.Export.DialogFetchLimit = DefaultDialogFetchLimit
	}
	if c.Export.MaxFloodWaitSeconds <= 0 {
		c.Export.MaxFloodWaitSeconds = int(DefaultMaxFloodWait.Seconds())
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

// Address возвращает адрес сервера статуса в формате "host:port"
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate проверяет, являются ли значения конфигурации допустимыми
func (c *Config) Validate() error {
	if c.Telegram.APIID != "" {
		if _, err := strconv.Atoi(c.Telegram.APIID); err != nil {
			return fmt.Errorf("telegram.api_id должно быть целым числом: %w", err)
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			return fmt.Errorf("server.port должен быть действительным номером порта (1-65535)")
		}
	}

	if c.Export.CheckpointEvery <= 0 {
		return fmt.Errorf("export.checkpoint_every должно быть положительным")
	}
	if c.Export.MemberFetchLimit <= 0 {
		return fmt.Errorf("export.member_fetch_limit должно быть положительным")
	}
	if c.Export.DialogFetchLimit <= 0 {
		return fmt.Errorf("export.dialog_fetch_limit должно быть положительным")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// all good
	default:
		return fmt.Errorf("logging.level должен быть одним из: debug, info, warn, error")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format должен быть одним из: text, json")
	}

	return nil
}
