package config

import "time"

// Default values for configuration.
const (
	// Paths defaults
	DefaultSessionsDir   = "sessions"
	DefaultExportsDir    = "exports"
	DefaultNicknamesFile = "nicknames.txt"

	// Export defaults
	DefaultCheckpointEvery  = 10
	DefaultMemberFetchLimit = 10000
	DefaultDialogFetchLimit = 500
	DefaultMaxFloodWait     = 60 * time.Second

	// Server defaults
	DefaultServerHost      = "127.0.0.1"
	DefaultServerPort      = 8080
	DefaultShutdownTimeout = 15 * time.Second

	// Logging defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)
