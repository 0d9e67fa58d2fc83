package config

// Config is the on-disk configuration (YAML or JSON). Unknown keys are
// rejected on load and on every hot reload.
//
// Durations are Go duration strings ("250ms", "1s", "10s").
type Config struct {
	Logging  LoggingConfig   `json:"logging"`
	Dispatch DispatchConfig  `json:"dispatch"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`
	UI       UIConfig        `json:"ui"`
	Debug    DebugConfig     `json:"debug"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// DispatchConfig controls the order scheduler.
//
// Defaults:
//   - tick_interval: "1s" (cron granularity; sub-second values are rejected)
//   - processing_time: "10s"
//   - initial_workers: 0
//   - eager_match: false
type DispatchConfig struct {
	TickInterval   string `json:"tick_interval,omitempty"`
	ProcessingTime string `json:"processing_time,omitempty"`
	InitialWorkers int    `json:"initial_workers,omitempty"`
	EagerMatch     bool   `json:"eager_match,omitempty"`
}

// StorageConfig controls the event journal.
//
// Example:
//
//	storage: { driver: sqlite, path: ./orderbot.db }
type StorageConfig struct {
	Driver      string `json:"driver"` // none | file | sqlite
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// TelegramConfig enables the chat command transport.
type TelegramConfig struct {
	Enabled      bool    `json:"enabled"`
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	PollTimeout  string  `json:"poll_timeout,omitempty"`
	// RatePerSec limits commands per chat; 0 disables the limit.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// DebugConfig controls the pprof/snapshot HTTP endpoint.
type DebugConfig struct {
	Enabled     bool   `json:"enabled"`
	Addr        string `json:"addr,omitempty"` // default 127.0.0.1:6060
	AllowRemote bool   `json:"allow_remote,omitempty"`
}

type UIConfig struct {
	RefreshInterval string `json:"refresh_interval,omitempty"`
}

// Default is used when no config file is given.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Dispatch: DispatchConfig{
			TickInterval:   "1s",
			ProcessingTime: "10s",
		},
		UI: UIConfig{RefreshInterval: "250ms"},
	}
}
