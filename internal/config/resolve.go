package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	logx "orderbot/pkg/logx"
)

// Resolved is Config with defaults applied and durations parsed.
type Resolved struct {
	Logging logx.Config

	TickInterval   time.Duration
	ProcessingTime time.Duration
	InitialWorkers int
	EagerMatch     bool

	Storage  StorageSettings
	Telegram TelegramSettings

	UIRefresh time.Duration
	Debug     DebugSettings
}

type DebugSettings struct {
	Enabled     bool
	Addr        string
	AllowRemote bool
}

type StorageSettings struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration
}

func (s StorageSettings) Enabled() bool { return s.Driver != "" && s.Driver != "none" }

type TelegramSettings struct {
	Enabled      bool
	Token        string
	OwnerUserIDs []int64
	PollTimeout  time.Duration
	RatePerSec   int
}

// Resolve validates c and fills in defaults. Every error names the offending key.
func (c *Config) Resolve() (Resolved, error) {
	if c == nil {
		c = Default()
	}
	var (
		r    Resolved
		errs []error
		err  error
	)

	level := strings.TrimSpace(c.Logging.Level)
	if level != "" && !logx.ValidLevel(level) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", level))
	}
	if c.Logging.File.Enabled && strings.TrimSpace(c.Logging.File.Path) == "" {
		errs = append(errs, errors.New("logging.file.path: required when file logging is enabled"))
	}
	r.Logging = logx.Config{
		Level:   level,
		Console: c.Logging.Console,
		File:    logx.FileConfig{Enabled: c.Logging.File.Enabled, Path: strings.TrimSpace(c.Logging.File.Path)},
	}

	if r.TickInterval, err = durationOrDefault("dispatch.tick_interval", c.Dispatch.TickInterval, time.Second); err != nil {
		errs = append(errs, err)
	} else if r.TickInterval < time.Second || r.TickInterval%time.Second != 0 {
		errs = append(errs, fmt.Errorf("dispatch.tick_interval: must be a whole number of seconds, got %s", r.TickInterval))
	}
	if r.ProcessingTime, err = durationOrDefault("dispatch.processing_time", c.Dispatch.ProcessingTime, 10*time.Second); err != nil {
		errs = append(errs, err)
	}
	if c.Dispatch.InitialWorkers < 0 {
		errs = append(errs, errors.New("dispatch.initial_workers: must be >= 0"))
	}
	r.InitialWorkers = c.Dispatch.InitialWorkers
	r.EagerMatch = c.Dispatch.EagerMatch

	if s := c.Storage; s != nil {
		r.Storage.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
		r.Storage.Path = strings.TrimSpace(s.Path)
		switch r.Storage.Driver {
		case "", "none":
		case "file", "sqlite":
			if r.Storage.Path == "" {
				errs = append(errs, fmt.Errorf("storage.path: required for driver %q", r.Storage.Driver))
			}
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", s.Driver))
		}
		if r.Storage.BusyTimeout, err = durationOrDefault("storage.busy_timeout", s.BusyTimeout, 5*time.Second); err != nil {
			errs = append(errs, err)
		}
	}

	if t := c.Telegram; t != nil && t.Enabled {
		r.Telegram = TelegramSettings{
			Enabled:      true,
			Token:        strings.TrimSpace(t.Token),
			OwnerUserIDs: append([]int64(nil), t.OwnerUserIDs...),
			RatePerSec:   t.RatePerSec,
		}
		if r.Telegram.Token == "" {
			errs = append(errs, errors.New("telegram.token: required when telegram is enabled"))
		}
		if len(r.Telegram.OwnerUserIDs) == 0 {
			errs = append(errs, errors.New("telegram.owner_user_ids: at least one owner is required"))
		}
		if t.RatePerSec < 0 {
			errs = append(errs, errors.New("telegram.rate_per_sec: must be >= 0"))
		}
		if r.Telegram.PollTimeout, err = durationOrDefault("telegram.poll_timeout", t.PollTimeout, 10*time.Second); err != nil {
			errs = append(errs, err)
		}
	}

	if r.UIRefresh, err = durationOrDefault("ui.refresh_interval", c.UI.RefreshInterval, 250*time.Millisecond); err != nil {
		errs = append(errs, err)
	}

	if c.Debug.Enabled {
		r.Debug = DebugSettings{Enabled: true, Addr: strings.TrimSpace(c.Debug.Addr), AllowRemote: c.Debug.AllowRemote}
		if r.Debug.Addr == "" {
			r.Debug.Addr = "127.0.0.1:6060"
		}
		if _, _, err := net.SplitHostPort(r.Debug.Addr); err != nil {
			errs = append(errs, fmt.Errorf("debug.addr: %w", err))
		}
	}

	return r, errors.Join(errs...)
}

// durationOrDefault parses a Go duration string; empty or "0s" yields def.
func durationOrDefault(key, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: must be >= 0", key)
	case d == 0:
		return def, nil
	}
	return d, nil
}
