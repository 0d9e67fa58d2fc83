package config

import (
	"slices"

	logx "orderbot/pkg/logx"
)

// Summarize lists the sections that differ between two configs plus log
// fields describing the new values. The telegram token is never logged.
func Summarize(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		fields  []logx.Field
	)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Dispatch != newCfg.Dispatch {
		changed = append(changed, "dispatch")
		fields = append(fields,
			logx.String("dispatch.tick_interval", newCfg.Dispatch.TickInterval),
			logx.String("dispatch.processing_time", newCfg.Dispatch.ProcessingTime),
			logx.Bool("dispatch.eager_match", newCfg.Dispatch.EagerMatch),
		)
		if oldCfg.Dispatch.InitialWorkers != newCfg.Dispatch.InitialWorkers {
			fields = append(fields, logx.String("dispatch.initial_workers", "applies on restart"))
		}
	}

	oldSt, newSt := derefStorage(oldCfg.Storage), derefStorage(newCfg.Storage)
	if oldSt != newSt {
		changed = append(changed, "storage")
		fields = append(fields,
			logx.String("storage.driver", newSt.Driver),
			logx.String("storage.path", newSt.Path),
			logx.String("storage.note", "applies on restart"),
		)
	}

	oldTg, newTg := derefTelegram(oldCfg.Telegram), derefTelegram(newCfg.Telegram)
	if oldTg.Enabled != newTg.Enabled ||
		oldTg.PollTimeout != newTg.PollTimeout ||
		oldTg.RatePerSec != newTg.RatePerSec ||
		oldTg.Token != newTg.Token ||
		!slices.Equal(oldTg.OwnerUserIDs, newTg.OwnerUserIDs) {
		changed = append(changed, "telegram")
		fields = append(fields,
			logx.Bool("telegram.enabled", newTg.Enabled),
			logx.Int("telegram.owner_count", len(newTg.OwnerUserIDs)),
			logx.Int("telegram.rate_per_sec", newTg.RatePerSec),
			logx.Bool("telegram.token_changed", oldTg.Token != newTg.Token),
		)
	}

	if oldCfg.UI != newCfg.UI {
		changed = append(changed, "ui")
		fields = append(fields, logx.String("ui.refresh_interval", newCfg.UI.RefreshInterval))
	}
	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		fields = append(fields,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", newCfg.Debug.Addr),
		)
	}
	return changed, fields
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}

func derefTelegram(t *TelegramConfig) TelegramConfig {
	if t == nil {
		return TelegramConfig{}
	}
	return *t
}
