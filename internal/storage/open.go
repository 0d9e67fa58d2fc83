package storage

import (
	"context"
	"fmt"
	"strings"

	logx "orderbot/pkg/logx"
)

// Store is the journal API used by the app.
type Store interface {
	Append(ctx context.Context, entries ...Entry) error
	// Recent returns up to n entries, oldest first. An empty runID matches every run.
	Recent(ctx context.Context, runID string, n int) ([]Entry, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
