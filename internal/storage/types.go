package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures the journal backend. An empty Driver or "none" disables it.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only
}

// Entry is one journal record. RunID ties entries to a single process run.
type Entry struct {
	At       time.Time `json:"at"`
	RunID    string    `json:"run_id"`
	Type     string    `json:"type"`
	OrderID  int       `json:"order_id,omitempty"`
	WorkerID int       `json:"worker_id,omitempty"`
	Class    string    `json:"class,omitempty"`
	Status   string    `json:"status,omitempty"`
	Attempts int       `json:"attempts,omitempty"`
	Reason   string    `json:"reason,omitempty"`
}
