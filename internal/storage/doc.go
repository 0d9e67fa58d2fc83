// Package storage persists the scheduler event journal.
//
// The journal is write-only from the scheduler's point of view: it is never
// replayed on start, it exists for post-mortem inspection and for the
// "history" command. Two backends are available:
//   - file: JSON Lines, one entry per line
//   - sqlite: a single table in a SQLite database (modernc.org/sqlite, no cgo)
package storage
