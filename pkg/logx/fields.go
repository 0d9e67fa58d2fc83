package logx

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Field writes one key/value onto an event. Later fields win on duplicate keys.
type Field func(e *zerolog.Event)

func String(k, v string) Field { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field { return func(e *zerolog.Event) { e.Int(k, v) } }
func Int64(k string, v int64) Field { return func(e *zerolog.Event) { e.Int64(k, v) } }
func Uint64(k string, v uint64) Field { return func(e *zerolog.Event) { e.Uint64(k, v) } }
func Bool(k string, v bool) Field { return func(e *zerolog.Event) { e.Bool(k, v) } }
func Duration(k string, v time.Duration) Field { return func(e *zerolog.Event) { e.Dur(k, v) } }
func Any(k string, v any) Field { return func(e *zerolog.Event) { e.Interface(k, v) } }

// Err records err under the error key; a nil error adds nothing.
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Domain keys. Every component logs orders and bots under the same names so
// a single grep follows one order through dispatch, journal and chat.
const (
	KeyComp   = "comp"
	KeyOrder  = "order"
	KeyWorker = "worker"
	KeyClass  = "class"
	KeyRunID  = "run_id"
)

// Comp tags a derived logger with its component name.
func Comp(name string) Field { return String(KeyComp, name) }

func Order(id int) Field { return Int(KeyOrder, id) }
func Worker(id int) Field { return Int(KeyWorker, id) }
func RunID(id string) Field { return String(KeyRunID, id) }

// Class logs an order class by its display name.
func Class(c fmt.Stringer) Field {
	return func(e *zerolog.Event) { e.Stringer(KeyClass, c) }
}
