package router

import (
	"fmt"
	"strings"

	"orderbot/internal/dispatch"
	"orderbot/internal/storage"
)

const maxListed = 15

func orderList(orders []dispatch.Order) string {
	if len(orders) == 0 {
		return "-"
	}
	parts := make([]string, 0, min(len(orders), maxListed)+1)
	for i, o := range orders {
		if i == maxListed {
			parts = append(parts, fmt.Sprintf("+%d more", len(orders)-maxListed))
			break
		}
		tag := ""
		if o.Class == dispatch.ClassVIP {
			tag = "★"
		}
		parts = append(parts, fmt.Sprintf("#%d%s", o.ID, tag))
	}
	return strings.Join(parts, " ")
}

// FormatStatus renders a snapshot as Telegram HTML.
func FormatStatus(s dispatch.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>📋 Pending (%d)</b>\n%s\n", len(s.Pending), orderList(s.Pending))
	fmt.Fprintf(&b, "<b>⚙️ Processing (%d)</b>\n%s\n", len(s.Processing), orderList(s.Processing))
	complete := s.Complete
	if len(complete) > maxListed {
		complete = complete[len(complete)-maxListed:]
	}
	fmt.Fprintf(&b, "<b>✅ Complete (%d)</b>\n%s\n", len(s.Complete), orderList(complete))

	fmt.Fprintf(&b, "<b>🤖 Bots (%d)</b>\n", len(s.Workers))
	if len(s.Workers) == 0 {
		b.WriteString("-\n")
	}
	for _, w := range s.Workers {
		if w.Status == dispatch.WorkerBusy {
			fmt.Fprintf(&b, "#%d BUSY → #%d\n", w.ID, w.OrderID)
		} else {
			fmt.Fprintf(&b, "#%d IDLE\n", w.ID)
		}
	}
	fmt.Fprintf(&b, "<i>processing %s · requeued %d · stale %d</i>", s.ProcessingTime, s.Stats.Requeued, s.Stats.StaleCallbacks)
	return b.String()
}

func FormatHistory(entries []storage.Entry) string {
	if len(entries) == 0 {
		return "No journal entries yet."
	}
	var b strings.Builder
	b.WriteString("<b>Recent events</b>\n<pre>")
	for _, e := range entries {
		fmt.Fprintf(&b, "%s %-17s", e.At.Format("15:04:05"), e.Type)
		if e.OrderID != 0 {
			fmt.Fprintf(&b, " order=%d", e.OrderID)
		}
		if e.WorkerID != 0 {
			fmt.Fprintf(&b, " bot=%d", e.WorkerID)
		}
		if e.Reason != "" {
			fmt.Fprintf(&b, " (%s)", e.Reason)
		}
		b.WriteByte('\n')
	}
	b.WriteString("</pre>")
	return b.String()
}
