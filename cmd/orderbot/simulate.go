package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"orderbot/internal/clock"
	"orderbot/internal/dispatch"
	logx "orderbot/pkg/logx"
)

type simOptions struct {
	Normal     int
	VIP        int
	Workers    int
	Steps      int
	Processing time.Duration
	Script     string
	Verify     bool
	LogLevel   string
}

// simOp is one script token: n, v, +, -, or t[N] (advance N seconds and tick).
type simOp struct {
	kind  byte
	count int
}

func parseScript(script string) ([]simOp, error) {
	fields := strings.FieldsFunc(script, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' || r == '\n' })
	ops := make([]simOp, 0, len(fields))
	for _, f := range fields {
		switch f {
		case "n", "v", "+", "-":
			ops = append(ops, simOp{kind: f[0], count: 1})
			continue
		}
		if f[0] != 't' {
			return nil, fmt.Errorf("unknown script op %q (want n, v, +, -, tN)", f)
		}
		n := 1
		if len(f) > 1 {
			v, err := strconv.Atoi(f[1:])
			if err != nil || v < 1 {
				return nil, fmt.Errorf("bad tick count in %q", f)
			}
			n = v
		}
		ops = append(ops, simOp{kind: 't', count: n})
	}
	return ops, nil
}

func defaultScript(o simOptions) []simOp {
	var ops []simOp
	for range o.Workers {
		ops = append(ops, simOp{kind: '+', count: 1})
	}
	for range o.Normal {
		ops = append(ops, simOp{kind: 'n', count: 1})
	}
	for range o.VIP {
		ops = append(ops, simOp{kind: 'v', count: 1})
	}
	for range o.Steps {
		ops = append(ops, simOp{kind: 't', count: 1})
	}
	return ops
}

func orderTags(orders []dispatch.Order, withWorker bool) string {
	parts := make([]string, 0, len(orders))
	for _, o := range orders {
		s := "#" + strconv.Itoa(o.ID)
		if o.Class == dispatch.ClassVIP {
			s += "*"
		}
		if withWorker {
			s += "@" + strconv.Itoa(o.WorkerID)
		}
		parts = append(parts, s)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func workerTags(workers []dispatch.Worker) string {
	parts := make([]string, 0, len(workers))
	for _, w := range workers {
		if w.Status == dispatch.WorkerBusy {
			parts = append(parts, fmt.Sprintf("%d:#%d", w.ID, w.OrderID))
		} else {
			parts = append(parts, fmt.Sprintf("%d:idle", w.ID))
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func printSnapshot(w io.Writer, start time.Time, label string, s dispatch.Snapshot) {
	fmt.Fprintf(w, "t=%3ds %-6s pending=%s processing=%s complete=%s bots=%s\n",
		int(s.Now.Sub(start)/time.Second), label,
		orderTags(s.Pending, false), orderTags(s.Processing, true), orderTags(s.Complete, false), workerTags(s.Workers))
}

// simulate runs ops against a scheduler on a manual clock, one line per op.
func simulate(w io.Writer, o simOptions, ops []simOp) (dispatch.Stats, error) {
	start := time.Unix(0, 0).UTC()
	clk := clock.NewManual(start)
	log := logx.Nop()
	if o.LogLevel != "" {
		log = logx.NewWriter(w, o.LogLevel)
	}
	s := dispatch.New(dispatch.Config{ProcessingTime: o.Processing}, clk, log, nil)

	check := func(label string) error {
		if !o.Verify {
			return nil
		}
		if err := s.Verify(); err != nil {
			return fmt.Errorf("after %s at t=%s: %w", label, clk.Now().Sub(start), err)
		}
		return nil
	}

	for _, op := range ops {
		var label string
		switch op.kind {
		case 'n':
			id, err := s.SubmitOrder(dispatch.ClassNormal)
			if err != nil {
				return s.Stats(), err
			}
			label = "+N#" + strconv.Itoa(id)
		case 'v':
			id, err := s.SubmitOrder(dispatch.ClassVIP)
			if err != nil {
				return s.Stats(), err
			}
			label = "+V#" + strconv.Itoa(id)
		case '+':
			label = "+bot" + strconv.Itoa(s.AddWorker())
		case '-':
			id, err := s.RemoveWorker()
			if err != nil {
				fmt.Fprintf(w, "t=%3ds -bot   %v\n", int(clk.Now().Sub(start)/time.Second), err)
				continue
			}
			label = "-bot" + strconv.Itoa(id)
		case 't':
			for i := range op.count {
				clk.Advance(time.Second)
				if err := check("completions"); err != nil {
					return s.Stats(), err
				}
				s.Tick()
				if err := check("tick"); err != nil {
					return s.Stats(), err
				}
				if i < op.count-1 {
					printSnapshot(w, start, "tick", s.Snapshot())
				}
			}
			label = "tick"
		}
		if err := check(label); err != nil {
			return s.Stats(), err
		}
		printSnapshot(w, start, label, s.Snapshot())
	}

	st := s.Stats()
	fmt.Fprintf(w, "submitted=%d dispatched=%d completed=%d requeued=%d stale=%d\n",
		st.Submitted, st.Dispatched, st.Completed, st.Requeued, st.StaleCallbacks)
	return st, nil
}

func SimulateCmd() *cobra.Command {
	var o simOptions
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a deterministic script on a manual clock and print each step",
		Example: `  orderbot simulate --workers 1 --normal 2 --vip 1 --steps 12
  orderbot simulate --script "+ n n v t3 - t12" --verify`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ops := defaultScript(o)
			if o.Script != "" {
				var err error
				if ops, err = parseScript(o.Script); err != nil {
					return err
				}
			}
			_, err := simulate(cmd.OutOrStdout(), o, ops)
			return err
		},
	}
	f := cmd.Flags()
	f.IntVar(&o.Normal, "normal", 2, "normal orders to submit")
	f.IntVar(&o.VIP, "vip", 1, "VIP orders to submit")
	f.IntVar(&o.Workers, "workers", 1, "bots to add before submitting")
	f.IntVar(&o.Steps, "steps", 30, "one-second ticks to run")
	f.DurationVar(&o.Processing, "processing", dispatch.DefaultProcessingTime, "processing time per order")
	f.StringVar(&o.Script, "script", "", `ops separated by spaces or commas: n, v, +, -, tN (overrides counts)`)
	f.BoolVar(&o.Verify, "verify", false, "check scheduler invariants after every step")
	f.StringVar(&o.LogLevel, "log-level", "", "emit scheduler logs as JSON at this level")
	return cmd
}
