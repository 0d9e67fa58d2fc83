// Package router turns chat messages into scheduler commands.
package router

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	"orderbot/internal/dispatch"
	"orderbot/internal/storage"
	kit "orderbot/internal/transport"
	logx "orderbot/pkg/logx"
)

// Dispatcher is the part of the scheduler the router drives.
type Dispatcher interface {
	SubmitOrder(class dispatch.Class) (int, error)
	AddWorker() int
	RemoveWorker() (int, error)
	Snapshot() dispatch.Snapshot
}

// HistoryFunc returns the n most recent journal entries of the current run.
type HistoryFunc func(ctx context.Context, n int) ([]storage.Entry, error)

type Config struct {
	OwnerUserIDs []int64
	RatePerSec   int
	Timeout      time.Duration
}

type Command struct {
	Name        string
	Aliases     []string
	Usage       string
	Description string
	Handle      HandlerFunc
}

type Request struct {
	Message *kit.Message
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	Logger  logx.Logger

	// Reply is sent back to the chat as HTML after the handler returns.
	Reply string
}

const maxAddWorkers = 20

type Router struct {
	adapter kit.Adapter
	disp    Dispatcher
	history HistoryFunc
	log     logx.Logger

	mu     sync.RWMutex
	cfg    Config
	limits *chatLimiter

	cmds    []*Command
	byName  map[string]*Command
	handler HandlerFunc
}

func New(adapter kit.Adapter, disp Dispatcher, history HistoryFunc, cfg Config, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		adapter: adapter,
		disp:    disp,
		history: history,
		log:     log,
		cfg:     cfg,
		limits:  newChatLimiter(cfg.RatePerSec),
		byName:  map[string]*Command{},
	}
	r.register()
	r.handler = Chain(r.route,
		MWPanicRecover(),
		MWRequestLog(),
		MWOwnerOnly(r.owners),
		MWRateLimit(r.limits),
		MWTimeout(cfg.Timeout),
	)
	return r
}

func (r *Router) owners() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.OwnerUserIDs
}

// Apply updates the owner allowlist and rate limit.
func (r *Router) Apply(cfg Config) {
	r.mu.Lock()
	r.cfg.OwnerUserIDs = append([]int64(nil), cfg.OwnerUserIDs...)
	r.cfg.RatePerSec = cfg.RatePerSec
	r.mu.Unlock()
	r.limits.setRate(cfg.RatePerSec)
}

func (r *Router) add(c *Command) {
	r.cmds = append(r.cmds, c)
	r.byName[c.Name] = c
	for _, a := range c.Aliases {
		r.byName[a] = c
	}
}

func (r *Router) register() {
	r.add(&Command{Name: "help", Aliases: []string{"start"}, Description: "Show available commands", Handle: r.cmdHelp})
	r.add(&Command{Name: "order", Usage: "[normal|vip]", Description: "Submit an order (default normal)", Handle: r.cmdOrder})
	r.add(&Command{Name: "vip", Description: "Submit a VIP order", Handle: r.cmdVIP})
	r.add(&Command{Name: "addbot", Aliases: []string{"add"}, Usage: "[count]", Description: "Add idle bots", Handle: r.cmdAddBot})
	r.add(&Command{Name: "rmbot", Aliases: []string{"rm"}, Description: "Remove the newest bot", Handle: r.cmdRemoveBot})
	r.add(&Command{Name: "status", Description: "Show orders and bots", Handle: r.cmdStatus})
	if r.history != nil {
		r.add(&Command{Name: "history", Usage: "[n]", Description: "Show recent journal entries", Handle: r.cmdHistory})
	}
}

// Commands lists the menu entries.
func (r *Router) Commands() []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(r.cmds))
	for _, c := range r.cmds {
		out = append(out, kit.BotCommand{Command: c.Name, Description: c.Description})
	}
	return out
}

// Run handles updates until in is closed or ctx is done.
func (r *Router) Run(ctx context.Context, in <-chan kit.Update) error {
	if mu, ok := r.adapter.(kit.MenuUpdater); ok {
		if err := mu.UpdateMenuCommands(ctx, r.Commands()); err != nil {
			r.log.Warn("menu update failed", logx.Err(err))
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-in:
			if !ok {
				return nil
			}
			if up.Message != nil {
				r.Handle(ctx, up.Message)
			}
		}
	}
}

// parseCommand splits "/cmd@bot a b" into ("cmd", ["a", "b"]).
func parseCommand(text string) (string, []string, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "", nil, false
	}
	return strings.ToLower(name), fields[1:], true
}

// Handle runs one message through the middleware chain and replies.
func (r *Router) Handle(ctx context.Context, msg *kit.Message) {
	name, args, ok := parseCommand(msg.Text)
	if !ok {
		return
	}
	req := &Request{
		Message: msg,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:  msg.FromID,
		Command: name,
		Args:    args,
		Logger:  r.log.With(logx.String("cmd", name), logx.Int64("from_id", msg.FromID)),
	}
	err := r.handler(ctx, req)
	switch {
	case errors.Is(err, ErrNotOwner):
		return
	case errors.Is(err, ErrRateLimited):
		req.Reply = "⏳ Too many commands, slow down."
	case errors.Is(err, dispatch.ErrInvalidCommand), errors.Is(err, errUnknownCommand):
		req.Reply = "⚠️ " + html.EscapeString(err.Error())
	case err != nil:
		req.Reply = "❌ Command failed."
	}
	if req.Reply == "" {
		return
	}
	if _, err := r.adapter.SendText(ctx, req.Chat, req.Reply, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}); err != nil {
		req.Logger.Warn("reply failed", logx.Err(err))
	}
}

var errUnknownCommand = errors.New("unknown command, try /help")

func (r *Router) route(ctx context.Context, req *Request) error {
	c, ok := r.byName[req.Command]
	if !ok {
		return errUnknownCommand
	}
	return c.Handle(ctx, req)
}

func (r *Router) cmdHelp(_ context.Context, req *Request) error {
	var b strings.Builder
	b.WriteString("<b>Order bot</b>\n")
	for _, c := range r.cmds {
		fmt.Fprintf(&b, "/%s", c.Name)
		if c.Usage != "" {
			fmt.Fprintf(&b, " <code>%s</code>", html.EscapeString(c.Usage))
		}
		fmt.Fprintf(&b, " - %s\n", html.EscapeString(c.Description))
	}
	req.Reply = b.String()
	return nil
}

func (r *Router) submit(req *Request, class dispatch.Class) error {
	id, err := r.disp.SubmitOrder(class)
	if err != nil {
		return err
	}
	req.Reply = fmt.Sprintf("🧾 Order <b>#%d</b> (%s) queued.", id, class)
	return nil
}

func (r *Router) cmdOrder(_ context.Context, req *Request) error {
	class := dispatch.ClassNormal
	if len(req.Args) > 0 {
		c, err := dispatch.ParseClass(req.Args[0])
		if err != nil {
			return err
		}
		class = c
	}
	return r.submit(req, class)
}

func (r *Router) cmdVIP(_ context.Context, req *Request) error {
	return r.submit(req, dispatch.ClassVIP)
}

func (r *Router) cmdAddBot(_ context.Context, req *Request) error {
	n := 1
	if len(req.Args) > 0 {
		v, err := strconv.Atoi(req.Args[0])
		if err != nil || v < 1 || v > maxAddWorkers {
			return fmt.Errorf("%w: count must be 1..%d", dispatch.ErrInvalidCommand, maxAddWorkers)
		}
		n = v
	}
	ids := make([]string, 0, n)
	for range n {
		ids = append(ids, "#"+strconv.Itoa(r.disp.AddWorker()))
	}
	req.Reply = "🤖 Added bot " + strings.Join(ids, ", ") + "."
	return nil
}

func (r *Router) cmdRemoveBot(_ context.Context, req *Request) error {
	id, err := r.disp.RemoveWorker()
	if err != nil {
		return err
	}
	req.Reply = fmt.Sprintf("🗑 Removed bot <b>#%d</b>.", id)
	return nil
}

func (r *Router) cmdStatus(_ context.Context, req *Request) error {
	req.Reply = FormatStatus(r.disp.Snapshot())
	return nil
}

func (r *Router) cmdHistory(ctx context.Context, req *Request) error {
	n := 10
	if len(req.Args) > 0 {
		v, err := strconv.Atoi(req.Args[0])
		if err != nil || v < 1 || v > 100 {
			return fmt.Errorf("%w: n must be 1..100", dispatch.ErrInvalidCommand)
		}
		n = v
	}
	entries, err := r.history(ctx, n)
	if err != nil {
		return err
	}
	req.Reply = FormatHistory(entries)
	return nil
}
