package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/google/uuid"

	"orderbot/internal/clock"
	"orderbot/internal/config"
	"orderbot/internal/dispatch"
	"orderbot/internal/eventbus"
	"orderbot/internal/observability/debug"
	rtsup "orderbot/internal/runtime/supervisor"
	"orderbot/internal/storage"
	"orderbot/internal/ticker"
	kit "orderbot/internal/transport"
	telegram "orderbot/internal/transport/telegram/adapter"
	"orderbot/internal/transport/telegram/router"
	logx "orderbot/pkg/logx"
)

type Options struct {
	ConfigPath string
	// Quiet turns the console log sink off; the TUI owns the terminal.
	Quiet bool
	// Clock defaults to the wall clock.
	Clock clock.Clock
}

type App struct {
	opts  Options
	runID string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store  storage.Store
	sched  *dispatch.Scheduler
	ticker *ticker.Service

	debug *debug.Server

	adapter *telegram.Adapter
	router  *router.Router
	updates chan kit.Update

	mu  sync.RWMutex
	res config.Resolved

	stopOnce sync.Once
}

func New(opts Options) (*App, error) {
	boot := logx.NewConsole("INFO")
	if opts.Quiet {
		boot = logx.Nop()
	}
	cfgm := config.NewManager(opts.ConfigPath, boot.With(logx.Comp("config")))
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	res, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(loggingConfig(res, opts.Quiet))
	cfgm.SetLogger(log.With(logx.Comp("config")))

	a := &App{
		opts:  opts,
		runID: uuid.New().String(),
		cfgm:  cfgm,
		log:   log.With(logx.Comp("app")),
		logs:  logs,
		bus:   eventbus.New(),
		res:   res,
	}

	a.store, err = storage.Open(storage.Config{
		Driver:      res.Storage.Driver,
		Path:        res.Storage.Path,
		BusyTimeout: res.Storage.BusyTimeout,
	}, log.With(logx.Comp("storage")))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	a.sched = dispatch.New(schedulerConfig(res), clk, log.With(logx.Comp("dispatch")), a.bus)
	a.ticker = ticker.New(res.TickInterval, a.sched, log.With(logx.Comp("ticker")))
	a.debug = debug.New(debugConfig(res), a.sched.Snapshot, log.With(logx.Comp("debug")))

	if res.Telegram.Enabled {
		a.adapter, err = telegram.New(telegram.Config{
			Token:       res.Telegram.Token,
			PollTimeout: res.Telegram.PollTimeout,
		}, log.With(logx.Comp("telegram")))
		if err != nil {
			a.closeStore()
			_ = logs.Close()
			return nil, err
		}
		var history router.HistoryFunc
		if a.store != nil {
			history = a.History
		}
		a.router = router.New(a.adapter, a.sched, history, routerConfig(res), log.With(logx.Comp("router")))
	}
	return a, nil
}

func loggingConfig(res config.Resolved, quiet bool) logx.Config {
	lc := res.Logging
	if quiet {
		lc.Console = false
	}
	return lc
}

func schedulerConfig(res config.Resolved) dispatch.Config {
	return dispatch.Config{ProcessingTime: res.ProcessingTime, EagerMatch: res.EagerMatch}
}

func debugConfig(res config.Resolved) debug.Config {
	return debug.Config{Enabled: res.Debug.Enabled, Addr: res.Debug.Addr, AllowRemote: res.Debug.AllowRemote}
}

func routerConfig(res config.Resolved) router.Config {
	return router.Config{
		OwnerUserIDs: res.Telegram.OwnerUserIDs,
		RatePerSec:   res.Telegram.RatePerSec,
		Timeout:      10 * time.Second,
	}
}

func (a *App) Scheduler() *dispatch.Scheduler { return a.sched }
func (a *App) RunID() string                  { return a.runID }
func (a *App) Logger() logx.Logger            { return a.log }

// Config returns the currently applied settings.
func (a *App) Config() config.Resolved {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.res
}

// History returns the n most recent journal entries of this run.
func (a *App) History(ctx context.Context, n int) ([]storage.Entry, error) {
	if a.store == nil {
		return nil, errors.New("journal disabled")
	}
	return a.store.Recent(ctx, a.runID, n)
}

// Done is closed when the app context ends, either from the parent or a fatal
// error. It is nil before Start.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		return nil
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log.With(logx.Comp("supervisor"))), rtsup.WithCancelOnError(true))
	res := a.Config()

	a.log.Info("starting",
		logx.RunID(a.runID),
		logx.String("config", a.cfgm.Path()),
		logx.Duration("tick_interval", res.TickInterval),
		logx.Duration("processing_time", res.ProcessingTime),
		logx.String("storage", res.Storage.Driver),
		logx.Bool("telegram", a.adapter != nil),
	)

	// Subscribe before seeding so the journal sees the initial workers.
	if a.store != nil {
		in, unsub := a.bus.Subscribe(journalBuffer)
		j := &journal{runID: a.runID, store: a.store, log: a.log.With(logx.Comp("journal"))}
		a.sup.Go("journal", func(c context.Context) error {
			defer unsub()
			return j.run(c, in)
		})
	}

	for range res.InitialWorkers {
		a.sched.AddWorker()
	}
	a.ticker.Start(a.sup.Context())
	if err := a.debug.Start(a.sup.Context()); err != nil {
		a.log.Warn("debug server not started", logx.Err(err))
	}

	if a.adapter != nil {
		a.updates = make(chan kit.Update, 64)
		if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
			return a.abortStart(fmt.Errorf("start telegram: %w", err))
		}
		a.sup.Go("router", func(c context.Context) error { return a.router.Run(c, a.updates) })
	}

	reloads := a.cfgm.Subscribe()
	a.sup.Go0("config.reload", func(c context.Context) {
		for {
			select {
			case <-c.Done():
				return
			case cfg := <-reloads:
				a.applyConfig(cfg)
			}
		}
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch, 500*time.Millisecond, 30*time.Second)

	a.sup.Go0("sd.status", func(c context.Context) {
		t := time.NewTicker(10 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-t.C:
				snap := a.sched.Snapshot()
				sdNotify(a.log, sdStatus(len(snap.Workers), len(snap.Pending)))
			}
		}
	})

	sdNotify(a.log, daemon.SdNotifyReady)
	a.log.Info("started", logx.Int("workers", res.InitialWorkers))
	return nil
}

// abortStart unwinds whatever Start already launched and returns err.
func (a *App) abortStart(err error) error {
	a.log.Error("start failed", logx.Err(err))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.Stop(ctx, StopFatalError)
	return err
}

// applyConfig pushes a reloaded config into the running components.
// Storage and telegram settings are read once at startup.
func (a *App) applyConfig(cfg *config.Config) {
	res, err := cfg.Resolve()
	if err != nil {
		a.log.Warn("config reload rejected", logx.Err(err))
		return
	}
	a.mu.Lock()
	old := a.res
	a.res = res
	a.mu.Unlock()

	a.logs.Apply(loggingConfig(res, a.opts.Quiet))
	a.sched.Apply(schedulerConfig(res))
	a.ticker.Apply(res.TickInterval)
	if a.router != nil {
		a.router.Apply(routerConfig(res))
	}
	if err := a.debug.Reconfigure(a.runCtx(), debugConfig(res)); err != nil {
		a.log.Warn("debug server reconfigure failed", logx.Err(err))
	}

	if old.Storage != res.Storage {
		a.log.Warn("storage settings changed; restart to apply")
	}
	if old.Telegram.Enabled != res.Telegram.Enabled || old.Telegram.Token != res.Telegram.Token || old.Telegram.PollTimeout != res.Telegram.PollTimeout {
		a.log.Warn("telegram settings changed; restart to apply")
	}
	if old.InitialWorkers != res.InitialWorkers {
		a.log.Debug("initial_workers only applies at startup")
	}
	if !slices.Equal(old.Telegram.OwnerUserIDs, res.Telegram.OwnerUserIDs) {
		a.log.Info("telegram owners updated", logx.Int("count", len(res.Telegram.OwnerUserIDs)))
	}
}

func (a *App) runCtx() context.Context {
	if a.sup == nil {
		return context.Background()
	}
	return a.sup.Context()
}

func (a *App) closeStore() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close failed", logx.Err(err))
	}
}

// Stop shuts components down in dependency order. Each step is bounded so a
// stuck component cannot stall the rest. Safe to call more than once.
func (a *App) Stop(ctx context.Context, reason StopReason) {
	a.stopOnce.Do(func() { a.stop(ctx, reason) })
}

func (a *App) stop(ctx context.Context, reason StopReason) {
	if reason == "" {
		reason = StopUnknown
	}
	sdNotify(a.log, daemon.SdNotifyStopping)
	a.log.Info("stopping", logx.String("reason", string(reason)))

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	// Stop the tick first so nothing new is dispatched while the rest unwinds.
	step("ticker", 2*time.Second, func(c context.Context) error { a.ticker.Stop(c); return nil })
	step("debug", 2*time.Second, a.debug.Stop)
	if a.adapter != nil {
		step("telegram", 3*time.Second, a.adapter.Stop)
	}
	if a.sup != nil {
		a.sup.Cancel()
		step("supervisor", 3*time.Second, func(c context.Context) error {
			err := a.sup.Wait(c)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	step("storage", 2*time.Second, func(context.Context) error { a.closeStore(); return nil })

	st := a.sched.Stats()
	a.log.Info("stopped",
		logx.String("reason", string(reason)),
		logx.Uint64("submitted", st.Submitted),
		logx.Uint64("completed", st.Completed),
		logx.Uint64("requeued", st.Requeued),
	)
	_ = a.logs.Close()
}
