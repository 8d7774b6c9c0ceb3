// Package app wires the services together and owns their lifecycle:
// config, logging, state store, history archive, dispatcher, scheduler,
// notifier, and the bot surface on top.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	telegram "github.com/samirtelegrambot/ACMProBot/internal/adapters/telegram"
	"github.com/samirtelegrambot/ACMProBot/internal/bot"
	"github.com/samirtelegrambot/ACMProBot/internal/config"
	"github.com/samirtelegrambot/ACMProBot/internal/dispatch"
	"github.com/samirtelegrambot/ACMProBot/internal/eventbus"
	"github.com/samirtelegrambot/ACMProBot/internal/history"
	"github.com/samirtelegrambot/ACMProBot/internal/notify"
	"github.com/samirtelegrambot/ACMProBot/internal/runtime/supervisor"
	"github.com/samirtelegrambot/ACMProBot/internal/schedule"
	"github.com/samirtelegrambot/ACMProBot/internal/state"
	"github.com/samirtelegrambot/ACMProBot/internal/transport"
	"github.com/samirtelegrambot/ACMProBot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   *state.Store
	archive history.Store // nil when disabled

	adapter *telegram.Adapter
	disp    *dispatch.Service
	sched   *schedule.Service
	notif   *notify.Service
	bot     *bot.Bot
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// The telegram log sink needs the adapter, and the adapter needs a
	// logger. Bootstrap with the sink disabled, wire the adapter, then
	// apply the real logging config.
	bootCfg := mapLogging(cfg)
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg)
	log = log.With(logx.String("comp", "app"))

	pollTimeout, err := cfg.Telegram.PollDuration()
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logSvc.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}
	logSvc.SetSender(adapter)
	logSvc.SetTelegramTarget(transport.ChatTarget{ID: cfg.OwnerID})
	logSvc.Apply(mapLogging(cfg))

	bus := eventbus.New()

	store, err := state.Open(cfg.State.PathOrDefault(), cfg.OwnerID,
		logSvc.Logger().With(logx.String("comp", "state")), bus)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	histCfg, err := mapHistory(cfg)
	if err != nil {
		return nil, err
	}
	archive, err := history.Open(histCfg, logSvc.Logger().With(logx.String("comp", "history")))
	if err != nil {
		return nil, fmt.Errorf("open history archive: %w", err)
	}
	if archive != nil {
		log.Info("history archive enabled", logx.String("driver", histCfg.Driver))
	}

	disp := dispatch.New(dispatch.Config{MessagesPerSec: cfg.Dispatch.Rate()},
		adapter, store, archive, bus, logSvc.Logger().With(logx.String("comp", "dispatch")))

	schedCfg, err := mapScheduler(cfg)
	if err != nil {
		return nil, err
	}
	sched := schedule.New(schedCfg, store, disp, bus,
		logSvc.Logger().With(logx.String("comp", "schedule")))

	notif := notify.New(mapNotifier(cfg), adapter, store, bus,
		logSvc.Logger().With(logx.String("comp", "notify")))

	b := bot.New(bot.Config{DownloadMaxBytes: cfg.Telegram.DownloadMaxBytes},
		adapter, store, disp, sched, archive,
		logSvc.Logger().With(logx.String("comp", "bot")))

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		archive: archive,
		adapter: adapter,
		disp:    disp,
		sched:   sched,
		notif:   notif,
		bot:     b,
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal
// error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// Transactional config reload: a config that fails validation is
	// never committed or published.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return cfg.Validate()
	})

	a.notif.Start(a.sup.Context())
	if a.sched.Enabled() {
		a.sched.Start(a.sup.Context())
	}
	if err := a.bot.Start(a.sup.Context()); err != nil {
		return err
	}

	// Debug visibility into bus traffic; consumers subscribe themselves.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})

	// The watcher restarts with backoff: a lost inotify descriptor should
	// not take config hot-reload down for the rest of the run.
	a.sup.GoRestart("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.notifySystemd()

	a.log.Info("app started")
	return nil
}

// reloadLoop applies committed config updates to the running services.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: only the newest config matters.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyReload(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyReload(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, no effective changes")
		return
	}

	for _, s := range sections {
		switch s {
		case "state", "history", "telegram":
			a.log.Warn("section needs a restart to take effect", logx.String("section", s))
		}
	}

	a.logs.SetTelegramTarget(transport.ChatTarget{ID: newCfg.OwnerID})
	a.logs.Apply(mapLogging(newCfg))

	a.disp.Apply(dispatch.Config{MessagesPerSec: newCfg.Dispatch.Rate()})

	if schedCfg, err := mapScheduler(newCfg); err != nil {
		a.log.Warn("invalid scheduler config, keeping previous", logx.Err(err))
	} else {
		prev := a.sched.Enabled()
		a.sched.Apply(schedCfg)
		switch {
		case prev && !schedCfg.Enabled:
			a.log.Info("scheduler disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.sched.Stop(stopCtx)
			cancel()
		case !prev && schedCfg.Enabled:
			a.log.Info("scheduler enabled via config")
			a.sched.Start(ctx)
		}
	}

	ncfg := mapNotifier(newCfg)
	prevNotif := mapNotifier(oldCfg).Enabled
	a.notif.Apply(ncfg)
	switch {
	case prevNotif && !ncfg.Enabled:
		a.log.Info("notifier disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.notif.Stop(stopCtx)
		cancel()
	case !prevNotif && ncfg.Enabled:
		a.log.Info("notifier enabled via config")
		a.notif.Start(ctx)
	}

	a.bus.Publish(eventbus.Event{
		Type: eventbus.TypeConfigUpdate,
		Data: sections,
	})

	fields := append([]logx.Field{logx.Any("changed", sections)}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.log.Info("stopping")

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	a.step(ctx, "bot", 3*time.Second, func(c context.Context) error { return a.bot.Stop(c) })
	a.step(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	a.step(ctx, "history", 1*time.Second, func(c context.Context) error {
		if a.archive != nil {
			return a.archive.Close()
		}
		return nil
	})
	a.step(ctx, "state", 1*time.Second, func(c context.Context) error { return a.store.Close() })
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	a.logs.Close()
	return nil
}

// step runs one shutdown phase under its own deadline so a stalled
// component can't hold the whole stop hostage.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()

	stepCtx := ctx
	var cancel context.CancelFunc
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max > 0 {
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
		// The step must honor its context. If it doesn't, note the leak
		// and observe when (or whether) it eventually finishes.
		a.log.Warn("stop step deadline reached, continuing",
			logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		go func() {
			err := <-done
			if err != nil {
				a.log.Warn("stop step finished after deadline",
					logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
			}
		}()
	}
}

// notifySystemd reports readiness and keeps the watchdog fed when the
// process runs as a Type=notify unit. Both are no-ops elsewhere.
func (a *App) notifySystemd() {
	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify: ready")
	}

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
}
