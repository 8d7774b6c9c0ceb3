package app

import (
	"github.com/samirtelegrambot/ACMProBot/internal/config"
	"github.com/samirtelegrambot/ACMProBot/internal/history"
	"github.com/samirtelegrambot/ACMProBot/internal/notify"
	"github.com/samirtelegrambot/ACMProBot/internal/schedule"
	"github.com/samirtelegrambot/ACMProBot/pkg/logx"
)

// Mapping helpers between the file config and per-service configs.
// Durations were already validated by config.Validate, so parse errors
// here only happen on the boot path where they are returned as-is.

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapHistory(cfg *config.Config) (history.Config, error) {
	if cfg.History == nil {
		return history.Config{}, nil
	}
	busy, err := config.ParseDurationField("history.busy_timeout", cfg.History.BusyTimeout)
	if err != nil {
		return history.Config{}, err
	}
	return history.Config{
		Driver:      cfg.History.Driver,
		Path:        cfg.History.Path,
		BusyTimeout: busy,
	}, nil
}

func mapScheduler(cfg *config.Config) (schedule.Config, error) {
	tick, err := cfg.Scheduler.TickDuration()
	if err != nil {
		return schedule.Config{}, err
	}
	grace, err := cfg.Scheduler.GraceDuration()
	if err != nil {
		return schedule.Config{}, err
	}
	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return schedule.Config{}, err
	}
	return schedule.Config{
		Enabled: cfg.Scheduler.Enabled,
		Tick:    tick,
		Grace:   grace,
		Loc:     loc,
	}, nil
}

// mapNotifier treats an omitted notifier section as enabled with
// defaults: job outcome notices are part of the product, not an add-on.
func mapNotifier(cfg *config.Config) notify.Config {
	if cfg.Notifier == nil {
		return notify.Config{Enabled: true}
	}
	retryBase, err := config.ParseDurationField("notifier.retry_base", cfg.Notifier.RetryBase)
	if err != nil {
		retryBase = 0
	}
	return notify.Config{
		Enabled:    cfg.Notifier.Enabled,
		QueueSize:  cfg.Notifier.QueueSize,
		RatePerSec: cfg.Notifier.RatePerSec,
		RetryMax:   cfg.Notifier.RetryMax,
		RetryBase:  retryBase,
	}
}
