package config

import (
	"reflect"
	"sort"
	"strings"

	"github.com/samirtelegrambot/ACMProBot/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections plus
// safe structured attrs for logging (never includes the token).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	// Telegram (never log token)
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		oldCfg.Telegram.DownloadMaxBytes != newCfg.Telegram.DownloadMaxBytes ||
		(strings.TrimSpace(oldCfg.Telegram.Token) != "") != (strings.TrimSpace(newCfg.Telegram.Token) != "") {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Int64("telegram.download_max_bytes", newCfg.Telegram.DownloadMaxBytes),
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
		)
	}

	if strings.TrimSpace(oldCfg.OwnerID) != strings.TrimSpace(newCfg.OwnerID) {
		changed = append(changed, "owner")
		attrs = append(attrs, logx.Bool("owner.set", strings.TrimSpace(newCfg.OwnerID) != ""))
	}

	// Logging
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	// State document location
	if oldCfg.State.PathOrDefault() != newCfg.State.PathOrDefault() {
		changed = append(changed, "state")
		attrs = append(attrs, logx.String("state.path", newCfg.State.PathOrDefault()))
	}

	// History (archive). Nil means disabled.
	var oDriver, nDriver, oBusy, nBusy string
	var oPathSet, nPathSet bool
	if oldCfg.History != nil {
		oDriver = strings.TrimSpace(oldCfg.History.Driver)
		oBusy = strings.TrimSpace(oldCfg.History.BusyTimeout)
		oPathSet = strings.TrimSpace(oldCfg.History.Path) != ""
	}
	if newCfg.History != nil {
		nDriver = strings.TrimSpace(newCfg.History.Driver)
		nBusy = strings.TrimSpace(newCfg.History.BusyTimeout)
		nPathSet = strings.TrimSpace(newCfg.History.Path) != ""
	}
	if oDriver != nDriver || oBusy != nBusy || oPathSet != nPathSet {
		changed = append(changed, "history")
		attrs = append(attrs,
			logx.String("history.driver", nDriver),
			logx.Bool("history.path_set", nPathSet),
			logx.String("history.busy_timeout", nBusy),
		)
	}

	// Scheduler sweep
	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.tick", strings.TrimSpace(newCfg.Scheduler.Tick)),
			logx.String("scheduler.grace", strings.TrimSpace(newCfg.Scheduler.Grace)),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}

	// Dispatch pacing
	if oldCfg.Dispatch.Rate() != newCfg.Dispatch.Rate() {
		changed = append(changed, "dispatch")
		attrs = append(attrs, logx.Any("dispatch.messages_per_sec", newCfg.Dispatch.Rate()))
	}

	// Notifier. Nil means runtime defaults (enabled).
	defN := &NotifierConfig{
		Enabled:    true,
		QueueSize:  64,
		RatePerSec: 1,
		RetryMax:   3,
		RetryBase:  "500ms",
	}
	oldN := oldCfg.Notifier
	newN := newCfg.Notifier
	if oldN == nil {
		oldN = defN
	}
	if newN == nil {
		newN = defN
	}
	if !reflect.DeepEqual(*oldN, *newN) {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Bool("notifier.enabled", newN.Enabled),
			logx.Int("notifier.queue_size", newN.QueueSize),
			logx.Int("notifier.rate_per_sec", newN.RatePerSec),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
