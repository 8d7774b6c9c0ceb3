package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`

	// OwnerID is the Telegram user id of the bot owner. The owner is
	// always an admin and is the default target for operator notices
	// and the telegram log sink.
	OwnerID string `json:"owner_id"`

	Logging LoggingConfig `json:"logging"`

	State     StateConfig     `json:"state"`
	History   *HistoryConfig  `json:"history,omitempty"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Notifier  *NotifierConfig `json:"notifier,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	// DownloadMaxBytes caps media downloads fetched through the bot API.
	DownloadMaxBytes int64 `json:"download_max_bytes,omitempty"`
}

func (t TelegramConfig) PollDuration() (time.Duration, error) {
	return ParseDurationOrDefault("telegram.poll_timeout", t.PollTimeout, 10*time.Second)
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram mirrors log records above MinLevel to the owner chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StateConfig locates the persistent bot document.
type StateConfig struct {
	Path string `json:"path"`
}

func (s StateConfig) PathOrDefault() string {
	if p := strings.TrimSpace(s.Path); p != "" {
		return p
	}
	return "./data/state.json"
}

// HistoryConfig controls the optional dispatch report archive.
//
// Example:
//
//	"history": { "driver": "sqlite", "path": "./data/history.db" }
type HistoryConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// SchedulerConfig controls the scheduled-post sweep.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
	// Tick is the sweep interval (Go duration string). Default "60s".
	Tick string `json:"tick,omitempty"`
	// Grace is how far past its time a job may run before expiring
	// unexecuted. Default "1h".
	Grace string `json:"grace,omitempty"`
	// Timezone interprets schedule times without an explicit zone.
	Timezone string `json:"timezone,omitempty"`
}

func (s SchedulerConfig) TickDuration() (time.Duration, error) {
	return ParseDurationOrDefault("scheduler.tick", s.Tick, time.Minute)
}

func (s SchedulerConfig) GraceDuration() (time.Duration, error) {
	return ParseDurationOrDefault("scheduler.grace", s.Grace, time.Hour)
}

func (s SchedulerConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(s.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}
	return loc, nil
}

// DispatchConfig controls outbound send pacing.
type DispatchConfig struct {
	// MessagesPerSec is the global send rate cap. Default 4.
	MessagesPerSec float64 `json:"messages_per_sec,omitempty"`
}

func (d DispatchConfig) Rate() float64 {
	if d.MessagesPerSec > 0 {
		return d.MessagesPerSec
	}
	return 4
}

// NotifierConfig controls the operator notice pipeline.
// If the whole section is omitted, the notifier defaults to enabled=true.
type NotifierConfig struct {
	Enabled    bool   `json:"enabled"`
	QueueSize  int    `json:"queue_size"`
	RatePerSec int    `json:"rate_per_sec"`
	RetryMax   int    `json:"retry_max"`
	RetryBase  string `json:"retry_base"`
}

// Validate rejects configs the process cannot start with. Durations and
// the timezone are parsed here so a broken reload never reaches the
// running services.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required (or set BOT_TOKEN)")
	}
	if err := validOwnerID(c.OwnerID); err != nil {
		return err
	}
	if _, err := c.Telegram.PollDuration(); err != nil {
		return err
	}
	if _, err := c.Scheduler.TickDuration(); err != nil {
		return err
	}
	if _, err := c.Scheduler.GraceDuration(); err != nil {
		return err
	}
	if _, err := c.Scheduler.Location(); err != nil {
		return err
	}
	if c.History != nil {
		switch strings.TrimSpace(strings.ToLower(c.History.Driver)) {
		case "", "none", "file", "sqlite":
		default:
			return fmt.Errorf("history.driver: unknown driver %q", c.History.Driver)
		}
		if _, err := ParseDurationField("history.busy_timeout", c.History.BusyTimeout); err != nil {
			return err
		}
	}
	if c.Notifier != nil {
		if _, err := ParseDurationField("notifier.retry_base", c.Notifier.RetryBase); err != nil {
			return err
		}
	}
	return nil
}

func validOwnerID(raw string) error {
	s := strings.TrimSpace(raw)
	if s == "" {
		return fmt.Errorf("owner_id is required (or set OWNER_ID)")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return fmt.Errorf("owner_id: must be a numeric Telegram user id")
		}
	}
	return nil
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
