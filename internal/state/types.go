// Package state owns the bot's single durable document: admins,
// channels, delivery settings, scheduled posts, and usage counters.
// All reads and writes go through Store; nothing else touches the file.
package state

import (
	"encoding/json"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/samirtelegrambot/ACMProBot/internal/batch"
)

type ChannelType string

const (
	ChannelPrivate    ChannelType = "private"
	ChannelPublic     ChannelType = "public"
	ChannelSupergroup ChannelType = "supergroup"
	ChannelUnknown    ChannelType = "unknown"
)

// UnmarshalJSON keeps the document loadable when the stored type value
// is something this build doesn't know.
func (t *ChannelType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch ChannelType(s) {
	case ChannelPrivate, ChannelPublic, ChannelSupergroup:
		*t = ChannelType(s)
	default:
		*t = ChannelUnknown
	}
	return nil
}

type Channel struct {
	Name            string      `json:"name"`
	Type            ChannelType `json:"type"`
	SubscriberCount *int        `json:"subscriber_count,omitempty"`
}

// ChannelEntry pairs a channel with its id for ordered listings.
type ChannelEntry struct {
	ID string
	Channel
}

const (
	// FooterMaxLen bounds the footer, in runes.
	FooterMaxLen = 200

	DefaultDelaySeconds = 2.0
	DefaultMaxRetries   = 3
)

type Settings struct {
	DelaySeconds         float64 `json:"delay_seconds"`
	MaxRetries           int     `json:"max_retries"`
	NotificationsEnabled bool    `json:"notifications_enabled"`
	Footer               string  `json:"footer"`
}

func DefaultSettings() Settings {
	return Settings{
		DelaySeconds:         DefaultDelaySeconds,
		MaxRetries:           DefaultMaxRetries,
		NotificationsEnabled: true,
	}
}

// Clamp forces the invariants: non-negative delay, at least one
// attempt, bounded footer. Applied on load and on every update.
func (s *Settings) Clamp() {
	if s.DelaySeconds < 0 {
		s.DelaySeconds = 0
	}
	if s.MaxRetries < 1 {
		s.MaxRetries = 1
	}
	if utf8.RuneCountInString(s.Footer) > FooterMaxLen {
		s.Footer = string([]rune(s.Footer)[:FooterMaxLen])
	}
}

func (s Settings) Delay() time.Duration {
	return time.Duration(s.DelaySeconds * float64(time.Second))
}

type Stats struct {
	TotalPosts       int64      `json:"total_posts"`
	TotalBatches     int64      `json:"total_batches"`
	LastPostAt       *time.Time `json:"last_post_at,omitempty"`
	LastPostChannels []string   `json:"last_post_channels,omitempty"`
}

type AdminStats struct {
	Posts        int64      `json:"posts"`
	Batches      int64      `json:"batches"`
	LastActionAt *time.Time `json:"last_action_at,omitempty"`
}

// DayStats aggregates one calendar day for the analytics view.
type DayStats struct {
	Posts    int64 `json:"posts"`
	Batches  int64 `json:"batches"`
	Failures int64 `json:"failures"`
}

// StoredTimeLayout is how schedule times are written. Reads are more
// forgiving; see ScheduledPost.At.
const StoredTimeLayout = "2006-01-02 15:04:05"

var storedTimeLayouts = []string{
	StoredTimeLayout,
	"2006-01-02 15:04",
	time.RFC3339,
}

// ScheduledPost is immutable once created. ScheduleTime stays a string
// so a malformed value survives loading and can be expired by the
// scheduler instead of corrupting the whole document.
type ScheduledPost struct {
	ScheduleTime string          `json:"schedule_time"`
	Messages     []batch.Message `json:"messages"`
	Channels     []string        `json:"channels"`
	AdminID      string          `json:"admin_id"`
	CreatedAt    time.Time       `json:"created_at"`
}

// At parses the stored schedule time in loc. ok is false for malformed
// values; such jobs are reaped by the expiry sweep.
func (p ScheduledPost) At(loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range storedTimeLayouts {
		if t, err := time.ParseInLocation(layout, p.ScheduleTime, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Document is the persisted root. Field names mirror the on-disk keys.
type Document struct {
	Admins         []string                 `json:"admins"`
	Channels       map[string]Channel       `json:"channels"`
	Stats          Stats                    `json:"stats"`
	Settings       Settings                 `json:"settings"`
	AdminStats     map[string]AdminStats    `json:"admin_stats"`
	ScheduledPosts map[string]ScheduledPost `json:"scheduled_posts"`
	PostAnalytics  map[string]DayStats      `json:"post_analytics"`
}

func defaultDocument(ownerID string) *Document {
	d := &Document{
		Admins:         []string{},
		Channels:       map[string]Channel{},
		Settings:       DefaultSettings(),
		AdminStats:     map[string]AdminStats{},
		ScheduledPosts: map[string]ScheduledPost{},
		PostAnalytics:  map[string]DayStats{},
	}
	if ownerID != "" {
		d.Admins = []string{ownerID}
	}
	return d
}

// normalize repairs a loaded document in place: nil maps, settings
// bounds, owner membership.
func (d *Document) normalize(ownerID string) {
	if d.Admins == nil {
		d.Admins = []string{}
	}
	if d.Channels == nil {
		d.Channels = map[string]Channel{}
	}
	if d.AdminStats == nil {
		d.AdminStats = map[string]AdminStats{}
	}
	if d.ScheduledPosts == nil {
		d.ScheduledPosts = map[string]ScheduledPost{}
	}
	if d.PostAnalytics == nil {
		d.PostAnalytics = map[string]DayStats{}
	}
	d.Settings.Clamp()

	if ownerID != "" && !containsString(d.Admins, ownerID) {
		d.Admins = append([]string{ownerID}, d.Admins...)
	}
}

// Clone returns a deep copy safe to hand outside the store.
func (d *Document) Clone() *Document {
	cp := *d
	cp.Admins = append([]string(nil), d.Admins...)
	cp.Channels = make(map[string]Channel, len(d.Channels))
	for k, v := range d.Channels {
		cp.Channels[k] = v
	}
	cp.AdminStats = make(map[string]AdminStats, len(d.AdminStats))
	for k, v := range d.AdminStats {
		cp.AdminStats[k] = v
	}
	cp.ScheduledPosts = make(map[string]ScheduledPost, len(d.ScheduledPosts))
	for k, v := range d.ScheduledPosts {
		v.Messages = append([]batch.Message(nil), v.Messages...)
		v.Channels = append([]string(nil), v.Channels...)
		cp.ScheduledPosts[k] = v
	}
	cp.PostAnalytics = make(map[string]DayStats, len(d.PostAnalytics))
	for k, v := range d.PostAnalytics {
		cp.PostAnalytics[k] = v
	}
	cp.Stats.LastPostChannels = append([]string(nil), d.Stats.LastPostChannels...)
	return &cp
}

// SortedChannels returns channel entries ordered by name, then id.
func (d *Document) SortedChannels() []ChannelEntry {
	out := make([]ChannelEntry, 0, len(d.Channels))
	for id, ch := range d.Channels {
		out = append(out, ChannelEntry{ID: id, Channel: ch})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
