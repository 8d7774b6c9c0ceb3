package dispatch

import (
	"time"

	"github.com/samirtelegrambot/ACMProBot/internal/batch"
)

type Config struct {
	// MessagesPerSec caps outbound sends across all channels.
	MessagesPerSec float64
}

// Request describes one batch to deliver.
type Request struct {
	AdminID  string
	Channels []string
	Messages []batch.Message

	// Kind tags the archive record: "post" (immediate) or "scheduled".
	Kind string
	// JobID is set for scheduled dispatches.
	JobID string

	// Progress, when set, is called after each channel completes.
	Progress func(done, total int)
	// OnChannel, when set, receives each completed channel's outcome as
	// the run goes, so failures can be surfaced before the summary.
	OnChannel func(channelID string, out Outcome)
}

// Outcome is the per-channel delivery result.
type Outcome struct {
	Sent   int
	Failed int
	Err    string
}

// Delivered reports whether every message reached the channel.
func (o Outcome) Delivered() bool { return o.Failed == 0 && o.Sent > 0 }

// Report summarizes one dispatch run.
type Report struct {
	PerChannel map[string]Outcome

	// ChannelsOK counts channels that received the full batch.
	ChannelsOK     int
	ChannelsFailed int

	MessagesSent   int
	MessagesFailed int

	Started  time.Time
	Finished time.Time
	Canceled bool
}

// OKChannels returns the ids of fully delivered channels, in request order.
func (r Report) OKChannels(order []string) []string {
	out := make([]string, 0, len(order))
	for _, id := range order {
		if o, ok := r.PerChannel[id]; ok && o.Delivered() {
			out = append(out, id)
		}
	}
	return out
}
