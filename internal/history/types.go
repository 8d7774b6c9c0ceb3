package history

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("history disabled")

// Config configures the dispatch report archive.
//
// Driver values:
//   - "file": dependency-free JSON Lines backend
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", the archive is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Record archives one completed dispatch.
// Keep it compact and schema-stable.
type Record struct {
	At       time.Time `json:"at"`
	Kind     string    `json:"kind"` // "post" or "scheduled"
	JobID    string    `json:"job_id,omitempty"`
	AdminID  string    `json:"admin_id"`
	Channels []string  `json:"channels"`
	Sent     int       `json:"sent"`
	Failed   int       `json:"failed"`
	TookMS   int64     `json:"took_ms"`
}

const (
	KindPost      = "post"
	KindScheduled = "scheduled"
)
