package session

import (
	"sync"

	"github.com/samirtelegrambot/ACMProBot/internal/batch"
	"github.com/samirtelegrambot/ACMProBot/internal/picker"
)

// State names the free-text input step an operator is in. Text that
// does not match a command or menu label is dispatched on it.
type State int

const (
	Idle State = iota
	AwaitingChannelID
	AwaitingBatchMessage
	AwaitingBlob
	AwaitingScheduleMessage
	AwaitingScheduleTime
	AwaitingDelay
	AwaitingRetries
	AwaitingFooter
	AwaitingAdminAdd
	AwaitingAdminRemove
)

var stateNames = map[State]string{
	Idle:                    "idle",
	AwaitingChannelID:       "awaiting_channel_id",
	AwaitingBatchMessage:    "awaiting_batch_message",
	AwaitingBlob:            "awaiting_blob",
	AwaitingScheduleMessage: "awaiting_schedule_message",
	AwaitingScheduleTime:    "awaiting_schedule_time",
	AwaitingDelay:           "awaiting_delay",
	AwaitingRetries:         "awaiting_retries",
	AwaitingFooter:          "awaiting_footer",
	AwaitingAdminAdd:        "awaiting_admin_add",
	AwaitingAdminRemove:     "awaiting_admin_remove",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Flow tags which confirmation path the channel picker feeds.
type Flow int

const (
	FlowNone Flow = iota
	// FlowPost posts the collected batch immediately on confirm.
	FlowPost
	// FlowSchedule carries the draft on to the time prompt.
	FlowSchedule
)

// Draft is a scheduled post being assembled: the messages chosen at the
// source step and the channels picked after it.
type Draft struct {
	Messages []batch.Message
	Channels []string
}

// Session is one operator's in-memory working set. It is not internally
// synchronized; handlers hold the lock for their whole run so state
// checks and the mutations they imply stay atomic.
type Session struct {
	mu sync.Mutex

	State State
	Flow  Flow

	Batch batch.Builder

	// Selected is the channel set being picked for the active flow.
	Selected picker.Selection
	// PickPage remembers the channel picker's page, ListPage the
	// management list's. Both survive screen redraws.
	PickPage int
	ListPage int

	Draft Draft
}

func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

func newSession() *Session {
	return &Session{Selected: picker.New()}
}

// ResetPrompt returns the session to Idle, dropping the pending prompt,
// the picker selection, and the draft. The collected batch survives:
// /cancel aborts the question, not the operator's work.
func (s *Session) ResetPrompt() {
	s.State = Idle
	s.Flow = FlowNone
	s.Selected = picker.New()
	s.PickPage = 0
	s.ListPage = 0
	s.Draft = Draft{}
}

// Manager hands out sessions keyed by operator id.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Get returns the operator's session, creating it on first use.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		s = newSession()
		m.sessions[id] = s
	}
	return s
}

// Reset aborts the operator's pending prompt. See ResetPrompt.
func (m *Manager) Reset(id string) {
	s := m.Get(id)
	s.Lock()
	s.ResetPrompt()
	s.Unlock()
}
