package schedule

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/samirtelegrambot/ACMProBot/internal/batch"
	"github.com/samirtelegrambot/ACMProBot/internal/dispatch"
	"github.com/samirtelegrambot/ACMProBot/internal/eventbus"
	"github.com/samirtelegrambot/ACMProBot/internal/state"
	"github.com/samirtelegrambot/ACMProBot/pkg/logx"
)

var (
	ErrPastTime        = errors.New("schedule time must be in the future")
	ErrEmptyBatch      = errors.New("schedule has no messages")
	ErrNoChannels      = errors.New("schedule has no channels")
	ErrTooManyMessages = errors.New("schedule exceeds the batch limit")
)

type Config struct {
	Enabled bool
	// Tick is the sweep interval.
	Tick time.Duration
	// Grace is how far past its time a job may still execute. Jobs
	// older than that expire unexecuted.
	Grace time.Duration
	// Loc interprets stored schedule times.
	Loc *time.Location
}

func (c *Config) normalize() {
	if c.Tick <= 0 {
		c.Tick = time.Minute
	}
	if c.Grace <= 0 {
		c.Grace = time.Hour
	}
	if c.Loc == nil {
		c.Loc = time.Local
	}
}

// Dispatcher delivers a due batch. Satisfied by *dispatch.Service.
type Dispatcher interface {
	SendBatch(ctx context.Context, req dispatch.Request) dispatch.Report
}

// Service sweeps stored scheduled posts on a fixed interval and hands
// due ones to the dispatcher. Jobs are removed from the document before
// execution, so a job fires at most once.
type Service struct {
	mu     sync.Mutex
	cfg    Config
	parser cron.Parser
	c      *cron.Cron
	runCtx context.Context
	cancel context.CancelFunc

	// ticking guards against overlapping sweeps.
	ticking  atomic.Bool
	lastTick time.Time

	store *state.Store
	disp  Dispatcher
	bus   eventbus.Bus
	log   logx.Logger
}

func New(cfg Config, store *state.Store, disp Dispatcher, bus eventbus.Bus, log logx.Logger) *Service {
	cfg.normalize()
	return &Service{
		cfg:    cfg,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		store:  store,
		disp:   disp,
		bus:    bus,
		log:    log,
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Location returns the timezone schedule times are interpreted in.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Loc
}

// Apply swaps config. A changed tick or timezone restarts the sweep.
func (s *Service) Apply(cfg Config) {
	cfg.normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	restart := s.c != nil && (cfg.Tick != s.cfg.Tick || cfg.Loc.String() != s.cfg.Loc.String())
	s.cfg = cfg
	if restart {
		s.restartLocked()
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.cfg.Loc))
	s.addSweepLocked()
	s.c.Start()

	// Sweep once right away so jobs that came due while the process was
	// down are handled without waiting a full tick.
	go s.Tick(s.runCtx, time.Now())

	s.log.Info("scheduler started",
		logx.Duration("tick", s.cfg.Tick),
		logx.Duration("grace", s.cfg.Grace),
		logx.String("tz", s.cfg.Loc.String()),
	)
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	stopped := s.c.Stop()
	s.c = nil
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

func (s *Service) addSweepLocked() {
	tick := s.cfg.Tick
	runCtx := s.runCtx
	_, err := s.c.AddFunc("@every "+tick.String(), func() {
		s.Tick(runCtx, time.Now())
	})
	if err != nil {
		s.log.Error("scheduler sweep registration failed", logx.Err(err))
	}
}

func (s *Service) restartLocked() {
	if s.c != nil {
		<-s.c.Stop().Done()
	}
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.cfg.Loc))
	s.addSweepLocked()
	s.c.Start()
	s.log.Info("scheduler restarted",
		logx.Duration("tick", s.cfg.Tick),
		logx.String("tz", s.cfg.Loc.String()),
	)
}

// Create validates and persists a new scheduled post.
func (s *Service) Create(adminID string, at time.Time, msgs []batch.Message, channels []string) (string, error) {
	if len(msgs) == 0 {
		return "", ErrEmptyBatch
	}
	if len(msgs) > batch.MaxMessages {
		return "", ErrTooManyMessages
	}
	if len(channels) == 0 {
		return "", ErrNoChannels
	}
	loc := s.Location()
	now := time.Now()
	if !at.After(now) {
		return "", ErrPastTime
	}

	id := uuid.NewString()
	post := state.ScheduledPost{
		ScheduleTime: at.In(loc).Format(state.StoredTimeLayout),
		Messages:     append([]batch.Message(nil), msgs...),
		Channels:     append([]string(nil), channels...),
		AdminID:      adminID,
		CreatedAt:    now.UTC(),
	}
	if err := s.store.PutScheduled(id, post); err != nil {
		return "", err
	}

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type: eventbus.TypeJobScheduled,
			Data: eventbus.JobNote{JobID: id, AdminID: adminID, Reason: post.ScheduleTime},
		})
	}
	s.log.Info("post scheduled",
		logx.String("job", id),
		logx.String("admin", adminID),
		logx.String("at", post.ScheduleTime),
		logx.Int("messages", len(msgs)),
		logx.Int("channels", len(channels)),
	)
	return id, nil
}

// Cancel removes a scheduled post. Cancelling twice is not an error;
// the second call reports found=false.
func (s *Service) Cancel(adminID, id string) (bool, error) {
	found, err := s.store.DeleteScheduled(id)
	if err != nil || !found {
		return found, err
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type: eventbus.TypeJobCancelled,
			Data: eventbus.JobNote{JobID: id, AdminID: adminID, Reason: "cancelled"},
		})
	}
	s.log.Info("scheduled post cancelled", logx.String("job", id), logx.String("admin", adminID))
	return true, nil
}

// Job is a scheduled post joined with its parsed time.
type Job struct {
	ID   string
	Post state.ScheduledPost
	At   time.Time
	OK   bool // false when the stored time does not parse
}

// Jobs returns all pending jobs ordered by time, unparseable ones last.
func (s *Service) Jobs() []Job {
	loc := s.Location()
	stored := s.store.ListScheduled()
	out := make([]Job, 0, len(stored))
	for id, p := range stored {
		at, ok := p.At(loc)
		out = append(out, Job{ID: id, Post: p, At: at, OK: ok})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OK != out[j].OK {
			return out[i].OK
		}
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.Before(out[j].At)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Get returns one pending job.
func (s *Service) Get(id string) (Job, bool) {
	loc := s.Location()
	p, ok := s.store.ListScheduled()[id]
	if !ok {
		return Job{}, false
	}
	at, parsed := p.At(loc)
	return Job{ID: id, Post: p, At: at, OK: parsed}, true
}

// Status is a point-in-time view for the status screen.
type Status struct {
	Enabled  bool
	Running  bool
	Pending  int
	LastTick time.Time // zero before the first sweep
	NextTick time.Time // zero when stopped
	Timezone string
}

func (s *Service) Status() Status {
	pending := len(s.store.ListScheduled())

	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Enabled:  s.cfg.Enabled,
		Running:  s.c != nil,
		Pending:  pending,
		LastTick: s.lastTick,
		Timezone: s.cfg.Loc.String(),
	}
	if s.c != nil {
		for _, e := range s.c.Entries() {
			if st.NextTick.IsZero() || e.Next.Before(st.NextTick) {
				st.NextTick = e.Next
			}
		}
	}
	return st
}
