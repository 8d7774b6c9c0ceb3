// Package notify pushes job outcome notices to operators. It consumes
// bus events, translates them to short messages, and delivers them best
// effort through the transport adapter: bounded queue, rate-limited
// sends, bounded retry. A lost notice is acceptable; a blocked producer
// is not.
package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/samirtelegrambot/ACMProBot/internal/eventbus"
	"github.com/samirtelegrambot/ACMProBot/internal/state"
	"github.com/samirtelegrambot/ACMProBot/internal/transport"
	"github.com/samirtelegrambot/ACMProBot/pkg/logx"
)

// sendTimeout bounds one delivery attempt plus its limiter wait. Sends
// run detached from the service context so stopping still drains.
const sendTimeout = 10 * time.Second

type Config struct {
	Enabled    bool
	QueueSize  int
	RatePerSec int
	RetryMax   int
	RetryBase  time.Duration
}

func (c *Config) normalize() {
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 1
	}
	if c.RetryMax < 1 {
		c.RetryMax = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
}

type notice struct {
	to   transport.ChatTarget
	text string
}

// Service is the bus-to-operator notice pipeline. Enabled and QueueSize
// are fixed at Start; pacing and retry follow Apply.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	adapter transport.Adapter
	store   *state.Store
	bus     eventbus.Bus
	log     logx.Logger

	queue   chan notice
	dropped atomic.Uint64

	cancel    context.CancelFunc
	subCancel func()
	runDone   chan struct{}
	done      chan struct{}
}

func New(cfg Config, adapter transport.Adapter, store *state.Store, bus eventbus.Bus, log logx.Logger) *Service {
	cfg.normalize()
	s := &Service{
		adapter: adapter,
		store:   store,
		bus:     bus,
		log:     log,
	}
	s.Apply(cfg)
	return s
}

// Apply swaps pacing and retry settings. Safe while running.
func (s *Service) Apply(cfg Config) {
	cfg.normalize()
	s.mu.Lock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Unlock()
}

// Dropped reports how many notices were discarded on a full queue.
func (s *Service) Dropped() uint64 { return s.dropped.Load() }

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	cfg := s.cfg
	started := s.queue != nil
	if !started && cfg.Enabled {
		s.queue = make(chan notice, cfg.QueueSize)
	}
	s.mu.Unlock()
	if started || !cfg.Enabled {
		if !cfg.Enabled {
			s.log.Info("notifier disabled")
		}
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.runDone = make(chan struct{})
	s.done = make(chan struct{})

	events, subCancel := s.bus.Subscribe(cfg.QueueSize)
	s.subCancel = subCancel

	go s.run(runCtx, events)
	go s.worker()
	s.log.Info("notifier started", logx.Int("queue", cfg.QueueSize), logx.Int("rate_per_sec", cfg.RatePerSec))
}

// Stop unsubscribes and drains the queue. Draining keeps going in the
// background if ctx expires first.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	queue := s.queue
	s.queue = nil
	s.mu.Unlock()
	if queue == nil || s.cancel == nil {
		return
	}

	s.subCancel()
	s.cancel()
	<-s.runDone
	close(queue)

	select {
	case <-s.done:
	case <-ctx.Done():
		s.log.Warn("notifier stop deadline hit, drain continues in background")
	}
	if n := s.dropped.Load(); n > 0 {
		s.log.Warn("notices were dropped on a full queue", logx.Uint64("dropped", n))
	}
	s.log.Info("notifier stopped")
}

// run translates bus events into queued notices. It exits when the
// subscription closes or the context is canceled.
func (s *Service) run(ctx context.Context, events <-chan eventbus.Event) {
	defer close(s.runDone)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			for _, n := range s.noticesFor(ev) {
				s.enqueue(n)
			}
		}
	}
}

func (s *Service) enqueue(n notice) {
	s.mu.Lock()
	queue := s.queue
	s.mu.Unlock()
	if queue == nil {
		return
	}
	select {
	case queue <- n:
	default:
		s.dropped.Add(1)
		s.log.Warn("notice dropped, queue full", logx.String("to", n.to.ID))
	}
}

func (s *Service) worker() {
	defer close(s.done)
	s.mu.Lock()
	queue := s.queue
	s.mu.Unlock()
	for n := range queue {
		if err := s.send(n); err != nil {
			s.log.Warn("notice delivery failed", logx.String("to", n.to.ID), logx.Err(err))
		}
	}
}

func (s *Service) send(n notice) error {
	s.mu.Lock()
	lim := s.limiter
	retryMax := s.cfg.RetryMax
	retryBase := s.cfg.RetryBase
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := lim.Wait(ctx); err != nil {
		return err
	}

	var last error
	for i := 0; i < retryMax; i++ {
		_, err := s.adapter.SendText(ctx, n.to, n.text, nil)
		if err == nil {
			return nil
		}
		last = err
		if i == retryMax-1 {
			break
		}
		t := time.NewTimer(retryBase * time.Duration(i+1))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return last
}

// noticesFor maps one event to zero or more notices. Job outcome
// notices honor the operator's notifications toggle; a state reset is
// always reported to the owner.
func (s *Service) noticesFor(ev eventbus.Event) []notice {
	switch ev.Type {
	case eventbus.TypePostExecuted:
		res, ok := ev.Data.(eventbus.PostResult)
		if !ok || res.JobID == "" || res.AdminID == "" {
			return nil
		}
		if !s.store.Settings().NotificationsEnabled {
			return nil
		}
		text := fmt.Sprintf("Scheduled post %s executed: %d channel(s) ok, %d failed.",
			shortID(res.JobID), res.Sent, res.Failed)
		return []notice{{to: transport.ChatTarget{ID: res.AdminID}, text: text}}

	case eventbus.TypeJobExpired:
		note, ok := ev.Data.(eventbus.JobNote)
		if !ok {
			return nil
		}
		if !s.store.Settings().NotificationsEnabled {
			return nil
		}
		text := fmt.Sprintf("Scheduled post %s expired without executing: %s.",
			shortID(note.JobID), note.Reason)
		out := make([]notice, 0, 2)
		if note.AdminID != "" {
			out = append(out, notice{to: transport.ChatTarget{ID: note.AdminID}, text: text})
		}
		if owner := s.store.Owner(); owner != note.AdminID {
			out = append(out, notice{to: transport.ChatTarget{ID: owner}, text: text})
		}
		return out

	case eventbus.TypeStateReset:
		text := "Bot state was reset to defaults."
		if reason, ok := ev.Data.(string); ok && reason != "" {
			text = "Bot state was reset to defaults: " + reason
		}
		return []notice{{to: transport.ChatTarget{ID: s.store.Owner()}, text: text}}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
