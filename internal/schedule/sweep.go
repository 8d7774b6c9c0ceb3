package schedule

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/samirtelegrambot/ACMProBot/internal/batch"
	"github.com/samirtelegrambot/ACMProBot/internal/dispatch"
	"github.com/samirtelegrambot/ACMProBot/internal/eventbus"
	"github.com/samirtelegrambot/ACMProBot/internal/history"
	"github.com/samirtelegrambot/ACMProBot/internal/state"
	"github.com/samirtelegrambot/ACMProBot/pkg/logx"
)

// errNothingDue aborts the sweep mutation without a write.
var errNothingDue = errors.New("schedule: nothing due")

type dueJob struct {
	id   string
	post state.ScheduledPost
	at   time.Time
}

type expiredJob struct {
	id     string
	post   state.ScheduledPost
	reason string
}

// Tick sweeps the stored jobs once. Due jobs are deleted from the
// document and then executed, in that order: a crash between the two
// loses at most one execution and never duplicates one. Overlapping
// ticks are coalesced.
func (s *Service) Tick(ctx context.Context, now time.Time) {
	if !s.ticking.CompareAndSwap(false, true) {
		return
	}
	defer s.ticking.Store(false)

	s.mu.Lock()
	s.lastTick = now
	enabled := s.cfg.Enabled
	grace := s.cfg.Grace
	loc := s.cfg.Loc
	s.mu.Unlock()
	if !enabled || ctx == nil || ctx.Err() != nil {
		return
	}

	var due []dueJob
	var expired []expiredJob

	err := s.store.Mutate(func(d *state.Document) error {
		for id, p := range d.ScheduledPosts {
			at, ok := p.At(loc)
			if !ok {
				// Unreadable time. Keep it for one grace window in
				// case an out-of-band edit repairs the field.
				if now.Sub(p.CreatedAt) > grace {
					expired = append(expired, expiredJob{id: id, post: p, reason: "unreadable schedule time"})
					delete(d.ScheduledPosts, id)
				}
				continue
			}
			if at.After(now) {
				continue
			}
			if now.Sub(at) > grace {
				expired = append(expired, expiredJob{id: id, post: p, reason: "missed by more than " + grace.String()})
				delete(d.ScheduledPosts, id)
				continue
			}
			due = append(due, dueJob{id: id, post: p, at: at})
			delete(d.ScheduledPosts, id)
		}
		if len(due) == 0 && len(expired) == 0 {
			return errNothingDue
		}
		return nil
	})
	if errors.Is(err, errNothingDue) {
		return
	}
	if err != nil {
		s.log.Error("scheduler sweep failed", logx.Err(err))
		return
	}

	for _, j := range expired {
		s.log.Warn("scheduled post expired",
			logx.String("job", j.id),
			logx.String("admin", j.post.AdminID),
			logx.String("at", j.post.ScheduleTime),
			logx.String("reason", j.reason),
		)
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{
				Type: eventbus.TypeJobExpired,
				Data: eventbus.JobNote{JobID: j.id, AdminID: j.post.AdminID, Reason: j.reason},
			})
		}
	}

	sort.Slice(due, func(i, j int) bool {
		if !due[i].at.Equal(due[j].at) {
			return due[i].at.Before(due[j].at)
		}
		return due[i].id < due[j].id
	})
	for _, j := range due {
		s.execute(ctx, j)
	}
}

func (s *Service) execute(ctx context.Context, j dueJob) {
	s.log.Info("scheduled post due",
		logx.String("job", j.id),
		logx.String("admin", j.post.AdminID),
		logx.String("at", j.post.ScheduleTime),
	)
	rep := s.disp.SendBatch(ctx, dispatch.Request{
		AdminID:  j.post.AdminID,
		Channels: append([]string(nil), j.post.Channels...),
		Messages: append([]batch.Message(nil), j.post.Messages...),
		Kind:     history.KindScheduled,
		JobID:    j.id,
	})
	if rep.Canceled {
		s.log.Warn("scheduled post interrupted",
			logx.String("job", j.id),
			logx.Int("channels_ok", rep.ChannelsOK),
			logx.Int("channels_failed", rep.ChannelsFailed),
		)
		return
	}
	s.log.Info("scheduled post executed",
		logx.String("job", j.id),
		logx.Int("channels_ok", rep.ChannelsOK),
		logx.Int("channels_failed", rep.ChannelsFailed),
	)
}
