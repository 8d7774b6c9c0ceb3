package dispatch

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/samirtelegrambot/ACMProBot/internal/batch"
	"github.com/samirtelegrambot/ACMProBot/internal/eventbus"
	"github.com/samirtelegrambot/ACMProBot/internal/history"
	"github.com/samirtelegrambot/ACMProBot/internal/state"
	"github.com/samirtelegrambot/ACMProBot/internal/transport"
	"github.com/samirtelegrambot/ACMProBot/pkg/logx"
)

// Service delivers message batches to channels, paced by a global rate
// limiter. Per-channel results are folded into the bot stats, the
// archive, and a bus event after every run.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	adapter transport.Adapter
	store   *state.Store
	archive history.Store // nil when disabled
	bus     eventbus.Bus
	log     logx.Logger
}

func New(cfg Config, adapter transport.Adapter, store *state.Store, archive history.Store, bus eventbus.Bus, log logx.Logger) *Service {
	s := &Service{
		adapter: adapter,
		store:   store,
		archive: archive,
		bus:     bus,
		log:     log,
	}
	s.Apply(cfg)
	return s
}

// Apply swaps pacing config. Safe to call while dispatches run.
func (s *Service) Apply(cfg Config) {
	rps := cfg.MessagesPerSec
	if rps <= 0 {
		rps = 4
	}
	burst := int(math.Ceil(rps))
	if burst < 1 {
		burst = 1
	}
	s.mu.Lock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	s.mu.Unlock()
}

// SendBatch delivers every message to every channel, channels in order,
// messages in order within a channel. The configured delay separates
// consecutive messages to the same channel; each message gets up to
// MaxRetries attempts. A canceled context stops the run early and the
// partial result is still recorded.
func (s *Service) SendBatch(ctx context.Context, req Request) Report {
	settings := s.store.Settings()
	rep := Report{
		PerChannel: make(map[string]Outcome, len(req.Channels)),
		Started:    time.Now(),
	}

	s.log.Info("dispatch started",
		logx.String("admin", req.AdminID),
		logx.String("kind", req.Kind),
		logx.Int("channels", len(req.Channels)),
		logx.Int("messages", len(req.Messages)),
	)

channels:
	for ci, id := range req.Channels {
		var out Outcome
		to := transport.ChannelTarget(id)
		for mi, msg := range req.Messages {
			if ctx.Err() != nil {
				rep.Canceled = true
				rep.PerChannel[id] = out
				break channels
			}
			if mi > 0 {
				if err := s.pause(ctx, settings.Delay()); err != nil {
					rep.Canceled = true
					rep.PerChannel[id] = out
					break channels
				}
			}
			if err := s.sendOne(ctx, to, msg, settings); err != nil {
				out.Failed++
				out.Err = err.Error()
				s.log.Warn("dispatch send failed",
					logx.String("channel", id),
					logx.Int("message", mi),
					logx.Err(err),
				)
				continue
			}
			out.Sent++
		}
		rep.PerChannel[id] = out
		if req.OnChannel != nil {
			req.OnChannel(id, out)
		}
		if req.Progress != nil {
			req.Progress(ci+1, len(req.Channels))
		}
	}

	for _, out := range rep.PerChannel {
		rep.MessagesSent += out.Sent
		rep.MessagesFailed += out.Failed
		if out.Delivered() {
			rep.ChannelsOK++
		} else {
			rep.ChannelsFailed++
		}
	}
	// Channels never reached count as failed.
	rep.ChannelsFailed += len(req.Channels) - len(rep.PerChannel)
	rep.Finished = time.Now()

	s.record(ctx, req, rep)
	return rep
}

// sendOne pushes a single message through the limiter and retry loop.
func (s *Service) sendOne(ctx context.Context, to transport.ChatTarget, msg batch.Message, settings state.Settings) error {
	s.mu.Lock()
	lim := s.limiter
	s.mu.Unlock()

	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
	}

	attempts := settings.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	var last error
	for i := 0; i < attempts; i++ {
		err := s.deliver(ctx, to, msg, settings.Footer)
		if err == nil {
			return nil
		}
		last = err
		if i == attempts-1 {
			break
		}
		delay := time.Duration(200+100*i) * time.Millisecond
		s.log.Debug("dispatch send retry scheduled",
			logx.String("channel", to.ID),
			logx.Int("attempt", i+2),
			logx.Duration("delay", delay),
			logx.Err(err),
		)
		if err := s.pause(ctx, delay); err != nil {
			return err
		}
	}
	return last
}

func (s *Service) deliver(ctx context.Context, to transport.ChatTarget, msg batch.Message, footer string) error {
	opt := &transport.SendOptions{DisablePreview: true}
	switch msg.Kind {
	case batch.KindText:
		_, err := s.adapter.SendText(ctx, to, withFooter(msg.Content, footer), opt)
		return err
	case batch.KindPhoto:
		_, err := s.adapter.SendPhoto(ctx, to, msg.FileRef, withFooter(msg.Caption, footer), opt)
		return err
	case batch.KindVideo:
		_, err := s.adapter.SendVideo(ctx, to, msg.FileRef, withFooter(msg.Caption, footer), opt)
		return err
	case batch.KindDocument:
		_, err := s.adapter.SendDocument(ctx, to, msg.FileRef, withFooter(msg.Caption, footer), opt)
		return err
	default:
		return msg.Validate()
	}
}

// withFooter appends the footer on its own paragraph. An empty body
// yields just the footer (media captions may be empty).
func withFooter(body, footer string) string {
	if footer == "" {
		return body
	}
	if body == "" {
		return footer
	}
	return body + "\n\n" + footer
}

func (s *Service) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tmr.C:
		return nil
	}
}

// record folds the run into stats, the archive, and the event bus.
// Recording failures are logged, never surfaced to the caller: the
// messages are already out.
func (s *Service) record(ctx context.Context, req Request, rep Report) {
	okChannels := rep.OKChannels(req.Channels)
	if err := s.store.RecordDispatch(req.AdminID, rep.ChannelsOK, rep.ChannelsFailed, okChannels, rep.Finished); err != nil {
		s.log.Error("dispatch stats update failed", logx.Err(err))
	}

	if s.archive != nil {
		rec := history.Record{
			At:       rep.Finished,
			Kind:     req.Kind,
			JobID:    req.JobID,
			AdminID:  req.AdminID,
			Channels: req.Channels,
			Sent:     rep.ChannelsOK,
			Failed:   rep.ChannelsFailed,
			TookMS:   rep.Finished.Sub(rep.Started).Milliseconds(),
		}
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := s.archive.AppendReport(actx, rec); err != nil {
			s.log.Warn("dispatch archive append failed", logx.Err(err))
		}
		cancel()
	}

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type: eventbus.TypePostExecuted,
			Data: eventbus.PostResult{
				AdminID:   req.AdminID,
				JobID:     req.JobID,
				Channels:  req.Channels,
				Sent:      rep.ChannelsOK,
				Failed:    rep.ChannelsFailed,
				StartedAt: rep.Started,
			},
		})
	}

	fields := []logx.Field{
		logx.String("admin", req.AdminID),
		logx.String("kind", req.Kind),
		logx.Int("channels_ok", rep.ChannelsOK),
		logx.Int("channels_failed", rep.ChannelsFailed),
		logx.Duration("took", rep.Finished.Sub(rep.Started)),
	}
	if rep.ChannelsFailed > 0 || rep.Canceled {
		s.log.Warn("dispatch finished with failures", fields...)
	} else {
		s.log.Info("dispatch finished", fields...)
	}
}
