// internal/campaign/controller.go
package campaign

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/thunderlink/internal/errors"
	"github.com/unclebandit/thunderlink/internal/model"
	"github.com/unclebandit/thunderlink/internal/queue"
)

// Sender delivers one message and blocks until it is acknowledged or fails.
type Sender interface {
	Send(ctx context.Context, r model.Recipient) error
}

// SessionSource exposes the last known connection state of the bridge.
type SessionSource interface {
	CurrentState() model.Session
}

// Killer hard-restarts the external client.
type Killer interface {
	Kill(ctx context.Context) error
}

type Options struct {
	Message   string
	ImagePath string
	// Delay between recipients. Zero sends back to back.
	Delay time.Duration
}

type Config struct {
	ReadyTimeout time.Duration
	ReadyPoll    time.Duration
}

// Controller owns at most one running campaign.
type Controller struct {
	sender  Sender
	session SessionSource
	killer  Killer
	queue   queue.Queue
	cfg     Config

	now    func() time.Time
	jitter func() time.Duration

	mu       sync.Mutex
	active   *run
	baseline model.Progress
}

func NewController(sender Sender, session SessionSource, killer Killer, q queue.Queue, cfg Config) *Controller {
	if cfg.ReadyPoll <= 0 {
		cfg.ReadyPoll = time.Second
	}
	return &Controller{
		sender:   sender,
		session:  session,
		killer:   killer,
		queue:    q,
		cfg:      cfg,
		now:      time.Now,
		jitter:   func() time.Duration { return time.Duration(rand.IntN(5)-2) * time.Second },
		baseline: model.Progress{Logs: []string{}},
	}
}

// Start launches a campaign over phones and returns the recipient count. It
// fails fast while another campaign is running, whatever the list holds.
func (c *Controller) Start(phones []string, opts Options) (int, error) {
	c.mu.Lock()
	if c.active != nil && c.active.running() {
		c.mu.Unlock()
		return 0, appErrors.ErrAlreadyRunning
	}
	if len(phones) == 0 {
		c.mu.Unlock()
		return 0, appErrors.ErrEmptyRecipients
	}

	recipients := make([]model.Recipient, len(phones))
	for i, p := range phones {
		recipients[i] = model.Recipient{Phone: p, Message: opts.Message, ImagePath: opts.ImagePath}
	}
	r := newRun(recipients, opts)
	c.active = r
	c.mu.Unlock()

	zap.L().Info("🚀 Campaign started", zap.Int("total", len(recipients)), zap.Duration("delay", opts.Delay), zap.Bool("media", opts.ImagePath != ""))
	c.publish(r, model.CampaignEvent{Kind: model.EventStarted, Total: len(recipients)})

	go c.loop(r)
	return len(recipients), nil
}

// Stop asks the running campaign to halt before its next send. A send
// already in flight completes.
func (c *Controller) Stop() {
	c.mu.Lock()
	r := c.active
	c.mu.Unlock()

	if r == nil || !r.running() {
		return
	}
	zap.L().Info("🛑 Stop requested")
	r.requestStop()
}

// Reset discards any campaign and returns the counters to idle with a single
// log line describing why.
func (c *Controller) Reset(reason string) {
	c.mu.Lock()
	r := c.active
	c.active = nil
	c.baseline = model.Progress{Logs: []string{c.stamp(reason)}}
	c.mu.Unlock()

	if r != nil {
		r.discard()
	}
	zap.L().Warn("♻️ Campaign state reset", zap.String("reason", reason))
}

// ForceKill discards the campaign and hard-restarts the external client. The
// campaign is always discarded; the returned error only reports the restart.
func (c *Controller) ForceKill(ctx context.Context) error {
	c.mu.Lock()
	r := c.active
	c.mu.Unlock()

	var p model.Progress
	if r != nil {
		p = r.snapshot()
	}
	c.Reset("💀 force kill: campaign discarded, bridge restarted")
	c.publishAlways(model.CampaignEvent{Kind: model.EventKilled, Index: p.CurrentIndex, Total: p.Total})

	if c.killer == nil {
		return nil
	}
	if err := c.killer.Kill(ctx); err != nil {
		zap.L().Error("failed to restart bridge", zap.Error(err))
		return fmt.Errorf("failed to restart bridge: %w", err)
	}
	return nil
}

// Progress never waits on the run loop.
func (c *Controller) Progress() model.Progress {
	c.mu.Lock()
	r := c.active
	base := c.baseline
	c.mu.Unlock()

	if r == nil {
		base.Logs = append([]string{}, base.Logs...)
		return base
	}
	return r.snapshot()
}

// Wait blocks until the current campaign loop has exited or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	r := c.active
	c.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) loop(r *run) {
	defer close(r.done)

	if !c.waitReady(r) {
		return
	}

	total := len(r.recipients)
	for i, rec := range r.recipients {
		if r.stopRequested.Load() {
			r.finish(true, c.stamp("🛑 stopped by user"))
			c.publish(r, model.CampaignEvent{Kind: model.EventStopped, Index: i, Total: total})
			zap.L().Info("🛑 Campaign stopped", zap.Int("index", i), zap.Int("total", total))
			return
		}

		err := c.sender.Send(r.ctx, rec)
		if err != nil {
			r.record(false, c.stamp(fmt.Sprintf("❌ failed: %v (%s)", err, rec.Phone)))
			c.publish(r, model.CampaignEvent{Kind: model.EventFailed, Index: i + 1, Total: total, Phone: rec.Phone, Error: err.Error()})
		} else {
			r.record(true, c.stamp("✅ sent to "+rec.Phone))
			c.publish(r, model.CampaignEvent{Kind: model.EventSent, Index: i + 1, Total: total, Phone: rec.Phone})
		}

		if i < total-1 {
			c.pause(r)
		}
	}

	r.finish(false, "")
	c.publish(r, model.CampaignEvent{Kind: model.EventFinished, Index: total, Total: total})
	zap.L().Info("🏁 Campaign finished", zap.Int("total", total))
}

// waitReady holds the first send until the session is ready. It reports
// false when the run ended while waiting.
func (c *Controller) waitReady(r *run) bool {
	if c.session == nil || c.session.CurrentState().Ready() {
		return true
	}

	r.log(c.stamp("⏳ waiting for WhatsApp connection"))
	var deadline <-chan time.Time
	if c.cfg.ReadyTimeout > 0 {
		timer := time.NewTimer(c.cfg.ReadyTimeout)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(c.cfg.ReadyPoll)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.finish(true, c.stamp("🛑 stopped by user"))
			c.publish(r, model.CampaignEvent{Kind: model.EventStopped, Total: len(r.recipients)})
			return false
		case <-deadline:
			r.finish(false, c.stamp("⌛ bridge connection timed out"))
			c.publish(r, model.CampaignEvent{Kind: model.EventTimedOut, Total: len(r.recipients)})
			zap.L().Warn("⌛ Bridge did not become ready", zap.Duration("timeout", c.cfg.ReadyTimeout))
			return false
		case <-ticker.C:
			if c.session.CurrentState().Ready() {
				return true
			}
		}
	}
}

// pause waits the configured delay plus jitter, never less than a second.
// A stop request ends the wait early.
func (c *Controller) pause(r *run) {
	if r.opts.Delay <= 0 {
		return
	}
	wait := r.opts.Delay + c.jitter()
	if wait < time.Second {
		wait = time.Second
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-r.stopCh:
	}
}

func (c *Controller) stamp(line string) string {
	return fmt.Sprintf("[%s] %s", c.now().Format("15:04:05"), line)
}

// publish drops events from discarded runs.
func (c *Controller) publish(r *run, ev model.CampaignEvent) {
	if r.discarded.Load() {
		return
	}
	c.publishAlways(ev)
}

func (c *Controller) publishAlways(ev model.CampaignEvent) {
	if c.queue == nil {
		return
	}
	ev.At = c.now()
	if err := c.queue.Publish(queue.TopicCampaignEvents, ev); err != nil {
		zap.L().Debug("campaign event not published", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}
