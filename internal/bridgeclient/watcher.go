// internal/bridgeclient/watcher.go
package bridgeclient

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/thunderlink/internal/dto"
	"github.com/unclebandit/thunderlink/internal/model"
)

type StatusFetcher interface {
	Status(ctx context.Context) (*dto.BridgeStatusResponse, error)
}

// Watcher mirrors the bridge session in the orchestrator. It polls the bridge
// on its own schedule so that readers never perform I/O.
type Watcher struct {
	fetcher   StatusFetcher
	interval  time.Duration
	onOffline func(ctx context.Context)

	mu      sync.RWMutex
	session model.Session
	online  bool
	// bumped by Reset; a poll started before it is stale
	gen uint64
}

// NewWatcher creates a Watcher. onOffline, when set, runs after every failed poll.
func NewWatcher(f StatusFetcher, interval time.Duration, onOffline func(ctx context.Context)) *Watcher {
	if interval <= 0 {
		interval = time.Second
	}
	return &Watcher{
		fetcher:   f,
		interval:  interval,
		onOffline: onOffline,
		session:   model.Session{State: model.StateUnpaired, UpdatedAt: time.Now()},
	}
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Refresh(ctx)
		}
	}
}

// Refresh polls the bridge once.
func (w *Watcher) Refresh(ctx context.Context) {
	w.mu.RLock()
	gen := w.gen
	w.mu.RUnlock()

	status, err := w.fetcher.Status(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.mu.Lock()
		if w.gen != gen {
			w.mu.Unlock()
			return
		}
		wasOnline := w.online
		w.online = false
		w.session = model.Session{State: model.StateDisconnected, Reason: "bridge offline", UpdatedAt: time.Now()}
		w.mu.Unlock()

		if wasOnline {
			zap.L().Warn("⚠️ Bridge offline", zap.Error(err))
		}
		if w.onOffline != nil {
			w.onOffline(ctx)
		}
		return
	}

	next := fromStatus(status)
	w.mu.Lock()
	if w.gen != gen {
		w.mu.Unlock()
		return
	}
	wasOnline := w.online
	w.online = true
	w.session = next
	w.mu.Unlock()

	if !wasOnline {
		zap.L().Info("🔗 Bridge online", zap.String("state", string(next.State)))
	}
}

// fromStatus keeps the mirror consistent even if the bridge reported a QR
// alongside a ready flag.
func fromStatus(s *dto.BridgeStatusResponse) model.Session {
	state := s.State
	if state == "" {
		state = model.StateUnpaired
		if s.Ready {
			state = model.StateReady
		} else if s.QR != nil {
			state = model.StateAwaitingScan
		}
	}

	session := model.Session{State: state, Reason: s.Reason, UpdatedAt: time.Now()}
	switch state {
	case model.StateReady:
		dev := model.DeviceInfo{}
		if s.DeviceInfo != nil {
			dev = *s.DeviceInfo
		}
		session.Device = &dev
	case model.StateAwaitingScan:
		if s.QR == nil || *s.QR == "" {
			session.State = model.StateUnpaired
		} else {
			session.QR = *s.QR
		}
	}
	return session
}

// CurrentState returns the last mirrored session. QR holds a base64 PNG.
func (w *Watcher) CurrentState() model.Session {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.session.Clone()
}

func (w *Watcher) Online() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.online
}

// Reset drops the mirrored session, used right after the bridge is killed so
// pollers stop seeing the old account. Polls already in flight are discarded.
func (w *Watcher) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.gen++
	w.online = false
	w.session = model.Session{State: model.StateUnpaired, UpdatedAt: time.Now()}
}
