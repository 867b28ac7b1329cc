package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/thunderlink/internal/errors"
	"github.com/unclebandit/thunderlink/internal/model"
)

var ErrNoSurface = errors.New("client has no rendered surface to capture")

// Bridge owns the external client and the Session derived from its events.
//
// The event loop goroutine is the only writer of the session. Every other
// method reads a copy under the read lock, so status requests never wait on a
// send in flight.
type Bridge struct {
	newClient ClientFactory
	now       func() time.Time

	mu      sync.RWMutex
	session model.Session
	client  Client
	cancel  context.CancelFunc
	started bool

	wg         sync.WaitGroup
	loggedOut  chan struct{}
	logoutOnce sync.Once
}

func NewBridge(factory ClientFactory) *Bridge {
	if factory == nil {
		panic("whatsapp: ClientFactory must not be nil")
	}
	return &Bridge{
		newClient: factory,
		now:       time.Now,
		session:   model.Session{State: model.StateUnpaired, UpdatedAt: time.Now()},
		loggedOut: make(chan struct{}),
	}
}

// Start creates the external client, begins consuming its events and connects.
// It can only be called once per Bridge.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return fmt.Errorf("whatsapp: bridge already started")
	}
	b.started = true
	b.mu.Unlock()

	c, err := b.newClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.client = c
	b.cancel = cancel
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.eventLoop(loopCtx, c)
	}()

	zap.L().Info("🚀 Initializing WhatsApp client")
	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect client: %w", err)
	}
	return nil
}

func (b *Bridge) eventLoop(ctx context.Context, c Client) {
	events := c.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			b.apply(c, ev)
		}
	}
}

func (b *Bridge) apply(c Client, ev Event) {
	b.mu.Lock()
	if b.client != c {
		// event from a client that was already torn down
		b.mu.Unlock()
		return
	}
	prev := b.session.State
	b.session = Transition(b.session, ev, b.now())
	next := b.session.Clone()
	b.mu.Unlock()

	logTransition(ev, prev, next)
}

func logTransition(ev Event, prev model.ConnectionState, next model.Session) {
	fields := []zap.Field{
		zap.String("event", string(ev.Type)),
		zap.String("from", string(prev)),
		zap.String("to", string(next.State)),
	}
	if ev.Reason != "" {
		fields = append(fields, zap.String("reason", ev.Reason))
	}

	switch ev.Type {
	case EventQR:
		zap.L().Info("--- SCAN THIS QR CODE ---\n"+QRTerminal(ev.QR), fields...)
	case EventReady:
		if next.Device != nil {
			fields = append(fields, zap.String("account", next.Device.String()))
		}
		zap.L().Info("✅ WhatsApp Bridge is READY", fields...)
	case EventAuthenticated:
		zap.L().Info("🔐 Authenticated successfully", fields...)
	case EventAuthFailure:
		zap.L().Error("❌ Authentication failure", fields...)
	case EventDisconnected:
		zap.L().Warn("🔌 Disconnected", fields...)
	}
}

// CurrentState returns a copy of the session. It never blocks on a send.
func (b *Bridge) CurrentState() model.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session.Clone()
}

// Send delivers one message and blocks until the client acknowledges or
// fails. There is no timeout beyond what ctx carries.
func (b *Bridge) Send(ctx context.Context, r model.Recipient) error {
	b.mu.RLock()
	state, c := b.session.State, b.client
	b.mu.RUnlock()

	if state != model.StateReady || c == nil {
		return appErrors.NewNotReady(r.Phone)
	}

	chatID, err := NormalizeChatID(r.Phone)
	if err != nil {
		return appErrors.NewInvalidRecipient(r.Phone, err)
	}

	m, err := loadMedia(r.ImagePath)
	if err != nil {
		return appErrors.NewExternalFailure(r.Phone, err)
	}

	if m != nil {
		err = c.SendImage(ctx, chatID, m.Data, m.Mimetype, r.Message)
	} else {
		if r.HasMedia() {
			zap.L().Warn("media not usable, sending text only", zap.String("path", r.ImagePath))
		}
		err = c.SendText(ctx, chatID, r.Message)
	}
	if err != nil {
		zap.L().Error("failed to send", zap.String("phone", r.Phone), zap.Error(err))
		return appErrors.NewExternalFailure(r.Phone, err)
	}

	if m != nil {
		zap.L().Info("🖼️ Sent image+caption", zap.String("phone", r.Phone))
	} else {
		zap.L().Info("✍️ Sent text", zap.String("phone", r.Phone))
	}
	return nil
}

// Logout deletes the persisted credentials and tears down the client. The
// session returns to unpaired. Calling it again is a no-op.
func (b *Bridge) Logout(ctx context.Context) error {
	b.mu.Lock()
	c, cancel := b.client, b.cancel
	b.client = nil
	b.cancel = nil
	b.session = model.Session{State: model.StateUnpaired, UpdatedAt: b.now()}
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c == nil {
		return nil
	}

	zap.L().Info("🚪 Logging out and clearing session")
	err := c.Logout(ctx)
	c.Disconnect()
	b.logoutOnce.Do(func() { close(b.loggedOut) })

	if err != nil {
		return fmt.Errorf("failed to logout client: %w", err)
	}
	return nil
}

// LoggedOut is closed after the first Logout that tore down a client.
func (b *Bridge) LoggedOut() <-chan struct{} {
	return b.loggedOut
}

// Screenshot captures the client's visible surface. Protocol clients have
// none; while a scan is pending the pairing QR stands in for it.
func (b *Bridge) Screenshot(ctx context.Context) ([]byte, error) {
	b.mu.RLock()
	c, s := b.client, b.session.Clone()
	b.mu.RUnlock()

	if sc, ok := c.(Screenshotter); ok {
		return sc.Screenshot(ctx)
	}
	if s.State == model.StateAwaitingScan && s.QR != "" {
		return qrPNG(s.QR)
	}
	return nil, ErrNoSurface
}

// Close disconnects the client without touching credentials and waits for the
// event loop to exit.
func (b *Bridge) Close() {
	b.mu.Lock()
	c, cancel := b.client, b.cancel
	b.client = nil
	b.cancel = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		c.Disconnect()
	}
	b.wg.Wait()
}
