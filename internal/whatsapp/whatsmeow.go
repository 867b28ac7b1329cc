package whatsapp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/unclebandit/thunderlink/internal/model"
)

const eventBuffer = 64

// WhatsmeowClient adapts a whatsmeow client to the Client interface.
type WhatsmeowClient struct {
	client    *whatsmeow.Client
	events    chan Event
	handlerID uint32

	mu     sync.Mutex
	ctx    context.Context
	closed atomic.Bool
	done   chan struct{}
}

// NewWhatsmeowFactory returns a factory whose clients keep their device
// credentials in db using the given sqlstore dialect.
func NewWhatsmeowFactory(db *sql.DB, dialect string) ClientFactory {
	return func(ctx context.Context) (Client, error) {
		log := NewZapLogger(zap.L(), "whatsmeow")

		container, err := OpenStore(ctx, db, dialect)
		if err != nil {
			return nil, err
		}

		device, err := container.GetFirstDevice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load device: %w", err)
		}

		w := &WhatsmeowClient{
			client: whatsmeow.NewClient(device, log.Sub("Client")),
			events: make(chan Event, eventBuffer),
			done:   make(chan struct{}),
		}
		w.handlerID = w.client.AddEventHandler(w.handleEvent)
		return w, nil
	}
}

// OpenStore opens the device credential store and migrates its schema.
func OpenStore(ctx context.Context, db *sql.DB, dialect string) (*sqlstore.Container, error) {
	container := sqlstore.NewWithDB(db, dialect, NewZapLogger(zap.L(), "whatsmeow").Sub("Database"))
	if err := container.Upgrade(ctx); err != nil {
		return nil, fmt.Errorf("failed to upgrade session store: %w", err)
	}
	return container, nil
}

func (w *WhatsmeowClient) Events() <-chan Event {
	return w.events
}

// Connect opens the websocket. An unpaired device first subscribes to the
// QR channel so the pairing codes reach the Bridge.
func (w *WhatsmeowClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()

	if w.client.Store.ID == nil {
		qrChan, err := w.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("failed to get QR channel: %w", err)
		}
		go w.forwardQR(qrChan)
	}
	return w.client.Connect()
}

func (w *WhatsmeowClient) forwardQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			w.emit(Event{Type: EventQR, QR: item.Code})
		case whatsmeow.QRChannelSuccess.Event:
			w.emit(Event{Type: EventAuthenticated})
		case whatsmeow.QRChannelTimeout.Event:
			w.emit(Event{Type: EventDisconnected, Reason: "qr code timed out"})
			w.reconnect()
		case whatsmeow.QRChannelEventError:
			reason := "pairing error"
			if item.Error != nil {
				reason = item.Error.Error()
			}
			w.emit(Event{Type: EventAuthFailure, Reason: reason})
		default:
			w.emit(Event{Type: EventAuthFailure, Reason: item.Event})
		}
	}
}

// reconnect asks for a fresh batch of QR codes after the previous ones expired.
func (w *WhatsmeowClient) reconnect() {
	if w.closed.Load() {
		return
	}
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	w.client.Disconnect()
	if err := w.Connect(ctx); err != nil {
		zap.L().Error("failed to reconnect for a new QR code", zap.Error(err))
	}
}

func (w *WhatsmeowClient) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.PairSuccess:
		w.emit(Event{Type: EventAuthenticated})
	case *events.Connected:
		w.emit(Event{Type: EventReady, Device: w.deviceInfo()})
	case *events.Disconnected:
		w.emit(Event{Type: EventDisconnected, Reason: "connection lost"})
	case *events.StreamReplaced:
		w.emit(Event{Type: EventDisconnected, Reason: "stream replaced by another connection"})
	case *events.LoggedOut:
		w.emit(Event{Type: EventAuthFailure, Reason: fmt.Sprintf("logged out (reason %v)", v.Reason)})
	case *events.ConnectFailure:
		w.emit(Event{Type: EventAuthFailure, Reason: fmt.Sprintf("connect failure (reason %v): %s", v.Reason, v.Message)})
	case *events.TemporaryBan:
		w.emit(Event{Type: EventAuthFailure, Reason: fmt.Sprintf("temporary ban (code %v, expires in %v)", v.Code, v.Expire)})
	case *events.ClientOutdated:
		w.emit(Event{Type: EventAuthFailure, Reason: "client outdated"})
	}
}

func (w *WhatsmeowClient) deviceInfo() *model.DeviceInfo {
	info := &model.DeviceInfo{PushName: w.client.Store.PushName}
	if w.client.Store.ID != nil {
		info.Number = w.client.Store.ID.User
	}
	return info
}

// emit blocks rather than drop: the Bridge must see every transition.
func (w *WhatsmeowClient) emit(ev Event) {
	if w.closed.Load() {
		return
	}
	select {
	case w.events <- ev:
	case <-w.done:
	}
}

func (w *WhatsmeowClient) SendText(ctx context.Context, chatID, body string) error {
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return err
	}
	_, err = w.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(body),
	})
	return err
}

func (w *WhatsmeowClient) SendImage(ctx context.Context, chatID string, data []byte, mimetype, caption string) error {
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return err
	}

	uploaded, err := w.client.Upload(ctx, data, whatsmeow.MediaImage)
	if err != nil {
		return fmt.Errorf("failed to upload image: %w", err)
	}

	_, err = w.client.SendMessage(ctx, jid, &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{
			URL:               proto.String(uploaded.URL),
			Mimetype:          proto.String(mimetype),
			Caption:           proto.String(caption),
			FileSHA256:        uploaded.FileSHA256,
			FileLength:        proto.Uint64(uploaded.FileLength),
			MediaKey:          uploaded.MediaKey,
			FileEncSHA256:     uploaded.FileEncSHA256,
			DirectPath:        proto.String(uploaded.DirectPath),
			MediaKeyTimestamp: proto.Int64(0),
		},
	})
	return err
}

// Logout unlinks the companion device. When the server cannot be reached the
// local credentials are deleted anyway.
func (w *WhatsmeowClient) Logout(ctx context.Context) error {
	if w.client.Store.ID == nil {
		return nil
	}
	if err := w.client.Logout(ctx); err != nil {
		zap.L().Warn("unlink failed, deleting local credentials", zap.Error(err))
		if delErr := w.client.Store.Delete(ctx); delErr != nil {
			return errors.Join(err, delErr)
		}
	}
	return nil
}

func (w *WhatsmeowClient) Disconnect() {
	if w.closed.Swap(true) {
		return
	}
	close(w.done)
	w.client.RemoveEventHandler(w.handlerID)
	w.client.Disconnect()
}

// zapLogger routes whatsmeow logs through zap.
type zapLogger struct {
	l *zap.SugaredLogger
}

func NewZapLogger(l *zap.Logger, module string) waLog.Logger {
	return &zapLogger{l: l.Named(module).Sugar()}
}

func (z *zapLogger) Errorf(msg string, args ...interface{}) { z.l.Errorf(msg, args...) }
func (z *zapLogger) Warnf(msg string, args ...interface{})  { z.l.Warnf(msg, args...) }
func (z *zapLogger) Infof(msg string, args ...interface{})  { z.l.Infof(msg, args...) }
func (z *zapLogger) Debugf(msg string, args ...interface{}) { z.l.Debugf(msg, args...) }

func (z *zapLogger) Sub(module string) waLog.Logger {
	return &zapLogger{l: z.l.Named(module)}
}
