package whatsapp

import (
	"context"

	"github.com/unclebandit/thunderlink/internal/model"
)

type EventType string

const (
	EventQR            EventType = "qr"
	EventAuthenticated EventType = "authenticated"
	EventReady         EventType = "ready"
	EventAuthFailure   EventType = "auth_failure"
	EventDisconnected  EventType = "disconnected"
)

// Event is a lifecycle notification pushed by the external client.
type Event struct {
	Type   EventType
	QR     string
	Device *model.DeviceInfo
	Reason string
}

// Client is the external messaging client. Events are delivered on their own
// schedule; the Bridge is the only consumer of the channel.
type Client interface {
	Events() <-chan Event
	Connect(ctx context.Context) error
	SendText(ctx context.Context, chatID, body string) error
	SendImage(ctx context.Context, chatID string, data []byte, mimetype, caption string) error
	// Logout unlinks the device and deletes the persisted credentials.
	Logout(ctx context.Context) error
	Disconnect()
}

// Screenshotter is implemented by clients that render a visible surface.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// ClientFactory builds the external client. The Bridge calls it once.
type ClientFactory func(ctx context.Context) (Client, error)
