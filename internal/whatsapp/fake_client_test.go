package whatsapp

import (
	"context"
	"errors"
	"sync"
)

type sentMessage struct {
	ChatID   string
	Body     string
	Image    bool
	Mimetype string
}

// fakeClient records calls and lets tests push lifecycle events.
type fakeClient struct {
	events chan Event

	mu           sync.Mutex
	sent         []sentMessage
	sendErr      error
	logoutCalls  int
	disconnected int
	connected    int
	block        chan struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{events: make(chan Event, 16)}
}

func (f *fakeClient) Events() <-chan Event { return f.events }

func (f *fakeClient) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected++
	return nil
}

func (f *fakeClient) SendText(ctx context.Context, chatID, body string) error {
	return f.record(ctx, sentMessage{ChatID: chatID, Body: body})
}

func (f *fakeClient) SendImage(ctx context.Context, chatID string, data []byte, mimetype, caption string) error {
	return f.record(ctx, sentMessage{ChatID: chatID, Body: caption, Image: true, Mimetype: mimetype})
}

func (f *fakeClient) record(ctx context.Context, m sentMessage) error {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeClient) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	return nil
}

func (f *fakeClient) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected++
}

func (f *fakeClient) Sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

var errBoom = errors.New("boom")
