package whatsapp

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	appErrors "github.com/unclebandit/thunderlink/internal/errors"
	"github.com/unclebandit/thunderlink/internal/model"
)

func startBridge(t *testing.T) (*Bridge, *fakeClient) {
	t.Helper()
	fc := newFakeClient()
	b := NewBridge(func(ctx context.Context) (Client, error) { return fc, nil })
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(b.Close)
	return b, fc
}

func waitState(t *testing.T, b *Bridge, want model.ConnectionState) model.Session {
	t.Helper()
	require.Eventually(t, func() bool {
		return b.CurrentState().State == want
	}, time.Second, 5*time.Millisecond)
	return b.CurrentState()
}

func makeReady(t *testing.T, b *Bridge, fc *fakeClient) {
	t.Helper()
	fc.events <- Event{Type: EventQR, QR: "2@qr"}
	fc.events <- Event{Type: EventAuthenticated}
	fc.events <- Event{Type: EventReady, Device: &model.DeviceInfo{PushName: "Shop", Number: "254700000001"}}
	waitState(t, b, model.StateReady)
}

func TestBridgeStartsOnce(t *testing.T) {
	b, fc := startBridge(t)
	assert.Equal(t, 1, fc.connected)
	assert.Error(t, b.Start(context.Background()))
	assert.Equal(t, model.StateUnpaired, b.CurrentState().State)
}

func TestBridgeQRThenReadySwapsTogether(t *testing.T) {
	b, fc := startBridge(t)

	fc.events <- Event{Type: EventQR, QR: "2@qr"}
	s := waitState(t, b, model.StateAwaitingScan)
	assert.Equal(t, "2@qr", s.QR)
	assert.Nil(t, s.Device)

	fc.events <- Event{Type: EventReady, Device: &model.DeviceInfo{PushName: "Shop", Number: "1"}}
	s = waitState(t, b, model.StateReady)
	assert.Empty(t, s.QR)
	assert.NotNil(t, s.Device)
}

func TestBridgeConcurrentReadsSeeConsistentSession(t *testing.T) {
	b, fc := startBridge(t)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				s := b.CurrentState()
				assert.Equal(t, s.State == model.StateAwaitingScan, s.QR != "")
				assert.Equal(t, s.State == model.StateReady, s.Device != nil)
			}
		}()
	}

	for i := 0; i < 20; i++ {
		fc.events <- Event{Type: EventQR, QR: "code"}
		fc.events <- Event{Type: EventReady, Device: &model.DeviceInfo{Number: "1"}}
		fc.events <- Event{Type: EventDisconnected}
	}
	waitState(t, b, model.StateDisconnected)
	close(stop)
	wg.Wait()
}

func TestBridgeSendNotReady(t *testing.T) {
	b, fc := startBridge(t)

	err := b.Send(context.Background(), model.Recipient{Phone: "+254700000001", Message: "hi"})
	require.Error(t, err)
	assert.True(t, appErrors.IsNotReady(err))
	assert.Empty(t, fc.Sent())
}

func TestBridgeSendText(t *testing.T) {
	b, fc := startBridge(t)
	makeReady(t, b, fc)

	require.NoError(t, b.Send(context.Background(), model.Recipient{Phone: "+254 700 000 001", Message: "hi"}))
	require.Len(t, fc.Sent(), 1)
	assert.Equal(t, sentMessage{ChatID: "254700000001@s.whatsapp.net", Body: "hi"}, fc.Sent()[0])
}

func TestBridgeSendImageWithCaption(t *testing.T) {
	b, fc := startBridge(t)
	makeReady(t, b, fc)

	path := filepath.Join(t.TempDir(), "promo.png")
	png, err := qrPNG("x")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, png, 0o644))

	require.NoError(t, b.Send(context.Background(), model.Recipient{Phone: "254700000001", Message: "caption", ImagePath: path}))
	sent := fc.Sent()
	require.Len(t, sent, 1)
	assert.True(t, sent[0].Image)
	assert.Equal(t, "image/png", sent[0].Mimetype)
	assert.Equal(t, "caption", sent[0].Body)
}

func TestBridgeSendMissingImageFallsBackToText(t *testing.T) {
	b, fc := startBridge(t)
	makeReady(t, b, fc)

	r := model.Recipient{Phone: "254700000001", Message: "hi", ImagePath: filepath.Join(t.TempDir(), "gone.png")}
	require.NoError(t, b.Send(context.Background(), r))
	require.Len(t, fc.Sent(), 1)
	assert.False(t, fc.Sent()[0].Image)
}

func TestBridgeSendInvalidRecipient(t *testing.T) {
	b, fc := startBridge(t)
	makeReady(t, b, fc)

	err := b.Send(context.Background(), model.Recipient{Phone: "12", Message: "hi"})
	assert.True(t, appErrors.IsInvalidRecipient(err))
	assert.Empty(t, fc.Sent())
}

func TestBridgeSendExternalFailure(t *testing.T) {
	b, fc := startBridge(t)
	makeReady(t, b, fc)
	fc.sendErr = errBoom

	err := b.Send(context.Background(), model.Recipient{Phone: "254700000001", Message: "hi"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ReasonExternalFailure, appErrors.ReasonOf(err))
	assert.ErrorIs(t, err, errBoom)
}

func TestBridgeStatusReadsDoNotWaitOnSend(t *testing.T) {
	b, fc := startBridge(t)
	makeReady(t, b, fc)

	fc.mu.Lock()
	fc.block = make(chan struct{})
	fc.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- b.Send(context.Background(), model.Recipient{Phone: "254700000001", Message: "hi"})
	}()

	for i := 0; i < 100; i++ {
		assert.Equal(t, model.StateReady, b.CurrentState().State)
	}

	close(fc.block)
	require.NoError(t, <-done)
}

func TestBridgeLogoutIsIdempotent(t *testing.T) {
	b, fc := startBridge(t)
	makeReady(t, b, fc)

	require.NoError(t, b.Logout(context.Background()))
	require.NoError(t, b.Logout(context.Background()))

	s := b.CurrentState()
	assert.Equal(t, model.StateUnpaired, s.State)
	assert.Nil(t, s.Device)
	assert.Equal(t, 1, fc.logoutCalls)
	assert.Equal(t, 1, fc.disconnected)

	select {
	case <-b.LoggedOut():
	default:
		t.Fatal("LoggedOut not closed")
	}

	// events from the torn down client are ignored
	fc.events <- Event{Type: EventQR, QR: "late"}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, model.StateUnpaired, b.CurrentState().State)
	assert.True(t, appErrors.IsNotReady(b.Send(context.Background(), model.Recipient{Phone: "254700000001"})))
}

func TestBridgeScreenshot(t *testing.T) {
	b, fc := startBridge(t)

	_, err := b.Screenshot(context.Background())
	assert.ErrorIs(t, err, ErrNoSurface)

	fc.events <- Event{Type: EventQR, QR: "2@qr"}
	waitState(t, b, model.StateAwaitingScan)
	png, err := b.Screenshot(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, png)
}

func TestBridgeCloseStopsEventLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	fc := newFakeClient()
	b := NewBridge(func(ctx context.Context) (Client, error) { return fc, nil })
	require.NoError(t, b.Start(context.Background()))
	b.Close()
	assert.Equal(t, 1, fc.disconnected)
}
