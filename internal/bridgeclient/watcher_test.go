package bridgeclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/unclebandit/thunderlink/internal/dto"
	"github.com/unclebandit/thunderlink/internal/model"
)

type stubFetcher struct {
	mu     sync.Mutex
	status *dto.BridgeStatusResponse
	err    error
	calls  int
}

func (s *stubFetcher) Status(ctx context.Context) (*dto.BridgeStatusResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.status, s.err
}

func (s *stubFetcher) set(status *dto.BridgeStatusResponse, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status, s.err = status, err
}

func strPtr(s string) *string { return &s }

func TestWatcherMirrorsBridgeSession(t *testing.T) {
	f := &stubFetcher{}
	w := NewWatcher(f, time.Second, nil)
	ctx := context.Background()

	f.set(&dto.BridgeStatusResponse{State: model.StateAwaitingScan, QR: strPtr("cG5n")}, nil)
	w.Refresh(ctx)
	s := w.CurrentState()
	assert.Equal(t, model.StateAwaitingScan, s.State)
	assert.Equal(t, "cG5n", s.QR)
	assert.Nil(t, s.Device)
	assert.True(t, w.Online())

	f.set(&dto.BridgeStatusResponse{
		Ready:      true,
		State:      model.StateReady,
		DeviceInfo: &model.DeviceInfo{PushName: "Shop", Number: "1"},
		QR:         strPtr("stale"),
	}, nil)
	w.Refresh(ctx)
	s = w.CurrentState()
	assert.Equal(t, model.StateReady, s.State)
	assert.Empty(t, s.QR)
	require.NotNil(t, s.Device)
	assert.Equal(t, "Shop (1)", s.Device.String())
}

func TestWatcherLegacyStatusWithoutState(t *testing.T) {
	s := fromStatus(&dto.BridgeStatusResponse{Ready: true, DeviceInfo: &model.DeviceInfo{Number: "1"}})
	assert.Equal(t, model.StateReady, s.State)

	s = fromStatus(&dto.BridgeStatusResponse{State: model.StateAwaitingScan})
	assert.Equal(t, model.StateUnpaired, s.State, "awaiting scan without a QR is not reported")
}

func TestWatcherOfflineCallsHook(t *testing.T) {
	f := &stubFetcher{err: errors.New("connection refused")}
	var offline int
	w := NewWatcher(f, time.Second, func(ctx context.Context) { offline++ })

	w.Refresh(context.Background())

	s := w.CurrentState()
	assert.Equal(t, model.StateDisconnected, s.State)
	assert.Equal(t, "bridge offline", s.Reason)
	assert.False(t, w.Online())
	assert.Equal(t, 1, offline)
}

func TestWatcherReset(t *testing.T) {
	f := &stubFetcher{status: &dto.BridgeStatusResponse{Ready: true, State: model.StateReady, DeviceInfo: &model.DeviceInfo{Number: "1"}}}
	w := NewWatcher(f, time.Second, nil)
	w.Refresh(context.Background())

	w.Reset()
	s := w.CurrentState()
	assert.Equal(t, model.StateUnpaired, s.State)
	assert.Nil(t, s.Device)
}

type heldFetcher struct {
	started chan struct{}
	release chan struct{}
	status  *dto.BridgeStatusResponse
}

func (h *heldFetcher) Status(ctx context.Context) (*dto.BridgeStatusResponse, error) {
	close(h.started)
	<-h.release
	return h.status, nil
}

func TestWatcherResetDiscardsPollInFlight(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := &heldFetcher{
		started: make(chan struct{}),
		release: make(chan struct{}),
		status:  &dto.BridgeStatusResponse{Ready: true, State: model.StateReady, DeviceInfo: &model.DeviceInfo{PushName: "old", Number: "1"}},
	}
	w := NewWatcher(f, time.Second, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Refresh(context.Background())
	}()
	<-f.started

	w.Reset()
	close(f.release)
	<-done

	s := w.CurrentState()
	assert.Equal(t, model.StateUnpaired, s.State)
	assert.Nil(t, s.Device, "killed bridge's account must not come back")
	assert.False(t, w.Online())
}

func TestWatcherRunStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)

	f := &stubFetcher{status: &dto.BridgeStatusResponse{State: model.StateUnpaired}}
	w := NewWatcher(f, 5*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.calls >= 3
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
