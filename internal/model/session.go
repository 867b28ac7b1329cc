// internal/model/session.go
package model

import (
	"fmt"
	"time"
)

type ConnectionState string

const (
	StateUnpaired      ConnectionState = "unpaired"
	StateAwaitingScan  ConnectionState = "awaiting_scan"
	StateAuthenticated ConnectionState = "authenticated"
	StateReady         ConnectionState = "ready"
	StateDisconnected  ConnectionState = "disconnected"
	StateAuthFailed    ConnectionState = "auth_failed"
)

// DeviceInfo identifies the paired account.
type DeviceInfo struct {
	PushName string `json:"pushname"`
	Number   string `json:"number"`
}

func (d DeviceInfo) String() string {
	if d.PushName == "" {
		return d.Number
	}
	return fmt.Sprintf("%s (%s)", d.PushName, d.Number)
}

// Session is a point-in-time copy of the connection state. QR is only set while
// awaiting a scan and Device only while ready.
type Session struct {
	State     ConnectionState `json:"state"`
	QR        string          `json:"qr,omitempty"`
	Device    *DeviceInfo     `json:"deviceInfo,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (s Session) Ready() bool {
	return s.State == StateReady
}

// Clone returns a copy that shares no pointers with s.
func (s Session) Clone() Session {
	if s.Device != nil {
		d := *s.Device
		s.Device = &d
	}
	return s
}
