package whatsapp

import (
	"time"

	"github.com/unclebandit/thunderlink/internal/model"
)

// Transition applies ev to s and returns the next session. auth_failed only
// leaves through Logout, which resets the session outside of this function.
func Transition(s model.Session, ev Event, now time.Time) model.Session {
	if s.State == model.StateAuthFailed {
		return s
	}

	var next model.Session
	switch ev.Type {
	case EventQR:
		if ev.QR == "" {
			return s
		}
		next = model.Session{State: model.StateAwaitingScan, QR: ev.QR}
	case EventAuthenticated:
		next = model.Session{State: model.StateAuthenticated}
	case EventReady:
		dev := model.DeviceInfo{}
		if ev.Device != nil {
			dev = *ev.Device
		}
		next = model.Session{State: model.StateReady, Device: &dev}
	case EventAuthFailure:
		next = model.Session{State: model.StateAuthFailed, Reason: ev.Reason}
	case EventDisconnected:
		next = model.Session{State: model.StateDisconnected, Reason: ev.Reason}
	default:
		return s
	}

	next.UpdatedAt = now
	return next
}
