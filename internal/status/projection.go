// internal/status/projection.go
package status

import "github.com/unclebandit/thunderlink/internal/model"

// SessionSource is the orchestrator's mirror of the bridge session.
type SessionSource interface {
	CurrentState() model.Session
	Online() bool
}

type ProgressSource interface {
	Progress() model.Progress
}

// Projection combines the session mirror and the campaign progress into the
// payload served to pollers. Both sources answer from memory.
type Projection struct {
	session  SessionSource
	progress ProgressSource
}

func NewProjection(session SessionSource, progress ProgressSource) *Projection {
	return &Projection{session: session, progress: progress}
}

func (p *Projection) Snapshot() model.StatusSnapshot {
	s := p.session.CurrentState()
	online := p.session.Online()
	prog := p.progress.Progress()

	snap := model.StatusSnapshot{
		CurrentIndex: prog.CurrentIndex,
		Total:        prog.Total,
		Success:      prog.Success,
		Failed:       prog.Failed,
		Logs:         prog.Logs,
		IsRunning:    prog.Running,
	}
	if snap.Logs == nil {
		snap.Logs = []string{}
	}
	if s.State == model.StateAwaitingScan && s.QR != "" {
		qr := s.QR
		snap.QRCode = &qr
	}
	if s.Ready() && s.Device != nil {
		user := s.Device.String()
		snap.ConnectedUser = &user
	}
	snap.Step = step(online, s, prog)
	return snap
}

func step(online bool, s model.Session, p model.Progress) string {
	switch {
	case !online:
		return model.StepBridgeOffline
	case p.Running && s.Ready():
		return model.StepSending
	case s.State == model.StateAwaitingScan:
		return model.StepWaitingForQR
	case p.Complete():
		return model.StepFinished
	case p.Stopped:
		return model.StepStopped
	case s.Ready():
		return model.StepConnected
	default:
		return model.StepIdle
	}
}
