// internal/model/status.go
package model

const (
	StepIdle          = "idle"
	StepWaitingForQR  = "waiting_for_qr"
	StepConnected     = "connected"
	StepSending       = "sending"
	StepFinished      = "finished"
	StepStopped       = "stopped"
	StepBridgeOffline = "bridge_offline"
)

// StatusSnapshot is what pollers of /status receive.
type StatusSnapshot struct {
	CurrentIndex  int      `json:"current_index"`
	Total         int      `json:"total"`
	Success       int      `json:"success"`
	Failed        int      `json:"failed"`
	Logs          []string `json:"logs"`
	QRCode        *string  `json:"qr_code"`
	IsRunning     bool     `json:"is_running"`
	ConnectedUser *string  `json:"connected_user"`
	Step          string   `json:"step"`
}

func (s StatusSnapshot) Complete() bool {
	return !s.IsRunning && s.Total > 0 && s.CurrentIndex == s.Total
}
