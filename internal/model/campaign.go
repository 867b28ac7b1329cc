// internal/model/campaign.go
package model

// Progress is the campaign half of a status snapshot.
type Progress struct {
	CurrentIndex int      `json:"current_index"`
	Total        int      `json:"total"`
	Success      int      `json:"success"`
	Failed       int      `json:"failed"`
	Logs         []string `json:"logs"`
	Running      bool     `json:"is_running"`
	Stopped      bool     `json:"-"`
}

// Complete is true only when every recipient was attempted and the run ended.
func (p Progress) Complete() bool {
	return !p.Running && p.Total > 0 && p.CurrentIndex == p.Total
}
