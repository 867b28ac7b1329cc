// internal/model/recipient.go
package model

type Recipient struct {
	Phone     string `json:"phone"`
	Message   string `json:"message"`
	ImagePath string `json:"imagePath,omitempty"`
}

// HasMedia reports whether an attachment was requested. The sender still
// checks that the file exists.
func (r Recipient) HasMedia() bool {
	return r.ImagePath != ""
}
