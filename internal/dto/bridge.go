package dto

import "github.com/unclebandit/thunderlink/internal/model"

type QRResponse struct {
	QR *string `json:"qr"`
}

type BridgeStatusResponse struct {
	Ready      bool                  `json:"ready"`
	DeviceInfo *model.DeviceInfo     `json:"deviceInfo"`
	State      model.ConnectionState `json:"state"`
	QR         *string               `json:"qr"`
	Reason     string                `json:"reason,omitempty"`
}

type SendRequest struct {
	Phone     string  `json:"phone" validate:"required"`
	Message   string  `json:"message" validate:"required"`
	ImagePath *string `json:"imagePath,omitempty"`
}

type SendResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	// Code carries the failure reason, e.g. "invalid_recipient".
	Code string `json:"code,omitempty"`
}

type ScreenshotResponse struct {
	Screenshot *string `json:"screenshot"`
	Error      string  `json:"error,omitempty"`
}

type StatusMessageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
