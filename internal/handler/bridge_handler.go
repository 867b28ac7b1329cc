// internal/handler/bridge_handler.go
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/unclebandit/thunderlink/internal/dto"
	appErrors "github.com/unclebandit/thunderlink/internal/errors"
	"github.com/unclebandit/thunderlink/internal/model"
	"github.com/unclebandit/thunderlink/internal/whatsapp"
)

// BridgeService is the part of whatsapp.Bridge the HTTP layer uses.
type BridgeService interface {
	CurrentState() model.Session
	Send(ctx context.Context, r model.Recipient) error
	Logout(ctx context.Context) error
	Screenshot(ctx context.Context) ([]byte, error)
}

// BridgeHandler serves the bridge process API consumed by the orchestrator.
type BridgeHandler struct {
	Bridge   BridgeService
	validate *validator.Validate

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

func NewBridgeHandler(b BridgeService) *BridgeHandler {
	return &BridgeHandler{
		Bridge:   b,
		validate: validator.New(),
		shutdown: make(chan struct{}),
	}
}

// GetQR returns the pending pairing code as a PNG, or null once paired.
func (h *BridgeHandler) GetQR(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dto.QRResponse{QR: qrImage(h.Bridge.CurrentState())})
}

func (h *BridgeHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	s := h.Bridge.CurrentState()
	writeJSON(w, http.StatusOK, dto.BridgeStatusResponse{
		Ready:      s.Ready(),
		DeviceInfo: s.Device,
		State:      s.State,
		QR:         qrImage(s),
		Reason:     s.Reason,
	})
}

// Send blocks until the client acknowledges the message or fails.
func (h *BridgeHandler) Send(w http.ResponseWriter, r *http.Request) {
	var body dto.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.SendResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if err := h.validate.Struct(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.SendResponse{Error: err.Error()})
		return
	}

	recipient := model.Recipient{Phone: body.Phone, Message: body.Message}
	if body.ImagePath != nil {
		recipient.ImagePath = *body.ImagePath
	}

	err := h.Bridge.Send(r.Context(), recipient)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, dto.SendResponse{Success: true})
	case appErrors.IsNotReady(err):
		writeJSON(w, http.StatusServiceUnavailable, dto.ErrorResponse{Error: "not ready"})
	default:
		writeJSON(w, http.StatusInternalServerError, dto.SendResponse{Error: err.Error(), Code: string(appErrors.ReasonOf(err))})
	}
}

func (h *BridgeHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Bridge.Logout(r.Context()); err != nil {
		zap.L().Warn("logout finished with errors", zap.Error(err))
		writeJSON(w, http.StatusOK, dto.StatusMessageResponse{Status: "success", Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, dto.StatusMessageResponse{Status: "success"})
}

func (h *BridgeHandler) Screenshot(w http.ResponseWriter, r *http.Request) {
	png, err := h.Bridge.Screenshot(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, dto.ScreenshotResponse{Error: err.Error()})
		return
	}
	encoded := base64.StdEncoding.EncodeToString(png)
	writeJSON(w, http.StatusOK, dto.ScreenshotResponse{Screenshot: &encoded})
}

// Shutdown asks the bridge process to exit. Credentials are kept.
func (h *BridgeHandler) Shutdown(w http.ResponseWriter, r *http.Request) {
	zap.L().Warn("💀 Shutdown requested")
	writeJSON(w, http.StatusAccepted, dto.StatusMessageResponse{Status: "success", Message: "shutting down"})
	h.shutdownOnce.Do(func() { close(h.shutdown) })
}

// ShutdownRequested is closed once a shutdown has been asked for.
func (h *BridgeHandler) ShutdownRequested() <-chan struct{} {
	return h.shutdown
}

func qrImage(s model.Session) *string {
	if s.State != model.StateAwaitingScan || s.QR == "" {
		return nil
	}
	png, err := whatsapp.QRPNGBase64(s.QR)
	if err != nil {
		zap.L().Error("failed to encode qrcode", zap.Error(err))
		return nil
	}
	return &png
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("failed to write response", zap.Error(err))
	}
}
