// internal/controller/campaign_controller.go
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unclebandit/thunderlink/internal/campaign"
	"github.com/unclebandit/thunderlink/internal/dto"
	appErrors "github.com/unclebandit/thunderlink/internal/errors"
	"github.com/unclebandit/thunderlink/internal/model"
	"github.com/unclebandit/thunderlink/internal/recipients"
)

const maxUploadMemory = 32 << 20

type CampaignRunner interface {
	Start(phones []string, opts campaign.Options) (int, error)
	Stop()
	ForceKill(ctx context.Context) error
	Reset(reason string)
}

type StatusProvider interface {
	Snapshot() model.StatusSnapshot
}

// BridgeAPI is the orchestrator's view of the bridge process.
type BridgeAPI interface {
	Logout(ctx context.Context) error
	Screenshot(ctx context.Context) (*dto.ScreenshotResponse, error)
}

type BridgeRestarter interface {
	Kill(ctx context.Context) error
}

type SessionMirror interface {
	Reset()
	Online() bool
}

type CampaignController struct {
	Campaign  CampaignRunner
	Status    StatusProvider
	Bridge    BridgeAPI
	Restarter BridgeRestarter
	Mirror    SessionMirror

	UploadDir    string
	DefaultDelay time.Duration

	validate *validator.Validate
}

func NewCampaignController(runner CampaignRunner, status StatusProvider, bridge BridgeAPI, restarter BridgeRestarter, mirror SessionMirror, uploadDir string, defaultDelay time.Duration) *CampaignController {
	return &CampaignController{
		Campaign:     runner,
		Status:       status,
		Bridge:       bridge,
		Restarter:    restarter,
		Mirror:       mirror,
		UploadDir:    uploadDir,
		DefaultDelay: defaultDelay,
		validate:     validator.New(),
	}
}

func (c *CampaignController) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.Status.Snapshot())
}

func (c *CampaignController) GetQR(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dto.QRResponse{QR: c.Status.Snapshot().QRCode})
}

// StartBulk reads the recipient list and optional image from a multipart form
// and launches the campaign in the background.
func (c *CampaignController) StartBulk(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "invalid form: " + err.Error()})
		return
	}

	form := dto.StartBulkForm{
		Message: strings.TrimSpace(r.FormValue("message")),
		Numbers: r.FormValue("numbers"),
	}
	if raw := strings.TrimSpace(r.FormValue("delay")); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "delay must be a whole number of seconds"})
			return
		}
		form.Delay = &d
	}
	if err := c.validate.Struct(&form); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	phones, err := c.readRecipients(r, form.Numbers)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}
	imagePath, err := c.saveImage(r)
	if err != nil {
		zap.L().Error("failed to store uploaded image", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to store image"})
		return
	}

	opts := campaign.Options{Message: form.Message, ImagePath: imagePath, Delay: c.DefaultDelay}
	if form.Delay != nil {
		opts.Delay = time.Duration(*form.Delay) * time.Second
	}

	total, err := c.Campaign.Start(phones, opts)
	if err != nil {
		if imagePath != "" {
			os.Remove(imagePath)
		}
		switch {
		case errors.Is(err, appErrors.ErrAlreadyRunning):
			writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: err.Error()})
		case errors.Is(err, appErrors.ErrEmptyRecipients):
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusOK, dto.StartBulkResponse{Status: "started", Total: total})
}

// ParseCSV previews the numbers a contact sheet would produce.
func (c *CampaignController) ParseCSV(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "invalid form: " + err.Error()})
		return
	}
	file, _, err := r.FormFile("csv_file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "csv_file is required"})
		return
	}
	defer file.Close()

	phones, err := recipients.ParseCSV(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	preview := phones
	if len(preview) > recipients.PreviewLimit {
		preview = preview[:recipients.PreviewLimit]
	}
	if preview == nil {
		preview = []string{}
	}
	writeJSON(w, http.StatusOK, dto.ParseCSVResponse{Status: "success", Count: len(phones), Numbers: preview})
}

func (c *CampaignController) StopTask(w http.ResponseWriter, r *http.Request) {
	c.Campaign.Stop()
	writeJSON(w, http.StatusOK, dto.StatusMessageResponse{Status: "success"})
}

// ForceKill always reports success: the campaign is discarded even when the
// bridge restart fails.
func (c *CampaignController) ForceKill(w http.ResponseWriter, r *http.Request) {
	msg := "campaign discarded and bridge restarted"
	if err := c.Campaign.ForceKill(r.Context()); err != nil {
		msg = "campaign discarded; " + err.Error()
	}
	if c.Mirror != nil {
		c.Mirror.Reset()
	}
	writeJSON(w, http.StatusOK, dto.StatusMessageResponse{Status: "success", Message: msg})
}

// Logout clears the campaign, unlinks the device and restarts the bridge.
func (c *CampaignController) Logout(w http.ResponseWriter, r *http.Request) {
	zap.L().Info("🚪 Logging out and clearing session")
	c.Campaign.Reset("🚪 logged out, session cleared")

	resp := dto.StatusMessageResponse{Status: "success"}
	if err := c.Bridge.Logout(r.Context()); err != nil {
		zap.L().Warn("bridge logout failed", zap.Error(err))
		resp.Message = err.Error()
	}
	if c.Restarter != nil {
		if err := c.Restarter.Kill(r.Context()); err != nil {
			zap.L().Error("failed to restart bridge after logout", zap.Error(err))
			resp.Message = strings.TrimPrefix(resp.Message+"; "+err.Error(), "; ")
		}
	}
	if c.Mirror != nil {
		c.Mirror.Reset()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (c *CampaignController) Screenshot(w http.ResponseWriter, r *http.Request) {
	shot, err := c.Bridge.Screenshot(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, dto.ScreenshotResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, shot)
}

func (c *CampaignController) Healthz(w http.ResponseWriter, r *http.Request) {
	online := c.Mirror != nil && c.Mirror.Online()
	writeJSON(w, http.StatusOK, dto.HealthResponse{Status: "ok", BridgeOnline: online})
}

func (c *CampaignController) readRecipients(r *http.Request, numbers string) ([]string, error) {
	var fromCSV []string
	file, _, err := r.FormFile("csv_file")
	switch {
	case err == nil:
		defer file.Close()
		fromCSV, err = recipients.ParseCSV(file)
		if err != nil {
			return nil, err
		}
	case !errors.Is(err, http.ErrMissingFile):
		return nil, fmt.Errorf("failed to read csv_file: %w", err)
	}
	return recipients.Dedupe(fromCSV, recipients.ParseList(numbers)), nil
}

// saveImage stores the optional image as <uuid>_<name> and returns its path.
func (c *CampaignController) saveImage(r *http.Request) (string, error) {
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "", nil
	}
	if err := os.MkdirAll(c.UploadDir, 0o755); err != nil {
		return "", err
	}
	path, err := filepath.Abs(filepath.Join(c.UploadDir, uuid.NewString()+"_"+name))
	if err != nil {
		return "", err
	}
	if err := writeUpload(path, file); err != nil {
		return "", err
	}
	return path, nil
}

func writeUpload(path string, src multipart.File) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return err
	}
	return dst.Close()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("failed to write response", zap.Error(err))
	}
}
