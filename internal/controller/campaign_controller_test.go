package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/thunderlink/internal/campaign"
	"github.com/unclebandit/thunderlink/internal/controller"
	"github.com/unclebandit/thunderlink/internal/dto"
	appErrors "github.com/unclebandit/thunderlink/internal/errors"
	"github.com/unclebandit/thunderlink/internal/model"
)

// --- Mocks ---

type MockRunner struct {
	startErr error
	phones   []string
	opts     campaign.Options
	stops    int
	kills    int
	killErr  error
	resets   []string
}

func (m *MockRunner) Start(phones []string, opts campaign.Options) (int, error) {
	if m.startErr != nil {
		return 0, m.startErr
	}
	if len(phones) == 0 {
		return 0, appErrors.ErrEmptyRecipients
	}
	m.phones, m.opts = phones, opts
	return len(phones), nil
}
func (m *MockRunner) Stop()                               { m.stops++ }
func (m *MockRunner) ForceKill(ctx context.Context) error { m.kills++; return m.killErr }
func (m *MockRunner) Reset(reason string)                 { m.resets = append(m.resets, reason) }

type MockStatus struct{ snap model.StatusSnapshot }

func (m MockStatus) Snapshot() model.StatusSnapshot { return m.snap }

type MockBridge struct {
	logouts   int
	logoutErr error
	shot      *dto.ScreenshotResponse
	shotErr   error
}

func (m *MockBridge) Logout(ctx context.Context) error { m.logouts++; return m.logoutErr }
func (m *MockBridge) Screenshot(ctx context.Context) (*dto.ScreenshotResponse, error) {
	return m.shot, m.shotErr
}

type MockRestarter struct{ kills int }

func (m *MockRestarter) Kill(ctx context.Context) error { m.kills++; return nil }

type MockMirror struct {
	resets int
	online bool
}

func (m *MockMirror) Reset()       { m.resets++ }
func (m *MockMirror) Online() bool { return m.online }

type fixture struct {
	runner    *MockRunner
	bridge    *MockBridge
	restarter *MockRestarter
	mirror    *MockMirror
	ctrl      *controller.CampaignController
}

func newFixture(t *testing.T, snap model.StatusSnapshot) *fixture {
	f := &fixture{
		runner:    &MockRunner{},
		bridge:    &MockBridge{},
		restarter: &MockRestarter{},
		mirror:    &MockMirror{online: true},
	}
	f.ctrl = controller.NewCampaignController(f.runner, MockStatus{snap: snap}, f.bridge, f.restarter, f.mirror, t.TempDir(), 20*time.Second)
	return f
}

type part struct {
	field, filename, content string
}

func multipartRequest(t *testing.T, path string, parts ...part) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		if p.filename == "" {
			require.NoError(t, mw.WriteField(p.field, p.content))
			continue
		}
		fw, err := mw.CreateFormFile(p.field, p.filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(p.content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var res map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Result().Body).Decode(&res))
	return res
}

// --- Tests ---

func TestGetStatusServesSnapshot(t *testing.T) {
	user := "Shop (254700000001)"
	f := newFixture(t, model.StatusSnapshot{CurrentIndex: 3, Total: 3, Success: 2, Failed: 1, Logs: []string{"a", "b", "c"}, ConnectedUser: &user, Step: model.StepFinished})

	w := httptest.NewRecorder()
	f.ctrl.GetStatus(w, httptest.NewRequest("GET", "/status", nil))

	res := decode(t, w)
	assert.Equal(t, float64(3), res["current_index"])
	assert.Equal(t, float64(2), res["success"])
	assert.Equal(t, false, res["is_running"])
	assert.Equal(t, user, res["connected_user"])
	assert.Nil(t, res["qr_code"])
	assert.Len(t, res["logs"], 3)
}

func TestGetQR(t *testing.T) {
	qr := "iVBORw0KGgo="
	f := newFixture(t, model.StatusSnapshot{QRCode: &qr})

	w := httptest.NewRecorder()
	f.ctrl.GetQR(w, httptest.NewRequest("GET", "/qr", nil))
	assert.Equal(t, qr, decode(t, w)["qr"])
}

func TestStartBulkWithCSVAndImage(t *testing.T) {
	f := newFixture(t, model.StatusSnapshot{})

	req := multipartRequest(t, "/start-bulk",
		part{field: "message", content: "Hello!"},
		part{field: "delay", content: "5"},
		part{field: "csv_file", filename: "list.csv", content: "phone\n254700000001\n254700000002.0\n254700000001\n"},
		part{field: "image", filename: "promo.png", content: "\x89PNG\r\n\x1a\n"},
	)
	w := httptest.NewRecorder()
	f.ctrl.StartBulk(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	res := decode(t, w)
	assert.Equal(t, "started", res["status"])
	assert.Equal(t, float64(2), res["total"])

	assert.Equal(t, []string{"+254700000001", "+254700000002"}, f.runner.phones)
	assert.Equal(t, "Hello!", f.runner.opts.Message)
	assert.Equal(t, 5*time.Second, f.runner.opts.Delay)

	require.NotEmpty(t, f.runner.opts.ImagePath)
	assert.True(t, strings.HasSuffix(f.runner.opts.ImagePath, "_promo.png"))
	assert.Equal(t, f.ctrl.UploadDir, filepath.Dir(f.runner.opts.ImagePath))
	_, err := os.Stat(f.runner.opts.ImagePath)
	assert.NoError(t, err)
}

func TestStartBulkDefaultsAndNumbersField(t *testing.T) {
	f := newFixture(t, model.StatusSnapshot{})

	req := multipartRequest(t, "/start-bulk",
		part{field: "message", content: "hi"},
		part{field: "numbers", content: "254700000009\n254700000008"},
	)
	w := httptest.NewRecorder()
	f.ctrl.StartBulk(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"+254700000009", "+254700000008"}, f.runner.phones)
	assert.Equal(t, 20*time.Second, f.runner.opts.Delay)
	assert.Empty(t, f.runner.opts.ImagePath)
}

func TestStartBulkRejections(t *testing.T) {
	tests := []struct {
		name  string
		parts []part
	}{
		{"missing message", []part{{field: "numbers", content: "254700000001"}}},
		{"empty list", []part{{field: "message", content: "hi"}, {field: "csv_file", filename: "x.csv", content: "phone\n"}}},
		{"bad delay", []part{{field: "message", content: "hi"}, {field: "numbers", content: "1"}, {field: "delay", content: "soon"}}},
		{"negative delay", []part{{field: "message", content: "hi"}, {field: "numbers", content: "1"}, {field: "delay", content: "-3"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, model.StatusSnapshot{})
			w := httptest.NewRecorder()
			f.ctrl.StartBulk(w, multipartRequest(t, "/start-bulk", tt.parts...))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, decode(t, w)["error"])
			assert.Nil(t, f.runner.phones)
		})
	}
}

func TestStartBulkWhileRunning(t *testing.T) {
	f := newFixture(t, model.StatusSnapshot{})
	f.runner.startErr = appErrors.ErrAlreadyRunning

	req := multipartRequest(t, "/start-bulk",
		part{field: "message", content: "hi"},
		part{field: "numbers", content: "254700000001"},
		part{field: "image", filename: "promo.png", content: "png"},
	)
	w := httptest.NewRecorder()
	f.ctrl.StartBulk(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, appErrors.ErrAlreadyRunning.Error(), decode(t, w)["error"])

	entries, err := os.ReadDir(f.ctrl.UploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected upload is cleaned up")
}

func TestStartBulkEmptyListWhileRunningConflicts(t *testing.T) {
	f := newFixture(t, model.StatusSnapshot{})
	f.runner.startErr = appErrors.ErrAlreadyRunning

	w := httptest.NewRecorder()
	f.ctrl.StartBulk(w, multipartRequest(t, "/start-bulk",
		part{field: "message", content: "hi"},
		part{field: "csv_file", filename: "x.csv", content: "phone\n"},
	))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, appErrors.ErrAlreadyRunning.Error(), decode(t, w)["error"])
}

func TestParseCSVPreview(t *testing.T) {
	f := newFixture(t, model.StatusSnapshot{})

	w := httptest.NewRecorder()
	f.ctrl.ParseCSV(w, multipartRequest(t, "/parse-csv",
		part{field: "csv_file", filename: "list.csv", content: "cc,number\n254,700000001\n1,5550100\n"},
	))

	require.Equal(t, http.StatusOK, w.Code)
	res := decode(t, w)
	assert.Equal(t, float64(2), res["count"])
	assert.Equal(t, []interface{}{"+254700000001", "+15550100"}, res["numbers"])
}

func TestStopTask(t *testing.T) {
	f := newFixture(t, model.StatusSnapshot{})

	w := httptest.NewRecorder()
	f.ctrl.StopTask(w, httptest.NewRequest("GET", "/stop-task", nil))

	assert.Equal(t, "success", decode(t, w)["status"])
	assert.Equal(t, 1, f.runner.stops)
}

func TestForceKillAlwaysSucceeds(t *testing.T) {
	f := newFixture(t, model.StatusSnapshot{})
	f.runner.killErr = errors.New("no bridge process")

	w := httptest.NewRecorder()
	f.ctrl.ForceKill(w, httptest.NewRequest("GET", "/force-kill", nil))

	require.Equal(t, http.StatusOK, w.Code)
	res := decode(t, w)
	assert.Equal(t, "success", res["status"])
	assert.Contains(t, res["message"], "no bridge process")
	assert.Equal(t, 1, f.runner.kills)
	assert.Equal(t, 1, f.mirror.resets)
}

func TestLogoutResetsEverything(t *testing.T) {
	f := newFixture(t, model.StatusSnapshot{})
	f.bridge.logoutErr = errors.New("bridge unreachable")

	w := httptest.NewRecorder()
	f.ctrl.Logout(w, httptest.NewRequest("GET", "/logout", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", decode(t, w)["status"])
	require.Len(t, f.runner.resets, 1)
	assert.Equal(t, 1, f.bridge.logouts)
	assert.Equal(t, 1, f.restarter.kills)
	assert.Equal(t, 1, f.mirror.resets)
}

func TestScreenshotProxy(t *testing.T) {
	f := newFixture(t, model.StatusSnapshot{})
	f.bridge.shotErr = errors.New("bridge offline")

	w := httptest.NewRecorder()
	f.ctrl.Screenshot(w, httptest.NewRequest("GET", "/api/screenshot", nil))
	res := decode(t, w)
	assert.Nil(t, res["screenshot"])
	assert.Equal(t, "bridge offline", res["error"])

	png := "iVBORw0KGgo="
	f.bridge.shot, f.bridge.shotErr = &dto.ScreenshotResponse{Screenshot: &png}, nil
	w = httptest.NewRecorder()
	f.ctrl.Screenshot(w, httptest.NewRequest("GET", "/api/screenshot", nil))
	assert.Equal(t, png, decode(t, w)["screenshot"])
}

func TestRouterRoutes(t *testing.T) {
	f := newFixture(t, model.StatusSnapshot{Logs: []string{}})
	srv := httptest.NewServer(controller.NewRouter(f.ctrl))
	defer srv.Close()

	for _, path := range []string{"/status", "/qr", "/healthz", "/stop-task"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp, err := http.Get(srv.URL + "/start-bulk")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
