// internal/bridgeclient/client.go
package bridgeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/unclebandit/thunderlink/internal/dto"
	appErrors "github.com/unclebandit/thunderlink/internal/errors"
	"github.com/unclebandit/thunderlink/internal/model"
)

const quickTimeout = 2 * time.Second

// Client talks to the bridge process over HTTP.
type Client struct {
	baseURL string
	// sends have no client side timeout; force-kill is the escape hatch.
	send  *http.Client
	quick *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		send:    &http.Client{},
		quick:   &http.Client{Timeout: quickTimeout},
	}
}

func (c *Client) Status(ctx context.Context) (*dto.BridgeStatusResponse, error) {
	var status dto.BridgeStatusResponse
	if err := c.getJSON(ctx, "/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Ping reports whether a bridge answers on the configured address.
func (c *Client) Ping(ctx context.Context) bool {
	_, err := c.Status(ctx)
	return err == nil
}

// Send posts one message and blocks until the bridge answers.
func (c *Client) Send(ctx context.Context, r model.Recipient) error {
	body := dto.SendRequest{Phone: r.Phone, Message: r.Message}
	if r.HasMedia() {
		path := r.ImagePath
		body.ImagePath = &path
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return appErrors.NewExternalFailure(r.Phone, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send", bytes.NewReader(payload))
	if err != nil {
		return appErrors.NewExternalFailure(r.Phone, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.send.Do(req)
	if err != nil {
		return appErrors.NewExternalFailure(r.Phone, fmt.Errorf("bridge unreachable: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	res := readSendResponse(resp.Body)
	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		return appErrors.NewNotReady(r.Phone)
	case resp.StatusCode == http.StatusBadRequest,
		res.Code == string(appErrors.ReasonInvalidRecipient):
		return appErrors.NewInvalidRecipient(r.Phone, errors.New(res.Error))
	default:
		return appErrors.NewExternalFailure(r.Phone, errors.New(res.Error))
	}
}

func (c *Client) Logout(ctx context.Context) error {
	var res dto.StatusMessageResponse
	return c.getJSON(ctx, "/logout", &res)
}

// Shutdown asks the bridge process to exit.
func (c *Client) Shutdown(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/shutdown", nil)
	if err != nil {
		return err
	}
	resp, err := c.quick.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("bridge /shutdown returned %d: %s", resp.StatusCode, readError(resp.Body))
	}
	return nil
}

func (c *Client) Screenshot(ctx context.Context) (*dto.ScreenshotResponse, error) {
	var res dto.ScreenshotResponse
	if err := c.getJSON(ctx, "/screenshot", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.quick.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge %s returned %d: %s", path, resp.StatusCode, readError(resp.Body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func readError(body io.Reader) string {
	return readSendResponse(body).Error
}

// readSendResponse always returns a non-empty Error.
func readSendResponse(body io.Reader) dto.SendResponse {
	var res dto.SendResponse
	data, _ := io.ReadAll(io.LimitReader(body, 4096))
	if err := json.Unmarshal(data, &res); err == nil && res.Error != "" {
		return res
	}
	res.Error = string(bytes.TrimSpace(data))
	if res.Error == "" {
		res.Error = "unknown error"
	}
	return res
}
