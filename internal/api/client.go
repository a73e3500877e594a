package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/DoyleJ11/sensus-peek/internal/blob"
	"github.com/DoyleJ11/sensus-peek/internal/command"
	"github.com/DoyleJ11/sensus-peek/internal/peek"
)

// defaultMaxScreenshot bounds a single screenshot download.
const defaultMaxScreenshot = 16 << 20

// Client talks to the Sensus backend.
type Client struct {
	base    string
	http    *http.Client
	now     func() time.Time
	maxShot int64
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

// WithMaxScreenshot caps screenshot downloads at n bytes.
func WithMaxScreenshot(n int64) Option { return func(c *Client) { c.maxShot = n } }

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:    strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		now:     time.Now,
		maxShot: defaultMaxScreenshot,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ScreenUpdate is a partial screen_peek update. Nil fields are not sent.
type ScreenUpdate struct {
	Contact    *string
	URL        *string
	Screenshot []byte
	Filename   string
}

type CommandState struct {
	Command string `json:"command"`
}

func (c *Client) Login(ctx context.Context, userID, password string) error {
	body := map[string]string{"user_id": userID, "password": password}
	err := c.do(ctx, "login", http.MethodPost, "/auth/login", body, nil)
	switch StatusCode(err) {
	case http.StatusForbidden, http.StatusUnauthorized:
		return ErrIncorrectPassword
	case http.StatusNotFound:
		return ErrUserNotFound
	}
	return err
}

func (c *Client) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	body := map[string]string{"old_password": oldPassword, "new_password": newPassword}
	err := c.do(ctx, "change password", http.MethodPost, userPath("/user/%s/change_password", userID), body, nil)
	switch StatusCode(err) {
	case http.StatusForbidden, http.StatusUnauthorized:
		return ErrIncorrectPassword
	case http.StatusNotFound:
		return ErrUserNotFound
	}
	return err
}

func (c *Client) CreateUser(ctx context.Context, adminKey, userID, password string) error {
	path := "/auth/create_user?admin_key=" + url.QueryEscape(adminKey)
	body := map[string]string{"user_id": userID, "password": password}
	return c.do(ctx, "create user", http.MethodPost, path, body, nil)
}

func (c *Client) DataPeek(ctx context.Context, userID string) (peek.Spectator, error) {
	var s peek.Spectator
	err := c.do(ctx, "data peek", http.MethodGet, userPath("/data_peek/%s", userID), nil, &s)
	return s, err
}

func (c *Client) UpdateDataPeek(ctx context.Context, userID string, s peek.Spectator) error {
	return c.do(ctx, "update data peek", http.MethodPost, userPath("/data_peek/%s", userID), s, nil)
}

func (c *Client) ClearDataPeek(ctx context.Context, userID string) error {
	return c.do(ctx, "clear data peek", http.MethodPost, userPath("/data_peek/%s/clear", userID), struct{}{}, nil)
}

func (c *Client) NotePeek(ctx context.Context, userID string) (peek.Note, error) {
	var n peek.Note
	err := c.do(ctx, "note peek", http.MethodGet, userPath("/note_peek/%s", userID), nil, &n)
	return n, err
}

func (c *Client) UpdateNotePeek(ctx context.Context, userID string, n peek.Note) error {
	return c.do(ctx, "update note peek", http.MethodPost, userPath("/note_peek/%s", userID), n, nil)
}

func (c *Client) ClearNotePeek(ctx context.Context, userID string) error {
	return c.do(ctx, "clear note peek", http.MethodPost, userPath("/note_peek/%s/clear", userID), struct{}{}, nil)
}

func (c *Client) ScreenPeek(ctx context.Context, userID string) (peek.Screen, error) {
	var s peek.Screen
	err := c.do(ctx, "screen peek", http.MethodGet, userPath("/screen_peek/%s", userID), nil, &s)
	return s, err
}

// UpdateScreenPeek posts a multipart form, the way the phone-side page uploads.
func (c *Client) UpdateScreenPeek(ctx context.Context, userID string, u ScreenUpdate) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if u.Contact != nil {
		_ = w.WriteField("contact", *u.Contact)
	}
	if u.URL != nil {
		_ = w.WriteField("url", *u.URL)
	}
	if len(u.Screenshot) > 0 {
		name := u.Filename
		if name == "" {
			name = "screenshot.png"
		}
		part, err := w.CreateFormFile("screenshot", name)
		if err != nil {
			return err
		}
		if _, err := part.Write(u.Screenshot); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+userPath("/screen_peek/%s", userID), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := c.send("update screen peek", req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) ClearScreenPeek(ctx context.Context, userID string) error {
	return c.do(ctx, "clear screen peek", http.MethodPost, userPath("/screen_peek/%s/clear", userID), struct{}{}, nil)
}

// Screenshot downloads the current screenshot, cache-busted per call.
func (c *Client) Screenshot(ctx context.Context, userID string) (blob.Blob, error) {
	path := userPath("/screen_peek/%s/screenshot", userID) + "?t=" + strconv.FormatInt(c.now().UnixMilli(), 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return blob.Blob{}, err
	}
	resp, err := c.send("screenshot", req)
	if err != nil {
		return blob.Blob{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxShot+1))
	if err != nil {
		return blob.Blob{}, &NetworkError{Op: "screenshot", Err: err}
	}
	if int64(len(data)) > c.maxShot {
		return blob.Blob{}, &NetworkError{Op: "screenshot", Status: resp.StatusCode, Message: "screenshot too large", Err: ErrScreenshotTooLarge}
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return blob.Blob{Data: data, ContentType: ct}, nil
}

func (c *Client) SendCommand(ctx context.Context, userID string, cmd command.Command) error {
	body := map[string]string{"command": string(cmd)}
	return c.do(ctx, "command", http.MethodPost, userPath("/commands/%s", userID), body, nil)
}

func (c *Client) Commands(ctx context.Context, userID string) (CommandState, error) {
	var cs CommandState
	err := c.do(ctx, "commands", http.MethodGet, userPath("/commands/%s", userID), nil, &cs)
	return cs, err
}

func (c *Client) ClearCommands(ctx context.Context, userID string) error {
	return c.do(ctx, "clear commands", http.MethodPost, userPath("/commands/%s/clear", userID), struct{}{}, nil)
}

func (c *Client) ClearAll(ctx context.Context, userID string) error {
	return c.do(ctx, "clear all", http.MethodPost, userPath("/clear_all/%s", userID), nil, nil)
}

func userPath(format, userID string) string {
	return fmt.Sprintf(format, url.PathEscape(userID))
}

// do sends a JSON request and decodes a JSON response into out when out is
// non-nil and the server returned a body.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.send(op, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return &NetworkError{Op: op, Status: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return nil
}

// send performs req and turns transport failures and non-2xx statuses into
// *NetworkError. On success the caller owns resp.Body.
func (c *Client) send(op string, req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return nil, &NetworkError{Op: op, Status: resp.StatusCode, Message: errorMessage(raw)}
}

// errorMessage pulls "detail" or "message" out of a JSON error body and
// falls back to the raw text.
func errorMessage(raw []byte) string {
	var body struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if s, ok := body.Detail.(string); ok && s != "" {
			return s
		}
		if body.Message != "" {
			return body.Message
		}
		if body.Detail != nil {
			b, _ := json.Marshal(body.Detail)
			return string(b)
		}
	}
	return strings.TrimSpace(string(raw))
}
