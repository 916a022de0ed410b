// Package rest is a typed client for the backend's HTTP surface. Every
// response is the {data, message, success} envelope; any 401 from any
// call fires the process-wide unauthorized hook so the session can tear
// itself down regardless of which feature made the request.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/overwork-game/client/pkg/proto"
)

// APIError carries the HTTP status and server message of a failed call.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// Client talks to the REST collaborators.
type Client struct {
	base           string
	http           *http.Client
	token          func() string
	onUnauthorized func()
	log            *zap.Logger
}

// New builds a client for the given base URL. token supplies the current
// bearer credential (empty string for unauthenticated calls).
func New(base string, token func() string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		base:  strings.TrimRight(base, "/"),
		http:  &http.Client{Timeout: 15 * time.Second},
		token: token,
		log:   log,
	}
}

// OnUnauthorized registers the global 401 hook.
func (c *Client) OnUnauthorized(f func()) { c.onUnauthorized = f }

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if t := c.token(); t != "" {
			req.Header.Set("Authorization", "Bearer "+t)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env proto.Envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode == http.StatusUnauthorized {
		c.log.Warn("unauthorized response, tearing down session",
			zap.String("path", path))
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return &APIError{Status: resp.StatusCode, Message: env.Message}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: env.Message}
	}
	if decodeErr != nil {
		return decodeErr
	}
	if !env.Success {
		return &APIError{Status: resp.StatusCode, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

// Auth.

func (c *Client) Login(ctx context.Context, email, password string) (*proto.Account, error) {
	in := map[string]string{"email": email, "password": password}
	var acct proto.Account
	if err := c.do(ctx, http.MethodPost, "/auth/login", in, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

func (c *Client) Register(ctx context.Context, email, password, nickname string) (*proto.Account, error) {
	in := map[string]string{"email": email, "password": password, "nickname": nickname}
	var acct proto.Account
	if err := c.do(ctx, http.MethodPost, "/auth/register", in, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

func (c *Client) Refresh(ctx context.Context) (*proto.Account, error) {
	var acct proto.Account
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", nil, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

func (c *Client) Me(ctx context.Context) (*proto.Account, error) {
	var acct proto.Account
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// Profile.

func (c *Client) Profile(ctx context.Context) (*proto.Profile, error) {
	var p proto.Profile
	if err := c.do(ctx, http.MethodGet, "/profile", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) UpdateProfile(ctx context.Context, p proto.Profile) error {
	return c.do(ctx, http.MethodPut, "/profile", p, nil)
}

// Rooms.

func (c *Client) Rooms(ctx context.Context) ([]proto.RoomInfo, error) {
	var rooms []proto.RoomInfo
	if err := c.do(ctx, http.MethodGet, "/rooms", nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (c *Client) Room(ctx context.Context, id string) (*proto.RoomSnapshot, error) {
	var snap proto.RoomSnapshot
	if err := c.do(ctx, http.MethodGet, "/rooms/"+id, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) CreateRoom(ctx context.Context, name, password string, maxPlayers int) (*proto.RoomSnapshot, error) {
	in := map[string]any{"name": name, "max_players": maxPlayers}
	if password != "" {
		in["password"] = password
	}
	var snap proto.RoomSnapshot
	if err := c.do(ctx, http.MethodPost, "/rooms", in, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) DeleteRoom(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/rooms/"+id, nil, nil)
}

// Chat history.

func (c *Client) ChatHistory(ctx context.Context, roomID string, page, size int) (*proto.ChatHistoryPage, error) {
	path := fmt.Sprintf("/rooms/%s/chat?page=%d&size=%d", roomID, page, size)
	var hist proto.ChatHistoryPage
	if err := c.do(ctx, http.MethodGet, path, nil, &hist); err != nil {
		return nil, err
	}
	return &hist, nil
}

func (c *Client) DeleteChatHistory(ctx context.Context, roomID string) error {
	return c.do(ctx, http.MethodDelete, "/rooms/"+roomID+"/chat", nil, nil)
}
