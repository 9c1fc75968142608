package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/osa030/groovebox/internal/app/notification"
	"github.com/osa030/groovebox/internal/app/playback"
)

// APIError is an error reply from the dashboard API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// Client calls the dashboard API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL. token is sent with admin calls.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// Guilds returns the snapshot of every known guild.
func (c *Client) Guilds(ctx context.Context) ([]playback.Snapshot, error) {
	var out []playback.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/guilds", nil, &out)
	return out, err
}

// State returns one guild's snapshot.
func (c *Client) State(ctx context.Context, guildID string) (playback.Snapshot, error) {
	var out playback.Snapshot
	err := c.do(ctx, http.MethodGet, guildPath(guildID, "state"), nil, &out)
	return out, err
}

func (c *Client) Pause(ctx context.Context, guildID string) (ActionResponse, error) {
	return c.action(ctx, http.MethodPost, guildPath(guildID, "pause"), nil)
}

func (c *Client) Resume(ctx context.Context, guildID string) (ActionResponse, error) {
	return c.action(ctx, http.MethodPost, guildPath(guildID, "resume"), nil)
}

func (c *Client) Skip(ctx context.Context, guildID string) (ActionResponse, error) {
	return c.action(ctx, http.MethodPost, guildPath(guildID, "skip"), nil)
}

func (c *Client) Stop(ctx context.Context, guildID string) (ActionResponse, error) {
	return c.action(ctx, http.MethodPost, guildPath(guildID, "stop"), nil)
}

func (c *Client) Shuffle(ctx context.Context, guildID string) (ActionResponse, error) {
	return c.action(ctx, http.MethodPost, guildPath(guildID, "shuffle"), nil)
}

func (c *Client) SetLoop(ctx context.Context, guildID string, enabled bool) (ActionResponse, error) {
	return c.action(ctx, http.MethodPost, guildPath(guildID, "loop"), LoopRequest{Enabled: enabled})
}

func (c *Client) SetVolume(ctx context.Context, guildID string, percent float64) (ActionResponse, error) {
	return c.action(ctx, http.MethodPost, guildPath(guildID, "volume"), VolumeRequest{Percent: &percent})
}

// Remove deletes a queued entry by id.
func (c *Client) Remove(ctx context.Context, guildID string, id int64) (ActionResponse, error) {
	return c.action(ctx, http.MethodDelete, guildPath(guildID, fmt.Sprintf("queue/%d", id)), nil)
}

// Watch streams a guild's updates to fn until ctx is done or the server closes.
func (c *Client) Watch(ctx context.Context, guildID string, fn func(notification.Update)) error {
	u, err := url.Parse(c.baseURL + guildPath(guildID, "ws"))
	if err != nil {
		return errors.Wrap(err, "parse server url")
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{HTTPClient: c.httpClient})
	if err != nil {
		return errors.Wrap(err, "dial update stream")
	}
	defer conn.CloseNow()

	for {
		var upd notification.Update
		if err := wsjson.Read(ctx, conn, &upd); err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return errors.Wrap(err, "read update")
		}
		fn(upd)
	}
}

func (c *Client) action(ctx context.Context, method, path string, body any) (ActionResponse, error) {
	var out ActionResponse
	err := c.do(ctx, method, path, body, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set(AdminTokenHeader, c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var e ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
			e.Message = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Code: e.Code, Message: e.Message}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func guildPath(guildID, rest string) string {
	return "/api/guilds/" + url.PathEscape(guildID) + "/" + rest
}
