package replica

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/jaredpereira/mud/facts"
	"github.com/jaredpereira/mud/protocol"
)

// Client talks to one space on one server.
type Client struct {
	BaseURL  string
	SpaceID  string
	Token    string
	ClientID string
	HTTP     *http.Client
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) post(ctx context.Context, route string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	u := strings.TrimSuffix(c.BaseURL, "/") + "/space/" + url.PathEscape(c.SpaceID) + "/" + route
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("%s: unexpected status %d", route, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) Push(ctx context.Context, muts []protocol.Mutation) (protocol.PushResponse, error) {
	var resp protocol.PushResponse
	err := c.post(ctx, "push", protocol.PushRequest{
		Token:         c.Token,
		ClientID:      c.ClientID,
		Mutations:     muts,
		PushVersion:   protocol.PushVersion,
		SchemaVersion: facts.SchemaVersion,
	}, &resp)
	return resp, err
}

func (c *Client) Pull(ctx context.Context, cookie string) (protocol.PullResponse, error) {
	var resp protocol.PullResponse
	err := c.post(ctx, "pull", protocol.PullRequest{
		Token:    c.Token,
		ClientID: c.ClientID,
		Cookie:   cookie,
	}, &resp)
	return resp, err
}

// Socket opens the space's poke channel.
func (c *Client) Socket(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/space/" + url.PathEscape(c.SpaceID) + "/socket"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	return conn, err
}
