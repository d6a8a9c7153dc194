// Package push implements the live-update connection to the mail service.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/ajramos/mailsync/internal/mailapi"
	"golang.org/x/net/websocket"
)

// EventNewEmail is the only event type the server pushes today
const EventNewEmail = "new_email"

// Event is one notification received on the channel
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Conn is an open push connection
type Conn interface {
	// Receive blocks until the next event arrives. A malformed frame yields an
	// error wrapping mailapi.ErrMalformedPayload and leaves the connection usable.
	Receive() (Event, error)
	Close() error
}

// Dialer opens push connections authenticated with a session token
type Dialer struct {
	endpoint string
	origin   string
}

// NewDialer creates a dialer for a ws:// or wss:// endpoint
func NewDialer(endpoint string) (*Dialer, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid push url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid push url scheme %q", u.Scheme)
	}
	origin := "http://" + u.Host
	if u.Scheme == "wss" {
		origin = "https://" + u.Host
	}
	return &Dialer{endpoint: endpoint, origin: origin}, nil
}

// Target returns the connection URL with the token embedded as a query parameter
func (d *Dialer) Target(token string) string {
	u, _ := url.Parse(d.endpoint)
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// Dial opens a connection. The context bounds the handshake only.
func (d *Dialer) Dial(ctx context.Context, token string) (Conn, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("push dial: %w", mailapi.ErrUnauthorized)
	}
	cfg, err := websocket.NewConfig(d.Target(token), d.origin)
	if err != nil {
		return nil, fmt.Errorf("push config: %w", err)
	}
	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("push dial: %w: %v", mailapi.ErrNetwork, err)
	}
	return &wsConn{ws: ws}, nil
}

type wsConn struct {
	ws        *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) Receive() (Event, error) {
	var frame string
	if err := websocket.Message.Receive(c.ws, &frame); err != nil {
		return Event{}, fmt.Errorf("push receive: %w: %v", mailapi.ErrNetwork, err)
	}
	return ParseEvent([]byte(frame))
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// ParseEvent decodes a raw frame
func ParseEvent(frame []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(frame, &ev); err != nil {
		return Event{}, fmt.Errorf("push frame: %w: %v", mailapi.ErrMalformedPayload, err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("push frame without type: %w", mailapi.ErrMalformedPayload)
	}
	return ev, nil
}
