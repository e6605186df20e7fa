// Package frametv drives Samsung Frame TVs over the art-mode websocket
// channel: wake-on-lan, upload of the day's images, and deletion of the
// previous day's uploads.
package frametv

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"bingwall/pkg/config"
)

const (
	artChannelPath  = "/api/v2/channels/com.samsung.art-app"
	clientName      = "bingwall"
	dialTimeout     = 10 * time.Second
	readyTimeout    = 10 * time.Second
	responseTimeout = 30 * time.Second
)

// Client is one art-mode websocket session with a single TV.
type Client struct {
	name  string
	host  string
	port  int
	token string
	conn  *websocket.Conn
	log   *logrus.Entry
}

func NewClient(name string, target config.Target, log *logrus.Entry) *Client {
	return &Client{
		name:  name,
		host:  target.IPAddr,
		port:  target.Port,
		token: resolveToken(target.APITokenFile),
		log:   log.WithField("tv", name),
	}
}

// Connect dials the art channel and waits for the TV's ready events.
func (c *Client) Connect(ctx context.Context) error {
	u := url.URL{
		Scheme: "wss",
		Host:   net.JoinHostPort(c.host, strconv.Itoa(c.port)),
		Path:   artChannelPath,
	}
	q := u.Query()
	q.Set("name", base64.StdEncoding.EncodeToString([]byte(clientName)))
	if c.token != "" {
		q.Set("token", c.token)
	}
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{
		HandshakeTimeout: dialTimeout,
		// Frame TVs present a self-signed SmartViewSDK certificate.
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s art channel: %w", c.name, err)
	}
	c.conn = conn

	if err := c.waitReady(); err != nil {
		conn.Close()
		c.conn = nil
		return err
	}
	c.log.Debug("art channel ready")
	return nil
}

// Close closes the websocket session.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// SupportsArt reports whether the TV answers art-mode API requests.
// Non-Frame models accept the channel but never answer these.
func (c *Client) SupportsArt() (bool, error) {
	resp, err := c.request("get_api_version", nil)
	if err != nil {
		return false, err
	}
	version, _ := resp["version"].(string)
	c.log.WithField("version", version).Debug("art api version")
	return version != "", nil
}

type channelEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (c *Client) waitReady() error {
	c.conn.SetReadDeadline(time.Now().Add(readyTimeout))
	defer c.conn.SetReadDeadline(time.Time{})

	var connected, ready bool
	for !connected || !ready {
		var ev channelEvent
		if err := c.conn.ReadJSON(&ev); err != nil {
			return fmt.Errorf("failed waiting for %s art channel ready: %w", c.name, err)
		}
		switch ev.Event {
		case "ms.channel.connect":
			connected = true
		case "ms.channel.ready":
			ready = true
		}
	}
	return nil
}

// request sends one art-mode action and waits for the response carrying the
// same request id. Other TV chatter on the channel is skipped.
func (c *Client) request(action string, params map[string]any) (map[string]any, error) {
	requestID := uuid.New().String()
	payload := map[string]any{"request_id": requestID, "action": action}
	for k, v := range params {
		payload[k] = v
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", action, err)
	}
	msg := map[string]any{
		"method": "ms.channel.emit",
		"params": map[string]any{"event": "d2d_service_message", "data": string(data)},
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return nil, fmt.Errorf("failed to send %s request to %s: %w", action, c.name, err)
	}

	c.conn.SetReadDeadline(time.Now().Add(responseTimeout))
	defer c.conn.SetReadDeadline(time.Time{})
	for {
		var ev channelEvent
		if err := c.conn.ReadJSON(&ev); err != nil {
			return nil, fmt.Errorf("failed reading %s response from %s: %w", action, c.name, err)
		}
		if ev.Event != "d2d_service_message" {
			continue
		}
		var inner string
		if err := json.Unmarshal(ev.Data, &inner); err != nil {
			continue
		}
		var resp map[string]any
		if err := json.Unmarshal([]byte(inner), &resp); err != nil {
			continue
		}
		if id, _ := resp["request_id"].(string); id == requestID {
			return resp, nil
		}
	}
}

// resolveToken turns the configured token holder into the token itself: an
// environment variable name, a file path, or the literal token.
func resolveToken(holder string) string {
	if holder == "" {
		return ""
	}
	if v, ok := os.LookupEnv(holder); ok {
		return v
	}
	if data, err := os.ReadFile(holder); err == nil {
		return strings.TrimSpace(string(data))
	}
	return holder
}
