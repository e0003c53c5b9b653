package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/angelmondragon/splitpay-backend/pkg/types"
)

// WebsocketDialer opens channels with gorilla/websocket.
type WebsocketDialer struct {
	Dialer    *websocket.Dialer
	Header    http.Header
	WriteWait time.Duration
	ReadLimit int64
	// PongWait is how long the peer may stay silent before reads fail.
	// Pings, pongs and messages from the peer each extend it. Pair it with
	// the manager's heartbeat, usually 2x HeartbeatInterval.
	PongWait time.Duration
}

func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, resp, err := dialer.DialContext(ctx, url, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if d.ReadLimit > 0 {
		ws.SetReadLimit(d.ReadLimit)
	}
	writeWait := d.WriteWait
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}
	pongWait := d.PongWait
	if pongWait <= 0 {
		pongWait = 2 * DefaultHeartbeatInterval
	}

	c := &wsConn{ws: ws, writeWait: writeWait, pongWait: pongWait}
	if err := c.extendDeadline(); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	ws.SetPongHandler(func(string) error { return c.extendDeadline() })
	ws.SetPingHandler(func(appData string) error {
		if err := c.extendDeadline(); err != nil {
			return err
		}
		err := ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	return c, nil
}

type wsConn struct {
	ws        *websocket.Conn
	writeWait time.Duration
	pongWait  time.Duration
}

func (c *wsConn) extendDeadline() error {
	return c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
}

// ReadMessage blocks until the next data frame. It fails once the peer has
// been silent for longer than the pong wait.
func (c *wsConn) ReadMessage() (types.Message, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return types.Message{}, err
	}
	if err := c.extendDeadline(); err != nil {
		return types.Message{}, err
	}
	var msg types.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return types.Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return msg, nil
}

func (c *wsConn) WriteMessage(msg types.Message) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(msg)
}

func (c *wsConn) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
}

func (c *wsConn) Close() error {
	_ = c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.ws.Close()
}
