package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/angelmondragon/splitpay-backend/pkg/metrics"
	"github.com/angelmondragon/splitpay-backend/pkg/types"
)

type client struct {
	id      string
	hub     *Hub
	ws      *websocket.Conn
	tableID string
	who     Participant

	send      chan []byte
	closeOnce sync.Once
}

func newClient(h *Hub, ws *websocket.Conn, tableID string, who Participant) *client {
	return &client{
		id:      uuid.NewString(),
		hub:     h,
		ws:      ws,
		tableID: tableID,
		who:     who,
		send:    make(chan []byte, h.cfg.SendBuffer),
	}
}

func (c *client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// readPump relays inbound messages to the rest of the table until the
// connection fails.
func (c *client) readPump(ctx context.Context) {
	cfg := c.hub.cfg
	c.ws.SetReadLimit(cfg.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.logg.Debug(ctx, "websocket read ended: "+err.Error())
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(cfg.PongWait))

		var msg types.Message
		if err := json.Unmarshal(data, &msg); err != nil || !msg.Type.IsValid() {
			c.hub.metrics.HubMessage(string(msg.Type), metrics.OutcomeDropped)
			continue
		}
		msg.TableID = c.tableID
		msg.Timestamp = time.Now().UTC()
		c.hub.broadcast(ctx, c, msg)
	}
}

// writePump owns all writes to the connection.
func (c *client) writePump() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
