// Package realtime is the server side of the table push channel: one room
// per table, fan-out to connected participants and an optional cross-instance
// relay.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/angelmondragon/splitpay-backend/pkg/enums"
	"github.com/angelmondragon/splitpay-backend/pkg/logger"
	"github.com/angelmondragon/splitpay-backend/pkg/metrics"
	"github.com/angelmondragon/splitpay-backend/pkg/types"
)

// Config tunes connection handling.
type Config struct {
	WriteWait       time.Duration
	PongWait        time.Duration
	PingInterval    time.Duration
	SendBuffer      int
	MaxMessageBytes int64
	AllowedOrigins  []string
}

func (c Config) withDefaults() Config {
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 8192
	}
	return c
}

// HubParams wires a Hub.
type HubParams struct {
	Config     Config
	InstanceID string
	Relay      Relay
	Metrics    *metrics.Metrics
	Logger     *logger.Logger
}

// Hub tracks every table room served by this process.
type Hub struct {
	cfg        Config
	instanceID string
	relay      Relay
	metrics    *metrics.Metrics
	logg       *logger.Logger
	upgrader   websocket.Upgrader

	mu     sync.Mutex
	rooms  map[string]*room
	closed bool
}

func NewHub(p HubParams) (*Hub, error) {
	if p.Logger == nil {
		return nil, errors.New("logger required")
	}
	instanceID := p.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	cfg := p.Config.withDefaults()
	h := &Hub{
		cfg:        cfg,
		instanceID: instanceID,
		relay:      p.Relay,
		metrics:    p.Metrics,
		logg:       p.Logger,
		rooms:      make(map[string]*room),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h, nil
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, candidate := range allowed {
			if candidate == "*" || strings.EqualFold(candidate, origin) {
				return true
			}
		}
		return len(allowed) == 0
	}
}

// Participant identifies who is on the other end of a connection.
type Participant struct {
	GuestID string
	Name    string
	Role    enums.ParticipantRole
}

// ServeTable upgrades the request and attaches the connection to tableID.
// It returns once the connection is closed.
func (h *Hub) ServeTable(w http.ResponseWriter, r *http.Request, tableID string, who Participant) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already wrote the HTTP error
		h.logg.Warn(h.logg.WithTableID(r.Context(), tableID), "websocket upgrade failed: "+err.Error())
		return
	}

	c := newClient(h, ws, tableID, who)
	if !h.register(c) {
		_ = ws.Close()
		return
	}
	h.metrics.ConnectionOpened()

	ctx := h.logg.WithFields(h.logg.WithTableID(context.Background(), tableID), map[string]any{
		"connection_id": c.id,
		"guest_id":      who.GuestID,
		"role":          string(who.Role),
	})
	h.logg.Info(ctx, "participant connected")

	h.broadcast(ctx, c, h.participantMessage(enums.MessageParticipantJoined, tableID, who))

	go c.writePump()
	c.readPump(ctx)

	h.unregister(c)
	h.metrics.ConnectionClosed()
	h.broadcast(ctx, c, h.participantMessage(enums.MessageParticipantLeft, tableID, who))
	h.logg.Info(ctx, "participant disconnected")
}

type participantData struct {
	GuestID         string                `json:"guestId,omitempty"`
	ParticipantName string                `json:"participantName,omitempty"`
	Role            enums.ParticipantRole `json:"role"`
	Time            time.Time             `json:"time"`
}

func (h *Hub) participantMessage(msgType enums.MessageType, tableID string, who Participant) types.Message {
	msg, _ := types.NewMessage(msgType, tableID, participantData{
		GuestID:         who.GuestID,
		ParticipantName: who.Name,
		Role:            who.Role,
		Time:            time.Now().UTC(),
	})
	return msg
}

// Announce pushes a server-originated message to every participant of the
// message's table.
func (h *Hub) Announce(ctx context.Context, msg types.Message) {
	if msg.TableID == "" || !msg.Type.IsValid() {
		return
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	h.broadcast(ctx, nil, msg)
}

// ParticipantCount reports local connections on tableID.
func (h *Hub) ParticipantCount(tableID string) int {
	h.mu.Lock()
	r := h.rooms[tableID]
	h.mu.Unlock()
	if r == nil {
		return 0
	}
	return r.size()
}

// Run consumes the relay until ctx is done. Without a relay it just waits.
func (h *Hub) Run(ctx context.Context) error {
	if h.relay == nil {
		<-ctx.Done()
		return nil
	}
	err := h.relay.Listen(ctx, func(payload []byte) {
		h.receiveRelayed(ctx, payload)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	rooms := make([]*room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.Unlock()
	for _, r := range rooms {
		r.closeAll()
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	r, ok := h.rooms[c.tableID]
	if !ok {
		r = newRoom(c.tableID)
		h.rooms[c.tableID] = r
	}
	r.join(c)
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[c.tableID]
	if !ok {
		return
	}
	if r.leave(c) {
		delete(h.rooms, c.tableID)
	}
}

// broadcast delivers msg to local participants except sender and forwards it
// to the relay.
func (h *Hub) broadcast(ctx context.Context, sender *client, msg types.Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logg.Error(ctx, "encode realtime message", err)
		return
	}
	h.deliverLocal(msg.TableID, msg.Type, payload, sender)

	if h.relay == nil {
		return
	}
	env := relayEnvelope{Origin: h.instanceID, Message: msg}
	raw, err := json.Marshal(env)
	if err != nil {
		h.logg.Error(ctx, "encode relay envelope", err)
		return
	}
	if err := h.relay.Publish(ctx, msg.TableID, raw); err != nil {
		h.logg.Warn(h.logg.WithTableID(ctx, msg.TableID), "relay publish failed: "+err.Error())
		return
	}
	h.metrics.HubMessage(msg.Type.String(), metrics.OutcomeRelayed)
}

func (h *Hub) receiveRelayed(ctx context.Context, raw []byte) {
	var env relayEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.logg.Warn(ctx, "discarding malformed relay payload")
		return
	}
	if env.Origin == h.instanceID || !env.Message.Type.IsValid() {
		return
	}
	payload, err := json.Marshal(env.Message)
	if err != nil {
		return
	}
	h.deliverLocal(env.Message.TableID, env.Message.Type, payload, nil)
}

func (h *Hub) deliverLocal(tableID string, msgType enums.MessageType, payload []byte, sender *client) {
	h.mu.Lock()
	r := h.rooms[tableID]
	h.mu.Unlock()
	if r == nil {
		return
	}
	delivered, dropped := r.deliver(payload, sender)
	for i := 0; i < delivered; i++ {
		h.metrics.HubMessage(msgType.String(), metrics.OutcomeDelivered)
	}
	for _, slow := range dropped {
		h.metrics.HubMessage(msgType.String(), metrics.OutcomeDropped)
		h.logg.Warn(h.logg.WithFields(context.Background(), map[string]any{
			"table_id":      tableID,
			"connection_id": slow.id,
		}), "disconnecting slow consumer")
	}
}
