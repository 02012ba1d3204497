// Package hub is the relay fan-out: it groups websocket connections into
// rooms and rebroadcasts code, chat and presence events to room peers.
// Room state lives in memory only and dies with the process. With a Redis
// client attached, events also cross instances over pub/sub, one channel
// per room.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ANU-2524/JustCoding-sub000/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const roomChannelPrefix = "room_events:"

// fanoutMessage is the cross-instance wire format on Redis pub/sub. Origin
// lets an instance skip its own publications.
type fanoutMessage struct {
	Origin   string               `json:"origin"`
	Envelope models.RelayEnvelope `json:"envelope"`
}

type member struct {
	conn     *websocket.Conn
	username string
	roomID   string
	writeMu  sync.Mutex
}

func (m *member) write(env models.RelayEnvelope) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.conn.WriteJSON(env)
}

// Hub relays room events between connected clients.
type Hub struct {
	mu          sync.RWMutex
	rooms       map[string][]*member
	cancelFuncs map[string]context.CancelFunc
	redisClient *redis.Client // nil runs single-instance
	instanceID  string
	logger      *logrus.Logger
}

func New(redisClient *redis.Client, logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.New()
	}
	return &Hub{
		rooms:       make(map[string][]*member),
		cancelFuncs: make(map[string]context.CancelFunc),
		redisClient: redisClient,
		instanceID:  uuid.NewString(),
		logger:      logger,
	}
}

// HandleWebSocket upgrades the connection and serves relay events until
// the peer disconnects. Joins are unauthenticated.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	m := &member{conn: conn}
	defer h.leave(m)

	for {
		var env models.RelayEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		h.dispatch(m, env)
	}
}

func (h *Hub) dispatch(m *member, env models.RelayEnvelope) {
	switch env.Event {
	case models.EventJoinRoom:
		var p models.JoinPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			h.logger.WithError(err).Warn("malformed join-room dropped")
			return
		}
		h.join(m, p.RoomID, p.Username)

	case models.EventCodeChange:
		var p models.CodeChangePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		h.relay(m, p.RoomID, models.EventCodeUpdate, p.Code)

	case models.EventSendChat:
		var p models.ChatPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		h.relay(m, p.RoomID, models.EventReceiveChat, models.ChatReceivedPayload{
			Username: p.Username,
			Message:  p.Message,
		})

	case models.EventTyping:
		var p models.TypingPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		h.relay(m, p.RoomID, models.EventShowTyping, p.Username)
	}
}

// join registers the member in a room, leaving any previous one, and
// announces the arrival to the peers.
func (h *Hub) join(m *member, roomID, username string) {
	if m.roomID != "" {
		h.unregister(m)
	}

	h.mu.Lock()
	m.roomID = roomID
	m.username = username
	h.rooms[roomID] = append(h.rooms[roomID], m)
	first := len(h.rooms[roomID]) == 1
	h.mu.Unlock()

	if first && h.redisClient != nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.mu.Lock()
		h.cancelFuncs[roomID] = cancel
		h.mu.Unlock()
		go h.subscribeRoom(ctx, roomID)
	}

	h.logger.WithFields(logrus.Fields{
		"room":     roomID,
		"username": username,
	}).Info("client joined room")

	h.relay(m, roomID, models.EventUserJoined, username)
}

func (h *Hub) leave(m *member) {
	m.conn.Close()
	h.unregister(m)
}

// unregister removes the member from its room and announces the
// departure. The connection stays open, so a room switch reuses it.
func (h *Hub) unregister(m *member) {
	if m.roomID == "" {
		return
	}
	roomID, username := m.roomID, m.username
	m.roomID = ""

	h.mu.Lock()
	peers := h.rooms[roomID]
	for i, p := range peers {
		if p == m {
			h.rooms[roomID] = append(peers[:i], peers[i+1:]...)
			break
		}
	}
	empty := len(h.rooms[roomID]) == 0
	if empty {
		delete(h.rooms, roomID)
		if cancel, ok := h.cancelFuncs[roomID]; ok {
			cancel()
			delete(h.cancelFuncs, roomID)
		}
	}
	h.mu.Unlock()

	h.logger.WithFields(logrus.Fields{
		"room":     roomID,
		"username": username,
	}).Info("client left room")

	h.relay(m, roomID, models.EventUserLeft, username)
}

// relay fans an event out to every room peer except the sender, then
// publishes it for the other instances.
func (h *Hub) relay(sender *member, roomID, event string, payload interface{}) {
	env, err := models.NewRelayEnvelope(event, payload)
	if err != nil {
		h.logger.WithError(err).WithField("event", event).Error("relay encode failed")
		return
	}

	h.broadcast(sender, roomID, env)

	if h.redisClient != nil {
		h.publish(roomID, env)
	}
}

func (h *Hub) broadcast(skip *member, roomID string, env models.RelayEnvelope) {
	h.mu.RLock()
	peers := append([]*member(nil), h.rooms[roomID]...)
	h.mu.RUnlock()

	for _, p := range peers {
		if p == skip {
			continue
		}
		if err := p.write(env); err != nil {
			h.logger.WithError(err).WithField("room", roomID).Debug("peer write failed")
		}
	}
}

func (h *Hub) publish(roomID string, env models.RelayEnvelope) {
	msg := fanoutMessage{Origin: h.instanceID, Envelope: env}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	ctx := context.Background()
	if err := h.redisClient.Publish(ctx, roomChannelPrefix+roomID, string(data)).Err(); err != nil {
		h.logger.WithError(err).WithField("room", roomID).Warn("room fan-out publish failed")
	}
}

// subscribeRoom mirrors events published by other instances into the
// local room. Runs while the room has local members.
func (h *Hub) subscribeRoom(ctx context.Context, roomID string) {
	pubsub := h.redisClient.Subscribe(ctx, roomChannelPrefix+roomID)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var fm fanoutMessage
			if err := json.Unmarshal([]byte(msg.Payload), &fm); err != nil {
				continue
			}
			if fm.Origin == h.instanceID {
				continue
			}
			h.broadcast(nil, roomID, fm.Envelope)
		}
	}
}

// RoomSize reports the number of local members in a room.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
