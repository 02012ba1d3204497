// Package relay implements the client side of the session relay channel:
// one websocket connection per collaboration view, outbound events
// serialized through a single writer, inbound events delivered as a typed
// stream that one consumer drains in delivery order.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ANU-2524/JustCoding-sub000/internal/models"
)

// ErrClosed is returned by operations on a client that has been
// disconnected. A closed client is not reusable; make a new one for the
// next room.
var ErrClosed = errors.New("relay client closed")

const (
	outboundBuffer = 64
	inboundBuffer  = 64
	closeGrace     = time.Second
)

// Client owns exactly one relay channel for the lifetime of a
// collaboration view.
type Client struct {
	url    string
	logger *logrus.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	started bool

	writeCh   chan models.RelayEnvelope
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(url string, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		url:     url,
		logger:  logger,
		writeCh: make(chan models.RelayEnvelope, outboundBuffer),
		events:  make(chan Event, inboundBuffer),
		done:    make(chan struct{}),
	}
}

// Connect establishes the channel. Calling it again while connected is a
// no-op; calling it after Disconnect returns ErrClosed.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if c.conn != nil {
		return nil
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial relay %s: %w", c.url, err)
	}

	// Disconnect may have raced the dial; don't leave the fresh
	// connection orphaned.
	select {
	case <-c.done:
		conn.Close()
		return ErrClosed
	default:
	}
	c.conn = conn
	c.started = true
	go c.readLoop(conn)
	go c.writeLoop(conn)

	c.logger.WithField("relay", c.url).Info("relay channel connected")
	return nil
}

// Events is the inbound event stream. It is closed when the connection is
// torn down, after the last delivered event.
func (c *Client) Events() <-chan Event {
	return c.events
}

// JoinRoom emits a join intent. It does not wait for an acknowledgement;
// the relay broadcasts presence to the other members.
func (c *Client) JoinRoom(roomID, username string) error {
	return c.send(models.EventJoinRoom, models.JoinPayload{RoomID: roomID, Username: username})
}

// SendCodeChange emits the full current code buffer. Last message
// delivered wins on every receiver.
func (c *Client) SendCodeChange(roomID, code string) error {
	return c.send(models.EventCodeChange, models.CodeChangePayload{RoomID: roomID, Code: code})
}

// SendChatMessage emits a chat event. Callers render the local echo
// immediately; the relay only informs the peers.
func (c *Client) SendChatMessage(roomID, username, text string) error {
	return c.send(models.EventSendChat, models.ChatPayload{RoomID: roomID, Username: username, Message: text})
}

// SendTyping emits a fire-and-forget typing hint.
func (c *Client) SendTyping(roomID, username string) error {
	return c.send(models.EventTyping, models.TypingPayload{RoomID: roomID, Username: username})
}

func (c *Client) send(event string, payload interface{}) error {
	env, err := models.NewRelayEnvelope(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	select {
	case <-c.done:
		return ErrClosed
	case c.writeCh <- env:
		return nil
	}
}

// Disconnect tears down the channel. Safe to call any number of times and
// from failure paths, including before Connect.
func (c *Client) Disconnect() {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		conn := c.conn
		started := c.started
		c.mu.Unlock()

		if conn != nil {
			deadline := time.Now().Add(closeGrace)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			conn.Close()
		}
		if !started {
			// readLoop never ran, so nobody else will close the stream.
			close(c.events)
		}
		c.logger.Debug("relay channel closed")
	})
}

// readLoop decodes inbound envelopes onto the event channel, preserving
// transport delivery order. It owns closing the event channel, and tears
// the client down when the transport dies so pending and later sends
// fail with ErrClosed instead of queuing into a dead channel.
func (c *Client) readLoop(conn *websocket.Conn) {
	defer close(c.events)
	defer c.Disconnect()
	for {
		var env models.RelayEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			select {
			case <-c.done:
			default:
				c.logger.WithError(err).Debug("relay read loop ended")
			}
			return
		}
		ev, err := decodeEvent(env)
		if err != nil {
			c.logger.WithError(err).WithField("event", env.Event).Warn("malformed relay event dropped")
			continue
		}
		if ev == nil {
			continue
		}
		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writeLoop(conn *websocket.Conn) {
	for {
		select {
		case <-c.done:
			return
		case env := <-c.writeCh:
			if err := conn.WriteJSON(env); err != nil {
				c.logger.WithError(err).WithField("event", env.Event).Warn("relay write failed")
				c.Disconnect()
				return
			}
		}
	}
}
