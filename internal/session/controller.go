// Package session sequences one client's room membership: connect, join,
// active editing, leave. It composes the relay client with the activity
// ledger and guarantees the close bookkeeping runs exactly once on every
// exit path.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ANU-2524/JustCoding-sub000/internal/ledger"
	"github.com/ANU-2524/JustCoding-sub000/internal/relay"
)

// State is the controller's lifecycle position. The terminal state
// re-enters Disconnected, so one controller can serve successive rooms.
type State int

const (
	Disconnected State = iota
	Connecting
	Joined
	Leaving
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Joined:
		return "joined"
	case Leaving:
		return "leaving"
	}
	return "unknown"
}

// ErrNotJoined is returned by edit and chat operations outside the Joined
// state.
var ErrNotJoined = errors.New("not joined to a room")

// ErrBusy is returned by Join while a previous membership is still open.
var ErrBusy = errors.New("session already in progress")

// typingExpiry is how long a peer's typing hint stays visible without a
// follow-up.
const typingExpiry = 2 * time.Second

// ChatEntry is one line of the local chat log.
type ChatEntry struct {
	Username string
	Message  string
	At       time.Time
}

// Controller is the per-client session state machine.
type Controller struct {
	relayURL string
	ledger   *ledger.Ledger
	logger   *logrus.Logger

	mu        sync.Mutex
	state     State
	client    *relay.Client
	roomID    string
	username  string
	sessionID string

	code        string
	lastSent    string
	chat        []ChatEntry
	peers       map[string]struct{}
	typingFrom  string
	typingUntil time.Time

	// UI notification hooks, all optional. Called from the Run goroutine.
	OnCodeUpdate func(code string)
	OnChat       func(entry ChatEntry)
	OnPresence   func(display string, joined bool)

	now func() time.Time
}

func NewController(relayURL string, led *ledger.Ledger, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.New()
	}
	return &Controller{
		relayURL: relayURL,
		ledger:   led,
		logger:   logger,
		peers:    make(map[string]struct{}),
		now:      time.Now,
	}
}

// Handle is the scoped resource returned by Join. Close runs the teardown
// triple (disconnect, end session, touch activity) exactly once, on any
// exit path.
type Handle struct {
	once sync.Once
	ctrl *Controller
}

func (h *Handle) Close() {
	h.once.Do(h.ctrl.leave)
}

// Join connects to the relay, emits the join intent and opens a ledger
// session. A connection failure is returned to the caller as a retryable
// error; the controller does not retry on its own.
func (c *Controller) Join(ctx context.Context, roomID, username string) (*Handle, error) {
	c.mu.Lock()
	if c.state != Disconnected {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.state = Connecting
	client := relay.NewClient(c.relayURL, c.logger)
	c.client = client
	c.mu.Unlock()

	if err := client.Connect(ctx); err != nil {
		c.mu.Lock()
		c.state = Disconnected
		c.client = nil
		c.mu.Unlock()
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := client.JoinRoom(roomID, username); err != nil {
		client.Disconnect()
		c.mu.Lock()
		c.state = Disconnected
		c.client = nil
		c.mu.Unlock()
		return nil, fmt.Errorf("join room: %w", err)
	}

	sessionID := c.ledger.StartSession(roomID, username)

	c.mu.Lock()
	c.roomID = roomID
	c.username = username
	c.sessionID = sessionID
	c.code = ""
	c.lastSent = ""
	c.chat = nil
	c.peers = make(map[string]struct{})
	c.typingFrom = ""
	c.state = Joined
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"room":     roomID,
		"username": username,
		"session":  sessionID,
	}).Info("joined room")

	return &Handle{ctrl: c}, nil
}

// leave is the single exit path. The ledger bookkeeping is deferred so a
// failing relay disconnect cannot skip it.
func (c *Controller) leave() {
	c.mu.Lock()
	client := c.client
	sessionID := c.sessionID
	c.state = Leaving
	c.mu.Unlock()

	defer func() {
		c.ledger.EndSession(sessionID)
		c.ledger.TouchLastActive()
		c.mu.Lock()
		c.state = Disconnected
		c.client = nil
		c.sessionID = ""
		c.mu.Unlock()
		c.logger.WithField("session", sessionID).Info("left room")
	}()

	if client != nil {
		defer func() {
			if r := recover(); r != nil {
				c.logger.WithField("panic", r).Warn("relay disconnect failed during teardown")
			}
		}()
		client.Disconnect()
	}
}

// Run drains the inbound event stream until the channel closes or the
// context is cancelled. Events apply in delivery order; nothing is
// reordered or buffered beyond the channel itself.
func (c *Controller) Run(ctx context.Context) {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-client.Events():
			if !ok {
				return
			}
			c.apply(ev)
		}
	}
}

func (c *Controller) apply(ev relay.Event) {
	switch e := ev.(type) {
	case relay.CodeUpdate:
		c.mu.Lock()
		// A byte-identical echo of what we just sent would only trigger a
		// redundant re-render; drop it.
		if e.Code == c.lastSent {
			c.mu.Unlock()
			return
		}
		c.code = e.Code
		c.mu.Unlock()
		if c.OnCodeUpdate != nil {
			c.OnCodeUpdate(e.Code)
		}

	case relay.ChatReceived:
		entry := ChatEntry{Username: e.Username, Message: e.Message, At: c.now()}
		c.mu.Lock()
		c.chat = append(c.chat, entry)
		c.mu.Unlock()
		if c.OnChat != nil {
			c.OnChat(entry)
		}

	case relay.TypingShown:
		c.mu.Lock()
		c.typingFrom = e.Display
		c.typingUntil = c.now().Add(typingExpiry)
		c.mu.Unlock()

	case relay.UserJoined:
		c.mu.Lock()
		c.peers[e.Display] = struct{}{}
		c.mu.Unlock()
		if c.OnPresence != nil {
			c.OnPresence(e.Display, true)
		}

	case relay.UserLeft:
		c.mu.Lock()
		delete(c.peers, e.Display)
		c.mu.Unlock()
		if c.OnPresence != nil {
			c.OnPresence(e.Display, false)
		}
	}
}

// SetCode records a local edit and broadcasts the full buffer.
func (c *Controller) SetCode(code string) error {
	c.mu.Lock()
	if c.state != Joined {
		c.mu.Unlock()
		return ErrNotJoined
	}
	client := c.client
	roomID := c.roomID
	c.code = code
	c.lastSent = code
	c.mu.Unlock()

	return client.SendCodeChange(roomID, code)
}

// SendChat appends the local echo immediately, then emits the chat event.
func (c *Controller) SendChat(text string) error {
	c.mu.Lock()
	if c.state != Joined {
		c.mu.Unlock()
		return ErrNotJoined
	}
	client := c.client
	roomID := c.roomID
	username := c.username
	c.chat = append(c.chat, ChatEntry{Username: username, Message: text, At: c.now()})
	c.mu.Unlock()

	return client.SendChatMessage(roomID, username, text)
}

// NotifyTyping emits a fire-and-forget typing hint.
func (c *Controller) NotifyTyping() error {
	c.mu.Lock()
	if c.state != Joined {
		c.mu.Unlock()
		return ErrNotJoined
	}
	client := c.client
	roomID := c.roomID
	username := c.username
	c.mu.Unlock()

	return client.SendTyping(roomID, username)
}

// State returns the current lifecycle position.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Code returns the current shared buffer as this client sees it.
func (c *Controller) Code() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code
}

// SessionID returns the ledger session id of the current membership, or
// empty when not joined.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Chat returns a copy of the chat log.
func (c *Controller) Chat() []ChatEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ChatEntry(nil), c.chat...)
}

// Peers returns the sorted presence roster.
func (c *Controller) Peers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.peers))
	for p := range c.peers {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// TypingFrom returns who is currently typing, or empty once the hint has
// expired.
func (c *Controller) TypingFrom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.typingFrom == "" || c.now().After(c.typingUntil) {
		return ""
	}
	return c.typingFrom
}
