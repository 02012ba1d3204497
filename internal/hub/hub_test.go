package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ANU-2524/JustCoding-sub000/internal/relay"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newRelayServer(t *testing.T, redisClient *redis.Client) (*Hub, string) {
	t.Helper()
	h := New(redisClient, quietLogger())
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(srv.Close)
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newJoinedClient(t *testing.T, wsURL, roomID, username string) *relay.Client {
	t.Helper()
	c := relay.NewClient(wsURL, quietLogger())
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(c.Disconnect)
	require.NoError(t, c.JoinRoom(roomID, username))
	return c
}

func waitEvent(t *testing.T, c *relay.Client) relay.Event {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		require.True(t, ok, "event stream closed unexpectedly")
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for relay event")
		return nil
	}
}

func TestJoinBroadcastsPresence(t *testing.T) {
	_, wsURL := newRelayServer(t, nil)

	bob := newJoinedClient(t, wsURL, "r1", "bob")
	newJoinedClient(t, wsURL, "r1", "alice")

	ev := waitEvent(t, bob)
	joined, ok := ev.(relay.UserJoined)
	require.True(t, ok, "expected UserJoined, got %T", ev)
	assert.Equal(t, "alice", joined.Display)
}

func TestLastWriterWins(t *testing.T) {
	_, wsURL := newRelayServer(t, nil)

	bob := newJoinedClient(t, wsURL, "r1", "bob")
	alice := newJoinedClient(t, wsURL, "r1", "alice")
	waitEvent(t, bob) // alice's user-joined

	require.NoError(t, alice.SendCodeChange("r1", "version A"))
	require.NoError(t, alice.SendCodeChange("r1", "version B"))

	// Per-sender order is preserved: A arrives, then B. The receiver's
	// final buffer is the last delivery.
	first := waitEvent(t, bob)
	second := waitEvent(t, bob)

	require.IsType(t, relay.CodeUpdate{}, first)
	require.IsType(t, relay.CodeUpdate{}, second)
	assert.Equal(t, "version A", first.(relay.CodeUpdate).Code)
	assert.Equal(t, "version B", second.(relay.CodeUpdate).Code)
}

func TestChatFanOutExcludesSender(t *testing.T) {
	_, wsURL := newRelayServer(t, nil)

	bob := newJoinedClient(t, wsURL, "r1", "bob")
	alice := newJoinedClient(t, wsURL, "r1", "alice")
	waitEvent(t, bob) // alice's user-joined

	require.NoError(t, alice.SendChatMessage("r1", "alice", "hello bob"))

	ev := waitEvent(t, bob)
	chat, ok := ev.(relay.ChatReceived)
	require.True(t, ok, "expected ChatReceived, got %T", ev)
	assert.Equal(t, "alice", chat.Username)
	assert.Equal(t, "hello bob", chat.Message)

	// The sender renders its own echo locally; the relay must not bounce
	// the message back.
	select {
	case ev := <-alice.Events():
		t.Fatalf("sender received its own chat back: %#v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestTypingHint(t *testing.T) {
	_, wsURL := newRelayServer(t, nil)

	bob := newJoinedClient(t, wsURL, "r1", "bob")
	alice := newJoinedClient(t, wsURL, "r1", "alice")
	waitEvent(t, bob)

	require.NoError(t, alice.SendTyping("r1", "alice"))

	ev := waitEvent(t, bob)
	typing, ok := ev.(relay.TypingShown)
	require.True(t, ok, "expected TypingShown, got %T", ev)
	assert.Equal(t, "alice", typing.Display)
}

func TestLeaveBroadcastsDeparture(t *testing.T) {
	h, wsURL := newRelayServer(t, nil)

	bob := newJoinedClient(t, wsURL, "r1", "bob")
	alice := newJoinedClient(t, wsURL, "r1", "alice")
	waitEvent(t, bob)

	alice.Disconnect()

	ev := waitEvent(t, bob)
	left, ok := ev.(relay.UserLeft)
	require.True(t, ok, "expected UserLeft, got %T", ev)
	assert.Equal(t, "alice", left.Display)

	require.Eventually(t, func() bool {
		return h.RoomSize("r1") == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRoomsAreIsolated(t *testing.T) {
	_, wsURL := newRelayServer(t, nil)

	bob := newJoinedClient(t, wsURL, "r2", "bob")
	alice := newJoinedClient(t, wsURL, "r1", "alice")

	require.NoError(t, alice.SendCodeChange("r1", "secret"))

	select {
	case ev := <-bob.Events():
		t.Fatalf("event leaked across rooms: %#v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRoomSwitchReusesConnection(t *testing.T) {
	h, wsURL := newRelayServer(t, nil)

	bob := newJoinedClient(t, wsURL, "r2", "bob")
	alice := newJoinedClient(t, wsURL, "r1", "alice")

	// Same connection, new room.
	require.NoError(t, alice.JoinRoom("r2", "alice"))

	ev := waitEvent(t, bob)
	joined, ok := ev.(relay.UserJoined)
	require.True(t, ok, "expected UserJoined, got %T", ev)
	assert.Equal(t, "alice", joined.Display)

	require.Eventually(t, func() bool {
		return h.RoomSize("r1") == 0 && h.RoomSize("r2") == 2
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, alice.SendCodeChange("r2", "hello r2"))
	ev = waitEvent(t, bob)
	update, ok := ev.(relay.CodeUpdate)
	require.True(t, ok, "expected CodeUpdate, got %T", ev)
	assert.Equal(t, "hello r2", update.Code)
}

func TestRedisFanOutAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)

	redis1 := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	redis2 := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		redis1.Close()
		redis2.Close()
	})

	_, wsURL1 := newRelayServer(t, redis1)
	_, wsURL2 := newRelayServer(t, redis2)

	bob := newJoinedClient(t, wsURL2, "r1", "bob")
	// Give instance 2's room subscription a moment to attach.
	time.Sleep(200 * time.Millisecond)

	alice := newJoinedClient(t, wsURL1, "r1", "alice")

	ev := waitEvent(t, bob)
	joined, ok := ev.(relay.UserJoined)
	require.True(t, ok, "expected UserJoined via redis, got %T", ev)
	assert.Equal(t, "alice", joined.Display)

	require.NoError(t, alice.SendCodeChange("r1", "cross-instance buffer"))

	ev = waitEvent(t, bob)
	update, ok := ev.(relay.CodeUpdate)
	require.True(t, ok, "expected CodeUpdate via redis, got %T", ev)
	assert.Equal(t, "cross-instance buffer", update.Code)
}
