package server

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wtxsocial/chatcore/internal/database"
	"github.com/wtxsocial/chatcore/internal/stats"
	"github.com/wtxsocial/chatcore/internal/types"
)

func newTestRoom(t *testing.T, cs *ChatServer) *Room {
	t.Helper()

	r := newRoom(10, "general", cs)
	r.killTimer = time.NewTimer(idleRoomTimeout)
	r.killTimer.Stop()

	return r
}

func Test_addClient_removeClient_room(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatRepository{}, &stats.MockStatsUpdater{})
	room := newTestRoom(t, cs)

	alice1 := newTestClient(t, cs, types.Principal{Id: 1, Username: "alice"})
	alice2 := newTestClient(t, cs, types.Principal{Id: 1, Username: "alice"})

	assert.True(t, room.addClient(alice1), "expected first session to be the user's first")
	assert.False(t, room.addClient(alice2), "expected second session not to be the user's first")
	assert.False(t, room.addClient(alice1), "expected re-adding a session to be a no-op")

	assert.Len(t, room.clients, 2)
	assert.Contains(t, alice1.rooms, int64(10), "expected room to be tracked on the client")

	assert.False(t, room.removeClient(alice1), "expected user to still have a session")
	assert.True(t, room.removeClient(alice2), "expected removal of last session to report it")
	assert.False(t, room.removeClient(alice2), "expected removing a non-member to be a no-op")

	assert.Empty(t, room.clients)
	assert.NotContains(t, alice1.rooms, int64(10), "expected room to be dropped from the client")
}

func Test_onlineUsers(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatRepository{}, &stats.MockStatsUpdater{})
	room := newTestRoom(t, cs)

	bob := newTestClient(t, cs, types.Principal{Id: 2, Username: "bob"})
	alice1 := newTestClient(t, cs, types.Principal{Id: 1, Username: "alice", Nickname: "Al"})
	alice2 := newTestClient(t, cs, types.Principal{Id: 1, Username: "alice", Nickname: "Al"})

	room.addClient(bob)
	room.addClient(alice1)
	room.addClient(alice2)

	users := room.onlineUsers()
	require.Len(t, users, 2, "expected one entry per distinct user")
	assert.Equal(t, int64(1), users[0].Id, "expected users sorted by id")
	assert.Equal(t, "Al", users[0].Nickname)
	assert.Equal(t, int64(2), users[1].Id)
	assert.Equal(t, "bob", users[1].Nickname, "expected nickname to fall back to username")
}

func Test_handleJoin(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatRepository{}, &stats.MockStatsUpdater{})
	room := newTestRoom(t, cs)

	bob := newTestClient(t, cs, types.Principal{Id: 2, Username: "bob"})
	room.addClient(bob)

	alice := newTestClient(t, cs, types.Principal{Id: 1, Username: "alice", Nickname: "Al"})
	room.handleJoin(&ClientEvent{Type: EventJoin, RoomId: 10, client: alice})

	// existing member sees the join status
	select {
	case ev := <-bob.send:
		require.Equal(t, EventStatus, ev.Type)
		assert.Equal(t, "Al joined the chat room", ev.Status.Msg)
		assert.Equal(t, int64(1), ev.Status.UserId)
	default:
		t.Error("expected status broadcast to existing member")
	}

	// joiner receives the status broadcast and then the member snapshot
	select {
	case ev := <-alice.send:
		assert.Equal(t, EventStatus, ev.Type)
	default:
		t.Error("expected status event for joiner")
	}
	select {
	case ev := <-alice.send:
		require.Equal(t, EventOnlineUsers, ev.Type)
		assert.Len(t, ev.OnlineUsers.Users, 2)
	default:
		t.Error("expected online users snapshot for joiner")
	}

	// a second session for the same user joins silently
	alice2 := newTestClient(t, cs, types.Principal{Id: 1, Username: "alice", Nickname: "Al"})
	room.handleJoin(&ClientEvent{Type: EventJoin, RoomId: 10, client: alice2})

	select {
	case ev := <-bob.send:
		t.Errorf("expected no broadcast for additional session, got %q event", ev.Type)
	default:
	}
	select {
	case ev := <-alice2.send:
		assert.Equal(t, EventOnlineUsers, ev.Type, "expected snapshot even for an additional session")
	default:
		t.Error("expected online users snapshot for additional session")
	}
}

func Test_handleLeave(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatRepository{}, &stats.MockStatsUpdater{})
	room := newTestRoom(t, cs)

	bob := newTestClient(t, cs, types.Principal{Id: 2, Username: "bob"})
	alice1 := newTestClient(t, cs, types.Principal{Id: 1, Username: "alice"})
	alice2 := newTestClient(t, cs, types.Principal{Id: 1, Username: "alice"})
	room.addClient(bob)
	room.addClient(alice1)
	room.addClient(alice2)

	// first session leaving broadcasts nothing
	room.handleLeave(&ClientEvent{Type: EventLeave, RoomId: 10, client: alice1})
	select {
	case ev := <-bob.send:
		t.Errorf("expected no broadcast while user has sessions, got %q event", ev.Type)
	default:
	}

	// last session leaving broadcasts the departure
	room.handleLeave(&ClientEvent{Type: EventLeave, RoomId: 10, client: alice2})
	select {
	case ev := <-bob.send:
		require.Equal(t, EventStatus, ev.Type)
		assert.Equal(t, "alice left the chat room", ev.Status.Msg)
	default:
		t.Error("expected status broadcast when user's last session left")
	}
}

func Test_handleSend(t *testing.T) {
	t.Run("persists sanitized content and broadcasts", func(t *testing.T) {
		repo := &database.MockChatRepository{}
		repo.On("InsertMessage", mock.MatchedBy(func(m database.Message) bool {
			return m.RoomId == 10 && m.Content == "say <b>hi</b> &lt;script&gt;&lt;/script&gt;"
		})).Return(nil).Once()

		su := &stats.MockStatsUpdater{}
		su.On("Incr", "NumMessagesPersisted").Once()

		cs := newTestChatServer(t, repo, su)
		room := newTestRoom(t, cs)

		alice := newTestClient(t, cs, types.Principal{Id: 1, Username: "alice"})
		bob := newTestClient(t, cs, types.Principal{Id: 2, Username: "bob"})
		room.addClient(alice)
		room.addClient(bob)
		drain(alice.send)
		drain(bob.send)

		room.handleSend(&ClientEvent{
			Type:    EventSendMessage,
			RoomId:  10,
			Message: "say <b>hi</b> <script></script>",
			client:  alice,
		})

		for _, c := range []*Client{alice, bob} {
			select {
			case ev := <-c.send:
				require.Equal(t, EventMessage, ev.Type)
				assert.Equal(t, int64(1), ev.Message.Id)
				assert.Equal(t, "say <b>hi</b> &lt;script&gt;&lt;/script&gt;", ev.Message.Content)
				assert.Equal(t, "alice", ev.Message.Username)
			default:
				t.Errorf("expected message event for %q", c.principal.Username)
			}
		}

		repo.AssertExpectations(t)
		su.AssertExpectations(t)
	})

	t.Run("persistence failure reported to sender only", func(t *testing.T) {
		repo := &database.MockChatRepository{}
		repo.On("InsertMessage", mock.Anything).Return(errors.New("disk full")).Once()

		su := &stats.MockStatsUpdater{}

		cs := newTestChatServer(t, repo, su)
		room := newTestRoom(t, cs)

		alice := newTestClient(t, cs, types.Principal{Id: 1, Username: "alice"})
		bob := newTestClient(t, cs, types.Principal{Id: 2, Username: "bob"})
		room.addClient(alice)
		room.addClient(bob)
		drain(alice.send)
		drain(bob.send)

		room.handleSend(&ClientEvent{
			Type:    EventSendMessage,
			RoomId:  10,
			Message: "hello",
			client:  alice,
		})

		select {
		case ev := <-alice.send:
			require.Equal(t, EventError, ev.Type)
			assert.Equal(t, "internal server error", ev.Error.Msg)
		default:
			t.Error("expected error event for sender")
		}
		select {
		case ev := <-bob.send:
			t.Errorf("expected no event for other members, got %q event", ev.Type)
		default:
		}

		su.AssertNotCalled(t, "Incr", "NumMessagesPersisted")
	})
}

func Test_concurrentSends(t *testing.T) {
	const sendsPerSession = 25
	const total = 2 * sendsPerSession

	repo := &database.MockChatRepository{}
	repo.On("InsertMessage", mock.Anything).Return(nil)

	su := &stats.MockStatsUpdater{}
	su.On("Incr", "NumMessagesPersisted")

	cs := newTestChatServer(t, repo, su)
	room := newRoom(10, "general", cs)

	alice := newTestClient(t, cs, types.Principal{Id: 1, Username: "alice"})
	bob := newTestClient(t, cs, types.Principal{Id: 2, Username: "bob"})
	room.addClient(alice)
	room.addClient(bob)

	go room.start()
	defer func() {
		done := make(chan struct{})
		room.exit <- exitReq{done: done}
		<-done
	}()

	var wg sync.WaitGroup
	for _, sender := range []*Client{alice, bob} {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			for i := 0; i < sendsPerSession; i++ {
				room.sendChan <- &ClientEvent{
					Type:    EventSendMessage,
					RoomId:  10,
					Message: fmt.Sprintf("%s %d", c.principal.Username, i),
					client:  c,
				}
			}
		}(sender)
	}
	wg.Wait()

	collect := func(c *Client) []int64 {
		ids := make([]int64, 0, total)
		timeout := time.After(5 * time.Second)
		for len(ids) < total {
			select {
			case ev := <-c.send:
				if ev.Type == EventMessage {
					ids = append(ids, ev.Message.Id)
				}
			case <-timeout:
				t.Fatalf("timeout: received %d of %d messages for %q", len(ids), total, c.principal.Username)
			}
		}
		return ids
	}

	aliceIds := collect(alice)
	bobIds := collect(bob)

	// ids are gapless and strictly increasing, and every subscriber
	// observes the same order
	for i, id := range aliceIds {
		assert.Equalf(t, int64(i+1), id, "expected dense increasing ids, got %v", aliceIds)
	}
	assert.Equal(t, aliceIds, bobIds, "expected all subscribers to observe the same order")

	repo.AssertNumberOfCalls(t, "InsertMessage", total)
}

func Test_broadcast(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", "NumDeliveryFailures").Once()

	cs := newTestChatServer(t, &database.MockChatRepository{}, su)
	room := newTestRoom(t, cs)

	alice := newTestClient(t, cs, types.Principal{Id: 1, Username: "alice"})
	bob := newTestClient(t, cs, types.Principal{Id: 2, Username: "bob"})
	bob.send = make(chan *ServerEvent) // full from the start
	room.addClient(alice)
	room.addClient(bob)
	drain(alice.send)

	delivered := room.broadcast(NewStatusEvent(10, 1, "hello"), nil)

	assert.Equal(t, 1, delivered, "expected one delivery with one full buffer")
	select {
	case ev := <-alice.send:
		assert.Equal(t, EventStatus, ev.Type)
	default:
		t.Error("expected event for member with buffer space")
	}

	su.AssertExpectations(t)
}

func Test_handleRoomTimeout_room(t *testing.T) {
	t.Run("requests unload", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockChatRepository{}, &stats.MockStatsUpdater{})
		room := newTestRoom(t, cs)

		room.handleRoomTimeout()

		select {
		case roomId := <-cs.unloadRoomChan:
			assert.Equal(t, int64(10), roomId)
		default:
			t.Error("expected unload request")
		}
	})

	t.Run("retries when unload channel is full", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockChatRepository{}, &stats.MockStatsUpdater{})
		room := newTestRoom(t, cs)

		cs.unloadRoomChan = make(chan int64) // no capacity, no receiver

		room.handleRoomTimeout()

		assert.True(t, room.killTimer.Stop(), "expected kill timer to be rearmed for a retry")
	})
}

func Test_handleRoomExit_room(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatRepository{}, &stats.MockStatsUpdater{})
	room := newTestRoom(t, cs)

	alice := newTestClient(t, cs, types.Principal{Id: 1, Username: "alice"})
	room.addClient(alice)

	done := make(chan struct{})
	room.handleRoomExit(exitReq{done: done})

	select {
	case <-done:
	default:
		t.Error("expected done channel to be closed")
	}
	assert.NotContains(t, alice.rooms, int64(10), "expected room to be dropped from the client")
	assert.Empty(t, room.clients)
}

func drain(ch chan *ServerEvent) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
