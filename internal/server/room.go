package server

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/wtxsocial/chatcore/internal/sanitize"
	"github.com/wtxsocial/chatcore/internal/types"
)

const idleRoomTimeout = 30 * time.Second

type exitReq struct {
	done chan struct{}
}

// Room is the actor that owns a chat room. All joins, leaves and sends
// for the room are serialized through its channels, so message order
// within a room is the order the actor processed them in. Rooms are
// independent of each other.
type Room struct {
	id   int64
	name string
	cs   *ChatServer
	log  *log.Logger

	joinChan  chan *ClientEvent
	leaveChan chan *ClientEvent
	sendChan  chan *ClientEvent

	clients    map[*Client]struct{}
	userMap    map[int64]map[*Client]struct{}
	clientLock sync.RWMutex

	// killTimer unloads the room once its last session leaves
	killTimer *time.Timer
	exit      chan exitReq
}

func newRoom(id int64, name string, cs *ChatServer) *Room {
	return &Room{
		id:        id,
		name:      name,
		cs:        cs,
		log:       cs.log,
		joinChan:  make(chan *ClientEvent, 256),
		leaveChan: make(chan *ClientEvent, 256),
		sendChan:  make(chan *ClientEvent, 256),
		clients:   make(map[*Client]struct{}),
		userMap:   make(map[int64]map[*Client]struct{}),
		exit:      make(chan exitReq),
	}
}

func (r *Room) start() {
	r.log.Printf("starting room %d (%s)", r.id, r.name)
	r.killTimer = time.NewTimer(idleRoomTimeout)
	r.killTimer.Stop()

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case leave := <-r.leaveChan:
			r.handleLeave(leave)
		case ev := <-r.sendChan:
			r.handleSend(ev)
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case e := <-r.exit:
			r.handleRoomExit(e)
			return
		}
	}
}

func (r *Room) handleRoomTimeout() {
	r.log.Printf("room %d timed out", r.id)
	select {
	case r.cs.unloadRoomChan <- r.id:
	default:
		// server loop is busy; try again after another idle period
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) handleRoomExit(e exitReq) {
	r.log.Printf("room %d is exiting", r.id)

	r.clientLock.Lock()
	for c := range r.clients {
		c.delRoom(r.id)
	}
	r.clients = make(map[*Client]struct{})
	r.userMap = make(map[int64]map[*Client]struct{})
	r.clientLock.Unlock()

	if e.done != nil {
		close(e.done)
	}
}

// handleJoin adds the session to the room. Joining twice is a no-op.
// Other members only see a status broadcast when the user's first
// session arrives.
func (r *Room) handleJoin(ev *ClientEvent) {
	r.killTimer.Stop()

	c := ev.client
	firstSession := r.addClient(c)

	if firstSession {
		r.broadcast(NewStatusEvent(r.id, c.principal.Id, c.principal.DisplayName()+" joined the chat room"), nil)
	}

	c.queueEvent(NewOnlineUsersEvent(r.id, r.onlineUsers()))
}

// handleLeave removes the session. The status broadcast only goes out
// when the user's last session is gone.
func (r *Room) handleLeave(ev *ClientEvent) {
	c := ev.client
	lastSession := r.removeClient(c)

	if lastSession {
		r.broadcast(NewStatusEvent(r.id, c.principal.Id, c.principal.DisplayName()+" left the chat room"), nil)
	}
}

// handleSend persists the sanitized message, then broadcasts it. A
// failed write is reported to the sender only and consumes no message
// id; the room keeps running.
func (r *Room) handleSend(ev *ClientEvent) {
	content := sanitize.Sanitize(ev.Message)

	msg, err := r.cs.store.Append(r.id, ev.client.principal, content)
	if err != nil {
		ev.client.queueEvent(ErrInternalError())
		return
	}
	r.cs.stats.Incr("NumMessagesPersisted")

	r.broadcast(NewMessageEvent(msg), nil)
}

func (r *Room) handleGetOnlineUsers(ev *ClientEvent) {
	ev.client.queueEvent(NewOnlineUsersEvent(r.id, r.onlineUsers()))
}

// addClient reports whether this was the user's first session in the
// room.
func (r *Room) addClient(c *Client) bool {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; ok {
		return false
	}

	first := r.userMap[c.principal.Id] == nil

	r.clients[c] = struct{}{}
	if first {
		r.userMap[c.principal.Id] = make(map[*Client]struct{})
	}
	r.userMap[c.principal.Id][c] = struct{}{}

	c.addRoom(r)

	return first
}

// removeClient reports whether this was the user's last session in the
// room. Removing a session that isn't a member is a no-op.
func (r *Room) removeClient(c *Client) bool {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		return false
	}

	delete(r.clients, c)
	c.delRoom(r.id)

	last := false
	if userClients, ok := r.userMap[c.principal.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(r.userMap, c.principal.Id)
			last = true
		}
	}

	if len(r.clients) == 0 {
		r.log.Printf("no clients in room %d, starting kill timer", r.id)
		r.killTimer.Reset(idleRoomTimeout)
	}

	return last
}

// onlineUsers returns one entry per distinct user in the room, sorted
// by user id, regardless of how many sessions each holds.
func (r *Room) onlineUsers() []types.UserSummary {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	seen := make(map[int64]struct{}, len(r.userMap))
	users := make([]types.UserSummary, 0, len(r.userMap))
	for c := range r.clients {
		if _, ok := seen[c.principal.Id]; ok {
			continue
		}
		seen[c.principal.Id] = struct{}{}
		users = append(users, types.Summary(c.principal))
	}

	sort.Slice(users, func(i, j int) bool { return users[i].Id < users[j].Id })

	return users
}

func (r *Room) numClients() int {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	return len(r.clients)
}

// broadcast queues the event to every member session except skip. A
// session whose send buffer is full misses the event; delivery is never
// retried.
func (r *Room) broadcast(ev *ServerEvent, skip *Client) int {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	var delivered int
	for client := range r.clients {
		if client == skip {
			continue
		}

		if client.queueEvent(ev) {
			delivered++
		} else {
			r.log.Printf("dropped event for session %q in room %d", client.sessionId, r.id)
			r.cs.stats.Incr("NumDeliveryFailures")
		}
	}

	return delivered
}
