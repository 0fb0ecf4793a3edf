package server

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"sync"

	"github.com/teris-io/shortid"
	"github.com/wtxsocial/chatcore/internal/database"
	"github.com/wtxsocial/chatcore/internal/stats"
	"github.com/wtxsocial/chatcore/internal/store"
)

type stopReq struct {
	done chan struct{}
}

// ChatServer owns the set of live sessions and running room actors.
// Rooms are loaded from the database on first use and unloaded after
// sitting idle with no members.
type ChatServer struct {
	log   *log.Logger
	db    database.ChatRepository
	store *store.MessageStore
	stats stats.StatsProvider

	maxMessageLength int

	clients     map[*Client]struct{}
	clientsLock sync.Mutex

	routeChan      chan *ClientEvent
	registerChan   chan *Client
	deRegisterChan chan *Client
	unloadRoomChan chan int64

	rooms map[int64]*Room
	stop  chan stopReq
}

func NewChatServer(logger *log.Logger, db database.ChatRepository, msgStore *store.MessageStore,
	statsProvider stats.StatsProvider, maxMessageLength int) (*ChatServer, error) {
	cs := &ChatServer{
		log:              logger,
		db:               db,
		store:            msgStore,
		stats:            statsProvider,
		maxMessageLength: maxMessageLength,
		clients:          make(map[*Client]struct{}),
		routeChan:        make(chan *ClientEvent, 256),
		registerChan:     make(chan *Client),
		deRegisterChan:   make(chan *Client),
		unloadRoomChan:   make(chan int64, 16),
		rooms:            make(map[int64]*Room),
		stop:             make(chan stopReq),
	}

	cs.stats.RegisterMetric("NumActiveConnections")
	cs.stats.RegisterMetric("NumActiveRooms")
	cs.stats.RegisterMetric("NumMessagesPersisted")
	cs.stats.RegisterMetric("NumDeliveryFailures")

	return cs, nil
}

// Admit assigns the session its id and registers it with the server.
// The caller starts the read and write pumps.
func (cs *ChatServer) Admit(c *Client) error {
	sessionId, err := shortid.Generate()
	if err != nil {
		return err
	}

	c.sessionId = sessionId
	c.heartbeat()
	cs.registerChan <- c

	return nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case ev := <-cs.routeChan:
			cs.routeEvent(ev)
		case client := <-cs.registerChan:
			cs.log.Printf("session %q connected for user %q", client.sessionId, client.principal.Username)
			cs.addClient(client)
		case client := <-cs.deRegisterChan:
			cs.log.Printf("session %q disconnected for user %q", client.sessionId, client.principal.Username)
			cs.removeClient(client)
		case roomId := <-cs.unloadRoomChan:
			cs.unloadRoom(roomId)
		case req := <-cs.stop:
			cs.log.Println("shutting down rooms")
			for _, r := range cs.rooms {
				done := make(chan struct{})
				r.exit <- exitReq{done: done}
				<-done
			}
			cs.rooms = make(map[int64]*Room)

			close(req.done)
			return
		}
	}
}

// routeEvent resolves the event's room, loading the room actor from the
// database if it isn't running, and dispatches the event to it.
func (cs *ChatServer) routeEvent(ev *ClientEvent) {
	room, ok := cs.rooms[ev.RoomId]
	if !ok {
		dbRoom, err := cs.db.GetRoom(ev.RoomId)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				ev.client.queueEvent(ErrRoomNotFound())
			} else {
				cs.log.Printf("GetRoom %d: %s", ev.RoomId, err)
				ev.client.queueEvent(ErrInternalError())
			}
			return
		}

		room = newRoom(dbRoom.Id, dbRoom.Name, cs)
		cs.rooms[room.id] = room
		cs.stats.Incr("NumActiveRooms")

		go room.start()
	}

	switch ev.Type {
	case EventJoin:
		cs.dispatch(room.joinChan, ev)
	case EventSendMessage:
		cs.dispatch(room.sendChan, ev)
	case EventLeave:
		cs.dispatch(room.leaveChan, ev)
	case EventGetOnlineUsers:
		room.handleGetOnlineUsers(ev)
	}
}

// dispatch hands the event to a room inbox without blocking the server
// loop; one room's full inbox must not stall dispatch for other rooms.
func (cs *ChatServer) dispatch(ch chan *ClientEvent, ev *ClientEvent) {
	select {
	case ch <- ev:
	default:
		cs.log.Printf("room channel full for room %d", ev.RoomId)
		ev.client.queueEvent(ErrServiceUnavailable())
	}
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	cs.clients[c] = struct{}{}
	cs.stats.Incr("NumActiveConnections")
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; !ok {
		return
	}

	delete(cs.clients, c)
	cs.stats.Decr("NumActiveConnections")
}

// unloadRoom retires an idle room actor. A client may have joined
// between the timeout firing and this running, so membership is checked
// again first.
func (cs *ChatServer) unloadRoom(roomId int64) {
	r, ok := cs.rooms[roomId]
	if !ok {
		return
	}

	if r.numClients() > 0 {
		cs.log.Printf("room %d no longer idle, keeping it", roomId)
		return
	}

	delete(cs.rooms, roomId)
	cs.stats.Decr("NumActiveRooms")

	done := make(chan struct{})
	r.exit <- exitReq{done: done}
	<-done
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")

	cs.clientsLock.Lock()
	for c := range cs.clients {
		c.stopClient()
	}
	cs.clientsLock.Unlock()

	req := stopReq{done: make(chan struct{})}
	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
