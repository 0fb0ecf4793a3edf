package server

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/wtxsocial/chatcore/internal/types"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
)

// Client is a single websocket session. A user may hold any number of
// concurrent sessions; each gets its own Client with its own session id.
type Client struct {
	sessionId  string
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	principal  types.Principal
	send       chan *ServerEvent
	rooms      map[int64]*Room
	roomsLock  sync.RWMutex
	stop       chan struct{}
	stopOnce   sync.Once

	lastSeen     time.Time
	lastSeenLock sync.Mutex
}

func NewClient(principal types.Principal, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	return &Client{
		conn:       conn,
		chatServer: cs,
		log:        l,
		principal:  principal,
		send:       make(chan *ServerEvent, 256),
		rooms:      make(map[int64]*Room),
		stop:       make(chan struct{}),
		lastSeen:   time.Now(),
	}
}

func (c *Client) heartbeat() {
	c.lastSeenLock.Lock()
	defer c.lastSeenLock.Unlock()
	c.lastSeen = time.Now()
}

func (c *Client) LastSeen() time.Time {
	c.lastSeenLock.Lock()
	defer c.lastSeenLock.Unlock()
	return c.lastSeen
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Printf("write exiting for session %q", c.sessionId)
	}()

	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(ev)
			if err != nil {
				c.log.Println("failed to serialize event:", err)
				continue
			}

			if !c.writeMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.writeMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Printf("read exiting for session %q", c.sessionId)
	}()

	c.conn.SetReadLimit(int64(4*c.chatServer.maxMessageLength + 512))
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.heartbeat()
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		c.heartbeat()

		var ev ClientEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.log.Println("error parsing event:", err)
			c.queueEvent(ErrInvalidEvent())
			continue
		}

		ev.client = c
		c.handleEvent(&ev)
	}
}

// handleEvent validates an inbound event and hands it to the room actor
// that owns its room. Validation happens here so room actors only ever
// see well-formed events.
func (c *Client) handleEvent(ev *ClientEvent) {
	switch ev.Type {
	case EventJoin, EventLeave, EventSendMessage, EventGetOnlineUsers:
	default:
		c.queueEvent(ErrInvalidEvent())
		return
	}

	if ev.RoomId == 0 {
		c.queueEvent(ErrMissingRoomId())
		return
	}

	if ev.Type == EventSendMessage {
		ev.Message = strings.TrimSpace(ev.Message)
		if ev.Message == "" {
			c.queueEvent(ErrEmptyMessage())
			return
		}
		if utf8.RuneCountInString(ev.Message) > c.chatServer.maxMessageLength {
			c.queueEvent(ErrMessageTooLong())
			return
		}
	}

	switch ev.Type {
	case EventLeave:
		// leaving a room the session never joined is a no-op
		if r := c.getRoom(ev.RoomId); r != nil {
			c.forward(r.leaveChan, ev)
		}
	case EventSendMessage:
		if r := c.getRoom(ev.RoomId); r != nil {
			c.forward(r.sendChan, ev)
		} else {
			c.route(ev)
		}
	default:
		c.route(ev)
	}
}

func (c *Client) forward(ch chan *ClientEvent, ev *ClientEvent) {
	select {
	case ch <- ev:
	default:
		c.log.Printf("room channel full for room %d", ev.RoomId)
		c.queueEvent(ErrServiceUnavailable())
	}
}

// route hands the event to the chat server, which resolves the room and
// loads it from the database if it isn't running yet.
func (c *Client) route(ev *ClientEvent) {
	select {
	case c.chatServer.routeChan <- ev:
	default:
		c.log.Println("routeChan full")
		c.queueEvent(ErrServiceUnavailable())
	}
}

func (c *Client) queueEvent(ev *ServerEvent) bool {
	select {
	case c.send <- ev:
	default:
		c.log.Printf("send buffer full for session %q, dropping event", c.sessionId)
		return false
	}

	return true
}

func (c *Client) writeMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.leaveAllRooms()
	c.chatServer.deRegisterChan <- c
	c.stopClient()
}

func (c *Client) leaveAllRooms() {
	c.roomsLock.RLock()
	rooms := make([]*Room, 0, len(c.rooms))
	for _, room := range c.rooms {
		rooms = append(rooms, room)
	}
	c.roomsLock.RUnlock()

	for _, room := range rooms {
		room.leaveChan <- &ClientEvent{
			Type:   EventLeave,
			RoomId: room.id,
			client: c,
		}
	}
}

func (c *Client) delRoom(id int64) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	delete(c.rooms, id)
}

func (c *Client) addRoom(r *Room) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	c.rooms[r.id] = r
}

func (c *Client) getRoom(id int64) *Room {
	c.roomsLock.RLock()
	defer c.roomsLock.RUnlock()

	if room, ok := c.rooms[id]; ok {
		return room
	}

	return nil
}
