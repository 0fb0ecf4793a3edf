package server

import (
	"time"

	"github.com/wtxsocial/chatcore/internal/types"
)

// Client event types.
const (
	EventJoin           = "join"
	EventLeave          = "leave"
	EventSendMessage    = "send_message"
	EventGetOnlineUsers = "get_online_users"
)

// Server event types.
const (
	EventMessage     = "message"
	EventStatus      = "status"
	EventOnlineUsers = "online_users"
	EventError       = "error"
)

type ClientEvent struct {
	Type    string `json:"type"`
	RoomId  int64  `json:"room_id,omitempty"`
	Message string `json:"message,omitempty"`

	client *Client
}

type ServerEvent struct {
	Type        string              `json:"type"`
	Message     *MessagePayload     `json:"message,omitempty"`
	Status      *StatusPayload      `json:"status,omitempty"`
	OnlineUsers *OnlineUsersPayload `json:"online_users,omitempty"`
	Error       *ErrorPayload       `json:"error,omitempty"`
}

type MessagePayload struct {
	Id        int64     `json:"id"`
	RoomId    int64     `json:"room_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	UserId    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Nickname  string    `json:"nickname,omitempty"`
	Color     string    `json:"color,omitempty"`
	Badge     string    `json:"badge,omitempty"`
}

type StatusPayload struct {
	RoomId int64  `json:"room_id"`
	UserId int64  `json:"user_id"`
	Msg    string `json:"msg"`
}

type OnlineUsersPayload struct {
	RoomId int64               `json:"room_id"`
	Users  []types.UserSummary `json:"users"`
}

type ErrorPayload struct {
	Msg string `json:"msg"`
}

func NewMessageEvent(msg types.Message) *ServerEvent {
	return &ServerEvent{
		Type: EventMessage,
		Message: &MessagePayload{
			Id:        msg.Id,
			RoomId:    msg.RoomId,
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
			UserId:    msg.UserId,
			Username:  msg.Username,
			Nickname:  msg.Nickname,
			Color:     msg.Color,
			Badge:     msg.Badge,
		},
	}
}

func NewStatusEvent(roomId, userId int64, msg string) *ServerEvent {
	return &ServerEvent{
		Type: EventStatus,
		Status: &StatusPayload{
			RoomId: roomId,
			UserId: userId,
			Msg:    msg,
		},
	}
}

func NewOnlineUsersEvent(roomId int64, users []types.UserSummary) *ServerEvent {
	return &ServerEvent{
		Type: EventOnlineUsers,
		OnlineUsers: &OnlineUsersPayload{
			RoomId: roomId,
			Users:  users,
		},
	}
}

func newErrorEvent(msg string) *ServerEvent {
	return &ServerEvent{
		Type:  EventError,
		Error: &ErrorPayload{Msg: msg},
	}
}

func ErrRoomNotFound() *ServerEvent {
	return newErrorEvent("room not found")
}

func ErrMissingRoomId() *ServerEvent {
	return newErrorEvent("room id is required")
}

func ErrEmptyMessage() *ServerEvent {
	return newErrorEvent("message cannot be empty")
}

func ErrMessageTooLong() *ServerEvent {
	return newErrorEvent("message too long")
}

func ErrInternalError() *ServerEvent {
	return newErrorEvent("internal server error")
}

func ErrServiceUnavailable() *ServerEvent {
	return newErrorEvent("service unavailable")
}

func ErrInvalidEvent() *ServerEvent {
	return newErrorEvent("invalid event format")
}
