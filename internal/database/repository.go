package database

import "time"

// ChatRepository is the durable-store surface the chat core depends on.
// Rooms are created and edited by the platform's directory; the core only
// reads them to check existence. The bulk deletes implement the retention
// surface owned by the platform's admin tooling.
type ChatRepository interface {
	Ping() error
	GetRoom(roomId int64) (Room, error)
	InsertMessage(msg Message) error
	GetRecentMessages(roomId int64, limit, offset int) ([]Message, error)
	MaxMessageId() (int64, error)
	DeleteMessagesByRoom(roomId int64) (int64, error)
	DeleteMessagesBefore(cutoff time.Time) (int64, error)
}
