package database

import "time"

type Room struct {
	Id          int64
	Name        string
	Description string
}

type Message struct {
	Id             int64
	RoomId         int64
	UserId         int64
	Content        string
	AuthorUsername string
	AuthorNickname string
	AuthorColor    string
	AuthorBadge    string
	CreatedAt      time.Time
}
