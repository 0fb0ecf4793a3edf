package database

import (
	"time"
)

func (db *PgChatRepository) GetRoom(roomId int64) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, description FROM chat_rooms "+
			"WHERE id = $1 LIMIT 1",
		roomId,
	)

	var room Room
	err := row.Scan(
		&room.Id,
		&room.Name,
		&room.Description,
	)

	return room, err
}

func (db *PgChatRepository) InsertMessage(msg Message) error {
	_, err := db.conn.Exec(
		"INSERT INTO chat_messages (id, room_id, user_id, content, author_username, author_nickname, author_color, author_badge, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)",
		msg.Id,
		msg.RoomId,
		msg.UserId,
		msg.Content,
		msg.AuthorUsername,
		msg.AuthorNickname,
		msg.AuthorColor,
		msg.AuthorBadge,
		msg.CreatedAt,
	)

	return err
}

func (db *PgChatRepository) GetRecentMessages(roomId int64, limit, offset int) ([]Message, error) {
	rows, err := db.conn.Query(
		"SELECT id, room_id, user_id, content, author_username, author_nickname, author_color, author_badge, created_at "+
			"FROM chat_messages WHERE room_id = $1 ORDER BY id DESC LIMIT $2 OFFSET $3",
		roomId,
		limit,
		offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		if err = rows.Scan(
			&msg.Id,
			&msg.RoomId,
			&msg.UserId,
			&msg.Content,
			&msg.AuthorUsername,
			&msg.AuthorNickname,
			&msg.AuthorColor,
			&msg.AuthorBadge,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}

		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (db *PgChatRepository) MaxMessageId() (int64, error) {
	row := db.conn.QueryRow("SELECT COALESCE(MAX(id), 0) FROM chat_messages")

	var maxId int64
	err := row.Scan(&maxId)

	return maxId, err
}

func (db *PgChatRepository) DeleteMessagesByRoom(roomId int64) (int64, error) {
	res, err := db.conn.Exec("DELETE FROM chat_messages WHERE room_id = $1", roomId)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (db *PgChatRepository) DeleteMessagesBefore(cutoff time.Time) (int64, error) {
	res, err := db.conn.Exec("DELETE FROM chat_messages WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
