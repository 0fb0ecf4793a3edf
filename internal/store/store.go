package store

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/wtxsocial/chatcore/internal/database"
	"github.com/wtxsocial/chatcore/internal/types"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

// ErrPersistence wraps any repository failure during Append so callers
// can distinguish a durability problem from a validation one.
var ErrPersistence = errors.New("message persistence failed")

// MessageStore owns the global message id sequence. All appends, across
// every room, go through the single mutex: an id is only consumed when
// the insert succeeds, so the sequence stays dense.
type MessageStore struct {
	repo   database.ChatRepository
	log    *log.Logger
	mu     sync.Mutex
	lastId int64
}

func NewMessageStore(repo database.ChatRepository, logger *log.Logger) (*MessageStore, error) {
	maxId, err := repo.MaxMessageId()
	if err != nil {
		return nil, fmt.Errorf("failed to load message id sequence: %w", err)
	}

	return &MessageStore{
		repo:   repo,
		log:    logger,
		lastId: maxId,
	}, nil
}

// Append assigns the next message id, stamps the current time and writes
// the message durably. The id advances only if the insert succeeds.
func (s *MessageStore) Append(roomId int64, author types.Principal, content string) (types.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := database.Message{
		Id:             s.lastId + 1,
		RoomId:         roomId,
		UserId:         author.Id,
		Content:        content,
		AuthorUsername: author.Username,
		AuthorNickname: author.Nickname,
		AuthorColor:    author.Color,
		AuthorBadge:    author.Badge,
		CreatedAt:      Now(),
	}

	if err := s.repo.InsertMessage(msg); err != nil {
		s.log.Printf("failed to persist message for room %d: %s", roomId, err)
		return types.Message{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	s.lastId = msg.Id

	return toMessage(msg), nil
}

// History returns up to limit messages for the room in ascending id
// order, skipping the offset most recent. Limit defaults to
// DefaultHistoryLimit and is capped at MaxHistoryLimit; a negative
// offset reads as zero.
func (s *MessageStore) History(roomId int64, limit, offset int) ([]types.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.repo.GetRecentMessages(roomId, limit, offset)
	if err != nil {
		return nil, err
	}

	messages := make([]types.Message, len(rows))
	for i, row := range rows {
		messages[len(rows)-1-i] = toMessage(row)
	}
	return messages, nil
}

func (s *MessageStore) DeleteByRoom(roomId int64) (int64, error) {
	return s.repo.DeleteMessagesByRoom(roomId)
}

func (s *MessageStore) DeleteBefore(cutoff time.Time) (int64, error) {
	return s.repo.DeleteMessagesBefore(cutoff)
}

// Now is the timestamp source for new messages. Stored times are UTC at
// millisecond precision so they round-trip through json unchanged.
func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

func toMessage(row database.Message) types.Message {
	return types.Message{
		Id:        row.Id,
		RoomId:    row.RoomId,
		UserId:    row.UserId,
		Content:   row.Content,
		Username:  row.AuthorUsername,
		Nickname:  row.AuthorNickname,
		Color:     row.AuthorColor,
		Badge:     row.AuthorBadge,
		Timestamp: row.CreatedAt,
	}
}
