package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/wtxsocial/chatcore/internal/sanitize"
	"github.com/wtxsocial/chatcore/internal/server"
	"github.com/wtxsocial/chatcore/internal/types"
)

type SendMessageRequest struct {
	RoomId  int64  `json:"room_id"`
	Message string `json:"message"`
}

type SendMessageResponse struct {
	Success bool           `json:"success"`
	Message *types.Message `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
}

type HistoryResponse struct {
	RoomId   int64           `json:"room_id"`
	Messages []types.Message `json:"messages"`
}

type DeleteMessagesResponse struct {
	Deleted int64 `json:"deleted"`
}

func (s *ChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *ChatApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Printf("health check: %v", err)
		s.writeJson(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *ChatApp) chatHistory(w http.ResponseWriter, r *http.Request) {
	roomIdParam := r.URL.Query().Get("room_id")
	if roomIdParam == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	roomId, err := strconv.ParseInt(roomIdParam, 10, 64)
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var limit, offset int
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if limit, err = strconv.Atoi(limitParam); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}
	if offsetParam := r.URL.Query().Get("offset"); offsetParam != "" {
		if offset, err = strconv.Atoi(offsetParam); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	if _, err := s.db.GetRoom(roomId); err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messages, err := s.msgStore.History(roomId, limit, offset)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, HistoryResponse{
		RoomId:   roomId,
		Messages: messages,
	})
}

// sendMessage persists a message over plain http. Delivery to connected
// sessions still happens only on the websocket path.
func (s *ChatApp) sendMessage(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJson(w, http.StatusBadRequest, SendMessageResponse{Error: "invalid request body"})
		return
	}

	if req.RoomId == 0 {
		s.writeJson(w, http.StatusBadRequest, SendMessageResponse{Error: "room id is required"})
		return
	}

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		s.writeJson(w, http.StatusBadRequest, SendMessageResponse{Error: "message cannot be empty"})
		return
	}
	if utf8.RuneCountInString(req.Message) > s.maxMessageLength {
		s.writeJson(w, http.StatusBadRequest, SendMessageResponse{Error: "message too long"})
		return
	}

	if _, err := s.db.GetRoom(req.RoomId); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeJson(w, http.StatusNotFound, SendMessageResponse{Error: "room not found"})
			return
		}
		s.log.Printf("send: GetRoom %d: %v", req.RoomId, err)
		s.writeJson(w, http.StatusInternalServerError, SendMessageResponse{Error: "internal server error"})
		return
	}

	msg, err := s.msgStore.Append(req.RoomId, principal, sanitize.Sanitize(req.Message))
	if err != nil {
		s.log.Printf("send: %v", err)
		s.writeJson(w, http.StatusInternalServerError, SendMessageResponse{Error: "internal server error"})
		return
	}

	s.writeJson(w, http.StatusOK, SendMessageResponse{
		Success: true,
		Message: &msg,
	})
}

// deleteMessages is the retention endpoint. It deletes by room when
// room_id is given, otherwise by age when before is given as RFC 3339.
func (s *ChatApp) deleteMessages(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok || !types.IsAdmin(principal) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	roomIdParam := r.URL.Query().Get("room_id")
	beforeParam := r.URL.Query().Get("before")

	var deleted int64
	var err error
	switch {
	case roomIdParam != "":
		var roomId int64
		if roomId, err = strconv.ParseInt(roomIdParam, 10, 64); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		deleted, err = s.msgStore.DeleteByRoom(roomId)
	case beforeParam != "":
		var cutoff time.Time
		if cutoff, err = time.Parse(time.RFC3339, beforeParam); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		deleted, err = s.msgStore.DeleteBefore(cutoff)
	default:
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, DeleteMessagesResponse{Deleted: deleted})
}

func (s *ChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(principal, conn, s.cs, s.log)
	if err := s.cs.Admit(client); err != nil {
		s.log.Println("failed to admit client:", err)
		conn.Close()
		return
	}

	go client.Write()
	go client.Read()
}
