package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/wtxsocial/chatcore/internal/config"
	"github.com/wtxsocial/chatcore/internal/database"
	"github.com/wtxsocial/chatcore/internal/identity"
	"github.com/wtxsocial/chatcore/internal/server"
	"github.com/wtxsocial/chatcore/internal/store"
)

type ChatApp struct {
	log              *log.Logger
	db               database.ChatRepository
	mux              *http.Server
	cs               *server.ChatServer
	msgStore         *store.MessageStore
	idp              identity.Provider
	allowedOrigins   []string
	maxMessageLength int

	newRequestId func() string
}

func NewChatApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.ChatRepository,
	msgStore *store.MessageStore, idp identity.Provider, cfg *config.Config) *ChatApp {
	s := &ChatApp{
		log:              logger,
		db:               db,
		cs:               cs,
		msgStore:         msgStore,
		idp:              idp,
		allowedOrigins:   cfg.AllowedOrigins,
		maxMessageLength: cfg.MaxMessageLength,
		newRequestId:     uuid.NewString,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.Handle("GET /api/chat/history", s.authMiddleware(s.chatHistory))
	mux.Handle("POST /api/chat/send", s.authMiddleware(s.sendMessage))
	mux.Handle("DELETE /api/admin/messages", s.authMiddleware(s.deleteMessages))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.requestIdMiddleware(h)
	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *ChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *ChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
