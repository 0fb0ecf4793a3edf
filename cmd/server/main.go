package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wtxsocial/chatcore/internal/api"
	"github.com/wtxsocial/chatcore/internal/config"
	"github.com/wtxsocial/chatcore/internal/database"
	"github.com/wtxsocial/chatcore/internal/identity"
	"github.com/wtxsocial/chatcore/internal/server"
	"github.com/wtxsocial/chatcore/internal/stats"
	"github.com/wtxsocial/chatcore/internal/store"
)

func main() {
	logger := log.New(os.Stderr, "[chatcore] ", log.LstdFlags)

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatal("config: ", err)
	}

	dbConn, err := database.NewPgChatRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open: ", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close: ", err)
		}
	}()

	msgStore, err := store.NewMessageStore(dbConn, logger)
	if err != nil {
		logger.Fatal("message store: ", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, dbConn, msgStore, statsUpdater, cfg.MaxMessageLength)
	if err != nil {
		logger.Fatal("new chat server: ", err)
	}

	idp := identity.NewTokenProvider(cfg.SigningKey)

	srv := api.NewChatApp(mux, logger, chatServer, dbConn, msgStore, idp, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
