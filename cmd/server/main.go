package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/equential/classvote/internal/api"
	"github.com/equential/classvote/internal/config"
	"github.com/equential/classvote/internal/db"
	"github.com/equential/classvote/internal/logger"
	"github.com/equential/classvote/internal/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Storage is mandatory: a store that cannot be opened at startup is fatal.
	store, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatal("open store", "driver", cfg.Store.Driver, "err", err)
	}
	defer closeStore()
	log.Info("store ready", "driver", cfg.Store.Driver)

	if len(os.Args) > 1 && os.Args[1] == "create-admin" {
		if err := runCreateAdmin(store, cfg, os.Args[2:]); err != nil {
			log.Fatal("create-admin", "err", err)
		}
		return
	}

	auth := middleware.NewAuth(cfg.Auth.JWTSecret)
	mux := http.NewServeMux()
	api.NewRouter(store, auth, log).Register(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "name": "classvote API"})
	})

	handler := middleware.CORS(middleware.SecureHeaders(auth.WithAuth(mux)))

	log.Info("classvote server listening", "addr", cfg.Server.Addr)
	if err := http.ListenAndServe(cfg.Server.Addr, handler); err != nil {
		log.Fatal("server error", "err", err)
	}
}

func openStore(cfg *config.Config) (api.Store, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		return api.NewMemoryStore(), func() {}, nil
	case "sqlite":
		store, err := db.OpenSQLiteStore(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := db.NewMongoStore(ctx, cfg.Store.MongoURL, cfg.Store.MongoDB)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = store.Close(ctx)
		}
		return store, closeFn, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
