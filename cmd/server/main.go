package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	ragwebui "github.com/MegaGrindStone/rag-web-ui"
	"github.com/MegaGrindStone/rag-web-ui/internal/handlers"
	"github.com/MegaGrindStone/rag-web-ui/internal/services"
	"github.com/MegaGrindStone/rag-web-ui/internal/session"
	"github.com/joho/godotenv"
)

func main() {
	cfgFlag := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Failed to load .env file: %v", err)
	}

	cfgDir, err := os.UserConfigDir()
	if err != nil {
		log.Fatal(fmt.Errorf("error getting user config dir: %w", err))
	}
	cfgPath := filepath.Join(cfgDir, "ragwebui")
	if err := os.MkdirAll(cfgPath, 0755); err != nil {
		log.Fatal(fmt.Errorf("error creating config directory: %w", err))
	}

	cfg, err := readConfig(*cfgFlag, filepath.Join(cfgPath, "config.yaml"))
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.logLevel()}))

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(cfgPath, "documents.db")
	}
	boltDB, err := services.NewBoltDB(dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer boltDB.Close()

	rag := services.NewRAG(cfg.Backend.BaseURL, logger)
	global, err := cfg.Answerer.answerer(cfg.SystemPrompt, logger)
	if err != nil {
		log.Fatal(fmt.Errorf("error creating answerer: %w", err))
	}
	answerer := services.NewScopeRouter(rag, global, logger)

	opts := session.Options{
		HistoryPolicy:  cfg.History,
		RequestTimeout: cfg.RequestTimeout,
	}

	// m is assigned below; controllers are only created once the server is serving requests.
	var m handlers.Main
	sessions := services.NewSessions(cfg.SessionTTL, func(id string) *session.Controller {
		return session.NewController(id, answerer, rag, boltDB, m, opts, logger)
	}, logger)

	m, err = handlers.NewMain(sessions, boltDB, logger)
	if err != nil {
		log.Fatal(err)
	}

	staticFS, err := fs.Sub(ragwebui.StaticFS, "static")
	if err != nil {
		log.Fatal(err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           m.Router(staticFS),
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := m.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shutdown sse server", slog.String("error", err.Error()))
		}
	})

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("Server starting",
			slog.String("addr", srv.Addr),
			slog.String("backend", cfg.Backend.BaseURL),
			slog.String("history", string(cfg.History)))
		serverErrors <- srv.ListenAndServe()
	}()

	// Channel to listen for interrupt/terminate signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("Server error", slog.String("error", err.Error()))

	case sig := <-shutdown:
		logger.Info("Start shutdown", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", slog.String("error", err.Error()))
			if err := srv.Close(); err != nil {
				logger.Error("Forcing server close", slog.String("error", err.Error()))
			}
		}
	}
}

// readConfig reads the config at path, or at defaultPath when path is empty. A missing file at
// defaultPath yields the default configuration.
func readConfig(path, defaultPath string) (config, error) {
	explicit := path != ""
	if !explicit {
		path = defaultPath
	}

	f, err := os.Open(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			log.Printf("No config file at %s, using defaults", path)
			return loadConfig(strings.NewReader(""))
		}
		return config{}, fmt.Errorf("error opening config file: %w", err)
	}
	defer f.Close()

	return loadConfig(f)
}
