package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/samuell19/megazord-ai/internal/agent"
	"github.com/samuell19/megazord-ai/internal/config"
	"github.com/samuell19/megazord-ai/internal/conversation"
	"github.com/samuell19/megazord-ai/internal/credential"
	"github.com/samuell19/megazord-ai/internal/db"
	"github.com/samuell19/megazord-ai/internal/logging"
	"github.com/samuell19/megazord-ai/internal/provider"
	"github.com/samuell19/megazord-ai/internal/session"
	"gorm.io/gorm"
)

// app bundles the services every command builds from the config file.
type app struct {
	cfg          *config.Config
	db           *gorm.DB
	log          *slog.Logger
	credentials  *credential.Service
	provider     *provider.Client
	orchestrator *conversation.Orchestrator
}

func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s database: %w", cfg.Database.Driver, err)
	}
	return cfg, gormDB, nil
}

// newLogger builds the process logger from the log section. Logs go to
// stderr so command output on stdout stays clean.
func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(w, level, cfg.Format), nil
}

// buildApp connects to the database and wires the conversation stack.
func buildApp(configPath string, logOut io.Writer) (*app, error) {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return nil, err
	}
	return wireApp(cfg, gormDB, logOut)
}

func wireApp(cfg *config.Config, gormDB *gorm.DB, logOut io.Writer) (*app, error) {
	log, err := newLogger(cfg.Log, logOut)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)

	cipher, err := credential.NewCipher(cfg.Security.EncryptionKey)
	if err != nil {
		return nil, err
	}
	creds := credential.NewService(gormDB, cipher, log)

	popts := provider.OptionsFromConfig(cfg.Provider)
	popts.Logger = log
	client := provider.NewClient(popts)

	store := session.Store{DB: gormDB}
	oopts := conversation.Options{
		Agents:      agent.Store{DB: gormDB},
		Sessions:    store,
		Messages:    store,
		Credentials: creds,
		Completer:   client,
		Logger:      log,
	}
	oopts.ApplyConfig(cfg.Conversation)
	orch, err := conversation.New(oopts)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:          cfg,
		db:           gormDB,
		log:          log,
		credentials:  creds,
		provider:     client,
		orchestrator: orch,
	}, nil
}
