// Package app wires a workspace: config, event log, engine, whiteboard, and
// the credential database. Nothing here is global; callers hold the Context
// and pass its pieces by reference.
package app

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"missionline/internal/config"
	"missionline/internal/db"
	"missionline/internal/engine"
	"missionline/internal/eventlog"
	"missionline/internal/migrate"
	"missionline/internal/repo"
	"missionline/internal/resolver"
	"missionline/internal/whiteboard"
)

// Context is one opened workspace.
type Context struct {
	Workspace string
	Config    *config.Config
	Log       *eventlog.Store
	Engine    *engine.Engine
	Board     whiteboard.View
	DB        *sql.DB
	Repo      repo.Repo
	Logger    *zap.Logger
}

// Open loads config, opens the event log streams and the credential
// database, and wires the engine with the default tool registry.
func Open(workspace string, logger *zap.Logger) (*Context, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	store, err := eventlog.Open(cfg.LogDir(workspace), logger)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Context{
		Workspace: workspace,
		Config:    cfg,
		Log:       store,
		Engine:    engine.New(store, resolver.NewRegistry(), cfg, logger),
		Board:     whiteboard.New(store, logger),
		DB:        conn,
		Repo:      repo.Repo{DB: conn},
		Logger:    logger,
	}, nil
}

// Close releases the credential database connection.
func (c *Context) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
