package cmd

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ridoystarlord/tabledrift/backup"
	"github.com/ridoystarlord/tabledrift/compare"
	"github.com/ridoystarlord/tabledrift/database"
	"github.com/ridoystarlord/tabledrift/engine"
	"github.com/ridoystarlord/tabledrift/execute"
	"github.com/ridoystarlord/tabledrift/history"
	"github.com/ridoystarlord/tabledrift/introspect"
	"github.com/ridoystarlord/tabledrift/logging"
	"github.com/ridoystarlord/tabledrift/schema"
	"github.com/ridoystarlord/tabledrift/sqlgen"
	"github.com/ridoystarlord/tabledrift/utils"
	"github.com/ridoystarlord/tabledrift/validate"
)

// app bundles the wired components every command needs.
type app struct {
	pool      *pgxpool.Pool
	provider  *schema.FileProvider
	inspector *introspect.Inspector
	engine    *engine.Engine
	history   *history.Manager
	backups   *backup.Manager
	logger    *slog.Logger
}

func newApp() (*app, error) {
	pool, err := database.GetPool()
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %v", err)
	}

	provider, err := schema.NewFileProvider(schemaFile)
	if err != nil {
		return nil, fmt.Errorf("loading schema file: %v", err)
	}

	logger := logging.NewLogger(utils.LogLevel())
	inspector := introspect.New(pool)
	hist := history.NewManager(pool, logger)
	backups := backup.NewManager(inspector, utils.BackupDir(), logger)

	eng := engine.New(engine.Config{
		Comparator: compare.New(inspector, nil),
		Generator:  sqlgen.NewGenerator(),
		Validator:  validate.New(inspector),
		Backups:    backups,
		Executor:   execute.New(pool, logger),
		History:    hist,
		Provider:   provider,
		Live:       inspector,
		Logger:     logger,
	})

	return &app{
		pool:      pool,
		provider:  provider,
		inspector: inspector,
		engine:    eng,
		history:   hist,
		backups:   backups,
		logger:    logger,
	}, nil
}
