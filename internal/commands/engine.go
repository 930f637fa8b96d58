package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ledgerd/ledgerd/internal/config"
	"github.com/ledgerd/ledgerd/internal/engine"
)

// openEngine loads config, applies flag overrides, and starts the engine.
// The caller must Close it.
func openEngine(cmd *cobra.Command) (*engine.Engine, *config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config %s: %w", configPath, err)
	}
	if dataDir, _ := cmd.Flags().GetString("data"); dataDir != "" {
		cfg.DataDir = dataDir
	}

	e, err := engine.New(engine.Options{
		DataDir:          cfg.DataDir,
		BcryptCost:       cfg.BcryptCost,
		SnapshotInterval: cfg.SnapshotInterval,
		SnapshotWALBytes: cfg.SnapshotWALBytes,
		SnapshotKeep:     cfg.SnapshotKeep,
		Logger:           buildLogger(cfg.LogLevel),
	})
	if err != nil {
		return nil, nil, err
	}
	return e, cfg, nil
}

func buildLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// verifyAccount authenticates the caller against an account before a
// sensitive operation, mirroring a teller checking credentials. Attempt
// counting and prompting are front-end concerns; the engine only answers
// yes or no.
func verifyAccount(cmd *cobra.Command, e *engine.Engine, id string) error {
	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		var err error
		password, err = promptPassword("Enter account password: ")
		if err != nil {
			return err
		}
	}
	ok, err := e.Authenticate(id, password)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("incorrect password for account %s", id)
	}
	return nil
}
