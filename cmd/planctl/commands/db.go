package commands

import (
	"fmt"
	"os"

	"github.com/benvon/dayplan/internal/config"
	"github.com/benvon/dayplan/internal/database"
	"github.com/google/uuid"
)

// openDatabase loads configuration and connects to the database. The caller
// must call the returned close function.
func openDatabase() (*config.Config, *database.DB, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	closeFn := func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}
	return cfg, db, closeFn, nil
}

func parseOwner(user, workspace string) (uuid.UUID, uuid.UUID, error) {
	userID, err := uuid.Parse(user)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("--user must be a UUID: %w", err)
	}
	workspaceID, err := uuid.Parse(workspace)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("--workspace must be a UUID: %w", err)
	}
	return userID, workspaceID, nil
}
