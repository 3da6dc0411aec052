package commands

import (
	"database/sql"

	"github.com/teranos/metronome/config"
	"github.com/teranos/metronome/db"
	"github.com/teranos/metronome/errors"
	"github.com/teranos/metronome/logger"
)

// openDatabase opens and migrates a database using the specified path.
// If dbPath is empty, it resolves the path from config. Uses logger.Logger
// for db operations.
func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		path, err := config.GetDatabasePath()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get database path")
		}
		if path == "" {
			dbPath = "metronome.db"
		} else {
			dbPath = path
		}
	}

	database, err := db.Open(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}

	if err := db.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, errors.Wrapf(err, "failed to run migrations on %s", dbPath)
	}

	return database, nil
}

// resolveDBPath returns the database path a command will use, for display.
// Resolution failures fall back to the default name rather than erroring;
// openDatabase surfaces the real error when the path actually matters.
func resolveDBPath(override string) string {
	if override != "" {
		return override
	}
	path, err := config.GetDatabasePath()
	if err != nil || path == "" {
		return "metronome.db"
	}
	return path
}
