package db

import (
	"database/sql"
	"fmt"

	"playd/logger"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

var DB *sql.DB

// ConnectDB opens the library database read-only. The schema is owned by
// the indexer that builds it; playd never writes to it.
func ConnectDB(path string) error {
	dsn := fmt.Sprintf("file:%s?mode=ro", path)

	var err error
	DB, err = sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open library database: %w", err)
	}

	if err = DB.Ping(); err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping library database: %w", err)
	}

	logger.Info("Connected to library database", logger.String("path", path))
	return nil
}

// CloseDB closes the library database if it was opened.
func CloseDB() {
	if DB != nil {
		DB.Close()
		DB = nil
	}
}
