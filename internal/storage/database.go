package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"webbuilder/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the journal database described by cfg and returns the
// normalized driver name alongside the handle.
func Open(cfg config.DatabaseConfig) (*sql.DB, string, error) {
	var (
		db     *sql.DB
		driver string
		err    error
	)

	switch strings.ToLower(cfg.Driver) {
	case "sqlite", "sqlite3":
		if cfg.DSN == "" {
			return nil, "", fmt.Errorf("sqlite dsn must be provided")
		}
		driver = "sqlite3"
		db, err = sql.Open(driver, cfg.DSN)
		if err != nil {
			return nil, "", fmt.Errorf("open sqlite database: %w", err)
		}
		// one connection keeps :memory: databases shared and writes serialized
		db.SetMaxOpenConns(1)
	case "mysql":
		driver = "mysql"
		dsn := cfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
				cfg.Username,
				cfg.Password,
				cfg.Host,
				cfg.Port,
				cfg.DBName,
				cfg.Params,
			)
		}
		db, err = sql.Open(driver, dsn)
		if err != nil {
			return nil, "", fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, "", fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("ping database: %w", err)
	}
	return db, driver, nil
}

// Migrate ensures the required tables are present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS messages (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				role TEXT NOT NULL,
				content TEXT NOT NULL,
				created_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS agent_state (
				name TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				updated_at DATETIME NOT NULL
			)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS messages (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				role VARCHAR(50) NOT NULL,
				content MEDIUMTEXT NOT NULL,
				created_at DATETIME(6) NOT NULL,
				PRIMARY KEY (id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS agent_state (
				name VARCHAR(100) NOT NULL,
				value MEDIUMTEXT NOT NULL,
				updated_at DATETIME(6) NOT NULL,
				PRIMARY KEY (name)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
