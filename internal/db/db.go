// internal/db/db.go
package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/unclebandit/thunderlink/internal/config"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite3"
)

// Open connects to the database holding the paired device credentials.
func Open(cfg config.DBConfig) (*sql.DB, error) {
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Dialect == DialectSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create session dir: %w", err)
		}
	}

	zap.L().Info("opening session store",
		zap.String("dialect", cfg.Dialect),
		zap.String("db_host", cfg.Host),
		zap.String("db_name", cfg.Name),
	)

	conn, err := sql.Open(cfg.Dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open DB: %w", err)
	}
	if cfg.Dialect == DialectSQLite {
		// sqlite serialises writers anyway; one connection avoids SQLITE_BUSY.
		conn.SetMaxOpenConns(1)
	}

	if err = conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	zap.L().Info("✅ Connected to session store")
	return conn, nil
}

func DSN(cfg config.DBConfig) (string, error) {
	switch cfg.Dialect {
	case DialectPostgres:
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(cfg.User, cfg.Password),
			Host:     cfg.Host + ":" + cfg.Port,
			Path:     cfg.Name,
			RawQuery: "sslmode=disable",
		}
		return u.String(), nil
	case DialectSQLite:
		return "file:" + cfg.Path + "?_foreign_keys=on", nil
	default:
		return "", fmt.Errorf("unsupported DB_DIALECT %q", cfg.Dialect)
	}
}
