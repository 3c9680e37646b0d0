// Package postgres implements the persistence contracts on PostgreSQL
// via sqlx.
package postgres

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/signalherd/signalherd/internal/persistence"
)

// Config holds connection settings for the postgres layer.
type Config struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

// Connect opens the pool and returns the wired repository bundle.
func Connect(cfg Config) (*sqlx.DB, *persistence.Repository, error) {
	if cfg.DSN == "" {
		return nil, nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}

	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	repos := &persistence.Repository{
		Episodes: NewEpisodesRepo(db, timeout),
		Rankings: NewRankingsRepo(db, timeout),
		Signals:  NewSignalsRepo(db, timeout),
	}
	return db, repos, nil
}
