// Package pgstore reads OHLCV volume records and post history from
// PostgreSQL tables shaped like the Mongo collections:
//
//	ohlcv(id, pair_symbol, pair_base, volume)
//	posts(id, pair, time)
package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"pairbot/config"
	"pairbot/logger"
)

// querier is satisfied by both *sqlx.DB and *sqlx.Tx.
type querier interface {
	QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

type Store struct {
	db  *sqlx.DB
	tx  *sqlx.Tx
	cfg config.PostgresConfig
	log *logger.Log
}

// Open connects with the configured pool limits and pings the server.
func Open(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := withTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := New(db, cfg)
	s.log.WithComponent("pgstore").WithFields(logger.Fields{
		"ohlcv_table":    cfg.OHLCVTable,
		"posts_table":    cfg.PostsTable,
		"max_open_conns": cfg.MaxOpenConns,
	}).Info("connected to postgres")
	return s, nil
}

// New wraps an existing handle.
func New(db *sqlx.DB, cfg config.PostgresConfig) *Store {
	return &Store{db: db, cfg: cfg, log: logger.GetLogger()}
}

// BeginSnapshot pins every following read to one read-only repeatable-read
// transaction, so ranking and recency see the same state of both tables.
func (s *Store) BeginSnapshot(ctx context.Context) error {
	if s.tx != nil {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	s.tx = tx
	return nil
}

func (s *Store) q() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *Store) Volumes() *VolumeSource {
	return &VolumeSource{store: s, table: s.cfg.OHLCVTable}
}

func (s *Store) Posts() *PostSource {
	return &PostSource{store: s, table: s.cfg.PostsTable}
}

// Close ends any open snapshot and releases the pool.
func (s *Store) Close() error {
	if s.tx != nil {
		if err := s.tx.Rollback(); err != nil && err != sql.ErrTxDone {
			s.log.WithComponent("pgstore").WithError(err).Warn("snapshot rollback failed")
		}
		s.tx = nil
	}
	return s.db.Close()
}

func (s *Store) count(ctx context.Context, table string) (int64, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	var n int64
	if err := s.q().GetContext(ctx, &n, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// abandon cancels an in-flight query so closing its rows does not drain the
// rest of the result. Inside a snapshot a cancelled statement would abort
// the transaction, so there the rows are drained instead.
func (s *Store) abandon(cancel context.CancelFunc) {
	if s.tx == nil {
		cancel()
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
