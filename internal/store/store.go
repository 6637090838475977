// Package store provides Postgres-backed persistence for accepted records
// and crawl-state snapshots.
//
// The engine itself is agnostic to output format; this package is the host
// side of that boundary. Snapshots round-trip domain, visited paths, and
// robots decisions losslessly so a later run can skip previously crawled
// pages.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/askern/mapleads/internal/engine"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool and table layout.
type Config struct {
	DSN             string
	RecordsTable    string
	CrawlTable      string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// Store writes accepted records and crawl entries into Postgres.
type Store struct {
	pool         querier
	recordsTable string
	crawlTable   string
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(pool, cfg.RecordsTable, cfg.CrawlTable)
}

// NewWithPool constructs a Store from an existing pool (primarily for
// testing).
func NewWithPool(pool querier, recordsTable, crawlTable string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if recordsTable == "" {
		recordsTable = "business_records"
	}
	if crawlTable == "" {
		crawlTable = "crawl_entries"
	}
	for _, table := range []string{recordsTable, crawlTable} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &Store{pool: pool, recordsTable: recordsTable, crawlTable: crawlTable}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// SaveRecords upserts the accepted records, keyed by record ID.
func (s *Store) SaveRecords(ctx context.Context, records []engine.BusinessRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("store is not configured")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, name, address, phone, website_url, raw_query_context, emails)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET emails = EXCLUDED.emails`, s.recordsTable)

	for _, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("record %q has no id", rec.Name)
		}
		emailsJSON, err := json.Marshal(rec.Emails)
		if err != nil {
			return fmt.Errorf("marshal emails: %w", err)
		}
		if _, err := s.pool.Exec(ctx, query,
			rec.ID, rec.Name, rec.Address, rec.Phone,
			rec.WebsiteURL, rec.RawQueryContext, emailsJSON,
		); err != nil {
			return fmt.Errorf("insert record %s: %w", rec.ID, err)
		}
	}
	return nil
}

// SaveSnapshot upserts one row per crawl entry, keyed by domain.
func (s *Store) SaveSnapshot(ctx context.Context, entries []engine.CrawlEntry) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("store is not configured")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (domain, last_fetch_time, robots_decision, visited_paths)
VALUES ($1,$2,$3,$4)
ON CONFLICT (domain) DO UPDATE SET
	last_fetch_time = EXCLUDED.last_fetch_time,
	robots_decision = EXCLUDED.robots_decision,
	visited_paths = EXCLUDED.visited_paths`, s.crawlTable)

	for _, entry := range entries {
		pathsJSON, err := json.Marshal(entry.VisitedPaths)
		if err != nil {
			return fmt.Errorf("marshal visited paths: %w", err)
		}
		if _, err := s.pool.Exec(ctx, query,
			entry.Domain, entry.LastFetchTime, string(entry.RobotsDecision), pathsJSON,
		); err != nil {
			return fmt.Errorf("insert crawl entry %s: %w", entry.Domain, err)
		}
	}
	return nil
}

// LoadSnapshot reads back every crawl entry for restoring into the tracker.
func (s *Store) LoadSnapshot(ctx context.Context) ([]engine.CrawlEntry, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("store is not configured")
	}
	query := fmt.Sprintf(
		`SELECT domain, last_fetch_time, robots_decision, visited_paths FROM %s ORDER BY domain`,
		s.crawlTable,
	)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query crawl entries: %w", err)
	}
	defer rows.Close()

	var entries []engine.CrawlEntry
	for rows.Next() {
		var (
			entry     engine.CrawlEntry
			decision  string
			pathsJSON []byte
		)
		if err := rows.Scan(&entry.Domain, &entry.LastFetchTime, &decision, &pathsJSON); err != nil {
			return nil, fmt.Errorf("scan crawl entry: %w", err)
		}
		entry.RobotsDecision = engine.RobotsDecision(decision)
		if len(pathsJSON) > 0 {
			if err := json.Unmarshal(pathsJSON, &entry.VisitedPaths); err != nil {
				return nil, fmt.Errorf("unmarshal visited paths for %s: %w", entry.Domain, err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate crawl entries: %w", err)
	}
	return entries, nil
}
