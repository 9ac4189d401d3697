// Package store keeps per-page run bookkeeping in SQLite: when each page
// was last processed, how it went, and which pages are due first.
package store

import (
	"database/sql"
	_ "embed"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/listsync/errors"
	"github.com/teranos/listsync/logger"
)

//go:embed schema.sql
var schema string

// Run statuses recorded per page.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// PageStatus is one page's bookkeeping row.
type PageStatus struct {
	Page      string
	LastRun   time.Time
	Status    string
	Message   string
	Edited    bool
	RunCount  int64
	FailCount int64
}

// Store wraps the bookkeeping database. Safe for concurrent use; SQLite
// serializes writes behind its busy timeout.
type Store struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

// Open opens (or creates) the database at path and applies the schema.
// ":memory:" gives an ephemeral store for tests.
func Open(path string, log *zap.SugaredLogger) (*Store, error) {
	if log == nil {
		log = logger.Logger
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening database %s", path)
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	// WAL lets status reads proceed during run recording
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "applying %s", pragma)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "applying schema")
	}

	log.Named("store").Debugw("bookkeeping database opened", "path", path)
	return &Store{db: db, log: log.Named("store")}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun upserts the page's latest outcome.
func (s *Store) RecordRun(page, status, message string, edited bool) error {
	failInc := 0
	if status == StatusFailed {
		failInc = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO page_runs (page, last_run, status, message, edited, run_count, fail_count)
		VALUES (?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(page) DO UPDATE SET
			last_run   = excluded.last_run,
			status     = excluded.status,
			message    = excluded.message,
			edited     = excluded.edited,
			run_count  = run_count + 1,
			fail_count = fail_count + excluded.fail_count`,
		page, time.Now().Unix(), status, message, boolToInt(edited), failInc)
	if err != nil {
		return errors.Wrapf(err, "recording run for %q", page)
	}
	return nil
}

// PageStatuses returns all bookkeeping rows, least recently run first.
func (s *Store) PageStatuses() ([]PageStatus, error) {
	rows, err := s.db.Query(`
		SELECT page, last_run, status, message, edited, run_count, fail_count
		FROM page_runs ORDER BY last_run ASC, page ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "querying page statuses")
	}
	defer rows.Close()

	var statuses []PageStatus
	for rows.Next() {
		var ps PageStatus
		var lastRun int64
		var edited int
		if err := rows.Scan(&ps.Page, &lastRun, &ps.Status, &ps.Message, &edited, &ps.RunCount, &ps.FailCount); err != nil {
			return nil, errors.Wrap(err, "scanning page status")
		}
		ps.LastRun = time.Unix(lastRun, 0)
		ps.Edited = edited != 0
		statuses = append(statuses, ps)
	}
	return statuses, rows.Err()
}

// OrderPages returns the given pages ordered least-recently-run first.
// Pages with no bookkeeping row sort before everything else, in their
// given order, so new pages get processed promptly.
func (s *Store) OrderPages(pages []string) ([]string, error) {
	statuses, err := s.PageStatuses()
	if err != nil {
		return nil, err
	}
	lastRun := make(map[string]time.Time, len(statuses))
	for _, ps := range statuses {
		lastRun[ps.Page] = ps.LastRun
	}

	var fresh, known []string
	for _, p := range pages {
		if _, ok := lastRun[p]; ok {
			known = append(known, p)
		} else {
			fresh = append(fresh, p)
		}
	}
	// statuses are already sorted ascending by last_run
	ordered := make([]string, 0, len(pages))
	ordered = append(ordered, fresh...)
	requested := make(map[string]bool, len(known))
	for _, p := range known {
		requested[p] = true
	}
	for _, ps := range statuses {
		if requested[ps.Page] {
			ordered = append(ordered, ps.Page)
		}
	}
	return ordered, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
