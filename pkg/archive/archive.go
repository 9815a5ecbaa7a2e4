// Package archive persists live-fetched search results into a local sqlite
// database so past searches stay greppable after cache entries expire.
// Results are indexed with FTS5 for full-text history search.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/endomorphosis/websearch/pkg/log"
	"github.com/endomorphosis/websearch/pkg/search"
)

// Archive is the sqlite-backed result history. It implements search.Archiver.
type Archive struct {
	db     *sql.DB
	path   string
	logger *log.Logger
}

// Hit is one archived result row.
type Hit struct {
	Provider    string    `json:"provider"`
	Query       string    `json:"query"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// HistoryEntry summarizes one past query.
type HistoryEntry struct {
	Provider string    `json:"provider"`
	Query    string    `json:"query"`
	Results  int       `json:"results"`
	LastSeen time.Time `json:"last_seen"`
}

// Stats describes the archive for diagnostics.
type Stats struct {
	Path      string `json:"path"`
	Results   int64  `json:"results"`
	Queries   int64  `json:"queries"`
	SizeBytes int64  `json:"size_bytes"`
}

// Open opens (or creates) the archive database at path.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening archive database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 30000",
		"PRAGMA temp_store = memory",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			if cerr := db.Close(); cerr != nil {
				err = fmt.Errorf("%w (also failed to close database: %v)", err, cerr)
			}
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}

	a := &Archive{
		db:     db,
		path:   path,
		logger: log.ForService("archive"),
	}
	if err := a.initSchema(); err != nil {
		if cerr := db.Close(); cerr != nil {
			a.logger.Warnf("closing database after schema failure: %v", cerr)
		}
		return nil, err
	}
	return a, nil
}

func (a *Archive) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			provider TEXT NOT NULL,
			query TEXT NOT NULL,
			title TEXT NOT NULL,
			url TEXT NOT NULL,
			description TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_created_at ON results(created_at)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS results_fts USING fts5(
			title,
			description,
			query,
			provider,
			content='results',
			content_rowid='id',
			tokenize='porter'
		)`,
	}
	for _, stmt := range schema {
		if _, err := a.db.Exec(stmt); err != nil {
			return fmt.Errorf("initializing archive schema: %w", err)
		}
	}
	return nil
}

func (a *Archive) Close() error {
	if _, err := a.db.Exec("PRAGMA optimize"); err != nil {
		a.logger.Debugf("optimize on close: %v", err)
	}
	return a.db.Close()
}

// Record stores one batch of live results. Empty batches are skipped.
func (a *Archive) Record(ctx context.Context, provider string, q search.Query, items []search.Result) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				a.logger.Warnf("rolling back transaction: %v", err)
			}
		}
	}()

	stmt, err := tx.Prepare(`
		INSERT INTO results (provider, query, title, url, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			a.logger.Warnf("closing statement: %v", err)
		}
	}()

	ftsStmt, err := tx.Prepare(`
		INSERT INTO results_fts (rowid, title, description, query, provider)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing FTS statement: %w", err)
	}
	defer func() {
		if err := ftsStmt.Close(); err != nil {
			a.logger.Warnf("closing FTS statement: %v", err)
		}
	}()

	now := time.Now().UTC()
	for _, item := range items {
		res, err := stmt.Exec(provider, q.Text, item.Title, item.URL, item.Description, now)
		if err != nil {
			return fmt.Errorf("inserting result %q: %w", item.URL, err)
		}
		rowid, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading rowid: %w", err)
		}
		if _, err := ftsStmt.Exec(rowid, item.Title, item.Description, q.Text, provider); err != nil {
			return fmt.Errorf("indexing result %q: %w", item.URL, err)
		}
	}

	err = tx.Commit()
	if err == nil {
		committed = true
	}
	return err
}

// Search queries the archive. A non-empty query runs through FTS5 ranked by
// bm25; an empty query returns the most recent rows.
func (a *Archive) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	var sqlQuery string
	var args []any

	if query != "" {
		sqlQuery = `
			SELECT r.provider, r.query, r.title, r.url, r.description, r.created_at
			FROM results r
			JOIN results_fts fts ON r.id = fts.rowid
			WHERE results_fts MATCH ?
			ORDER BY bm25(results_fts), r.created_at DESC
			LIMIT ?`
		args = []any{query, limit}
	} else {
		sqlQuery = `
			SELECT provider, query, title, url, description, created_at
			FROM results
			ORDER BY created_at DESC
			LIMIT ?`
		args = []any{limit}
	}

	rows, err := a.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("querying archive: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			a.logger.Warnf("closing rows: %v", err)
		}
	}()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var description sql.NullString
		if err := rows.Scan(&h.Provider, &h.Query, &h.Title, &h.URL, &description, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		h.Description = description.String
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// History lists past queries, most recent first.
func (a *Archive) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT provider, query, COUNT(*), MAX(created_at)
		FROM results
		GROUP BY provider, query
		ORDER BY MAX(created_at) DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			a.logger.Warnf("closing rows: %v", err)
		}
	}()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.Provider, &e.Query, &e.Results, &e.LastSeen); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats reports row counts and on-disk size.
func (a *Archive) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Path: a.path}

	if err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM results").Scan(&st.Results); err != nil {
		return st, fmt.Errorf("counting results: %w", err)
	}
	if err := a.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT query) FROM results").Scan(&st.Queries); err != nil {
		return st, fmt.Errorf("counting queries: %w", err)
	}

	var pageCount, pageSize int64
	if err := a.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		if err := a.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err == nil {
			st.SizeBytes = pageCount * pageSize
		}
	}
	return st, nil
}
