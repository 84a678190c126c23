package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"parseltongue/internal/mangle"
	"parseltongue/internal/plog"
)

// sqlitePersistence implements mangle.Persistence on top of a single SQLite
// file, grounded on the teacher's LocalStore bootstrap (internal/store/
// local_core.go: WAL journal mode, NORMAL synchronous, busy_timeout). The
// teacher dials in sqlite3 (cgo); this uses modernc.org/sqlite's pure-Go
// driver instead so the resulting binary stays cgo-free — the only
// deliberate swap among the teacher's storage deps (noted in DESIGN.md).
type sqlitePersistence struct {
	db *sql.DB
}

func openSQLite(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			plog.Get(plog.CategoryStore).Warn("failed to apply %q: %v", pragma, err)
		}
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS file_facts (
			file TEXT PRIMARY KEY,
			content_hash TEXT NOT NULL,
			facts_json TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create file_facts table: %w", err)
	}

	return db, nil
}

func newSQLitePersistence(path string) (*sqlitePersistence, error) {
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	return &sqlitePersistence{db: db}, nil
}

type storedFact struct {
	Predicate string        `json:"predicate"`
	Args      []interface{} `json:"args"`
}

func (p *sqlitePersistence) ReplaceFactsForFile(ctx context.Context, file string, facts []mangle.Fact, contentHash string) error {
	stored := make([]storedFact, 0, len(facts))
	for _, f := range facts {
		stored = append(stored, storedFact{Predicate: f.Predicate, Args: f.Args})
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal facts for %s: %w", file, err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO file_facts (file, content_hash, facts_json, updated_at)
		VALUES (?, ?, ?, strftime('%s','now'))
		ON CONFLICT(file) DO UPDATE SET content_hash = excluded.content_hash, facts_json = excluded.facts_json, updated_at = excluded.updated_at
	`, file, contentHash, string(data))
	if err != nil {
		return fmt.Errorf("persist facts for %s: %w", file, err)
	}
	return nil
}

func (p *sqlitePersistence) LoadFacts(ctx context.Context) ([]mangle.Fact, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT file, facts_json FROM file_facts`)
	if err != nil {
		return nil, fmt.Errorf("load facts: %w", err)
	}
	defer rows.Close()

	var out []mangle.Fact
	for rows.Next() {
		var file, raw string
		if err := rows.Scan(&file, &raw); err != nil {
			return nil, err
		}
		var stored []storedFact
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			return nil, fmt.Errorf("unmarshal stored facts: %w", err)
		}
		for _, sf := range stored {
			out = append(out, mangle.Fact{Predicate: sf.Predicate, Args: sf.Args, File: file})
		}
	}
	return out, rows.Err()
}

func (p *sqlitePersistence) GetFileStates(ctx context.Context) (map[string]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT file, content_hash FROM file_facts`)
	if err != nil {
		return nil, fmt.Errorf("load file states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]string)
	for rows.Next() {
		var file, hash string
		if err := rows.Scan(&file, &hash); err != nil {
			return nil, err
		}
		states[file] = hash
	}
	return states, rows.Err()
}

func (p *sqlitePersistence) DeleteFile(ctx context.Context, file string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM file_facts WHERE file = ?`, file)
	return err
}

func (p *sqlitePersistence) Close() error {
	return p.db.Close()
}
