// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package state persists engine definitions, priority keywords, and AI
// settings in a SQLite database.
// Implements: prd005-state (R1-R4);
//
//	docs/ARCHITECTURE § State Store.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/magnet-engine/pkg/types"
)

const dbFile = "state.db"

// settingsKeyAI is the settings row holding the serialized AI settings.
const settingsKeyAI = "ai"

// ErrEngineNotFound reports a lookup for an engine id that is not stored.
var ErrEngineNotFound = errors.New("engine not found")

// Store manages the engine registry SQLite database. It satisfies the
// orchestrator's configuration source.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the state database at stateDir/state.db and
// creates the schema if it does not exist.
func NewStore(cfg types.StateConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return nil, &types.PersistenceError{Op: "open", Kind: types.PersistenceIoFailure,
			Err: fmt.Errorf("creating state directory: %w", err)}
	}

	dbPath := filepath.Join(cfg.StateDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, &types.PersistenceError{Op: "open", Kind: types.PersistenceIoFailure,
			Err: fmt.Errorf("opening database: %w", err)}
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS engines (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			endpoint_template TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			selectors TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS priority_keywords (
			keyword TEXT PRIMARY KEY
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return &types.PersistenceError{Op: "schema", Kind: types.PersistenceIoFailure,
				Err: fmt.Errorf("executing schema statement: %w", err)}
		}
	}
	return nil
}

// Engines returns every stored engine, ordered by id.
func (s *Store) Engines(ctx context.Context) ([]types.EngineConfig, error) {
	return s.queryEngines(ctx, `SELECT id, name, kind, endpoint_template, enabled, selectors
		FROM engines ORDER BY id`)
}

// EnabledEngines returns the engines that participate in searches,
// ordered by id.
func (s *Store) EnabledEngines(ctx context.Context) ([]types.EngineConfig, error) {
	return s.queryEngines(ctx, `SELECT id, name, kind, endpoint_template, enabled, selectors
		FROM engines WHERE enabled = 1 ORDER BY id`)
}

func (s *Store) queryEngines(ctx context.Context, query string) ([]types.EngineConfig, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &types.PersistenceError{Op: "engines", Kind: types.PersistenceIoFailure, Err: err}
	}
	defer rows.Close()

	var engines []types.EngineConfig
	for rows.Next() {
		ec, err := scanEngine(rows)
		if err != nil {
			return nil, err
		}
		engines = append(engines, ec)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.PersistenceError{Op: "engines", Kind: types.PersistenceIoFailure, Err: err}
	}
	return engines, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEngine(row rowScanner) (types.EngineConfig, error) {
	var (
		ec        types.EngineConfig
		kind      string
		enabled   int
		selectors string
	)
	if err := row.Scan(&ec.ID, &ec.Name, &kind, &ec.EndpointTemplate, &enabled, &selectors); err != nil {
		return types.EngineConfig{}, &types.PersistenceError{
			Op: "engines", Kind: types.PersistenceIoFailure, Err: err}
	}
	ec.Kind = types.EngineKind(kind)
	ec.Enabled = enabled != 0
	if err := json.Unmarshal([]byte(selectors), &ec.Selectors); err != nil {
		return types.EngineConfig{}, &types.PersistenceError{
			Op: "engines", Kind: types.PersistenceCorrupt,
			Err: fmt.Errorf("parsing selectors for %s: %w", ec.ID, err)}
	}
	return ec, nil
}

// Engine returns one engine by id, or ErrEngineNotFound.
func (s *Store) Engine(ctx context.Context, id string) (types.EngineConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, kind, endpoint_template, enabled, selectors FROM engines WHERE id = ?`, id)
	ec, err := scanEngine(row)
	if err != nil {
		var perr *types.PersistenceError
		if errors.As(err, &perr) && errors.Is(perr.Err, sql.ErrNoRows) {
			return types.EngineConfig{}, fmt.Errorf("engine %s: %w", id, ErrEngineNotFound)
		}
		return types.EngineConfig{}, err
	}
	return ec, nil
}

// PutEngine validates and upserts an engine definition.
func (s *Store) PutEngine(ctx context.Context, ec types.EngineConfig) error {
	if err := ec.Validate(); err != nil {
		return err
	}
	selectors, err := json.Marshal(ec.Selectors)
	if err != nil {
		return &types.PersistenceError{Op: "put-engine", Kind: types.PersistenceIoFailure,
			Err: fmt.Errorf("encoding selectors: %w", err)}
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO engines
			(id, name, kind, endpoint_template, enabled, selectors)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind,
			endpoint_template = excluded.endpoint_template,
			enabled = excluded.enabled,
			selectors = excluded.selectors`,
		ec.ID, ec.Name, string(ec.Kind), ec.EndpointTemplate, boolToInt(ec.Enabled), string(selectors))
	if err != nil {
		return &types.PersistenceError{Op: "put-engine", Kind: types.PersistenceIoFailure, Err: err}
	}
	return nil
}

// SetEngineEnabled toggles an engine without touching its definition.
func (s *Store) SetEngineEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE engines SET enabled = ? WHERE id = ?`, boolToInt(enabled), id)
	if err != nil {
		return &types.PersistenceError{Op: "set-enabled", Kind: types.PersistenceIoFailure, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &types.PersistenceError{Op: "set-enabled", Kind: types.PersistenceIoFailure, Err: err}
	}
	if n == 0 {
		return fmt.Errorf("engine %s: %w", id, ErrEngineNotFound)
	}
	return nil
}

// DeleteEngine removes an engine by id.
func (s *Store) DeleteEngine(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM engines WHERE id = ?`, id)
	if err != nil {
		return &types.PersistenceError{Op: "delete-engine", Kind: types.PersistenceIoFailure, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &types.PersistenceError{Op: "delete-engine", Kind: types.PersistenceIoFailure, Err: err}
	}
	if n == 0 {
		return fmt.Errorf("engine %s: %w", id, ErrEngineNotFound)
	}
	return nil
}

// PriorityKeywords returns the stored priority keywords in
// lexicographic order.
func (s *Store) PriorityKeywords(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT keyword FROM priority_keywords ORDER BY keyword`)
	if err != nil {
		return nil, &types.PersistenceError{Op: "keywords", Kind: types.PersistenceIoFailure, Err: err}
	}
	defer rows.Close()

	var keywords []string
	for rows.Next() {
		var kw string
		if err := rows.Scan(&kw); err != nil {
			return nil, &types.PersistenceError{Op: "keywords", Kind: types.PersistenceIoFailure, Err: err}
		}
		keywords = append(keywords, kw)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.PersistenceError{Op: "keywords", Kind: types.PersistenceIoFailure, Err: err}
	}
	return keywords, nil
}

// AddPriorityKeyword stores a keyword. Adding an existing keyword is a
// no-op.
func (s *Store) AddPriorityKeyword(ctx context.Context, keyword string) error {
	if keyword == "" {
		return fmt.Errorf("priority keyword must not be empty")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO priority_keywords (keyword) VALUES (?) ON CONFLICT(keyword) DO NOTHING`, keyword)
	if err != nil {
		return &types.PersistenceError{Op: "add-keyword", Kind: types.PersistenceIoFailure, Err: err}
	}
	return nil
}

// RemovePriorityKeyword deletes a keyword. Removing an unknown keyword
// is a no-op.
func (s *Store) RemovePriorityKeyword(ctx context.Context, keyword string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM priority_keywords WHERE keyword = ?`, keyword)
	if err != nil {
		return &types.PersistenceError{Op: "remove-keyword", Kind: types.PersistenceIoFailure, Err: err}
	}
	return nil
}

// LoadAISettings returns the stored AI settings, or the zero value when
// none have been saved yet.
func (s *Store) LoadAISettings(ctx context.Context) (types.AISettings, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, settingsKeyAI).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return types.AISettings{}, nil
	}
	if err != nil {
		return types.AISettings{}, &types.PersistenceError{
			Op: "load-settings", Kind: types.PersistenceIoFailure, Err: err}
	}
	var settings types.AISettings
	if err := json.Unmarshal([]byte(value), &settings); err != nil {
		return types.AISettings{}, &types.PersistenceError{
			Op: "load-settings", Kind: types.PersistenceCorrupt,
			Err: fmt.Errorf("parsing AI settings: %w", err)}
	}
	return settings, nil
}

// SaveAISettings replaces the stored AI settings.
func (s *Store) SaveAISettings(ctx context.Context, settings types.AISettings) error {
	value, err := json.Marshal(settings)
	if err != nil {
		return &types.PersistenceError{Op: "save-settings", Kind: types.PersistenceIoFailure,
			Err: fmt.Errorf("encoding AI settings: %w", err)}
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, settingsKeyAI, string(value))
	if err != nil {
		return &types.PersistenceError{Op: "save-settings", Kind: types.PersistenceIoFailure, Err: err}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
