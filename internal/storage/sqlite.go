// Package storage persists client-side state that must survive restarts:
// the session token, the answer journal and the cached result history.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/nstepura/examly/internal/model"
)

// Store wraps a local SQLite database in the user's config directory.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// DefaultPath returns the default database location, honoring XDG_CONFIG_HOME.
func DefaultPath() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "examly", "examly.db")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "examly", "examly.db")
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	s := &Store{db: db, log: log}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	queries := []string{
		// Single-slot token; id is pinned to 1 so writes replace atomically.
		`CREATE TABLE IF NOT EXISTS auth_token (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			token TEXT NOT NULL,
			expires_at DATETIME,
			saved_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Answer journal backing optimistic local selections.
		`CREATE TABLE IF NOT EXISTS answer_journal (
			session_id TEXT NOT NULL,
			question_id INTEGER NOT NULL,
			choice_id INTEGER,
			synced BOOLEAN NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (session_id, question_id)
		)`,

		// Completed results cached for offline history rendering.
		`CREATE TABLE IF NOT EXISTS result_cache (
			session_id TEXT PRIMARY KEY,
			end_time DATETIME NOT NULL,
			payload TEXT NOT NULL
		)`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// ---- token slot ----

// SaveToken replaces the stored token (last write wins). Expiry is read from
// the token's JWT claims without signature verification; tokens without an
// exp claim never expire locally.
func (s *Store) SaveToken(token string) error {
	var expiresAt any
	var claims jwt.RegisteredClaims
	_, _ = jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return nil, nil },
		jwt.WithoutClaimsValidation(),
	)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time.UTC()
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO auth_token (id, token, expires_at, saved_at) VALUES (1, ?, ?, ?)`,
		token, expiresAt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// Token returns the stored token, or "" when absent or expired. It satisfies
// the API client's TokenSource.
func (s *Store) Token() string {
	var token string
	var expiresAt sql.NullTime
	err := s.db.QueryRow(`SELECT token, expires_at FROM auth_token WHERE id = 1`).
		Scan(&token, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ""
	}
	if err != nil {
		s.log.Warn("load token", zap.Error(err))
		return ""
	}
	if expiresAt.Valid && time.Now().After(expiresAt.Time) {
		return ""
	}
	return token
}

// ClearToken removes the stored token.
func (s *Store) ClearToken() error {
	if _, err := s.db.Exec(`DELETE FROM auth_token WHERE id = 1`); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}

// ---- answer journal ----

// RecordAnswer upserts the journal row for (session, question).
func (s *Store) RecordAnswer(sessionID uuid.UUID, questionID int64, choiceID *int64, synced bool) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO answer_journal (session_id, question_id, choice_id, synced, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sessionID.String(), questionID, choiceID, synced, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record answer: %w", err)
	}
	return nil
}

// MarkAnswerSynced flags a journaled answer as confirmed by the backend.
func (s *Store) MarkAnswerSynced(sessionID uuid.UUID, questionID int64) error {
	_, err := s.db.Exec(
		`UPDATE answer_journal SET synced = 1 WHERE session_id = ? AND question_id = ?`,
		sessionID.String(), questionID,
	)
	if err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

// PendingAnswers returns the session's journal rows still awaiting backend
// confirmation, oldest first.
func (s *Store) PendingAnswers(sessionID uuid.UUID) ([]model.PendingAnswer, error) {
	rows, err := s.db.Query(
		`SELECT question_id, choice_id FROM answer_journal
		 WHERE session_id = ? AND synced = 0 ORDER BY updated_at`,
		sessionID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	var out []model.PendingAnswer
	for rows.Next() {
		pa := model.PendingAnswer{SessionID: sessionID}
		var choice sql.NullInt64
		if err := rows.Scan(&pa.QuestionID, &choice); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		if choice.Valid {
			v := choice.Int64
			pa.ChoiceID = &v
		}
		out = append(out, pa)
	}
	return out, rows.Err()
}

// ClearAnswers drops the session's journal rows (after submission).
func (s *Store) ClearAnswers(sessionID uuid.UUID) error {
	if _, err := s.db.Exec(`DELETE FROM answer_journal WHERE session_id = ?`, sessionID.String()); err != nil {
		return fmt.Errorf("clear answers: %w", err)
	}
	return nil
}

// ---- result history cache ----

// CacheResults upserts fetched results so history renders without network.
func (s *Store) CacheResults(results []model.ExamResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range results {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		_, err = tx.Exec(
			`INSERT OR REPLACE INTO result_cache (session_id, end_time, payload) VALUES (?, ?, ?)`,
			r.SessionID.String(), r.EndTime.UTC(), string(payload),
		)
		if err != nil {
			return fmt.Errorf("cache result: %w", err)
		}
	}
	return tx.Commit()
}

// CachedResults returns cached results, most recent first.
func (s *Store) CachedResults() ([]model.ExamResult, error) {
	rows, err := s.db.Query(`SELECT payload FROM result_cache ORDER BY end_time DESC`)
	if err != nil {
		return nil, fmt.Errorf("query cache: %w", err)
	}
	defer rows.Close()

	var out []model.ExamResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan cache: %w", err)
		}
		var r model.ExamResult
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("decode cached result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
