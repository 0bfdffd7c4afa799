package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS generations (
    id TEXT PRIMARY KEY,
    topic TEXT NOT NULL,
    provider TEXT NOT NULL,
    model TEXT NOT NULL,
    prompt_tokens INTEGER NOT NULL DEFAULT 0,
    output_tokens INTEGER NOT NULL DEFAULT 0,
    total_tokens INTEGER NOT NULL DEFAULT 0,
    timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_generations_timestamp ON generations(timestamp);
CREATE INDEX IF NOT EXISTS idx_generations_model ON generations(model);
`

const dbFilename = "novelgen.db"

type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewStore(dataDir string, logger *zap.Logger) (*Store, error) {
	return NewStoreWithPath(filepath.Join(dataDir, dbFilename), logger)
}

func NewStoreWithPath(dbPath string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the record stored under key. A missing row or a value that
// does not parse yields an empty record rather than an error.
func (s *Store) Load(ctx context.Context, key string) (*Record, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM records WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return NewRecord(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}

	rec, err := ParseRecord(value)
	if err != nil {
		s.logger.Warn("stored record is unreadable, starting fresh",
			zap.String("key", key),
			zap.Error(err))
		return NewRecord(), nil
	}
	return rec, nil
}

// Save overwrites the whole record stored under key.
func (s *Store) Save(ctx context.Context, key string, rec *Record) error {
	value, err := rec.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now())
	if err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE key = ?`, key)
	return err
}

type GenerationEntry struct {
	ID           string
	Topic        string
	Provider     string
	Model        string
	PromptTokens int
	OutputTokens int
	TotalTokens  int
	Timestamp    time.Time
}

type UsageSummary struct {
	Generations  int
	PromptTokens int
	OutputTokens int
	TotalTokens  int
}

type ModelUsageSummary struct {
	Model string
	UsageSummary
}

func (s *Store) LogGeneration(ctx context.Context, entry *GenerationEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generations (id, topic, provider, model, prompt_tokens, output_tokens, total_tokens, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Topic, entry.Provider, entry.Model,
		entry.PromptTokens, entry.OutputTokens, entry.TotalTokens, entry.Timestamp)
	return err
}

func (s *Store) ListGenerations(ctx context.Context, limit int) ([]*GenerationEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, topic, provider, model, prompt_tokens, output_tokens, total_tokens, timestamp
		 FROM generations ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*GenerationEntry
	for rows.Next() {
		e := &GenerationEntry{}
		if err := rows.Scan(&e.ID, &e.Topic, &e.Provider, &e.Model,
			&e.PromptTokens, &e.OutputTokens, &e.TotalTokens, &e.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) UsageByDateRange(ctx context.Context, start, end time.Time) (*UsageSummary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(total_tokens), 0)
		 FROM generations WHERE timestamp >= ? AND timestamp < ?`,
		start, end)

	var summary UsageSummary
	if err := row.Scan(&summary.Generations, &summary.PromptTokens, &summary.OutputTokens, &summary.TotalTokens); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (s *Store) TotalUsage(ctx context.Context) (*UsageSummary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(total_tokens), 0)
		 FROM generations`)

	var summary UsageSummary
	if err := row.Scan(&summary.Generations, &summary.PromptTokens, &summary.OutputTokens, &summary.TotalTokens); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (s *Store) UsageByModel(ctx context.Context) ([]ModelUsageSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT model, COUNT(*), COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(total_tokens), 0)
		 FROM generations GROUP BY model ORDER BY model`)
	if err != nil {
		return nil, err
	}
	return scanModelUsage(rows)
}

// UsageByModelInRange is UsageByModel restricted to [start, end).
func (s *Store) UsageByModelInRange(ctx context.Context, start, end time.Time) ([]ModelUsageSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT model, COUNT(*), COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(total_tokens), 0)
		 FROM generations WHERE timestamp >= ? AND timestamp < ? GROUP BY model ORDER BY model`,
		start, end)
	if err != nil {
		return nil, err
	}
	return scanModelUsage(rows)
}

func scanModelUsage(rows *sql.Rows) ([]ModelUsageSummary, error) {
	defer rows.Close()

	var summaries []ModelUsageSummary
	for rows.Next() {
		var ms ModelUsageSummary
		if err := rows.Scan(&ms.Model, &ms.Generations, &ms.PromptTokens, &ms.OutputTokens, &ms.TotalTokens); err != nil {
			return nil, err
		}
		summaries = append(summaries, ms)
	}
	return summaries, rows.Err()
}

func FormatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}
