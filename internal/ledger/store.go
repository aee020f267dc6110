package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/narralabs/narra-core/internal/config"
	_ "modernc.org/sqlite"
)

// ErrNotFound reports that no generation with the given request id exists.
var ErrNotFound = errors.New("generation not found")

// Entry is one persisted generation outcome. Audio bytes are never
// stored, only their accounting.
type Entry struct {
	RequestID       string    `json:"request_id"`
	NewsID          string    `json:"news_id"`
	Voice           string    `json:"voice"`
	Model           string    `json:"model"`
	Format          string    `json:"format"`
	Status          string    `json:"status"`
	ErrorCode       string    `json:"error_code,omitempty"`
	Segments        int       `json:"segments"`
	CharsProcessed  int       `json:"chars_processed"`
	AudioSizeBytes  int       `json:"audio_size_bytes"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty"`
	GenerationMS    int64     `json:"generation_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

// Store wraps a SQLite-backed generation ledger.
type Store struct {
	db    *sql.DB
	cfg   config.LedgerConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the ledger according to config. Ephemeral retention
// yields a store that accepts writes and discards them.
func Open(ctx context.Context, cfg config.LedgerConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("ledger vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("ledger prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS generations (
    request_id TEXT PRIMARY KEY,
    news_id TEXT NOT NULL,
    voice TEXT,
    model TEXT,
    format TEXT,
    status TEXT NOT NULL,
    error_code TEXT,
    segments INTEGER,
    chars_processed INTEGER,
    audio_size_bytes INTEGER,
    duration_seconds REAL,
    generation_ms INTEGER,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_generations_news ON generations(news_id, created_at);
CREATE INDEX IF NOT EXISTS idx_generations_created ON generations(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put upserts a generation entry keyed by request id.
func (s *Store) Put(ctx context.Context, e Entry) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	var errCode any
	if e.ErrorCode != "" {
		errCode = e.ErrorCode
	}
	var duration any
	if e.DurationSeconds != nil {
		duration = *e.DurationSeconds
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generations(request_id, news_id, voice, model, format, status, error_code,
		                         segments, chars_processed, audio_size_bytes, duration_seconds,
		                         generation_ms, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(request_id) DO UPDATE SET
		     news_id=excluded.news_id, voice=excluded.voice, model=excluded.model,
		     format=excluded.format, status=excluded.status, error_code=excluded.error_code,
		     segments=excluded.segments, chars_processed=excluded.chars_processed,
		     audio_size_bytes=excluded.audio_size_bytes, duration_seconds=excluded.duration_seconds,
		     generation_ms=excluded.generation_ms, created_at=excluded.created_at`,
		e.RequestID, e.NewsID, e.Voice, e.Model, e.Format, e.Status, errCode,
		e.Segments, e.CharsProcessed, e.AudioSizeBytes, duration, e.GenerationMS, e.CreatedAt)
	return err
}

// Get retrieves one generation entry by request id.
func (s *Store) Get(ctx context.Context, requestID string) (Entry, error) {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return Entry{}, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT request_id, news_id, voice, model, format, status, error_code,
		        segments, chars_processed, audio_size_bytes, duration_seconds,
		        generation_ms, created_at
		 FROM generations WHERE request_id = ?`, requestID)
	e, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// Recent lists the newest entries, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT request_id, news_id, voice, model, format, status, error_code,
		        segments, chars_processed, audio_size_bytes, duration_seconds,
		        generation_ms, created_at
		 FROM generations ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(scan func(dest ...any) error) (Entry, error) {
	var (
		e       Entry
		errCode sql.NullString
		dur     sql.NullFloat64
		created string
	)
	if err := scan(&e.RequestID, &e.NewsID, &e.Voice, &e.Model, &e.Format, &e.Status, &errCode,
		&e.Segments, &e.CharsProcessed, &e.AudioSizeBytes, &dur, &e.GenerationMS, &created); err != nil {
		return Entry{}, err
	}
	if errCode.Valid {
		e.ErrorCode = errCode.String
	}
	if dur.Valid {
		v := dur.Float64
		e.DurationSeconds = &v
	}
	if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
		e.CreatedAt = ts
	}
	return e, nil
}

// Prune applies configured retention (called on startup and can be scheduled).
func (s *Store) Prune(ctx context.Context) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM generations WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxRecords > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM generations WHERE request_id IN (
			SELECT request_id FROM generations ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxRecords)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
