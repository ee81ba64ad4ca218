// Package settings persists user preferences and conversion history in a
// local SQLite database.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/spherical/pdf2cbz/internal/config"
	"github.com/spherical/pdf2cbz/internal/domain"
	"github.com/spherical/pdf2cbz/internal/observability"
)

// Setting keys.
const (
	KeyQuality           = "webp_quality"
	KeyResize            = "resize_4k"
	KeyDeleteSource      = "del_source"
	KeyContinuous        = "continuous"
	KeyRasterParallel    = "pdf_threads"
	KeyTranscodeParallel = "webp_threads"
	KeySourcePath        = "source_path"
	KeyDestinationPath   = "destination_path"
)

type kind int

const (
	kindBool kind = iota
	kindQuality
	kindPath
)

var known = map[string]kind{
	KeyQuality:           kindQuality,
	KeyResize:            kindBool,
	KeyDeleteSource:      kindBool,
	KeyContinuous:        kindBool,
	KeyRasterParallel:    kindBool,
	KeyTranscodeParallel: kindBool,
	KeySourcePath:        kindPath,
	KeyDestinationPath:   kindPath,
}

// ErrUnknownKey is returned for keys the store does not manage.
var ErrUnknownKey = errors.New("unknown setting")

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS conversions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id       TEXT NOT NULL,
	fingerprint  TEXT NOT NULL,
	source       TEXT NOT NULL,
	destination  TEXT NOT NULL,
	pages        INTEGER NOT NULL,
	status       TEXT NOT NULL,
	reason       TEXT NOT NULL DEFAULT '',
	duration_ms  INTEGER NOT NULL,
	converted_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversions_fingerprint ON conversions(fingerprint);
`

// Setting is one stored key/value pair.
type Setting struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// Conversion is one history row.
type Conversion struct {
	JobID       string
	Fingerprint string
	Source      string
	Destination string
	Pages       int
	Status      domain.Status
	Reason      domain.Reason
	Duration    time.Duration
	ConvertedAt time.Time
}

// Store is the SQLite-backed settings store.
type Store struct {
	db     *sql.DB
	logger *observability.Logger
}

// Open opens (creating if needed) the database at path.
func Open(path string, logger *observability.Logger) (*Store, error) {
	if logger == nil {
		logger = observability.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, domain.IOError("Failed to create settings directory", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate settings database: %w", err)
	}

	return &Store{db: db, logger: logger.WithOperation("settings")}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Keys returns the managed setting keys in name order.
func Keys() []string {
	keys := make([]string, 0, len(known))
	for k := range known {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the stored value for key. ok is false when it was never set.
func (s *Store) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	if _, found := known[key]; !found {
		return "", false, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	err = s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// Set validates and stores a value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	k, found := known[key]
	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	normalized, err := normalize(k, value)
	if err != nil {
		return domain.ValidationError(fmt.Sprintf("invalid value for %s", key), err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, normalized, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}

	s.logger.Debug().Str("key", key).Str("value", normalized).Msg("Setting stored")
	return nil
}

// List returns every stored setting in key order.
func (s *Store) List(ctx context.Context) ([]Setting, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value, updated_at FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	var out []Setting
	for rows.Next() {
		var st Setting
		if err := rows.Scan(&st.Key, &st.Value, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Apply copies stored values into cfg. Keys never set leave cfg alone.
func (s *Store) Apply(ctx context.Context, cfg *config.Config) error {
	stored, err := s.List(ctx)
	if err != nil {
		return err
	}

	for _, st := range stored {
		switch st.Key {
		case KeyQuality:
			n, err := strconv.Atoi(st.Value)
			if err != nil {
				s.logger.Warn().Str("value", st.Value).Msg("Ignoring malformed quality setting")
				continue
			}
			cfg.Transcode.Quality = n
		case KeyResize:
			cfg.Transcode.Resize = st.Value == "true"
		case KeyDeleteSource:
			cfg.Output.DeleteSource = st.Value == "true"
		case KeyContinuous:
			cfg.Work.Continuous = st.Value == "true"
		case KeyRasterParallel:
			cfg.Raster.Parallel = st.Value == "true"
		case KeyTranscodeParallel:
			cfg.Transcode.Parallel = st.Value == "true"
		case KeyDestinationPath:
			cfg.Output.Dir = st.Value
		}
	}
	return nil
}

// Record implements domain.HistoryRecorder.
func (s *Store) Record(ctx context.Context, r *domain.Result) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversions
			(job_id, fingerprint, source, destination, pages, status, reason, duration_ms, converted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.JobID.String(), r.Fingerprint, r.Source, r.Destination, r.Pages,
		string(r.Status), string(r.Reason), r.Duration.Milliseconds(), r.CompletedAt.UTC())
	if err != nil {
		return fmt.Errorf("record conversion: %w", err)
	}
	return nil
}

// History returns the most recent conversions, newest first. limit <= 0
// returns everything.
func (s *Store) History(ctx context.Context, limit int) ([]Conversion, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, fingerprint, source, destination, pages, status, reason, duration_ms, converted_at
		FROM conversions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Conversion
	for rows.Next() {
		var (
			c          Conversion
			status     string
			reason     string
			durationMS int64
		)
		if err := rows.Scan(&c.JobID, &c.Fingerprint, &c.Source, &c.Destination, &c.Pages,
			&status, &reason, &durationMS, &c.ConvertedAt); err != nil {
			return nil, fmt.Errorf("scan conversion: %w", err)
		}
		c.Status = domain.Status(status)
		c.Reason = domain.Reason(reason)
		c.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, c)
	}
	return out, rows.Err()
}

func normalize(k kind, value string) (string, error) {
	switch k {
	case kindBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return "", err
		}
		return strconv.FormatBool(b), nil
	case kindQuality:
		n, err := strconv.Atoi(value)
		if err != nil {
			return "", err
		}
		if n < 0 || n > 100 {
			return "", fmt.Errorf("quality must be between 0 and 100, got %d", n)
		}
		return strconv.Itoa(n), nil
	default:
		if value == "" {
			return "", errors.New("path cannot be empty")
		}
		abs, err := filepath.Abs(value)
		if err != nil {
			return "", err
		}
		return abs, nil
	}
}
