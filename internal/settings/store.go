package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/lexiqai/cuecam/internal/command"
)

const keySelectedPreset = "keyword_preset"

// ErrUnknownPreset is returned when selecting a preset missing from the catalog
var ErrUnknownPreset = errors.New("unknown keyword preset")

// Config configures a Store
type Config struct {
	// Path of the SQLite database. Empty keeps settings in memory only.
	Path string
	// DefaultPreset is used until the user picks one
	DefaultPreset string
	Catalog       *command.Catalog
	Logger        zerolog.Logger
}

// Store persists user settings. Only the keyword preset is stored today; the
// listener reads it once at the start of every session.
type Store struct {
	db       *sql.DB
	catalog  *command.Catalog
	fallback string
	logger   zerolog.Logger
	clock    func() time.Time

	mu     sync.Mutex
	memory map[string]string
}

// Open opens or creates the settings database
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Catalog == nil {
		cfg.Catalog = command.DefaultCatalog()
	}
	fallback := cfg.Catalog.Default().Name
	if cfg.DefaultPreset != "" {
		preset, ok := cfg.Catalog.Lookup(cfg.DefaultPreset)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, cfg.DefaultPreset)
		}
		fallback = preset.Name
	}

	s := &Store{
		catalog:  cfg.Catalog,
		fallback: fallback,
		logger:   cfg.Logger.With().Str("component", "settings").Logger(),
		clock:    time.Now,
		memory:   make(map[string]string),
	}
	if cfg.Path == "" {
		s.logger.Info().Msg("Settings are not persisted")
		return s, nil
	}

	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create settings dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s.db = db
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init settings schema: %w", err)
	}

	s.logger.Info().Str("path", cfg.Path).Msg("Settings store opened")
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);`)
	return err
}

// Close releases the database
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Healthy pings the database
func (s *Store) Healthy(ctx context.Context) (bool, error) {
	if s.db == nil {
		return true, nil
	}
	if err := s.db.PingContext(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) get(ctx context.Context, key string) (string, bool, error) {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		v, ok := s.memory[key]
		return v, ok, nil
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) set(ctx context.Context, key, value string) error {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.memory[key] = value
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings(key, value, updated_at) VALUES(?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, s.clock().UTC())
	return err
}

// SelectedPreset returns the name of the chosen keyword preset
func (s *Store) SelectedPreset(ctx context.Context) (string, error) {
	name, ok, err := s.get(ctx, keySelectedPreset)
	if err != nil {
		return "", fmt.Errorf("read selected preset: %w", err)
	}
	if !ok {
		return s.fallback, nil
	}
	return name, nil
}

// SetSelectedPreset stores the user's preset choice. It takes effect at the
// next session start.
func (s *Store) SetSelectedPreset(ctx context.Context, name string) error {
	preset, ok := s.catalog.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	if err := s.set(ctx, keySelectedPreset, preset.Name); err != nil {
		return fmt.Errorf("store selected preset: %w", err)
	}
	s.logger.Info().Str("preset", preset.Name).Msg("Keyword preset selected")
	return nil
}

// Keywords returns the keyword set of the selected preset. A stored name that
// the catalog no longer knows falls back to the default preset.
func (s *Store) Keywords(ctx context.Context) (command.KeywordSet, error) {
	name, err := s.SelectedPreset(ctx)
	if err != nil {
		return command.KeywordSet{}, err
	}
	if preset, ok := s.catalog.Lookup(name); ok {
		return preset, nil
	}

	s.logger.Warn().Str("preset", name).Str("fallback", s.fallback).Msg("Stored preset not in catalog")
	preset, _ := s.catalog.Lookup(s.fallback)
	return preset, nil
}

// Presets lists the catalog in order
func (s *Store) Presets() []command.KeywordSet {
	names := s.catalog.Names()
	out := make([]command.KeywordSet, 0, len(names))
	for _, name := range names {
		preset, _ := s.catalog.Lookup(name)
		out = append(out, preset)
	}
	return out
}
