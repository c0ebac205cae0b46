package vfs

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SqliteBackend is an FsBackend persisted to an embedded, cgo-free SQLite
// database (modernc.org/sqlite), for hosts that want a session's filesystem
// to survive process restarts — spec.md leaves the storage medium
// unspecified beyond "no host filesystem access," and MemBackend is
// volatile by construction. Schema is a single flat table keyed by
// canonical path, with each row's parent path stored in an indexed
// `parent` column; directory listings select the rows whose parent matches.
type SqliteBackend struct {
	db *sql.DB
}

// NewSqliteBackend opens (and, if needed, initializes) a SQLite-backed
// FsBackend at dataSourceName, e.g. "file:/var/bashkit/session.db" or
// ":memory:" for a throwaway instance that still exercises the real SQL
// path in tests.
func NewSqliteBackend(ctx context.Context, dataSourceName string) (*SqliteBackend, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("vfs: open sqlite backend: %w", err)
	}
	b := &SqliteBackend{db: db}
	if err := b.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := b.seed(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *SqliteBackend) migrate(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS entries (
			path        TEXT PRIMARY KEY,
			parent      TEXT NOT NULL,
			entry_type  INTEGER NOT NULL,
			data        BLOB,
			target      TEXT,
			mode        INTEGER NOT NULL,
			mod_time    INTEGER NOT NULL,
			create_time INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_entries_parent ON entries(parent);
	`)
	if err != nil {
		return fmt.Errorf("vfs: migrate sqlite backend: %w", err)
	}
	return nil
}

func (b *SqliteBackend) seed(ctx context.Context) error {
	var count int
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM entries WHERE path = '/'`).Scan(&count); err != nil {
		return fmt.Errorf("vfs: check sqlite seed: %w", err)
	}
	if count > 0 {
		return nil
	}
	now := time.Now().UnixNano()
	dirs := []string{"/", "/tmp", "/home", "/home/user", "/dev"}
	for _, p := range dirs {
		parent := Parent(p)
		if p == "/" {
			parent = ""
		}
		if _, err := b.db.ExecContext(ctx, `
			INSERT INTO entries (path, parent, entry_type, data, target, mode, mod_time, create_time)
			VALUES (?, ?, ?, NULL, '', ?, ?, ?)`,
			p, parent, int(TypeDirectory), 0o755, now, now); err != nil {
			return fmt.Errorf("vfs: seed sqlite backend: %w", err)
		}
	}
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO entries (path, parent, entry_type, data, target, mode, mod_time, create_time)
		VALUES ('/dev/null', '/dev', ?, NULL, '', ?, ?, ?)`,
		int(TypeFile), 0o666, now, now)
	if err != nil {
		return fmt.Errorf("vfs: seed sqlite backend /dev/null: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (b *SqliteBackend) Close() error { return b.db.Close() }

func (b *SqliteBackend) Get(ctx context.Context, path string) (*Record, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT entry_type, data, target, mode, mod_time, create_time FROM entries WHERE path = ?`, path)
	var (
		entryType            int
		data                 []byte
		target               string
		mode                 uint32
		modNanos, createNanos int64
	)
	if err := row.Scan(&entryType, &data, &target, &mode, &modNanos, &createNanos); err != nil {
		if err == sql.ErrNoRows {
			return nil, notFound("stat", path)
		}
		return nil, fmt.Errorf("vfs: get %s: %w", path, err)
	}
	return &Record{
		Type:       EntryType(entryType),
		Data:       data,
		Target:     target,
		Mode:       mode,
		ModTime:    time.Unix(0, modNanos),
		CreateTime: time.Unix(0, createNanos),
	}, nil
}

func (b *SqliteBackend) Set(ctx context.Context, path string, rec *Record) error {
	parent := Parent(path)
	if path == "/" {
		parent = ""
	}
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO entries (path, parent, entry_type, data, target, mode, mod_time, create_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			entry_type = excluded.entry_type,
			data = excluded.data,
			target = excluded.target,
			mode = excluded.mode,
			mod_time = excluded.mod_time`,
		path, parent, int(rec.Type), rec.Data, rec.Target, rec.Mode,
		rec.ModTime.UnixNano(), rec.CreateTime.UnixNano())
	if err != nil {
		return fmt.Errorf("vfs: set %s: %w", path, err)
	}
	return nil
}

func (b *SqliteBackend) Delete(ctx context.Context, path string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM entries WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("vfs: delete %s: %w", path, err)
	}
	return nil
}

func (b *SqliteBackend) List(ctx context.Context, path string) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT path FROM entries WHERE parent = ?`, path)
	if err != nil {
		return nil, fmt.Errorf("vfs: list %s: %w", path, err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var childPath string
		if err := rows.Scan(&childPath); err != nil {
			return nil, err
		}
		names = append(names, Base(childPath))
	}
	return names, rows.Err()
}

func (b *SqliteBackend) Walk(ctx context.Context) (map[string]*Record, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT path, entry_type, data, target, mode, mod_time, create_time FROM entries`)
	if err != nil {
		return nil, fmt.Errorf("vfs: walk: %w", err)
	}
	defer rows.Close()
	out := make(map[string]*Record)
	for rows.Next() {
		var (
			path                 string
			entryType            int
			data                 []byte
			target               string
			mode                 uint32
			modNanos, createNanos int64
		)
		if err := rows.Scan(&path, &entryType, &data, &target, &mode, &modNanos, &createNanos); err != nil {
			return nil, err
		}
		out[path] = &Record{
			Type:       EntryType(entryType),
			Data:       data,
			Target:     target,
			Mode:       mode,
			ModTime:    time.Unix(0, modNanos),
			CreateTime: time.Unix(0, createNanos),
		}
	}
	return out, rows.Err()
}
