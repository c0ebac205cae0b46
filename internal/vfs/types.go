// Package vfs implements BashKit's virtual filesystem: a POSIX-like
// file/directory/symlink store with quota enforcement, overlay composition,
// and mount-point resolution. No operation ever touches the host
// filesystem; every FileSystem implementation in this package is backed by
// memory or, optionally, an embedded SQLite database.
package vfs

import (
	"context"
	"time"
)

// EntryType discriminates what a path names. A path's type is fixed by
// whichever operation first creates it, per spec.md §4.2 invariant 1.
type EntryType int

const (
	TypeFile EntryType = iota
	TypeDirectory
	TypeSymlink
)

func (t EntryType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDirectory:
		return "directory"
	case TypeSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// Info is the metadata returned by Stat.
type Info struct {
	Path     string
	Type     EntryType
	Size     int64
	Mode     uint32 // advisory unix permission bits
	ModTime  time.Time
	CreateTime time.Time
	// Target is the symlink target; only meaningful when Type == TypeSymlink.
	Target string
}

// DirEntry is one child of a directory listing.
type DirEntry struct {
	Name string
	Info Info
}

// Usage reports live resource consumption for quota checks.
type Usage struct {
	TotalBytes int64
	FileCount  int64
}

// FileSystem is the full POSIX-like surface BashKit's evaluator and
// builtins drive. Every method takes a context so long-running backends
// (e.g. a network-backed or SQLite-backed store) can be cancelled; the
// in-memory default simply ignores cancellation since it never blocks.
type FileSystem interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte) error
	AppendFile(ctx context.Context, path string, data []byte) error
	Mkdir(ctx context.Context, path string, recursive bool) error
	Remove(ctx context.Context, path string, recursive bool) error
	Stat(ctx context.Context, path string) (Info, error)
	ReadDir(ctx context.Context, path string) ([]DirEntry, error)
	Exists(ctx context.Context, path string) (bool, error)
	Rename(ctx context.Context, oldPath, newPath string) error
	Copy(ctx context.Context, srcPath, dstPath string) error
	Symlink(ctx context.Context, target, linkPath string) error
	ReadLink(ctx context.Context, path string) (string, error)
	Chmod(ctx context.Context, path string, mode uint32) error
	Usage(ctx context.Context) (Usage, error)
	Limits() Limits
}

// FsBackend is the raw, POSIX-semantics-free storage layer: read/write/list
// keyed by canonical path, with no validation, quota, or directory-type
// checking of its own. PosixFs wraps any FsBackend and enforces all of
// spec.md §4.2's semantics on top of it. This split lets a host swap the
// storage medium (in-memory map, SQLite, ...) without reimplementing POSIX
// behavior, and lets a host that wants raw key-value storage use FsBackend
// directly.
type FsBackend interface {
	// Get returns the raw record at path, or ErrNotFound.
	Get(ctx context.Context, path string) (*Record, error)
	// Set stores (or replaces) the raw record at path.
	Set(ctx context.Context, path string, rec *Record) error
	// Delete removes the raw record at path.
	Delete(ctx context.Context, path string) error
	// List returns the direct children's base names for a directory record.
	List(ctx context.Context, path string) ([]string, error)
	// Walk returns every stored path's raw record, for usage accounting.
	Walk(ctx context.Context) (map[string]*Record, error)
}

// Record is the raw value an FsBackend stores for one path.
type Record struct {
	Type       EntryType
	Data       []byte // file contents; nil for directories/symlinks
	Target     string // symlink target; empty otherwise
	Mode       uint32
	ModTime    time.Time
	CreateTime time.Time
}
