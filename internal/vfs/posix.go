package vfs

import (
	"context"
	"errors"
	"time"
)

// PosixFs wraps any FsBackend and enforces spec.md §4.2's POSIX semantics,
// path validation, and quota checks on top of it. It is the default
// FileSystem a Session constructs; hosts may also implement FileSystem
// directly (bypassing PosixFs) if they want to carry the semantic burden
// themselves, per spec.md's "Backend / POSIX split".
type PosixFs struct {
	backend FsBackend
	limits  Limits
}

// NewPosixFs wraps backend with POSIX semantics under limits.
func NewPosixFs(backend FsBackend, limits Limits) *PosixFs {
	return &PosixFs{backend: backend, limits: limits}
}

// New returns the default in-memory PosixFs with default limits — the
// filesystem a Session gets when the host doesn't supply one.
func New() *PosixFs {
	return NewPosixFs(NewMemBackend(), DefaultLimits())
}

func (fs *PosixFs) Limits() Limits { return fs.limits }

func (fs *PosixFs) normalize(op, path string) (string, error) {
	if err := fs.limits.ValidatePath(path); err != nil {
		return "", err
	}
	norm, ok := Normalize(path)
	if !ok {
		return "", invalidPath(op, path)
	}
	return norm, nil
}

func (fs *PosixFs) parentMustBeDir(ctx context.Context, op, path string) error {
	if path == "/" {
		return nil
	}
	parent := Parent(path)
	rec, err := fs.backend.Get(ctx, parent)
	if err != nil {
		return notFound(op, parent)
	}
	if rec.Type != TypeDirectory {
		return notDirectory(op, parent)
	}
	return nil
}

func (fs *PosixFs) ReadFile(ctx context.Context, path string) ([]byte, error) {
	norm, err := fs.normalize("read_file", path)
	if err != nil {
		return nil, err
	}
	rec, err := fs.backend.Get(ctx, norm)
	if err != nil {
		return nil, notFound("read_file", path)
	}
	switch rec.Type {
	case TypeDirectory:
		return nil, isDirectory("read_file", path)
	case TypeSymlink:
		return fs.ReadFile(ctx, resolveSymlink(norm, rec.Target))
	default:
		out := make([]byte, len(rec.Data))
		copy(out, rec.Data)
		return out, nil
	}
}

func resolveSymlink(linkPath, target string) string {
	if len(target) > 0 && target[0] == '/' {
		return target
	}
	joined := Parent(linkPath) + "/" + target
	norm, ok := Normalize(joined)
	if !ok {
		return target
	}
	return norm
}

func (fs *PosixFs) WriteFile(ctx context.Context, path string, data []byte) error {
	norm, err := fs.normalize("write_file", path)
	if err != nil {
		return err
	}
	if err := fs.parentMustBeDir(ctx, "write_file", path); err != nil {
		return err
	}
	existing, err := fs.backend.Get(ctx, norm)
	isNewFile := err != nil
	if err == nil && existing.Type == TypeDirectory {
		return isDirectory("write_file", path)
	}

	usage, err := fs.Usage(ctx)
	if err != nil {
		return err
	}
	var prevSize int64
	if !isNewFile {
		prevSize = int64(len(existing.Data))
	}
	if err := fs.limits.checkWrite(Usage{TotalBytes: usage.TotalBytes - prevSize, FileCount: usage.FileCount}, int64(len(data)), isNewFile); err != nil {
		return err
	}

	now := time.Now()
	createTime := now
	if !isNewFile {
		createTime = existing.CreateTime
	}
	return fs.backend.Set(ctx, norm, &Record{Type: TypeFile, Data: data, Mode: 0o644, ModTime: now, CreateTime: createTime})
}

func (fs *PosixFs) AppendFile(ctx context.Context, path string, data []byte) error {
	norm, err := fs.normalize("append_file", path)
	if err != nil {
		return err
	}
	existing, err := fs.backend.Get(ctx, norm)
	if err != nil {
		if perr := fs.parentMustBeDir(ctx, "append_file", path); perr != nil {
			return perr
		}
		return fs.WriteFile(ctx, path, data)
	}
	if existing.Type == TypeDirectory {
		return isDirectory("append_file", path)
	}
	if existing.Type == TypeSymlink {
		return fs.AppendFile(ctx, resolveSymlink(norm, existing.Target), data)
	}

	usage, err := fs.Usage(ctx)
	if err != nil {
		return err
	}
	prevSize := int64(len(existing.Data))
	newTotal := prevSize + int64(len(data))
	if err := fs.limits.checkWrite(Usage{TotalBytes: usage.TotalBytes - prevSize, FileCount: usage.FileCount}, newTotal, false); err != nil {
		return err
	}

	merged := append(append([]byte{}, existing.Data...), data...)
	return fs.backend.Set(ctx, norm, &Record{Type: TypeFile, Data: merged, Mode: existing.Mode, ModTime: time.Now(), CreateTime: existing.CreateTime})
}

func (fs *PosixFs) Mkdir(ctx context.Context, path string, recursive bool) error {
	norm, err := fs.normalize("mkdir", path)
	if err != nil {
		return err
	}
	existing, err := fs.backend.Get(ctx, norm)
	if err == nil {
		if !recursive {
			return alreadyExists("mkdir", path)
		}
		if existing.Type != TypeDirectory {
			return notDirectory("mkdir", path)
		}
		return nil
	}

	if !recursive {
		if perr := fs.parentMustBeDir(ctx, "mkdir", path); perr != nil {
			return perr
		}
		now := time.Now()
		return fs.backend.Set(ctx, norm, &Record{Type: TypeDirectory, Mode: 0o755, ModTime: now, CreateTime: now})
	}

	// Recursive: create every missing ancestor, deepest last.
	var ancestors []string
	cur := norm
	for cur != "/" {
		if rec, err := fs.backend.Get(ctx, cur); err == nil {
			if rec.Type != TypeDirectory {
				return notDirectory("mkdir", cur)
			}
			break
		}
		ancestors = append(ancestors, cur)
		cur = Parent(cur)
	}
	for i := len(ancestors) - 1; i >= 0; i-- {
		now := time.Now()
		if err := fs.backend.Set(ctx, ancestors[i], &Record{Type: TypeDirectory, Mode: 0o755, ModTime: now, CreateTime: now}); err != nil {
			return err
		}
	}
	return nil
}

func (fs *PosixFs) Remove(ctx context.Context, path string, recursive bool) error {
	norm, err := fs.normalize("remove", path)
	if err != nil {
		return err
	}
	if norm == "/" {
		return invalidPath("remove", path)
	}
	rec, err := fs.backend.Get(ctx, norm)
	if err != nil {
		return notFound("remove", path)
	}
	if rec.Type == TypeDirectory {
		children, _ := fs.backend.List(ctx, norm)
		if len(children) > 0 && !recursive {
			return notEmpty("remove", path)
		}
		if recursive {
			for _, name := range children {
				if err := fs.Remove(ctx, Join(norm, name), true); err != nil {
					return err
				}
			}
		}
	}
	return fs.backend.Delete(ctx, norm)
}

func (fs *PosixFs) Stat(ctx context.Context, path string) (Info, error) {
	norm, err := fs.normalize("stat", path)
	if err != nil {
		return Info{}, err
	}
	rec, err := fs.backend.Get(ctx, norm)
	if err != nil {
		return Info{}, notFound("stat", path)
	}
	return Info{
		Path:       norm,
		Type:       rec.Type,
		Size:       int64(len(rec.Data)),
		Mode:       rec.Mode,
		ModTime:    rec.ModTime,
		CreateTime: rec.CreateTime,
		Target:     rec.Target,
	}, nil
}

func (fs *PosixFs) ReadDir(ctx context.Context, path string) ([]DirEntry, error) {
	norm, err := fs.normalize("read_dir", path)
	if err != nil {
		return nil, err
	}
	rec, err := fs.backend.Get(ctx, norm)
	if err != nil {
		return nil, notFound("read_dir", path)
	}
	if rec.Type != TypeDirectory {
		return nil, notDirectory("read_dir", path)
	}
	names, err := fs.backend.List(ctx, norm)
	if err != nil {
		return nil, err
	}
	entries := make([]DirEntry, 0, len(names))
	for _, name := range names {
		info, err := fs.Stat(ctx, Join(norm, name))
		if err != nil {
			continue
		}
		entries = append(entries, DirEntry{Name: name, Info: info})
	}
	return entries, nil
}

func (fs *PosixFs) Exists(ctx context.Context, path string) (bool, error) {
	norm, err := fs.normalize("exists", path)
	if err != nil {
		return false, err
	}
	_, err = fs.backend.Get(ctx, norm)
	if err != nil {
		var opErr *OpError
		if errors.As(err, &opErr) && opErr.Kind == ErrNotFound {
			return false, nil
		}
		return false, nil
	}
	return true, nil
}

func (fs *PosixFs) Rename(ctx context.Context, oldPath, newPath string) error {
	data, info, err := fs.readRaw(ctx, oldPath)
	if err != nil {
		return err
	}
	if err := fs.writeRaw(ctx, newPath, data, info); err != nil {
		return err
	}
	return fs.Remove(ctx, oldPath, true)
}

func (fs *PosixFs) Copy(ctx context.Context, srcPath, dstPath string) error {
	data, info, err := fs.readRaw(ctx, srcPath)
	if err != nil {
		return err
	}
	return fs.writeRaw(ctx, dstPath, data, info)
}

// readRaw loads a path's full record (not just file contents), used by
// Rename/Copy so directories and symlinks transfer correctly too.
func (fs *PosixFs) readRaw(ctx context.Context, path string) ([]byte, Info, error) {
	info, err := fs.Stat(ctx, path)
	if err != nil {
		return nil, Info{}, err
	}
	if info.Type == TypeFile {
		data, err := fs.ReadFile(ctx, path)
		return data, info, err
	}
	return nil, info, nil
}

func (fs *PosixFs) writeRaw(ctx context.Context, path string, data []byte, info Info) error {
	switch info.Type {
	case TypeDirectory:
		return fs.Mkdir(ctx, path, true)
	case TypeSymlink:
		return fs.Symlink(ctx, info.Target, path)
	default:
		return fs.WriteFile(ctx, path, data)
	}
}

func (fs *PosixFs) Symlink(ctx context.Context, target, linkPath string) error {
	norm, err := fs.normalize("symlink", linkPath)
	if err != nil {
		return err
	}
	if err := fs.parentMustBeDir(ctx, "symlink", linkPath); err != nil {
		return err
	}
	if _, err := fs.backend.Get(ctx, norm); err == nil {
		return alreadyExists("symlink", linkPath)
	}

	usage, err := fs.Usage(ctx)
	if err != nil {
		return err
	}
	if err := fs.limits.checkWrite(usage, int64(len(target)), true); err != nil {
		return err
	}

	now := time.Now()
	return fs.backend.Set(ctx, norm, &Record{Type: TypeSymlink, Target: target, Mode: 0o777, ModTime: now, CreateTime: now})
}

func (fs *PosixFs) ReadLink(ctx context.Context, path string) (string, error) {
	norm, err := fs.normalize("read_link", path)
	if err != nil {
		return "", err
	}
	rec, err := fs.backend.Get(ctx, norm)
	if err != nil {
		return "", notFound("read_link", path)
	}
	if rec.Type != TypeSymlink {
		return "", notSymlink("read_link", path)
	}
	return rec.Target, nil
}

func (fs *PosixFs) Chmod(ctx context.Context, path string, mode uint32) error {
	norm, err := fs.normalize("chmod", path)
	if err != nil {
		return err
	}
	rec, err := fs.backend.Get(ctx, norm)
	if err != nil {
		return notFound("chmod", path)
	}
	rec.Mode = mode
	return fs.backend.Set(ctx, norm, rec)
}

func (fs *PosixFs) Usage(ctx context.Context) (Usage, error) {
	records, err := fs.backend.Walk(ctx)
	if err != nil {
		return Usage{}, err
	}
	var u Usage
	for path, rec := range records {
		// The seeded /dev/null is not counted against the quota.
		if rec.Type == TypeFile && path != "/dev/null" {
			u.TotalBytes += int64(len(rec.Data))
			u.FileCount++
		}
	}
	return u, nil
}
