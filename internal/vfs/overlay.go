package vfs

import (
	"context"
	"errors"
	"sync"
)

// Overlay composes a read-only (or shared) lower FileSystem with a mutable
// upper one, following spec.md §4.2's overlay semantics: reads consult
// whiteouts first, then upper, then lower; writes materialize into upper,
// copying-on-write from lower as needed, and clear any whiteout at the
// target path.
type Overlay struct {
	lower FileSystem
	upper FileSystem

	mu        sync.Mutex
	whiteouts map[string]bool
}

// NewOverlay builds an overlay. upper should be an otherwise-empty
// FileSystem (e.g. vfs.New()); lower is consulted read-through and is never
// mutated directly by the overlay.
func NewOverlay(lower, upper FileSystem) *Overlay {
	return &Overlay{lower: lower, upper: upper, whiteouts: make(map[string]bool)}
}

func (o *Overlay) isWhited(path string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.whiteouts[path]
}

func (o *Overlay) clearWhiteout(path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.whiteouts, path)
}

func (o *Overlay) setWhiteout(path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.whiteouts[path] = true
}

func isNotFound(err error) bool {
	var opErr *OpError
	return errors.As(err, &opErr) && opErr.Kind == ErrNotFound
}

func (o *Overlay) Limits() Limits { return o.upper.Limits() }

func (o *Overlay) ReadFile(ctx context.Context, path string) ([]byte, error) {
	norm, ok := Normalize(path)
	if !ok {
		return nil, invalidPath("read_file", path)
	}
	if o.isWhited(norm) {
		return nil, notFound("read_file", path)
	}
	data, err := o.upper.ReadFile(ctx, norm)
	if err == nil {
		return data, nil
	}
	if !isNotFound(err) {
		return nil, err
	}
	return o.lower.ReadFile(ctx, norm)
}

// copyDown copies a lower-layer path's content into upper before a write
// that needs to merge with existing lower data (e.g. append_file), per
// spec.md §4.2: "append_file copies the lower file into upper first if
// upper lacks it, then appends."
func (o *Overlay) copyDown(ctx context.Context, path string) error {
	if exists, _ := o.upper.Exists(ctx, path); exists {
		return nil
	}
	data, err := o.lower.ReadFile(ctx, path)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	if err := ensureParents(ctx, o.upper, path); err != nil {
		return err
	}
	return o.upper.WriteFile(ctx, path, data)
}

func ensureParents(ctx context.Context, fs FileSystem, path string) error {
	parent := Parent(path)
	if parent == "/" {
		return nil
	}
	if exists, _ := fs.Exists(ctx, parent); exists {
		return nil
	}
	return fs.Mkdir(ctx, parent, true)
}

func (o *Overlay) WriteFile(ctx context.Context, path string, data []byte) error {
	norm, ok := Normalize(path)
	if !ok {
		return invalidPath("write_file", path)
	}
	if err := ensureParents(ctx, o.upper, norm); err != nil {
		return err
	}
	if err := o.upper.WriteFile(ctx, norm, data); err != nil {
		return err
	}
	o.clearWhiteout(norm)
	return nil
}

func (o *Overlay) AppendFile(ctx context.Context, path string, data []byte) error {
	norm, ok := Normalize(path)
	if !ok {
		return invalidPath("append_file", path)
	}
	if !o.isWhited(norm) {
		if err := o.copyDown(ctx, norm); err != nil {
			return err
		}
	}
	if err := o.upper.AppendFile(ctx, norm, data); err != nil {
		return err
	}
	o.clearWhiteout(norm)
	return nil
}

func (o *Overlay) Mkdir(ctx context.Context, path string, recursive bool) error {
	norm, ok := Normalize(path)
	if !ok {
		return invalidPath("mkdir", path)
	}
	if err := o.upper.Mkdir(ctx, norm, recursive); err != nil {
		return err
	}
	o.clearWhiteout(norm)
	return nil
}

func (o *Overlay) Remove(ctx context.Context, path string, recursive bool) error {
	norm, ok := Normalize(path)
	if !ok {
		return invalidPath("remove", path)
	}
	upperHas, _ := o.upper.Exists(ctx, norm)
	lowerHas, _ := o.lower.Exists(ctx, norm)

	if upperHas {
		if err := o.upper.Remove(ctx, norm, recursive); err != nil {
			return err
		}
		if lowerHas {
			o.setWhiteout(norm)
		}
		return nil
	}
	if lowerHas {
		o.setWhiteout(norm)
		return nil
	}
	return notFound("remove", path)
}

func (o *Overlay) Stat(ctx context.Context, path string) (Info, error) {
	norm, ok := Normalize(path)
	if !ok {
		return Info{}, invalidPath("stat", path)
	}
	if o.isWhited(norm) {
		return Info{}, notFound("stat", path)
	}
	info, err := o.upper.Stat(ctx, norm)
	if err == nil {
		return info, nil
	}
	if !isNotFound(err) {
		return Info{}, err
	}
	return o.lower.Stat(ctx, norm)
}

func (o *Overlay) ReadDir(ctx context.Context, path string) ([]DirEntry, error) {
	norm, ok := Normalize(path)
	if !ok {
		return nil, invalidPath("read_dir", path)
	}
	if o.isWhited(norm) {
		return nil, notFound("read_dir", path)
	}
	merged := make(map[string]DirEntry)
	lowerEntries, lowerErr := o.lower.ReadDir(ctx, norm)
	if lowerErr == nil {
		for _, e := range lowerEntries {
			if !o.isWhited(Join(norm, e.Name)) {
				merged[e.Name] = e
			}
		}
	}
	upperEntries, upperErr := o.upper.ReadDir(ctx, norm)
	if upperErr == nil {
		for _, e := range upperEntries {
			merged[e.Name] = e // upper overrides lower on collision
		}
	}
	if lowerErr != nil && upperErr != nil {
		return nil, upperErr
	}
	out := make([]DirEntry, 0, len(merged))
	for _, e := range merged {
		out = append(out, e)
	}
	return out, nil
}

func (o *Overlay) Exists(ctx context.Context, path string) (bool, error) {
	_, err := o.Stat(ctx, path)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (o *Overlay) Rename(ctx context.Context, oldPath, newPath string) error {
	data, err := o.ReadFile(ctx, oldPath)
	if err == nil {
		if err := o.WriteFile(ctx, newPath, data); err != nil {
			return err
		}
		return o.Remove(ctx, oldPath, true)
	}
	info, serr := o.Stat(ctx, oldPath)
	if serr != nil {
		return err
	}
	if info.Type == TypeDirectory {
		if err := o.Mkdir(ctx, newPath, true); err != nil {
			return err
		}
		return o.Remove(ctx, oldPath, true)
	}
	target, lerr := o.ReadLink(ctx, oldPath)
	if lerr != nil {
		return lerr
	}
	if err := o.Symlink(ctx, target, newPath); err != nil {
		return err
	}
	return o.Remove(ctx, oldPath, true)
}

func (o *Overlay) Copy(ctx context.Context, srcPath, dstPath string) error {
	data, err := o.ReadFile(ctx, srcPath)
	if err == nil {
		return o.WriteFile(ctx, dstPath, data)
	}
	info, serr := o.Stat(ctx, srcPath)
	if serr != nil {
		return err
	}
	if info.Type == TypeDirectory {
		return o.Mkdir(ctx, dstPath, true)
	}
	target, lerr := o.ReadLink(ctx, srcPath)
	if lerr != nil {
		return lerr
	}
	return o.Symlink(ctx, target, dstPath)
}

func (o *Overlay) Symlink(ctx context.Context, target, linkPath string) error {
	norm, ok := Normalize(linkPath)
	if !ok {
		return invalidPath("symlink", linkPath)
	}
	if err := ensureParents(ctx, o.upper, norm); err != nil {
		return err
	}
	if err := o.upper.Symlink(ctx, target, norm); err != nil {
		return err
	}
	o.clearWhiteout(norm)
	return nil
}

func (o *Overlay) ReadLink(ctx context.Context, path string) (string, error) {
	norm, ok := Normalize(path)
	if !ok {
		return "", invalidPath("read_link", path)
	}
	if o.isWhited(norm) {
		return "", notFound("read_link", path)
	}
	target, err := o.upper.ReadLink(ctx, norm)
	if err == nil {
		return target, nil
	}
	if !isNotFound(err) {
		return "", err
	}
	return o.lower.ReadLink(ctx, norm)
}

func (o *Overlay) Chmod(ctx context.Context, path string, mode uint32) error {
	norm, ok := Normalize(path)
	if !ok {
		return invalidPath("chmod", path)
	}
	if upperHas, _ := o.upper.Exists(ctx, norm); upperHas {
		return o.upper.Chmod(ctx, norm, mode)
	}
	if err := o.copyDown(ctx, norm); err != nil {
		return err
	}
	return o.upper.Chmod(ctx, norm, mode)
}

func (o *Overlay) Usage(ctx context.Context) (Usage, error) {
	return o.upper.Usage(ctx)
}
