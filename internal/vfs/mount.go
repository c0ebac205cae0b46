package vfs

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// MountFs resolves paths against a root filesystem plus a table of mounted
// filesystems, using longest-prefix match over mount points (spec.md
// §4.2). Cross-mount Rename/Copy degrade to copy-then-remove (or copy
// alone); same-mount operations delegate directly and preserve the backing
// filesystem's own semantics.
type MountFs struct {
	root   FileSystem
	mounts map[string]FileSystem
	points []string // mount-point paths, longest first
}

// NewMountFs builds a mount table rooted at root.
func NewMountFs(root FileSystem) *MountFs {
	return &MountFs{root: root, mounts: make(map[string]FileSystem)}
}

// Mount attaches fs at the (normalized) mount point path. If no mount
// covers a path, root handles it.
func (m *MountFs) Mount(path string, fs FileSystem) error {
	norm, ok := Normalize(path)
	if !ok {
		return invalidPath("mount", path)
	}
	if _, exists := m.mounts[norm]; !exists {
		m.points = append(m.points, norm)
		sort.Slice(m.points, func(i, j int) bool { return len(m.points[i]) > len(m.points[j]) })
	}
	m.mounts[norm] = fs
	return nil
}

// Unmount detaches the filesystem mounted at path, if any.
func (m *MountFs) Unmount(path string) {
	norm, ok := Normalize(path)
	if !ok {
		return
	}
	if _, exists := m.mounts[norm]; !exists {
		return
	}
	delete(m.mounts, norm)
	for i, p := range m.points {
		if p == norm {
			m.points = append(m.points[:i], m.points[i+1:]...)
			break
		}
	}
}

// resolve returns the backing filesystem for path and the path to use
// within it, by longest-prefix match over mount points.
func (m *MountFs) resolve(path string) (FileSystem, string) {
	for _, mp := range m.points {
		if path == mp {
			return m.mounts[mp], "/"
		}
		if strings.HasPrefix(path, mp+"/") {
			rest := strings.TrimPrefix(path, mp)
			return m.mounts[mp], rest
		}
	}
	return m.root, path
}

// mountNamesUnder returns the base names of mount points that are direct
// children of dir, for synthesizing directory entries (spec.md §4.2:
// "read_dir on a directory that contains mount points inserts synthetic
// directory entries for the mount-point names").
func (m *MountFs) mountNamesUnder(dir string) []string {
	var names []string
	for _, mp := range m.points {
		if mp == "/" {
			continue
		}
		if Parent(mp) == dir {
			names = append(names, Base(mp))
		}
	}
	return names
}

func (m *MountFs) Limits() Limits { return m.root.Limits() }

func (m *MountFs) ReadFile(ctx context.Context, path string) ([]byte, error) {
	norm, ok := Normalize(path)
	if !ok {
		return nil, invalidPath("read_file", path)
	}
	fs, sub := m.resolve(norm)
	return fs.ReadFile(ctx, sub)
}

func (m *MountFs) WriteFile(ctx context.Context, path string, data []byte) error {
	norm, ok := Normalize(path)
	if !ok {
		return invalidPath("write_file", path)
	}
	fs, sub := m.resolve(norm)
	return fs.WriteFile(ctx, sub, data)
}

func (m *MountFs) AppendFile(ctx context.Context, path string, data []byte) error {
	norm, ok := Normalize(path)
	if !ok {
		return invalidPath("append_file", path)
	}
	fs, sub := m.resolve(norm)
	return fs.AppendFile(ctx, sub, data)
}

func (m *MountFs) Mkdir(ctx context.Context, path string, recursive bool) error {
	norm, ok := Normalize(path)
	if !ok {
		return invalidPath("mkdir", path)
	}
	fs, sub := m.resolve(norm)
	return fs.Mkdir(ctx, sub, recursive)
}

func (m *MountFs) Remove(ctx context.Context, path string, recursive bool) error {
	norm, ok := Normalize(path)
	if !ok {
		return invalidPath("remove", path)
	}
	fs, sub := m.resolve(norm)
	return fs.Remove(ctx, sub, recursive)
}

func (m *MountFs) Stat(ctx context.Context, path string) (Info, error) {
	norm, ok := Normalize(path)
	if !ok {
		return Info{}, invalidPath("stat", path)
	}
	fs, sub := m.resolve(norm)
	info, err := fs.Stat(ctx, sub)
	if err == nil {
		info.Path = norm
	}
	return info, err
}

func (m *MountFs) ReadDir(ctx context.Context, path string) ([]DirEntry, error) {
	norm, ok := Normalize(path)
	if !ok {
		return nil, invalidPath("read_dir", path)
	}
	fs, sub := m.resolve(norm)
	entries, err := fs.ReadDir(ctx, sub)
	if err != nil {
		// A directory might exist only as a mount parent with nothing in
		// the backing fs at that exact path (e.g. root never created it).
		if !isNotFound(err) || len(m.mountNamesUnder(norm)) == 0 {
			return nil, err
		}
		entries = nil
	}
	have := make(map[string]bool, len(entries))
	for _, e := range entries {
		have[e.Name] = true
	}
	for _, name := range m.mountNamesUnder(norm) {
		if have[name] {
			continue
		}
		mountedFs, _ := m.resolve(Join(norm, name))
		info, err := mountedFs.Stat(ctx, "/")
		if err != nil {
			info = Info{Path: Join(norm, name), Type: TypeDirectory}
		}
		entries = append(entries, DirEntry{Name: name, Info: info})
	}
	return entries, nil
}

func (m *MountFs) Exists(ctx context.Context, path string) (bool, error) {
	norm, ok := Normalize(path)
	if !ok {
		return false, invalidPath("exists", path)
	}
	fs, sub := m.resolve(norm)
	return fs.Exists(ctx, sub)
}

func (m *MountFs) Rename(ctx context.Context, oldPath, newPath string) error {
	oldNorm, ok1 := Normalize(oldPath)
	newNorm, ok2 := Normalize(newPath)
	if !ok1 || !ok2 {
		return invalidPath("rename", oldPath)
	}
	oldFs, oldSub := m.resolve(oldNorm)
	newFs, newSub := m.resolve(newNorm)
	if sameFs(oldFs, newFs) {
		return oldFs.Rename(ctx, oldSub, newSub)
	}
	if err := m.Copy(ctx, oldPath, newPath); err != nil {
		return err
	}
	return m.Remove(ctx, oldPath, true)
}

func (m *MountFs) Copy(ctx context.Context, srcPath, dstPath string) error {
	srcNorm, ok1 := Normalize(srcPath)
	dstNorm, ok2 := Normalize(dstPath)
	if !ok1 || !ok2 {
		return invalidPath("copy", srcPath)
	}
	srcFs, srcSub := m.resolve(srcNorm)
	dstFs, dstSub := m.resolve(dstNorm)
	if sameFs(srcFs, dstFs) {
		return srcFs.Copy(ctx, srcSub, dstSub)
	}
	data, err := srcFs.ReadFile(ctx, srcSub)
	if err != nil {
		return err
	}
	return dstFs.WriteFile(ctx, dstSub, data)
}

// sameFs compares backing-filesystem identity for the cross-mount decision.
// Interface values backed by pointers compare equal when they share an
// underlying instance.
func sameFs(a, b FileSystem) bool { return a == b }

func (m *MountFs) Symlink(ctx context.Context, target, linkPath string) error {
	norm, ok := Normalize(linkPath)
	if !ok {
		return invalidPath("symlink", linkPath)
	}
	fs, sub := m.resolve(norm)
	return fs.Symlink(ctx, target, sub)
}

func (m *MountFs) ReadLink(ctx context.Context, path string) (string, error) {
	norm, ok := Normalize(path)
	if !ok {
		return "", invalidPath("read_link", path)
	}
	fs, sub := m.resolve(norm)
	return fs.ReadLink(ctx, sub)
}

func (m *MountFs) Chmod(ctx context.Context, path string, mode uint32) error {
	norm, ok := Normalize(path)
	if !ok {
		return invalidPath("chmod", path)
	}
	fs, sub := m.resolve(norm)
	return fs.Chmod(ctx, sub, mode)
}

// Usage aggregates usage across the root and every mounted filesystem.
// Each backing filesystem's usage is independent of the others, so they
// are queried concurrently via errgroup and summed once all complete.
func (m *MountFs) Usage(ctx context.Context) (Usage, error) {
	fsList := make([]FileSystem, 0, len(m.mounts)+1)
	fsList = append(fsList, m.root)
	for _, fs := range m.mounts {
		fsList = append(fsList, fs)
	}
	usages := make([]Usage, len(fsList))

	g, gctx := errgroup.WithContext(ctx)
	for i, fs := range fsList {
		i, fs := i, fs
		g.Go(func() error {
			u, err := fs.Usage(gctx)
			if err != nil {
				return err
			}
			usages[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Usage{}, err
	}

	var total Usage
	for _, u := range usages {
		total.TotalBytes += u.TotalBytes
		total.FileCount += u.FileCount
	}
	return total, nil
}
