package capability

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/everruns/bashkit-sub001/internal/vfs"
)

// commitRecord is one entry in a VfsGit's in-memory commit log.
type commitRecord struct {
	message string
	files   []string
	at      time.Time
}

// VfsGit is a narrow, read-mostly git capability layered directly on a
// vfs.FileSystem: `add` snapshots file contents into a staging area,
// `commit` moves the stage into an append-only log, `status`/`log`/`diff`
// read those in-memory structures back out. There is no real git object
// model, no refs, no branches, and no on-disk `.git` directory — spec.md
// scopes that out entirely; this exists only so scripts that orchestrate a
// git-flavored workflow against the sandboxed filesystem have something to
// call.
type VfsGit struct {
	fs      vfs.FileSystem
	staged  map[string][]byte
	commits []commitRecord
	now     func() time.Time
}

// NewVfsGit builds a VfsGit capability over fs. now supplies the commit
// timestamp (tests pass a fixed clock); a nil now defaults to time.Now.
func NewVfsGit(fs vfs.FileSystem, now func() time.Time) *VfsGit {
	if now == nil {
		now = time.Now
	}
	return &VfsGit{fs: fs, staged: make(map[string][]byte), now: now}
}

// Status reports the staged paths only. It is intentionally simplistic: a
// path is "modified" if staged, and unstaged or "untracked" changes never
// appear (this capability has no notion of the working tree outside what's
// been add-ed).
func (g *VfsGit) Status(ctx context.Context) (string, error) {
	if len(g.staged) == 0 {
		return "nothing to commit, working tree clean\n", nil
	}
	paths := make([]string, 0, len(g.staged))
	for p := range g.staged {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	var b strings.Builder
	b.WriteString("Changes to be committed:\n")
	for _, p := range paths {
		fmt.Fprintf(&b, "\tmodified: %s\n", p)
	}
	return b.String(), nil
}

// Log returns up to maxEntries commit summaries, most recent first.
func (g *VfsGit) Log(ctx context.Context, maxEntries int) (string, error) {
	if len(g.commits) == 0 {
		return "", nil
	}
	if maxEntries <= 0 || maxEntries > len(g.commits) {
		maxEntries = len(g.commits)
	}
	var b strings.Builder
	for i := len(g.commits) - 1; i >= 0 && maxEntries > 0; i-- {
		c := g.commits[i]
		fmt.Fprintf(&b, "commit %d\nDate: %s\n\n    %s\n\n", i+1, c.at.Format(time.RFC3339), c.message)
		maxEntries--
	}
	return b.String(), nil
}

// Diff compares path's current filesystem content against its staged
// snapshot in unified-ish form. Commits record path names but not contents,
// so a path that is not staged is compared against empty content.
func (g *VfsGit) Diff(ctx context.Context, path string) (string, error) {
	current, err := g.fs.ReadFile(ctx, path)
	if err != nil {
		return "", fmt.Errorf("git capability: reading %s: %w", path, err)
	}
	baseline, ok := g.staged[path]
	if !ok {
		baseline = g.lastCommitted(path)
	}
	if string(baseline) == string(current) {
		return "", nil
	}
	return fmt.Sprintf("--- a/%s\n+++ b/%s\n-%s\n+%s\n", path, path, baseline, current), nil
}

func (g *VfsGit) lastCommitted(path string) []byte {
	for i := len(g.commits) - 1; i >= 0; i-- {
		for _, f := range g.commits[i].files {
			if f == path {
				return nil
			}
		}
	}
	return nil
}

// Add reads each path's current content off the filesystem into the stage.
func (g *VfsGit) Add(ctx context.Context, paths []string) error {
	for _, p := range paths {
		data, err := g.fs.ReadFile(ctx, p)
		if err != nil {
			return fmt.Errorf("git capability: staging %s: %w", p, err)
		}
		g.staged[p] = data
	}
	return nil
}

// Commit moves every staged file into the commit log and clears the stage.
func (g *VfsGit) Commit(ctx context.Context, message string) (string, error) {
	if len(g.staged) == 0 {
		return "", fmt.Errorf("git capability: nothing staged to commit")
	}
	files := make([]string, 0, len(g.staged))
	for p := range g.staged {
		files = append(files, p)
	}
	sort.Strings(files)
	g.commits = append(g.commits, commitRecord{message: message, files: files, at: g.now()})
	g.staged = make(map[string][]byte)
	return fmt.Sprintf("commit %d created", len(g.commits)), nil
}
