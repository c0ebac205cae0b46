package vfs

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPosixFsWriteReadRoundTrip(t *testing.T) {
	fs := New()
	ctx := context.Background()

	require.NoError(t, fs.WriteFile(ctx, "/tmp/greeting.txt", []byte("hello")))
	data, err := fs.ReadFile(ctx, "/tmp/greeting.txt")
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestPosixFsAppendCreatesThenAppends(t *testing.T) {
	fs := New()
	ctx := context.Background()

	require.NoError(t, fs.AppendFile(ctx, "/tmp/log.txt", []byte("a")))
	require.NoError(t, fs.AppendFile(ctx, "/tmp/log.txt", []byte("b")))
	data, err := fs.ReadFile(ctx, "/tmp/log.txt")
	require.NoError(t, err)
	require.Equal(t, "ab", string(data))
}

func TestPosixFsMkdirPIdempotent(t *testing.T) {
	fs := New()
	ctx := context.Background()

	require.NoError(t, fs.Mkdir(ctx, "/a/b/c", true))
	require.NoError(t, fs.Mkdir(ctx, "/a/b/c", true))

	info, err := fs.Stat(ctx, "/a/b")
	require.NoError(t, err)
	require.Equal(t, TypeDirectory, info.Type)
}

func TestPosixFsMkdirNonRecursiveRequiresParent(t *testing.T) {
	fs := New()
	ctx := context.Background()

	err := fs.Mkdir(ctx, "/a/b", false)
	require.Error(t, err)
}

func TestPosixFsWriteOverDirectoryFails(t *testing.T) {
	fs := New()
	ctx := context.Background()

	require.NoError(t, fs.Mkdir(ctx, "/a", true))
	err := fs.WriteFile(ctx, "/a", []byte("x"))
	require.Error(t, err)
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	require.Equal(t, ErrIsDirectory, opErr.Kind)
}

func TestPosixFsRemoveNonEmptyRequiresRecursive(t *testing.T) {
	fs := New()
	ctx := context.Background()

	require.NoError(t, fs.Mkdir(ctx, "/a", true))
	require.NoError(t, fs.WriteFile(ctx, "/a/f", []byte("x")))

	err := fs.Remove(ctx, "/a", false)
	require.Error(t, err)

	require.NoError(t, fs.Remove(ctx, "/a", true))
	exists, err := fs.Exists(ctx, "/a")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestPosixFsQuotaMaxFileSize(t *testing.T) {
	fs := NewPosixFs(NewMemBackend(), Limits{
		MaxTotalBytes: 1000, MaxFileSize: 10, MaxFileCount: 10,
		MaxPathDepth: 10, MaxFilenameLength: 64, MaxPathLength: 256,
	})
	ctx := context.Background()

	err := fs.WriteFile(ctx, "/tmp/big", []byte(strings.Repeat("x", 11)))
	require.Error(t, err)
	var limErr *LimitExceeded
	require.ErrorAs(t, err, &limErr)
	require.Equal(t, LimitFileSize, limErr.Kind)
}

func TestPosixFsQuotaMaxFileCount(t *testing.T) {
	fs := NewPosixFs(NewMemBackend(), Limits{
		MaxTotalBytes: 1000, MaxFileSize: 100, MaxFileCount: 1,
		MaxPathDepth: 10, MaxFilenameLength: 64, MaxPathLength: 256,
	})
	ctx := context.Background()

	require.NoError(t, fs.WriteFile(ctx, "/tmp/a", []byte("x")))
	err := fs.WriteFile(ctx, "/tmp/b", []byte("x"))
	require.Error(t, err)
	var limErr *LimitExceeded
	require.ErrorAs(t, err, &limErr)
	require.Equal(t, LimitFileCount, limErr.Kind)
}

func TestPosixFsSymlinkResolution(t *testing.T) {
	fs := New()
	ctx := context.Background()

	require.NoError(t, fs.WriteFile(ctx, "/tmp/real", []byte("data")))
	require.NoError(t, fs.Symlink(ctx, "real", "/tmp/link"))

	data, err := fs.ReadFile(ctx, "/tmp/link")
	require.NoError(t, err)
	require.Equal(t, "data", string(data))

	target, err := fs.ReadLink(ctx, "/tmp/link")
	require.NoError(t, err)
	require.Equal(t, "real", target)
}

func TestPosixFsRenameAndCopy(t *testing.T) {
	fs := New()
	ctx := context.Background()

	require.NoError(t, fs.WriteFile(ctx, "/tmp/src", []byte("v")))
	require.NoError(t, fs.Copy(ctx, "/tmp/src", "/tmp/dst"))

	data, err := fs.ReadFile(ctx, "/tmp/dst")
	require.NoError(t, err)
	require.Equal(t, "v", string(data))

	require.NoError(t, fs.Rename(ctx, "/tmp/src", "/tmp/moved"))
	_, err = fs.Stat(ctx, "/tmp/src")
	require.Error(t, err)
	data, err = fs.ReadFile(ctx, "/tmp/moved")
	require.NoError(t, err)
	require.Equal(t, "v", string(data))
}

func TestPosixFsPathDepthLimit(t *testing.T) {
	fs := NewPosixFs(NewMemBackend(), Limits{
		MaxTotalBytes: 1000, MaxFileSize: 100, MaxFileCount: 100,
		MaxPathDepth: 2, MaxFilenameLength: 64, MaxPathLength: 256,
	})
	ctx := context.Background()

	err := fs.Mkdir(ctx, "/a/b/c", true)
	require.Error(t, err)
	var limErr *LimitExceeded
	require.ErrorAs(t, err, &limErr)
	require.Equal(t, LimitPathDepth, limErr.Kind)
}

func TestPosixFsFilenameLengthLimit(t *testing.T) {
	fs := NewPosixFs(NewMemBackend(), DefaultLimits())
	ctx := context.Background()

	longName := "/tmp/" + strings.Repeat("x", 300)
	err := fs.WriteFile(ctx, longName, []byte("x"))
	require.Error(t, err)
	var limErr *LimitExceeded
	require.ErrorAs(t, err, &limErr)
	require.Equal(t, LimitFilenameLength, limErr.Kind)
}

func TestPosixFsReadDirListsEntries(t *testing.T) {
	fs := New()
	ctx := context.Background()

	require.NoError(t, fs.WriteFile(ctx, "/tmp/a", []byte("1")))
	require.NoError(t, fs.WriteFile(ctx, "/tmp/b", []byte("2")))

	entries, err := fs.ReadDir(ctx, "/tmp")
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	require.ElementsMatch(t, []string{"a", "b"}, names)
}
