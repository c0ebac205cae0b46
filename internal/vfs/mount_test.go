package vfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMountFsResolvesLongestPrefix(t *testing.T) {
	ctx := context.Background()
	root := New()
	data := New()

	require.NoError(t, root.Mkdir(ctx, "/mnt", true))
	require.NoError(t, root.Mkdir(ctx, "/mnt/data", true))

	mfs := NewMountFs(root)
	require.NoError(t, mfs.Mount("/mnt/data", data))

	require.NoError(t, mfs.WriteFile(ctx, "/mnt/data/file.txt", []byte("on-mount")))
	got, err := data.ReadFile(ctx, "/file.txt")
	require.NoError(t, err)
	require.Equal(t, "on-mount", string(got))

	require.NoError(t, mfs.WriteFile(ctx, "/mnt/other.txt", []byte("on-root")))
	got, err = root.ReadFile(ctx, "/mnt/other.txt")
	require.NoError(t, err)
	require.Equal(t, "on-root", string(got))
}

func TestMountFsReadDirSynthesizesMountEntries(t *testing.T) {
	ctx := context.Background()
	root := New()
	require.NoError(t, root.Mkdir(ctx, "/mnt", true))

	mfs := NewMountFs(root)
	require.NoError(t, mfs.Mount("/mnt/data", New()))

	entries, err := mfs.ReadDir(ctx, "/mnt")
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
		if e.Name == "data" {
			require.Equal(t, TypeDirectory, e.Info.Type)
		}
	}
	require.Contains(t, names, "data")
}

func TestMountFsCrossMountCopy(t *testing.T) {
	ctx := context.Background()
	root := New()
	require.NoError(t, root.Mkdir(ctx, "/mnt", true))
	a := New()
	b := New()

	mfs := NewMountFs(root)
	require.NoError(t, mfs.Mount("/mnt/a", a))
	require.NoError(t, mfs.Mount("/mnt/b", b))

	require.NoError(t, mfs.WriteFile(ctx, "/mnt/a/f.txt", []byte("x")))
	require.NoError(t, mfs.Copy(ctx, "/mnt/a/f.txt", "/mnt/b/f.txt"))

	got, err := b.ReadFile(ctx, "/f.txt")
	require.NoError(t, err)
	require.Equal(t, "x", string(got))

	// Source untouched by copy.
	_, err = a.ReadFile(ctx, "/f.txt")
	require.NoError(t, err)
}

func TestMountFsCrossMountRenameDegradesToCopyThenRemove(t *testing.T) {
	ctx := context.Background()
	root := New()
	require.NoError(t, root.Mkdir(ctx, "/mnt", true))
	a := New()
	b := New()

	mfs := NewMountFs(root)
	require.NoError(t, mfs.Mount("/mnt/a", a))
	require.NoError(t, mfs.Mount("/mnt/b", b))

	require.NoError(t, mfs.WriteFile(ctx, "/mnt/a/f.txt", []byte("moved")))
	require.NoError(t, mfs.Rename(ctx, "/mnt/a/f.txt", "/mnt/b/f.txt"))

	got, err := b.ReadFile(ctx, "/f.txt")
	require.NoError(t, err)
	require.Equal(t, "moved", string(got))

	_, err = a.ReadFile(ctx, "/f.txt")
	require.Error(t, err)
}

func TestMountFsUsageAggregatesAcrossMounts(t *testing.T) {
	ctx := context.Background()
	root := New()
	require.NoError(t, root.Mkdir(ctx, "/mnt", true))
	a := New()

	mfs := NewMountFs(root)
	require.NoError(t, mfs.Mount("/mnt/a", a))
	require.NoError(t, mfs.WriteFile(ctx, "/root-file.txt", []byte("12345")))
	require.NoError(t, mfs.WriteFile(ctx, "/mnt/a/mount-file.txt", []byte("123")))

	usage, err := mfs.Usage(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(8), usage.TotalBytes)
	require.Equal(t, int64(2), usage.FileCount)
}

func TestMountFsUnmount(t *testing.T) {
	ctx := context.Background()
	root := New()
	a := New()

	mfs := NewMountFs(root)
	require.NoError(t, mfs.Mount("/mnt", a))
	require.NoError(t, mfs.WriteFile(ctx, "/mnt/f.txt", []byte("x")))

	mfs.Unmount("/mnt")
	// /mnt now resolves to root, which has never heard of this path.
	_, err := mfs.ReadFile(ctx, "/mnt/f.txt")
	require.Error(t, err)
}
