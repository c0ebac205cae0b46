package vfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// TestMain checks for goroutine leaks left behind by modernc.org/sqlite's
// connection machinery, the way the teacher guards its own database/sql
// tests.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

func TestSqliteBackendSeedsAndRoundTrips(t *testing.T) {
	ctx := context.Background()
	b, err := NewSqliteBackend(ctx, ":memory:")
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Get(ctx, "/home/user")
	require.NoError(t, err)

	require.NoError(t, b.Set(ctx, "/tmp/f.txt", &Record{Type: TypeFile, Data: []byte("hi"), Mode: 0o644}))
	rec, err := b.Get(ctx, "/tmp/f.txt")
	require.NoError(t, err)
	require.Equal(t, "hi", string(rec.Data))

	names, err := b.List(ctx, "/tmp")
	require.NoError(t, err)
	require.Equal(t, []string{"f.txt"}, names)

	require.NoError(t, b.Delete(ctx, "/tmp/f.txt"))
	_, err = b.Get(ctx, "/tmp/f.txt")
	require.Error(t, err)
}

func TestSqliteBackendAsPosixFs(t *testing.T) {
	ctx := context.Background()
	b, err := NewSqliteBackend(ctx, ":memory:")
	require.NoError(t, err)
	defer b.Close()

	fs := NewPosixFs(b, DefaultLimits())
	require.NoError(t, fs.WriteFile(ctx, "/tmp/a.txt", []byte("persisted")))
	data, err := fs.ReadFile(ctx, "/tmp/a.txt")
	require.NoError(t, err)
	require.Equal(t, "persisted", string(data))
}
