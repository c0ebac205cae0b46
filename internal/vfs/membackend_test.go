package vfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemBackendSeeds(t *testing.T) {
	b := NewMemBackend()
	ctx := context.Background()

	for _, p := range []string{"/", "/tmp", "/home", "/home/user", "/dev", "/dev/null"} {
		_, err := b.Get(ctx, p)
		require.NoError(t, err, "seed path %s should exist", p)
	}

	names, err := b.List(ctx, "/")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"tmp", "home", "dev"}, names)
}

func TestMemBackendSetGetDelete(t *testing.T) {
	b := NewMemBackend()
	ctx := context.Background()

	err := b.Set(ctx, "/tmp/a", &Record{Type: TypeFile, Data: []byte("hi")})
	require.NoError(t, err)

	rec, err := b.Get(ctx, "/tmp/a")
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), rec.Data)

	names, err := b.List(ctx, "/tmp")
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, names)

	require.NoError(t, b.Delete(ctx, "/tmp/a"))
	_, err = b.Get(ctx, "/tmp/a")
	require.Error(t, err)

	names, err = b.List(ctx, "/tmp")
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestMemBackendWalk(t *testing.T) {
	b := NewMemBackend()
	ctx := context.Background()
	require.NoError(t, b.Set(ctx, "/tmp/a", &Record{Type: TypeFile, Data: []byte("12345")}))

	records, err := b.Walk(ctx)
	require.NoError(t, err)
	rec, ok := records["/tmp/a"]
	require.True(t, ok)
	require.Equal(t, 5, len(rec.Data))
}
