package vfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOverlayReadsThroughToLower(t *testing.T) {
	lower := New()
	ctx := context.Background()
	require.NoError(t, lower.WriteFile(ctx, "/tmp/base.txt", []byte("from-lower")))

	ov := NewOverlay(lower, New())
	data, err := ov.ReadFile(ctx, "/tmp/base.txt")
	require.NoError(t, err)
	require.Equal(t, "from-lower", string(data))
}

func TestOverlayWriteMaterializesInUpper(t *testing.T) {
	lower := New()
	upper := New()
	ctx := context.Background()
	require.NoError(t, lower.WriteFile(ctx, "/tmp/base.txt", []byte("from-lower")))

	ov := NewOverlay(lower, upper)
	require.NoError(t, ov.WriteFile(ctx, "/tmp/base.txt", []byte("from-upper")))

	data, err := ov.ReadFile(ctx, "/tmp/base.txt")
	require.NoError(t, err)
	require.Equal(t, "from-upper", string(data))

	// Lower is untouched.
	lowerData, err := lower.ReadFile(ctx, "/tmp/base.txt")
	require.NoError(t, err)
	require.Equal(t, "from-lower", string(lowerData))
}

func TestOverlayRemoveOfLowerOnlyFileSetsWhiteout(t *testing.T) {
	lower := New()
	ctx := context.Background()
	require.NoError(t, lower.WriteFile(ctx, "/tmp/only-lower.txt", []byte("x")))

	ov := NewOverlay(lower, New())
	require.NoError(t, ov.Remove(ctx, "/tmp/only-lower.txt", false))

	_, err := ov.Stat(ctx, "/tmp/only-lower.txt")
	require.Error(t, err)
	require.True(t, isNotFound(err))

	// Lower itself still has it; the whiteout only hides it at the overlay.
	_, err = lower.Stat(ctx, "/tmp/only-lower.txt")
	require.NoError(t, err)
}

func TestOverlayWriteClearsWhiteout(t *testing.T) {
	lower := New()
	ctx := context.Background()
	require.NoError(t, lower.WriteFile(ctx, "/tmp/f.txt", []byte("x")))

	ov := NewOverlay(lower, New())
	require.NoError(t, ov.Remove(ctx, "/tmp/f.txt", false))
	require.NoError(t, ov.WriteFile(ctx, "/tmp/f.txt", []byte("new")))

	data, err := ov.ReadFile(ctx, "/tmp/f.txt")
	require.NoError(t, err)
	require.Equal(t, "new", string(data))
}

func TestOverlayAppendCopiesDownFromLowerFirst(t *testing.T) {
	lower := New()
	ctx := context.Background()
	require.NoError(t, lower.WriteFile(ctx, "/tmp/log.txt", []byte("base-")))

	ov := NewOverlay(lower, New())
	require.NoError(t, ov.AppendFile(ctx, "/tmp/log.txt", []byte("appended")))

	data, err := ov.ReadFile(ctx, "/tmp/log.txt")
	require.NoError(t, err)
	require.Equal(t, "base-appended", string(data))

	// Lower remains unaffected by the copy-up.
	lowerData, err := lower.ReadFile(ctx, "/tmp/log.txt")
	require.NoError(t, err)
	require.Equal(t, "base-", string(lowerData))
}

func TestOverlayReadDirMergesAndExcludesWhiteouts(t *testing.T) {
	lower := New()
	upper := New()
	ctx := context.Background()
	require.NoError(t, lower.WriteFile(ctx, "/tmp/a.txt", []byte("1")))
	require.NoError(t, lower.WriteFile(ctx, "/tmp/b.txt", []byte("2")))
	require.NoError(t, upper.WriteFile(ctx, "/tmp/c.txt", []byte("3")))

	ov := NewOverlay(lower, upper)
	require.NoError(t, ov.Remove(ctx, "/tmp/b.txt", false))

	entries, err := ov.ReadDir(ctx, "/tmp")
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	require.ElementsMatch(t, []string{"a.txt", "c.txt"}, names)
}

func TestOverlayUpperOverridesLowerOnCollision(t *testing.T) {
	lower := New()
	upper := New()
	ctx := context.Background()
	require.NoError(t, lower.WriteFile(ctx, "/tmp/a.txt", []byte("lower")))
	require.NoError(t, upper.WriteFile(ctx, "/tmp/a.txt", []byte("upper")))

	ov := NewOverlay(lower, upper)
	entries, err := ov.ReadDir(ctx, "/tmp")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(len("upper")), entries[0].Info.Size)
}
