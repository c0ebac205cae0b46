package capability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/everruns/bashkit-sub001/internal/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotConfiguredDefaultsError(t *testing.T) {
	_, err := NoHTTP().Do(context.Background(), &Request{Method: MethodGET, URL: "http://x"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NoGit().Status(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, _, err = NoPython().Run(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestAllowRuleMatching(t *testing.T) {
	exact := AllowRule{Host: "api.example.com"}
	assert.True(t, exact.matches("https://api.example.com/v1/x"))
	assert.False(t, exact.matches("https://evil.com/x"))

	suffix := AllowRule{HostSuffix: ".example.com"}
	assert.True(t, suffix.matches("https://sub.example.com/y"))
	assert.False(t, suffix.matches("https://example.com.evil.net/y"))

	prefix := AllowRule{Prefix: "https://api.example.com/v1/"}
	assert.True(t, prefix.matches("https://api.example.com/v1/items"))
	assert.False(t, prefix.matches("https://api.example.com/v2/items"))
}

func TestAllowlistedHTTPRejectsUnlisted(t *testing.T) {
	c := NewAllowlistedHTTP(DefaultHTTPOptions(AllowRule{Host: "allowed.example.com"}))
	_, err := c.Do(context.Background(), &Request{Method: MethodGET, URL: "https://blocked.example.com"})
	require.Error(t, err)
}

func TestAllowlistedHTTPAllowsAndCapsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	opts := DefaultHTTPOptions(AllowRule{Prefix: srv.URL})
	opts.MaxBodyBytes = 5
	c := NewAllowlistedHTTP(opts)

	resp, err := c.Do(context.Background(), &Request{Method: MethodGET, URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.True(t, resp.Truncated)
	assert.Len(t, resp.Body, 5)
}

func TestVfsGitAddCommitLog(t *testing.T) {
	fs := vfs.New()
	ctx := context.Background()
	require.NoError(t, fs.WriteFile(ctx, "/a.txt", []byte("hello")))

	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := NewVfsGit(fs, func() time.Time { return fixed })

	st, err := g.Status(ctx)
	require.NoError(t, err)
	assert.Contains(t, st, "clean")

	require.NoError(t, g.Add(ctx, []string{"/a.txt"}))
	st, err = g.Status(ctx)
	require.NoError(t, err)
	assert.Contains(t, st, "/a.txt")

	out, err := g.Commit(ctx, "initial commit")
	require.NoError(t, err)
	assert.Contains(t, out, "commit 1")

	logOut, err := g.Log(ctx, 10)
	require.NoError(t, err)
	assert.Contains(t, logOut, "initial commit")
}

func TestYaegiPythonRejectsForbiddenImport(t *testing.T) {
	py := NewYaegiPython(nil)
	_, _, err := py.Run(context.Background(), `
import (
	"os/exec"
)
func Run(stdin string) (string, error) { return "", nil }
`, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forbidden imports")
}

func TestYaegiPythonRunsAllowedSnippet(t *testing.T) {
	py := NewYaegiPython(nil)
	out, _, err := py.Run(context.Background(), `
import "strings"
func Run(stdin string) (string, error) {
	return strings.ToUpper(stdin), nil
}
`, "hi")
	require.NoError(t, err)
	assert.Equal(t, "HI", out)
}
