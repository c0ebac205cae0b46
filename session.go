// Package bashkit is the host-facing facade for the sandboxed bash-
// compatible shell interpreter: a Session builder, Config, and the
// Error/ExecResult types a host actually imports, per spec.md §4.7/§6.
package bashkit

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/everruns/bashkit-sub001/internal/builtins"
	"github.com/everruns/bashkit-sub001/internal/capability"
	"github.com/everruns/bashkit-sub001/internal/eval"
	"github.com/everruns/bashkit-sub001/internal/telemetry"
	"github.com/everruns/bashkit-sub001/internal/vfs"
)

// ExecResult is what one exec() call returns: captured output and the
// final exit code, per spec.md §6.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Session is one sandboxed interpreter instance: its own filesystem,
// variables, cwd, and resource counters. Concurrent exec() calls on one
// Session are not supported (the evaluator holds exclusive state between
// suspension points, per spec.md §5); build one Session per concurrent
// caller.
type Session struct {
	id  string
	ev  *eval.Evaluator
	log *telemetry.Logger
}

// Builder constructs a Session. The zero value is not usable; start from
// NewBuilder.
type Builder struct {
	fs         vfs.FileSystem
	cfg        *Config
	env        map[string]string
	cwd        string
	http       capability.HTTPClient
	git        capability.GitClient
	gitEnabled bool
	python     capability.PythonRunner
	log        *telemetry.Logger
	registry   *builtins.Registry
}

// NewBuilder starts a Session builder over DefaultConfig(); call the
// fluent With* methods to override, then Build.
func NewBuilder() *Builder {
	return &Builder{
		cfg: DefaultConfig(),
		env: map[string]string{
			"HOME": "/home/user",
			"PWD":  "/home/user",
			"IFS":  " \t\n",
		},
		cwd: "/home/user",
	}
}

// WithConfig replaces the builder's Config wholesale.
func (b *Builder) WithConfig(cfg *Config) *Builder {
	b.cfg = cfg
	return b
}

// WithFS supplies a custom FileSystem implementation (bridging to a host
// store); the default is a fresh in-memory filesystem seeded with spec.md
// §6's initial directory layout (see seedDefaultFS).
func (b *Builder) WithFS(fs vfs.FileSystem) *Builder {
	b.fs = fs
	return b
}

// WithEnv sets one environment variable in the Session's initial scope.
func (b *Builder) WithEnv(key, value string) *Builder {
	b.env[key] = value
	return b
}

// WithCwd overrides the Session's starting working directory (must exist
// once the filesystem is built, or exec's first command will fail to
// resolve it).
func (b *Builder) WithCwd(cwd string) *Builder {
	b.cwd = cwd
	return b
}

// WithHTTP enables the curl/wget builtins against an allowlisted client.
func (b *Builder) WithHTTP(opts capability.HTTPOptions) *Builder {
	b.http = capability.NewAllowlistedHTTP(opts)
	return b
}

// WithGit enables the git builtin over the Session's own filesystem. The
// concrete capability.VfsGit is constructed in Build, once the Session's
// filesystem is finalized, so WithGit just raises a flag here.
func (b *Builder) WithGit() *Builder {
	b.gitEnabled = true
	return b
}

// WithGitClient overrides the git capability with a caller-supplied
// implementation instead of the default capability.VfsGit.
func (b *Builder) WithGitClient(g capability.GitClient) *Builder {
	b.git = g
	return b
}

// WithPython enables the python/python3 builtins under an embedded,
// import-allowlisted interpreter.
func (b *Builder) WithPython(allowedImports ...string) *Builder {
	b.python = capability.NewYaegiPython(allowedImports)
	return b
}

// WithLogger attaches a telemetry.Logger; the default is a no-op logger
// unless Config.Logging.DebugMode is set, in which case Build constructs
// one at the configured level.
func (b *Builder) WithLogger(log *telemetry.Logger) *Builder {
	b.log = log
	return b
}

// WithRegistry overrides the builtin registry (mainly for tests that need
// to stub or omit specific builtins); the default is
// builtins.DefaultRegistry().
func (b *Builder) WithRegistry(r *builtins.Registry) *Builder {
	b.registry = r
	return b
}

// Build finalizes the Session: validates Config, seeds the filesystem's
// initial layout if none was supplied, and wires every capability.
func (b *Builder) Build() (*Session, error) {
	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}

	fs := b.fs
	if fs == nil {
		var err error
		fs, err = seedDefaultFS(b.cfg.FsLimits)
		if err != nil {
			return nil, classifyError(err)
		}
	}

	log := b.log
	if log == nil {
		if b.cfg.Logging.DebugMode {
			lvl, err := levelFromString(b.cfg.Logging.Level)
			if err != nil {
				return nil, &Error{Kind: ErrInternal, Msg: err.Error(), Pos: -1, Err: err}
			}
			built, err := telemetry.NewAtLevel(lvl)
			if err != nil {
				return nil, &Error{Kind: ErrInternal, Msg: err.Error(), Pos: -1, Err: err}
			}
			log = built
		} else {
			log = telemetry.NewNop()
		}
	}

	git := b.git
	if git == nil {
		if b.gitEnabled {
			git = capability.NewVfsGit(fs, nil)
		} else {
			git = capability.NoGit()
		}
	}

	ev := eval.New(eval.Options{
		FS:       fs,
		Limits:   b.cfg.ExecutionLimits,
		HTTP:     b.http,
		Git:      git,
		Python:   b.python,
		Log:      log,
		Registry: b.registry,
	}, b.env, b.cwd)

	return &Session{id: uuid.NewString(), ev: ev, log: log}, nil
}

// seedDefaultFS builds an in-memory filesystem with the directories and
// /dev/null that spec.md §6 says a fresh Session must already contain.
func seedDefaultFS(l vfs.Limits) (vfs.FileSystem, error) {
	fs := vfs.NewPosixFs(vfs.NewMemBackend(), l)
	ctx := context.Background()
	for _, dir := range []string{"/tmp", "/home", "/home/user", "/dev"} {
		if err := fs.Mkdir(ctx, dir, true); err != nil {
			return nil, fmt.Errorf("bashkit: seeding %s: %w", dir, err)
		}
	}
	if err := fs.WriteFile(ctx, "/dev/null", nil); err != nil {
		return nil, fmt.Errorf("bashkit: seeding /dev/null: %w", err)
	}
	return fs, nil
}

func levelFromString(s string) (telemetry.Level, error) {
	switch s {
	case "debug":
		return telemetry.LevelDebug, nil
	case "info", "":
		return telemetry.LevelInfo, nil
	case "warn":
		return telemetry.LevelWarn, nil
	case "error":
		return telemetry.LevelError, nil
	default:
		return 0, fmt.Errorf("bashkit: unknown log level %q", s)
	}
}

// ID is the Session's unique identifier, generated once in Build.
func (s *Session) ID() string { return s.id }

// Exec resets per-call counters, parses, and evaluates script, per
// spec.md §4.7's exec contract. Concurrent calls on one Session are not
// safe; the caller owns serializing access.
func (s *Session) Exec(ctx context.Context, script string) (ExecResult, error) {
	s.ev.Reset()
	res, err := s.ev.Run(ctx, script)
	if err != nil {
		return ExecResult{Stdout: res.Stdout, Stderr: res.Stderr}, classifyError(err)
	}
	return ExecResult{Stdout: res.Stdout, Stderr: res.Stderr, ExitCode: res.ExitCode}, nil
}

// ResetCounters rolls the Session's resource counters and parser fuel
// over without touching variables, cwd, or the filesystem, mirroring
// spec.md §4.7's reset_counters accessor for hosts that want to reuse a
// Session across independently-budgeted calls without a full Exec.
func (s *Session) ResetCounters() { s.ev.Reset() }

// Cwd returns the Session's current working directory.
func (s *Session) Cwd() string { return s.ev.Cwd() }

// Var looks up a variable's current value in the Session's scope.
func (s *Session) Var(name string) (string, bool) { return s.ev.Vars().Get(name) }

// Vars returns every currently-defined variable name.
func (s *Session) Vars() []string { return s.ev.Vars().Names() }
