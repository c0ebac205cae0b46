package builtins

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/everruns/bashkit-sub001/internal/vfs"
)

func registerFiles(r *Registry) {
	r.Register("cat", BuiltinFunc(catBuiltin))
	r.Register("ls", BuiltinFunc(lsBuiltin))
	r.Register("rm", BuiltinFunc(rmBuiltin))
	r.Register("mv", BuiltinFunc(mvBuiltin))
	r.Register("cp", BuiltinFunc(cpBuiltin))
	r.Register("ln", BuiltinFunc(lnBuiltin))
	r.Register("mkdir", BuiltinFunc(mkdirBuiltin))
	r.Register("rmdir", BuiltinFunc(rmdirBuiltin))
	r.Register("touch", BuiltinFunc(touchBuiltin))
	r.Register("chmod", BuiltinFunc(chmodBuiltin))
	r.Register("chown", BuiltinFunc(func(c *Context) Result { return ok("") })) // no user/group model
	r.Register("find", BuiltinFunc(findBuiltin))
}

func resolvePath(c *Context, p string) string {
	if strings.HasPrefix(p, "/") {
		norm, _ := vfs.Normalize(p)
		return norm
	}
	joined := p
	if c.Cwd != nil {
		joined = vfs.Join(*c.Cwd, p)
	}
	norm, _ := vfs.Normalize(joined)
	return norm
}

func catBuiltin(c *Context) Result {
	if len(c.Args) == 0 {
		if c.HasStdin {
			return ok(c.Stdin)
		}
		return ok("")
	}
	var out strings.Builder
	code := 0
	for _, a := range c.Args {
		data, err := c.FS.ReadFile(c.Ctx, resolvePath(c, a))
		if err != nil {
			out.WriteString(fmt.Sprintf("cat: %s: no such file or directory\n", a))
			code = 1
			continue
		}
		out.Write(data)
	}
	return Result{Stdout: out.String(), Code: code}
}

func lsBuiltin(c *Context) Result {
	long := false
	all := false
	var targets []string
	for _, a := range c.Args {
		switch {
		case a == "-l":
			long = true
		case a == "-a":
			all = true
		case a == "-la" || a == "-al":
			long, all = true, true
		case strings.HasPrefix(a, "-"):
			// ignore unknown flags
		default:
			targets = append(targets, a)
		}
	}
	if len(targets) == 0 {
		targets = []string{"."}
	}
	var out strings.Builder
	for i, t := range targets {
		path := resolvePath(c, t)
		info, err := c.FS.Stat(c.Ctx, path)
		if err != nil {
			out.WriteString(fmt.Sprintf("ls: %s: no such file or directory\n", t))
			continue
		}
		if info.Type != vfs.TypeDirectory {
			writeLsEntry(&out, t, info, long)
			continue
		}
		entries, err := c.FS.ReadDir(c.Ctx, path)
		if err != nil {
			out.WriteString(fmt.Sprintf("ls: %s: %s\n", t, err))
			continue
		}
		if len(targets) > 1 {
			if i > 0 {
				out.WriteString("\n")
			}
			fmt.Fprintf(&out, "%s:\n", t)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		for _, e := range entries {
			if !all && strings.HasPrefix(e.Name, ".") {
				continue
			}
			writeLsEntry(&out, e.Name, e.Info, long)
		}
	}
	return ok(out.String())
}

func writeLsEntry(out *strings.Builder, name string, info vfs.Info, long bool) {
	if !long {
		out.WriteString(name)
		out.WriteString("\n")
		return
	}
	kind := "-"
	if info.Type == vfs.TypeDirectory {
		kind = "d"
	} else if info.Type == vfs.TypeSymlink {
		kind = "l"
	}
	fmt.Fprintf(out, "%s%s %10d %s %s\n", kind, modeString(info.Mode), info.Size,
		info.ModTime.Format(time.RFC3339), name)
}

func modeString(mode uint32) string {
	const bits = "rwxrwxrwx"
	var b strings.Builder
	for i := 0; i < 9; i++ {
		if mode&(1<<(8-i)) != 0 {
			b.WriteByte(bits[i])
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

func rmBuiltin(c *Context) Result {
	recursive := false
	force := false
	var targets []string
	for _, a := range c.Args {
		switch {
		case a == "-r" || a == "-rf" || a == "-fr" || a == "-R":
			recursive = true
			if a == "-rf" || a == "-fr" {
				force = true
			}
		case a == "-f":
			force = true
		default:
			targets = append(targets, a)
		}
	}
	code := 0
	for _, t := range targets {
		if err := c.FS.Remove(c.Ctx, resolvePath(c, t), recursive); err != nil {
			if force {
				continue
			}
			return fail(1, fmt.Sprintf("rm: %s: %s", t, err))
		}
	}
	return Result{Code: code}
}

func mvBuiltin(c *Context) Result {
	if len(c.Args) < 2 {
		return fail(1, "mv: missing destination file operand")
	}
	src, dst := resolvePath(c, c.Args[0]), resolvePath(c, c.Args[len(c.Args)-1])
	if err := c.FS.Rename(c.Ctx, src, dst); err != nil {
		return fail(1, fmt.Sprintf("mv: %s", err))
	}
	return ok("")
}

func cpBuiltin(c *Context) Result {
	args := c.Args
	recursive := false
	var rest []string
	for _, a := range args {
		if a == "-r" || a == "-R" {
			recursive = true
			continue
		}
		rest = append(rest, a)
	}
	_ = recursive
	if len(rest) < 2 {
		return fail(1, "cp: missing destination file operand")
	}
	src, dst := resolvePath(c, rest[0]), resolvePath(c, rest[len(rest)-1])
	if err := c.FS.Copy(c.Ctx, src, dst); err != nil {
		return fail(1, fmt.Sprintf("cp: %s", err))
	}
	return ok("")
}

func lnBuiltin(c *Context) Result {
	symbolic := false
	var rest []string
	for _, a := range c.Args {
		if a == "-s" {
			symbolic = true
			continue
		}
		rest = append(rest, a)
	}
	if len(rest) < 2 {
		return fail(1, "ln: missing destination file operand")
	}
	target, link := rest[0], resolvePath(c, rest[1])
	if !symbolic {
		return fail(1, "ln: hard links are not supported; use -s")
	}
	if err := c.FS.Symlink(c.Ctx, target, link); err != nil {
		return fail(1, fmt.Sprintf("ln: %s", err))
	}
	return ok("")
}

func mkdirBuiltin(c *Context) Result {
	recursive := false
	var targets []string
	for _, a := range c.Args {
		if a == "-p" {
			recursive = true
			continue
		}
		targets = append(targets, a)
	}
	code := 0
	for _, t := range targets {
		if err := c.FS.Mkdir(c.Ctx, resolvePath(c, t), recursive); err != nil {
			code = 1
		}
	}
	return Result{Code: code}
}

func rmdirBuiltin(c *Context) Result {
	code := 0
	for _, t := range c.Args {
		if err := c.FS.Remove(c.Ctx, resolvePath(c, t), false); err != nil {
			code = 1
		}
	}
	return Result{Code: code}
}

func touchBuiltin(c *Context) Result {
	for _, t := range c.Args {
		path := resolvePath(c, t)
		if exists, _ := c.FS.Exists(c.Ctx, path); !exists {
			if err := c.FS.WriteFile(c.Ctx, path, nil); err != nil {
				return fail(1, fmt.Sprintf("touch: %s: %s", t, err))
			}
			continue
		}
		data, err := c.FS.ReadFile(c.Ctx, path)
		if err == nil {
			c.FS.WriteFile(c.Ctx, path, data)
		}
	}
	return ok("")
}

func chmodBuiltin(c *Context) Result {
	if len(c.Args) < 2 {
		return fail(1, "chmod: missing operand")
	}
	mode, err := strconv.ParseUint(c.Args[0], 8, 32)
	if err != nil {
		return fail(1, "chmod: invalid mode")
	}
	for _, t := range c.Args[1:] {
		if err := c.FS.Chmod(c.Ctx, resolvePath(c, t), uint32(mode)); err != nil {
			return fail(1, fmt.Sprintf("chmod: %s: %s", t, err))
		}
	}
	return ok("")
}

func findBuiltin(c *Context) Result {
	root := "."
	if len(c.Args) > 0 && !strings.HasPrefix(c.Args[0], "-") {
		root = c.Args[0]
	}
	nameGlob := ""
	typeFilter := ""
	for i := 0; i < len(c.Args); i++ {
		switch c.Args[i] {
		case "-name":
			if i+1 < len(c.Args) {
				nameGlob = c.Args[i+1]
			}
		case "-type":
			if i+1 < len(c.Args) {
				typeFilter = c.Args[i+1]
			}
		}
	}
	rootPath := resolvePath(c, root)
	var out strings.Builder
	var walk func(path string) error
	walk = func(path string) error {
		info, err := c.FS.Stat(c.Ctx, path)
		if err != nil {
			return err
		}
		if matchFindFilters(info, path, nameGlob, typeFilter) {
			out.WriteString(path)
			out.WriteString("\n")
		}
		if info.Type != vfs.TypeDirectory {
			return nil
		}
		entries, err := c.FS.ReadDir(c.Ctx, path)
		if err != nil {
			return err
		}
		for _, e := range entries {
			walk(vfs.Join(path, e.Name))
		}
		return nil
	}
	if err := walk(rootPath); err != nil {
		return fail(1, fmt.Sprintf("find: %s: %s", root, err))
	}
	return ok(out.String())
}

func matchFindFilters(info vfs.Info, path, nameGlob, typeFilter string) bool {
	if nameGlob != "" {
		matched, _ := globMatch(nameGlob, vfs.Base(path))
		if !matched {
			return false
		}
	}
	if typeFilter != "" {
		want := vfs.TypeFile
		switch typeFilter {
		case "d":
			want = vfs.TypeDirectory
		case "l":
			want = vfs.TypeSymlink
		}
		if info.Type != want {
			return false
		}
	}
	return true
}
