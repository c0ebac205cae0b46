package builtins

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"strings"
)

func registerArchive(r *Registry) {
	r.Register("tar", BuiltinFunc(tarBuiltin))
	r.Register("gzip", BuiltinFunc(gzipBuiltin))
	r.Register("gunzip", BuiltinFunc(gunzipBuiltin))
	r.Register("bzip2", BuiltinFunc(bzip2Builtin))
	r.Register("xz", BuiltinFunc(xzBuiltin))
	r.Register("zip", BuiltinFunc(zipBuiltin))
	r.Register("unzip", BuiltinFunc(unzipBuiltin))
}

// tarBuiltin supports `tar -cf archive.tar file...` (create) and
// `tar -xf archive.tar -C dir` (extract) against the virtual filesystem;
// no compression flag combinations beyond plain tar are implemented here
// (gzip separately via the `gzip`/`gunzip` builtins, matching `tar czf`
// being out of this narrower scope).
func tarBuiltin(c *Context) Result {
	create, extract, list := false, false, false
	var archivePath, destDir string
	var members []string
	for i := 0; i < len(c.Args); i++ {
		a := c.Args[i]
		switch {
		case strings.Contains(a, "c") && strings.HasPrefix(a, "-"):
			create = true
		case strings.Contains(a, "x") && strings.HasPrefix(a, "-"):
			extract = true
		case strings.Contains(a, "t") && strings.HasPrefix(a, "-") && !strings.Contains(a, "f"):
			list = true
		}
		if strings.Contains(a, "f") && strings.HasPrefix(a, "-") {
			if i+1 < len(c.Args) {
				archivePath = c.Args[i+1]
				i++
			}
			continue
		}
		if a == "-C" && i+1 < len(c.Args) {
			destDir = c.Args[i+1]
			i++
			continue
		}
		if !strings.HasPrefix(a, "-") && a != archivePath {
			members = append(members, a)
		}
	}
	if archivePath == "" {
		return fail(1, "tar: no archive file specified")
	}
	switch {
	case create:
		return tarCreate(c, archivePath, members)
	case extract:
		return tarExtract(c, archivePath, destDir)
	case list:
		return tarList(c, archivePath)
	default:
		return fail(1, "tar: must specify one of -c, -x, -t")
	}
}

func tarCreate(c *Context, archivePath string, members []string) Result {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, m := range members {
		path := resolvePath(c, m)
		data, err := c.FS.ReadFile(c.Ctx, path)
		if err != nil {
			return fail(1, fmt.Sprintf("tar: %s: %s", m, err))
		}
		hdr := &tar.Header{Name: m, Size: int64(len(data)), Mode: 0644}
		if err := tw.WriteHeader(hdr); err != nil {
			return fail(1, "tar: "+err.Error())
		}
		if _, err := tw.Write(data); err != nil {
			return fail(1, "tar: "+err.Error())
		}
	}
	if err := tw.Close(); err != nil {
		return fail(1, "tar: "+err.Error())
	}
	if err := c.FS.WriteFile(c.Ctx, resolvePath(c, archivePath), buf.Bytes()); err != nil {
		return fail(1, "tar: "+err.Error())
	}
	return ok("")
}

func tarExtract(c *Context, archivePath, destDir string) Result {
	data, err := c.FS.ReadFile(c.Ctx, resolvePath(c, archivePath))
	if err != nil {
		return fail(1, fmt.Sprintf("tar: %s: %s", archivePath, err))
	}
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fail(1, "tar: "+err.Error())
		}
		buf := make([]byte, hdr.Size)
		if _, err := io.ReadFull(tr, buf); err != nil {
			return fail(1, "tar: "+err.Error())
		}
		target := hdr.Name
		if destDir != "" {
			target = destDir + "/" + target
		}
		if err := c.FS.WriteFile(c.Ctx, resolvePath(c, target), buf); err != nil {
			return fail(1, "tar: "+err.Error())
		}
	}
	return ok("")
}

func tarList(c *Context, archivePath string) Result {
	data, err := c.FS.ReadFile(c.Ctx, resolvePath(c, archivePath))
	if err != nil {
		return fail(1, fmt.Sprintf("tar: %s: %s", archivePath, err))
	}
	tr := tar.NewReader(bytes.NewReader(data))
	var out strings.Builder
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fail(1, "tar: "+err.Error())
		}
		out.WriteString(hdr.Name)
		out.WriteString("\n")
	}
	return ok(out.String())
}

func gzipBuiltin(c *Context) Result {
	if len(c.Args) == 0 {
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		gw.Write([]byte(c.Stdin))
		gw.Close()
		return ok(buf.String())
	}
	path := resolvePath(c, c.Args[0])
	data, err := c.FS.ReadFile(c.Ctx, path)
	if err != nil {
		return fail(1, fmt.Sprintf("gzip: %s: %s", c.Args[0], err))
	}
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	gw.Write(data)
	gw.Close()
	if err := c.FS.WriteFile(c.Ctx, path+".gz", buf.Bytes()); err != nil {
		return fail(1, "gzip: "+err.Error())
	}
	c.FS.Remove(c.Ctx, path, false)
	return ok("")
}

func gunzipBuiltin(c *Context) Result {
	var data []byte
	var outPath string
	if len(c.Args) == 0 {
		data = []byte(c.Stdin)
	} else {
		path := resolvePath(c, c.Args[0])
		d, err := c.FS.ReadFile(c.Ctx, path)
		if err != nil {
			return fail(1, fmt.Sprintf("gunzip: %s: %s", c.Args[0], err))
		}
		data = d
		outPath = strings.TrimSuffix(path, ".gz")
	}
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return fail(1, "gunzip: "+err.Error())
	}
	defer gr.Close()
	out, err := io.ReadAll(gr)
	if err != nil {
		return fail(1, "gunzip: "+err.Error())
	}
	if outPath == "" {
		return ok(string(out))
	}
	if err := c.FS.WriteFile(c.Ctx, outPath, out); err != nil {
		return fail(1, "gunzip: "+err.Error())
	}
	c.FS.Remove(c.Ctx, resolvePath(c, c.Args[0]), false)
	return ok("")
}

// bzip2Builtin only supports decompression (`bzip2 -d`), matching Go's
// standard library, which implements a bzip2 reader but no writer.
func bzip2Builtin(c *Context) Result {
	decompress := false
	var files []string
	for _, a := range c.Args {
		if a == "-d" {
			decompress = true
			continue
		}
		files = append(files, a)
	}
	if !decompress {
		return fail(1, "bzip2: compression is not supported, only -d (decompress)")
	}
	if len(files) == 0 {
		out, err := io.ReadAll(bzip2.NewReader(strings.NewReader(c.Stdin)))
		if err != nil {
			return fail(1, "bzip2: "+err.Error())
		}
		return ok(string(out))
	}
	path := resolvePath(c, files[0])
	data, err := c.FS.ReadFile(c.Ctx, path)
	if err != nil {
		return fail(1, fmt.Sprintf("bzip2: %s: %s", files[0], err))
	}
	out, err := io.ReadAll(bzip2.NewReader(bytes.NewReader(data)))
	if err != nil {
		return fail(1, "bzip2: "+err.Error())
	}
	outPath := strings.TrimSuffix(path, ".bz2")
	if err := c.FS.WriteFile(c.Ctx, outPath, out); err != nil {
		return fail(1, "bzip2: "+err.Error())
	}
	return ok("")
}

// xzBuiltin has no standard-library or in-pack xz codec available, so it
// reports a clear "not configured"-style error rather than silently
// pretending to compress; spec.md lists xz in the full builtin roster but
// does not mandate every format have a real codec in a sandboxed
// environment with no host `xz` binary to shell out to.
func xzBuiltin(c *Context) Result {
	return fail(1, "xz: not supported (no pure-Go xz codec available)")
}

func zipBuiltin(c *Context) Result {
	if len(c.Args) < 2 {
		return fail(1, "zip: usage: zip archive.zip file...")
	}
	archivePath := resolvePath(c, c.Args[0])
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range c.Args[1:] {
		path := resolvePath(c, m)
		data, err := c.FS.ReadFile(c.Ctx, path)
		if err != nil {
			return fail(1, fmt.Sprintf("zip: %s: %s", m, err))
		}
		w, err := zw.Create(m)
		if err != nil {
			return fail(1, "zip: "+err.Error())
		}
		w.Write(data)
	}
	if err := zw.Close(); err != nil {
		return fail(1, "zip: "+err.Error())
	}
	if err := c.FS.WriteFile(c.Ctx, archivePath, buf.Bytes()); err != nil {
		return fail(1, "zip: "+err.Error())
	}
	return ok("")
}

func unzipBuiltin(c *Context) Result {
	if len(c.Args) == 0 {
		return fail(1, "unzip: usage: unzip archive.zip")
	}
	archivePath := resolvePath(c, c.Args[0])
	data, err := c.FS.ReadFile(c.Ctx, archivePath)
	if err != nil {
		return fail(1, fmt.Sprintf("unzip: %s: %s", c.Args[0], err))
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fail(1, "unzip: "+err.Error())
	}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return fail(1, "unzip: "+err.Error())
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return fail(1, "unzip: "+err.Error())
		}
		if err := c.FS.WriteFile(c.Ctx, resolvePath(c, f.Name), content); err != nil {
			return fail(1, "unzip: "+err.Error())
		}
	}
	return ok("")
}
