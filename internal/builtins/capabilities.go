package builtins

import (
	"fmt"
	"strings"

	"github.com/everruns/bashkit-sub001/internal/capability"
)

func registerCapabilities(r *Registry) {
	r.Register("curl", BuiltinFunc(curlBuiltin))
	r.Register("wget", BuiltinFunc(wgetBuiltin))
	r.Register("git", BuiltinFunc(gitBuiltin))
	r.Register("python", BuiltinFunc(pythonBuiltin))
	r.Register("python3", BuiltinFunc(pythonBuiltin))
}

func httpRequest(c *Context) Result {
	if len(c.Args) == 0 {
		return fail(1, "curl: no URL specified")
	}
	method := capability.MethodGET
	var url string
	var body []byte
	headers := map[string]string{}
	for i := 0; i < len(c.Args); i++ {
		switch c.Args[i] {
		case "-X", "--request":
			if i+1 < len(c.Args) {
				method = capability.Method(strings.ToUpper(c.Args[i+1]))
				i++
			}
		case "-d", "--data":
			if i+1 < len(c.Args) {
				body = []byte(c.Args[i+1])
				if method == capability.MethodGET {
					method = capability.MethodPOST
				}
				i++
			}
		case "-H", "--header":
			if i+1 < len(c.Args) {
				k, v, found := strings.Cut(c.Args[i+1], ":")
				if found {
					headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
				}
				i++
			}
		default:
			if !strings.HasPrefix(c.Args[i], "-") {
				url = c.Args[i]
			}
		}
	}
	if url == "" {
		return fail(1, "curl: no URL specified")
	}
	resp, err := c.HTTP.Do(c.Ctx, &capability.Request{Method: method, URL: url, Headers: headers, Body: body})
	if err != nil {
		return fail(1, "curl: "+err.Error())
	}
	return Result{Stdout: string(resp.Body), Code: boolToCode(resp.StatusCode < 400)}
}

func curlBuiltin(c *Context) Result { return httpRequest(c) }
func wgetBuiltin(c *Context) Result {
	r := httpRequest(c)
	return r
}

func gitBuiltin(c *Context) Result {
	if len(c.Args) == 0 {
		return fail(1, "git: missing subcommand")
	}
	sub := c.Args[0]
	rest := c.Args[1:]
	var out string
	var err error
	switch sub {
	case "status":
		out, err = c.Git.Status(c.Ctx)
	case "log":
		out, err = c.Git.Log(c.Ctx, 20)
	case "diff":
		path := ""
		if len(rest) > 0 {
			path = rest[0]
		}
		out, err = c.Git.Diff(c.Ctx, path)
	case "add":
		err = c.Git.Add(c.Ctx, rest)
	case "commit":
		message := ""
		for i := 0; i < len(rest); i++ {
			if rest[i] == "-m" && i+1 < len(rest) {
				message = rest[i+1]
			}
		}
		out, err = c.Git.Commit(c.Ctx, message)
	default:
		return fail(1, fmt.Sprintf("git: unsupported subcommand %q", sub))
	}
	if err != nil {
		return fail(1, "git: "+err.Error())
	}
	return ok(out)
}

func pythonBuiltin(c *Context) Result {
	source := c.Stdin
	if len(c.Args) > 0 {
		data, err := c.FS.ReadFile(c.Ctx, resolvePath(c, c.Args[0]))
		if err != nil {
			return fail(1, fmt.Sprintf("python: %s: no such file or directory", c.Args[0]))
		}
		source = string(data)
	}
	stdout, _, err := c.Python.Run(c.Ctx, source, c.Stdin)
	if err != nil {
		return fail(1, "python: "+err.Error())
	}
	return ok(stdout)
}
