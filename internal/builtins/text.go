package builtins

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

func registerText(r *Registry) {
	r.Register("grep", BuiltinFunc(grepBuiltin))
	r.Register("sed", BuiltinFunc(sedBuiltin))
	r.Register("awk", BuiltinFunc(awkBuiltin))
	r.Register("cut", BuiltinFunc(cutBuiltin))
	r.Register("tr", BuiltinFunc(trBuiltin))
	r.Register("sort", BuiltinFunc(sortBuiltin))
	r.Register("uniq", BuiltinFunc(uniqBuiltin))
	r.Register("head", BuiltinFunc(headBuiltin))
	r.Register("tail", BuiltinFunc(tailBuiltin))
	r.Register("wc", BuiltinFunc(wcBuiltin))
	r.Register("diff", BuiltinFunc(diffBuiltin))
	r.Register("tee", BuiltinFunc(teeBuiltin))
	r.Register("xargs", BuiltinFunc(xargsBuiltin))
	r.Register("nl", BuiltinFunc(nlBuiltin))
	r.Register("od", BuiltinFunc(odBuiltin))
	r.Register("xxd", BuiltinFunc(xxdBuiltin))
	r.Register("hexdump", BuiltinFunc(xxdBuiltin))
}

func readStdinOrFiles(c *Context, files []string) (string, error) {
	if len(files) == 0 {
		return c.Stdin, nil
	}
	var b strings.Builder
	for _, f := range files {
		data, err := c.FS.ReadFile(c.Ctx, resolvePath(c, f))
		if err != nil {
			return "", err
		}
		b.Write(data)
	}
	return b.String(), nil
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func grepBuiltin(c *Context) Result {
	invert := false
	ignoreCase := false
	lineNum := false
	countOnly := false
	var rest []string
	for _, a := range c.Args {
		switch a {
		case "-v":
			invert = true
		case "-i":
			ignoreCase = true
		case "-n":
			lineNum = true
		case "-c":
			countOnly = true
		default:
			rest = append(rest, a)
		}
	}
	if len(rest) == 0 {
		return fail(2, "grep: missing pattern")
	}
	pattern := rest[0]
	files := rest[1:]
	if ignoreCase {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fail(2, "grep: "+err.Error())
	}
	input, err := readStdinOrFiles(c, files)
	if err != nil {
		return fail(2, "grep: "+err.Error())
	}
	var out strings.Builder
	matches := 0
	for i, line := range splitLines(input) {
		m := re.MatchString(line)
		if invert {
			m = !m
		}
		if !m {
			continue
		}
		matches++
		if countOnly {
			continue
		}
		if lineNum {
			fmt.Fprintf(&out, "%d:%s\n", i+1, line)
		} else {
			out.WriteString(line)
			out.WriteString("\n")
		}
	}
	if countOnly {
		return Result{Stdout: fmt.Sprintf("%d\n", matches), Code: boolToCode(matches > 0)}
	}
	return Result{Stdout: out.String(), Code: boolToCode(matches > 0)}
}

func boolToCode(b bool) int {
	if b {
		return 0
	}
	return 1
}

// sedBuiltin implements the common `s/pat/repl/flags` substitution form
// only; bash scripts that lean on sed almost always use this single form.
func sedBuiltin(c *Context) Result {
	if len(c.Args) == 0 {
		return fail(1, "sed: missing script")
	}
	script := c.Args[0]
	files := c.Args[1:]
	input, err := readStdinOrFiles(c, files)
	if err != nil {
		return fail(1, "sed: "+err.Error())
	}
	if !strings.HasPrefix(script, "s") || len(script) < 2 {
		return fail(1, "sed: unsupported script (only s/pat/repl/flags is implemented)")
	}
	delim := script[1]
	parts := strings.Split(script[2:], string(delim))
	if len(parts) < 2 {
		return fail(1, "sed: malformed substitution")
	}
	pat, repl := parts[0], parts[1]
	flags := ""
	if len(parts) > 2 {
		flags = parts[2]
	}
	if strings.Contains(flags, "i") {
		pat = "(?i)" + pat
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		return fail(1, "sed: "+err.Error())
	}
	repl = convertSedBackrefs(repl)
	var result string
	if strings.Contains(flags, "g") {
		result = re.ReplaceAllString(input, repl)
	} else {
		replaced := false
		result = re.ReplaceAllStringFunc(input, func(m string) string {
			if replaced {
				return m
			}
			replaced = true
			return re.ReplaceAllString(m, repl)
		})
	}
	return ok(result)
}

func convertSedBackrefs(repl string) string {
	var b strings.Builder
	for i := 0; i < len(repl); i++ {
		if repl[i] == '\\' && i+1 < len(repl) && repl[i+1] >= '0' && repl[i+1] <= '9' {
			b.WriteByte('$')
			b.WriteByte(repl[i+1])
			i++
			continue
		}
		b.WriteByte(repl[i])
	}
	return b.String()
}

// awkBuiltin implements only `awk '{print $N}'`-style field printing and
// `awk -F sep '{print $N}'`, the overwhelming majority of awk usage inside
// shell one-liners; a full awk grammar is out of scope for a sandboxed
// shell interpreter.
func awkBuiltin(c *Context) Result {
	fieldSep := " "
	var rest []string
	for i := 0; i < len(c.Args); i++ {
		if c.Args[i] == "-F" && i+1 < len(c.Args) {
			fieldSep = c.Args[i+1]
			i++
			continue
		}
		rest = append(rest, c.Args[i])
	}
	if len(rest) == 0 {
		return fail(1, "awk: missing program")
	}
	program := rest[0]
	files := rest[1:]
	input, err := readStdinOrFiles(c, files)
	if err != nil {
		return fail(1, "awk: "+err.Error())
	}
	fields, err := parseAwkPrintFields(program)
	if err != nil {
		return fail(1, "awk: "+err.Error())
	}
	var out strings.Builder
	for _, line := range splitLines(input) {
		var cols []string
		if fieldSep == " " {
			cols = strings.Fields(line)
		} else {
			cols = strings.Split(line, fieldSep)
		}
		var parts []string
		for _, f := range fields {
			if f == 0 {
				parts = append(parts, line)
				continue
			}
			if f-1 < len(cols) {
				parts = append(parts, cols[f-1])
			} else {
				parts = append(parts, "")
			}
		}
		out.WriteString(strings.Join(parts, " "))
		out.WriteString("\n")
	}
	return ok(out.String())
}

func parseAwkPrintFields(program string) ([]int, error) {
	program = strings.TrimSpace(program)
	program = strings.TrimPrefix(program, "{")
	program = strings.TrimSuffix(program, "}")
	program = strings.TrimSpace(program)
	program = strings.TrimPrefix(program, "print")
	program = strings.TrimSpace(program)
	var fields []int
	for _, tok := range strings.Split(program, ",") {
		tok = strings.TrimSpace(tok)
		if !strings.HasPrefix(tok, "$") {
			return nil, fmt.Errorf("unsupported program (only $N field printing supported)")
		}
		n, err := strconv.Atoi(strings.TrimPrefix(tok, "$"))
		if err != nil {
			return nil, fmt.Errorf("unsupported field reference %q", tok)
		}
		fields = append(fields, n)
	}
	return fields, nil
}

func cutBuiltin(c *Context) Result {
	delim := "\t"
	var fieldsSpec string
	var files []string
	for i := 0; i < len(c.Args); i++ {
		switch {
		case c.Args[i] == "-d" && i+1 < len(c.Args):
			delim = c.Args[i+1]
			i++
		case strings.HasPrefix(c.Args[i], "-f"):
			if c.Args[i] == "-f" && i+1 < len(c.Args) {
				fieldsSpec = c.Args[i+1]
				i++
			} else {
				fieldsSpec = strings.TrimPrefix(c.Args[i], "-f")
			}
		default:
			files = append(files, c.Args[i])
		}
	}
	input, err := readStdinOrFiles(c, files)
	if err != nil {
		return fail(1, "cut: "+err.Error())
	}
	idxs, err := parseCutFields(fieldsSpec)
	if err != nil {
		return fail(1, "cut: "+err.Error())
	}
	var out strings.Builder
	for _, line := range splitLines(input) {
		cols := strings.Split(line, delim)
		var parts []string
		for _, idx := range idxs {
			if idx-1 >= 0 && idx-1 < len(cols) {
				parts = append(parts, cols[idx-1])
			}
		}
		out.WriteString(strings.Join(parts, delim))
		out.WriteString("\n")
	}
	return ok(out.String())
}

func parseCutFields(spec string) ([]int, error) {
	var idxs []int
	for _, tok := range strings.Split(spec, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(tok))
		if err != nil {
			return nil, fmt.Errorf("invalid field list %q", spec)
		}
		idxs = append(idxs, n)
	}
	return idxs, nil
}

func trBuiltin(c *Context) Result {
	del := false
	var rest []string
	for _, a := range c.Args {
		if a == "-d" {
			del = true
			continue
		}
		rest = append(rest, a)
	}
	if len(rest) == 0 {
		return fail(1, "tr: missing operand")
	}
	from := expandTrSet(rest[0])
	input := c.Stdin
	if del {
		var b strings.Builder
		for _, r := range input {
			if strings.ContainsRune(from, r) {
				continue
			}
			b.WriteRune(r)
		}
		return ok(b.String())
	}
	if len(rest) < 2 {
		return fail(1, "tr: missing operand")
	}
	to := expandTrSet(rest[1])
	var b strings.Builder
	for _, r := range input {
		if idx := strings.IndexRune(from, r); idx >= 0 && len(to) > 0 {
			if idx < len([]rune(to)) {
				b.WriteRune([]rune(to)[idx])
			} else {
				b.WriteRune([]rune(to)[len([]rune(to))-1])
			}
			continue
		}
		b.WriteRune(r)
	}
	return ok(b.String())
}

func expandTrSet(s string) string {
	if strings.HasPrefix(s, "a-z") {
		return "abcdefghijklmnopqrstuvwxyz" + s[3:]
	}
	if strings.HasPrefix(s, "A-Z") {
		return "ABCDEFGHIJKLMNOPQRSTUVWXYZ" + s[3:]
	}
	return s
}

func sortBuiltin(c *Context) Result {
	reverse := false
	numeric := false
	unique := false
	var files []string
	for _, a := range c.Args {
		switch a {
		case "-r":
			reverse = true
		case "-n":
			numeric = true
		case "-u":
			unique = true
		default:
			files = append(files, a)
		}
	}
	input, err := readStdinOrFiles(c, files)
	if err != nil {
		return fail(1, "sort: "+err.Error())
	}
	lines := splitLines(input)
	if numeric {
		sort.SliceStable(lines, func(i, j int) bool {
			a, _ := strconv.ParseFloat(strings.TrimSpace(lines[i]), 64)
			b, _ := strconv.ParseFloat(strings.TrimSpace(lines[j]), 64)
			return a < b
		})
	} else {
		sort.Strings(lines)
	}
	if reverse {
		for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
			lines[i], lines[j] = lines[j], lines[i]
		}
	}
	if unique {
		lines = dedupeAdjacent(lines)
	}
	return ok(strings.Join(lines, "\n") + boolNewline(len(lines) > 0))
}

func boolNewline(b bool) string {
	if b {
		return "\n"
	}
	return ""
}

func dedupeAdjacent(lines []string) []string {
	seen := make(map[string]bool, len(lines))
	var out []string
	for _, l := range lines {
		if seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

func uniqBuiltin(c *Context) Result {
	countPrefix := false
	var files []string
	for _, a := range c.Args {
		if a == "-c" {
			countPrefix = true
			continue
		}
		files = append(files, a)
	}
	input, err := readStdinOrFiles(c, files)
	if err != nil {
		return fail(1, "uniq: "+err.Error())
	}
	lines := splitLines(input)
	var out strings.Builder
	i := 0
	for i < len(lines) {
		j := i + 1
		for j < len(lines) && lines[j] == lines[i] {
			j++
		}
		if countPrefix {
			fmt.Fprintf(&out, "%7d %s\n", j-i, lines[i])
		} else {
			out.WriteString(lines[i])
			out.WriteString("\n")
		}
		i = j
	}
	return ok(out.String())
}

func headBuiltin(c *Context) Result { return headTail(c, true) }
func tailBuiltin(c *Context) Result { return headTail(c, false) }

func headTail(c *Context, head bool) Result {
	n := 10
	var files []string
	for i := 0; i < len(c.Args); i++ {
		if c.Args[i] == "-n" && i+1 < len(c.Args) {
			if v, err := strconv.Atoi(c.Args[i+1]); err == nil {
				n = v
			}
			i++
			continue
		}
		if strings.HasPrefix(c.Args[i], "-") && len(c.Args[i]) > 1 {
			if v, err := strconv.Atoi(c.Args[i][1:]); err == nil {
				n = v
				continue
			}
		}
		files = append(files, c.Args[i])
	}
	input, err := readStdinOrFiles(c, files)
	if err != nil {
		return fail(1, "head: "+err.Error())
	}
	lines := splitLines(input)
	if head {
		if n < len(lines) {
			lines = lines[:n]
		}
	} else {
		if n < len(lines) {
			lines = lines[len(lines)-n:]
		}
	}
	return ok(strings.Join(lines, "\n") + boolNewline(len(lines) > 0))
}

func wcBuiltin(c *Context) Result {
	lines, words, bytesMode := false, false, false
	var files []string
	for _, a := range c.Args {
		switch a {
		case "-l":
			lines = true
		case "-w":
			words = true
		case "-c":
			bytesMode = true
		default:
			files = append(files, a)
		}
	}
	input, err := readStdinOrFiles(c, files)
	if err != nil {
		return fail(1, "wc: "+err.Error())
	}
	nLines := len(splitLines(input))
	nWords := len(strings.Fields(input))
	nBytes := len(input)
	if !lines && !words && !bytesMode {
		return ok(fmt.Sprintf("%7d %7d %7d\n", nLines, nWords, nBytes))
	}
	var parts []string
	if lines {
		parts = append(parts, strconv.Itoa(nLines))
	}
	if words {
		parts = append(parts, strconv.Itoa(nWords))
	}
	if bytesMode {
		parts = append(parts, strconv.Itoa(nBytes))
	}
	return ok(strings.Join(parts, " ") + "\n")
}

func diffBuiltin(c *Context) Result {
	if len(c.Args) < 2 {
		return fail(2, "diff: missing operand")
	}
	a, errA := c.FS.ReadFile(c.Ctx, resolvePath(c, c.Args[0]))
	b, errB := c.FS.ReadFile(c.Ctx, resolvePath(c, c.Args[1]))
	if errA != nil || errB != nil {
		return fail(2, "diff: cannot read file")
	}
	if string(a) == string(b) {
		return Result{Code: 0}
	}
	al, bl := splitLines(string(a)), splitLines(string(b))
	var out strings.Builder
	max := len(al)
	if len(bl) > max {
		max = len(bl)
	}
	for i := 0; i < max; i++ {
		var av, bv string
		if i < len(al) {
			av = al[i]
		}
		if i < len(bl) {
			bv = bl[i]
		}
		if av != bv {
			fmt.Fprintf(&out, "%dc%d\n< %s\n---\n> %s\n", i+1, i+1, av, bv)
		}
	}
	return Result{Stdout: out.String(), Code: 1}
}

func teeBuiltin(c *Context) Result {
	append_ := false
	var files []string
	for _, a := range c.Args {
		if a == "-a" {
			append_ = true
			continue
		}
		files = append(files, a)
	}
	for _, f := range files {
		path := resolvePath(c, f)
		if append_ {
			c.FS.AppendFile(c.Ctx, path, []byte(c.Stdin))
		} else {
			c.FS.WriteFile(c.Ctx, path, []byte(c.Stdin))
		}
	}
	return ok(c.Stdin)
}

func xargsBuiltin(c *Context) Result {
	// xargs runs no command: any CMD ARGS are ignored, and the words read
	// from stdin are echoed back joined by single spaces.
	words := strings.Fields(c.Stdin)
	return ok(strings.Join(words, " ") + boolNewline(len(words) > 0))
}

func nlBuiltin(c *Context) Result {
	input, err := readStdinOrFiles(c, c.Args)
	if err != nil {
		return fail(1, "nl: "+err.Error())
	}
	var out strings.Builder
	for i, line := range splitLines(input) {
		fmt.Fprintf(&out, "%6d\t%s\n", i+1, line)
	}
	return ok(out.String())
}

func odBuiltin(c *Context) Result {
	input, err := readStdinOrFiles(c, c.Args)
	if err != nil {
		return fail(1, "od: "+err.Error())
	}
	var out strings.Builder
	data := []byte(input)
	for i := 0; i < len(data); i += 16 {
		end := i + 16
		if end > len(data) {
			end = len(data)
		}
		fmt.Fprintf(&out, "%07o", i)
		for _, b := range data[i:end] {
			fmt.Fprintf(&out, " %03o", b)
		}
		out.WriteString("\n")
	}
	return ok(out.String())
}

func xxdBuiltin(c *Context) Result {
	input, err := readStdinOrFiles(c, c.Args)
	if err != nil {
		return fail(1, "xxd: "+err.Error())
	}
	var out strings.Builder
	data := []byte(input)
	for i := 0; i < len(data); i += 16 {
		end := i + 16
		if end > len(data) {
			end = len(data)
		}
		fmt.Fprintf(&out, "%08x: ", i)
		for j := i; j < end; j++ {
			fmt.Fprintf(&out, "%02x", data[j])
			if j%2 == 1 {
				out.WriteByte(' ')
			}
		}
		out.WriteString(" ")
		for j := i; j < end; j++ {
			if data[j] >= 32 && data[j] < 127 {
				out.WriteByte(data[j])
			} else {
				out.WriteByte('.')
			}
		}
		out.WriteString("\n")
	}
	return ok(out.String())
}
