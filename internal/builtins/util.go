package builtins

import "path/filepath"

// globMatch matches a single path component against a shell glob pattern
// (`*`, `?`, `[...]`), reusing the standard library's glob matcher since it
// already implements the same pattern language bash uses for a single
// component.
func globMatch(pattern, name string) (bool, error) {
	return filepath.Match(pattern, name)
}
