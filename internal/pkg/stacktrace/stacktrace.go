// Package stacktrace trims runtime/debug stacks down to this module's frames.
package stacktrace

import "strings"

const marker = "/internal/"

// InternalPaths returns the "internal/...go:line" location of every frame
// that belongs to this module, innermost first. Function-name lines and
// frames from the standard library or dependencies are skipped.
func InternalPaths(stack []byte) []string {
	var paths []string
	for line := range strings.Lines(string(stack)) {
		line = strings.TrimSpace(line)
		_, loc, ok := strings.Cut(line, marker)
		if !ok || !strings.Contains(loc, ".go:") {
			continue
		}
		// Drop the " +0x1a" pc offset.
		loc, _, _ = strings.Cut(loc, " ")
		paths = append(paths, marker[1:]+loc)
	}
	return paths
}
