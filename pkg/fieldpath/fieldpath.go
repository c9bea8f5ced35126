// Package fieldpath handles the dotted ancestry paths nested field
// mappings carry.
package fieldpath

import "strings"

// Join appends a child segment to a parent path.
func Join(parentPath, segment string) string {
	if parentPath == "" {
		return segment
	}
	return parentPath + "." + segment
}

// Leaf returns the last segment of a path.
func Leaf(path string) string {
	if path == "" {
		return ""
	}
	lastDot := strings.LastIndex(path, ".")
	if lastDot == -1 {
		return path
	}
	return path[lastDot+1:]
}

// Parent returns the path without its last segment, or empty for a root
// level path.
func Parent(path string) string {
	lastDot := strings.LastIndex(path, ".")
	if lastDot == -1 {
		return ""
	}
	return path[:lastDot]
}

// Depth returns how many segments the path has.
func Depth(path string) int {
	if path == "" {
		return 0
	}
	return strings.Count(path, ".") + 1
}

// IsAncestorOf reports whether ancestor strictly contains descendant. The
// empty path is an ancestor of every non-empty path.
func IsAncestorOf(ancestor, descendant string) bool {
	if descendant == "" {
		return false
	}
	if ancestor == "" {
		return true
	}
	return strings.HasPrefix(descendant, ancestor+".")
}
