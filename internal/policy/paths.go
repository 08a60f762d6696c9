package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// sensitiveFragments are path fragments that are refused outright, before
// allow-list containment is consulted. A symlink or allowed directory that
// reaches one of these is still refused.
var sensitiveFragments = []string{
	"/etc/",
	"/sys/",
	"/proc/",
	"/boot/",
	"/dev/",
	"/.ssh/",
	"/.gnupg/",
	"/.aws/",
	"/.kube/",
	"/.git/",
	"/.env",
	"id_rsa",
	"id_ed25519",
	"credentials",
	"secrets",
}

// Resolver expands and resolves paths and tests containment against the
// configured allow-list of directories.
type Resolver struct {
	allowed []string
}

// NewResolver builds a resolver for the given allowed directories. Each
// directory is expanded and symlink-resolved once at construction.
func NewResolver(dirs []string) *Resolver {
	allowed := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		resolved, err := resolvePath(dir)
		if err != nil {
			continue
		}
		allowed = append(allowed, resolved)
	}
	return &Resolver{allowed: allowed}
}

// AllowedDirectories returns the resolved allow-list.
func (r *Resolver) AllowedDirectories() []string {
	return append([]string(nil), r.allowed...)
}

// Check resolves path through the filesystem's symlink chain and verifies it
// does not touch a sensitive location and falls inside an allowed directory.
// A non-nil error means the path must be refused; the error text is the reason.
func (r *Resolver) Check(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}

	resolved, err := resolvePath(path)
	if err != nil {
		return "", fmt.Errorf("cannot resolve path: %w", err)
	}

	if fragment, hit := sensitiveMatch(resolved); hit {
		return resolved, fmt.Errorf("path touches protected location (%s)", fragment)
	}

	if !r.contains(resolved) {
		return resolved, fmt.Errorf("path %q is outside allowed directories", resolved)
	}
	return resolved, nil
}

// Contains reports whether an already-resolved path is inside the allow-list.
func (r *Resolver) Contains(resolved string) bool {
	return r.contains(resolved)
}

// Within reports whether path resolves inside dir. Used for task-scope
// containment, where dir is the scope's working directory.
func Within(path, dir string) bool {
	resolvedPath, err := resolvePath(path)
	if err != nil {
		return false
	}
	resolvedDir, err := resolvePath(dir)
	if err != nil {
		return false
	}
	return isUnder(resolvedPath, resolvedDir)
}

func (r *Resolver) contains(resolved string) bool {
	for _, dir := range r.allowed {
		if isUnder(resolved, dir) {
			return true
		}
	}
	return false
}

func isUnder(path, dir string) bool {
	return path == dir || strings.HasPrefix(path, dir+string(filepath.Separator))
}

// resolvePath expands a home-relative path, makes it absolute, and resolves
// symlinks. For paths that do not exist yet, the deepest existing ancestor is
// resolved and the remainder re-joined, so a symlinked parent cannot smuggle a
// new file outside the boundary.
func resolvePath(path string) (string, error) {
	expanded, err := expandHome(path)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)

	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	// Walk up until an existing ancestor is found, resolve that, then
	// append the non-existing remainder.
	remainder := ""
	current := abs
	for {
		parent := filepath.Dir(current)
		if parent == current {
			return abs, nil
		}
		remainder = filepath.Join(filepath.Base(current), remainder)
		current = parent

		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			return filepath.Join(resolved, remainder), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
	}
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}

func sensitiveMatch(resolved string) (string, bool) {
	// Trailing separator so directory fragments also match the path itself.
	probe := strings.ToLower(resolved) + string(filepath.Separator)
	for _, fragment := range sensitiveFragments {
		if strings.Contains(probe, fragment) {
			return strings.Trim(fragment, "/"), true
		}
	}
	return "", false
}
