package specifier

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const modulesDir = "node_modules"

var (
	fileExtensions = []string{".js", ".mjs"}
	indexFiles     = []string{"index.js", "index.mjs"}
)

// IsBare reports whether spec is a bare specifier rather than a relative or
// absolute path or a URL.
func IsBare(spec string) bool {
	switch {
	case spec == "", spec == ".", spec == "..":
		return false
	case strings.HasPrefix(spec, "./"), strings.HasPrefix(spec, "../"), strings.HasPrefix(spec, "/"):
		return false
	case strings.Contains(spec, "://"), strings.HasPrefix(spec, "data:"):
		return false
	}
	return true
}

// SplitBare separates a bare specifier into its package name and sub-path.
// Scoped names keep both segments: "@scope/pkg/lib/x" → "@scope/pkg", "lib/x".
func SplitBare(spec string) (name, subPath string) {
	parts := strings.SplitN(spec, "/", 3)
	if strings.HasPrefix(spec, "@") && len(parts) >= 2 {
		name = parts[0] + "/" + parts[1]
		if len(parts) == 3 {
			subPath = parts[2]
		}
		return name, subPath
	}
	name = parts[0]
	if len(parts) > 1 {
		subPath = strings.Join(parts[1:], "/")
	}
	return name, subPath
}

// Resolve finds the file a bare specifier refers to from fromFile, searching
// installed-module directories upward without leaving root. root itself is
// treated as an installed-module directory.
func Resolve(spec, fromFile, root string) (string, error) {
	name, subPath := SplitBare(spec)

	pkgDir, ok := findPackageDir(name, filepath.Dir(fromFile), root)
	if !ok {
		return "", fmt.Errorf("package %q for %q: %w", name, spec, ErrNotFound)
	}

	var target string
	if subPath == "" {
		target, ok = resolveEntry(pkgDir)
	} else {
		target, ok = resolveFile(filepath.Join(pkgDir, filepath.FromSlash(subPath)), 0)
	}
	if !ok {
		return "", fmt.Errorf("module %q in %s: %w", spec, pkgDir, os.ErrNotExist)
	}
	return target, nil
}

// Relative returns a path specifier for target as seen from fromFile.
// The result always starts with "./" or "../".
func Relative(fromFile, target string) (string, error) {
	rel, err := filepath.Rel(filepath.Dir(fromFile), target)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if !strings.HasPrefix(rel, "../") {
		rel = "./" + rel
	}
	return rel, nil
}

func findPackageDir(name, dir, root string) (string, bool) {
	for {
		if filepath.Base(dir) != modulesDir {
			if candidate := filepath.Join(dir, modulesDir, name); isDir(candidate) {
				return candidate, true
			}
		}
		if dir == root || filepath.Base(dir) == modulesDir {
			if candidate := filepath.Join(dir, name); isDir(candidate) {
				return candidate, true
			}
		}
		if dir == root || !Within(root, dir) {
			return "", false
		}
		dir = filepath.Dir(dir)
	}
}

// resolveEntry picks a package's root module: module, then main, then index.
func resolveEntry(pkgDir string) (string, bool) {
	if m, err := ReadManifest(pkgDir); err == nil {
		for _, entry := range []string{m.Module, m.Main} {
			if entry == "" {
				continue
			}
			if target, ok := resolveFile(filepath.Join(pkgDir, filepath.FromSlash(entry)), 1); ok {
				return target, true
			}
		}
	}
	return resolveIndex(pkgDir)
}

// resolveFile tries path as a file, with known extensions appended, and as
// a directory. depth bounds main-field indirection.
func resolveFile(path string, depth int) (string, bool) {
	if isFile(path) {
		return path, true
	}
	for _, ext := range fileExtensions {
		if isFile(path + ext) {
			return path + ext, true
		}
	}
	if !isDir(path) {
		return "", false
	}
	if depth < 2 {
		if m, err := ReadManifest(path); err == nil && m.Main != "" {
			if target, ok := resolveFile(filepath.Join(path, filepath.FromSlash(m.Main)), depth+1); ok {
				return target, true
			}
		}
	}
	return resolveIndex(path)
}

func resolveIndex(dir string) (string, bool) {
	for _, index := range indexFiles {
		if p := filepath.Join(dir, index); isFile(p) {
			return p, true
		}
	}
	return "", false
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
