// Package discover finds the files empathy rewrites: every parseable module
// in an installed-module tree, and the published sources matched by a list
// of globs.
package discover

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/phobologic/empathy/internal/lang"
)

// FileEntry represents a discovered file.
type FileEntry struct {
	Path     string // Absolute
	Base     string // Directory output paths are relative to
	Language string // Empty for files no language claims
}

// Rel returns Path relative to Base.
func (e FileEntry) Rel() string {
	rel, err := filepath.Rel(e.Base, e.Path)
	if err != nil {
		return e.Path
	}
	return rel
}

var skipDirs = map[string]struct{}{
	"node_modules": {},
	".git":         {},
	".hg":          {},
	".svn":         {},
}

// Tree discovers every parseable module under an installed-module tree,
// including nested installed-module directories. Hidden directories and
// symlinks are skipped.
func Tree(root string) ([]FileEntry, error) {
	var results []FileEntry

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip errors
		}

		name := d.Name()

		if d.IsDir() {
			if path != root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		langName := lang.ForExtension(filepath.Ext(name))
		if langName == "" {
			return nil
		}

		results = append(results, FileEntry{Path: path, Base: root, Language: langName})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortEntries(results)
	return results, nil
}

// Sources expands globs relative to cwd. Globs use gitignore pattern syntax:
// `**` spans directories and a leading `!` excludes. Each file's base is the
// non-glob prefix of the first pattern that matched it, so "src/**/*.js"
// maps src/app.js to app.js. Installed-module directories, VCS directories
// and paths ignored by cwd/.gitignore are never matched.
func Sources(cwd string, globs []string) ([]FileEntry, error) {
	type positive struct {
		base    string
		matcher *ignore.GitIgnore
	}

	var positives []positive
	for _, g := range globs {
		g = filepath.ToSlash(strings.TrimSpace(g))
		if g == "" || strings.HasPrefix(g, "!") || strings.HasPrefix(g, "#") {
			continue
		}
		positives = append(positives, positive{
			base:    filepath.Join(cwd, filepath.FromSlash(globParent(g))),
			matcher: ignore.CompileIgnoreLines(g),
		})
	}
	if len(positives) == 0 {
		return nil, nil
	}

	all := ignore.CompileIgnoreLines(globs...)
	gi := loadGitignore(cwd)

	seen := make(map[string]struct{})
	var results []FileEntry

	for _, p := range positives {
		info, err := os.Stat(p.base)
		if err != nil || !info.IsDir() {
			continue
		}

		err = filepath.WalkDir(p.base, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil // skip errors
			}

			if d.IsDir() {
				if _, skip := skipDirs[d.Name()]; skip && path != p.base {
					return filepath.SkipDir
				}
				return nil
			}

			if d.Type()&os.ModeSymlink != 0 {
				return nil
			}
			if _, ok := seen[path]; ok {
				return nil
			}

			rel, err := filepath.Rel(cwd, path)
			if err != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)

			if !all.MatchesPath(rel) || (gi != nil && gi.MatchesPath(rel)) {
				return nil
			}

			base := p.base
			for _, q := range positives {
				if q.matcher.MatchesPath(rel) {
					base = q.base
					break
				}
			}

			seen[path] = struct{}{}
			results = append(results, FileEntry{
				Path:     path,
				Base:     base,
				Language: lang.ForExtension(filepath.Ext(path)),
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sortEntries(results)
	return results, nil
}

// globParent returns the leading path segments of glob that contain no
// pattern characters. A glob with no pattern characters names a file, so
// its parent directory is returned.
func globParent(glob string) string {
	segments := strings.Split(strings.TrimPrefix(glob, "/"), "/")
	var parent []string
	for i, seg := range segments {
		if strings.ContainsAny(seg, "*?[{") {
			break
		}
		if i == len(segments)-1 {
			break
		}
		parent = append(parent, seg)
	}
	if len(parent) == 0 {
		return "."
	}
	return strings.Join(parent, "/")
}

func loadGitignore(root string) *ignore.GitIgnore {
	path := filepath.Join(root, ".gitignore")
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil
	}
	return gi
}

func sortEntries(entries []FileEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
}
