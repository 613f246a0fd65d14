// Package specifier computes bare module specifiers from file locations,
// resolves bare specifiers to files inside an installed-module tree, and
// reads and writes resolution markers.
package specifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/phobologic/empathy/internal/model"
)

// ManifestName is the package manifest file that marks a package boundary.
const ManifestName = "package.json"

var (
	// ErrNotFound is returned when no package boundary exists within the
	// search root.
	ErrNotFound = errors.New("package boundary not found")
	// ErrNoMarker is returned when a file carries no resolution marker.
	ErrNoMarker = errors.New("no resolution marker")
)

// Boundary is the nearest ancestor directory declaring a package manifest.
type Boundary struct {
	Dir  string
	Name string
}

// Manifest holds the package.json fields empathy reads.
type Manifest struct {
	Name         string            `json:"name"`
	Main         string            `json:"main,omitempty"`
	Module       string            `json:"module,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// ReadManifest decodes the package.json in dir.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Join(dir, ManifestName), err)
	}
	return &m, nil
}

// Within reports whether path lies strictly inside dir.
func Within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}

// FindBoundary walks upward from filePath and returns the first directory
// containing a manifest that lies strictly inside root.
func FindBoundary(filePath, root string) (*Boundary, error) {
	dir := filepath.Clean(filePath)
	for Within(root, dir) {
		if _, err := os.Stat(filepath.Join(dir, ManifestName)); err == nil {
			m, err := ReadManifest(dir)
			if err != nil {
				return nil, err
			}
			if m.Name == "" {
				return nil, fmt.Errorf("%s: manifest declares no name", dir)
			}
			return &Boundary{Dir: dir, Name: m.Name}, nil
		}
		dir = filepath.Dir(dir)
	}
	return nil, fmt.Errorf("%s within %s: %w", filePath, root, ErrNotFound)
}

// ForPath computes the bare specifier of filePath: the declared package name
// of its boundary joined with the extensionless manifest-relative path.
func ForPath(filePath, root string) (string, error) {
	b, err := FindBoundary(filePath, root)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(b.Dir, filePath)
	if err != nil {
		return "", err
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return joinSpecifier(b.Name, filepath.ToSlash(rel)), nil
}

// ForFile tries ForPath first and falls back to the file's resolution marker.
func ForFile(file *model.ModuleFile, root string) (string, error) {
	spec, pathErr := ForPath(file.Path, root)
	if pathErr == nil {
		return spec, nil
	}

	contents, err := file.Contents()
	if err != nil {
		return "", fmt.Errorf("%w; %w", pathErr, err)
	}
	if marked, ok := ReadMarker(contents); ok {
		return marked, nil
	}
	return "", fmt.Errorf("unable to detect specifier for %s: %w", file.Path, pathErr)
}

func joinSpecifier(name, rel string) string {
	if rel == "" || rel == "." {
		return name
	}
	return name + "/" + rel
}
