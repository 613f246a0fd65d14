// Package manifest loads the consumer's package manifest and selects the
// dependencies that should be staged as assets.
package manifest

import (
	"fmt"
	"slices"

	"github.com/phobologic/empathy/internal/specifier"
)

// AssetDependencies reads the manifest in dir and returns its declared
// dependencies, restricted to only (when non-empty) and minus ignore.
func AssetDependencies(dir string, only, ignore []string) (map[string]string, error) {
	m, err := specifier.ReadManifest(dir)
	if err != nil {
		return nil, fmt.Errorf("loading manifest: %w", err)
	}
	return Filter(m.Dependencies, only, ignore), nil
}

// Filter applies the only/ignore rules to deps.
func Filter(deps map[string]string, only, ignore []string) map[string]string {
	out := make(map[string]string, len(deps))
	for name, version := range deps {
		if len(only) > 0 && !slices.Contains(only, name) {
			continue
		}
		if slices.Contains(ignore, name) {
			continue
		}
		out[name] = version
	}
	return out
}
