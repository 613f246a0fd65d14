package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/phobologic/empathy/internal/model"
)

// DirSink writes each file to Dir at its base-relative path.
type DirSink struct {
	Dir string
}

// Write materializes f under s.Dir.
func (s DirSink) Write(_ context.Context, f *model.ModuleFile) error {
	rel := f.Relative()
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%s lies outside base %s", f.Path, f.Base)
	}

	contents, err := f.Contents()
	if err != nil {
		return err
	}

	dest := filepath.Join(s.Dir, rel)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dest), err)
	}
	if err := os.WriteFile(dest, contents, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	return nil
}
