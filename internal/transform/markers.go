package transform

import (
	"context"

	"github.com/phobologic/empathy/internal/model"
	"github.com/phobologic/empathy/internal/pipeline"
	"github.com/phobologic/empathy/internal/specifier"
)

// MarkResolution records each file's own bare specifier, resolved within
// root, as a marker on its first line.
func MarkResolution(root string, opts Options) pipeline.Stage {
	logger := opts.logger()

	return pipeline.Map(StageMarkResolution, func(_ context.Context, f *model.ModuleFile) (*model.ModuleFile, error) {
		if f.Synthetic {
			return f, nil
		}

		spec, err := specifier.ForPath(f.Path, root)
		if err != nil {
			return f, err
		}
		contents, err := f.Contents()
		if err != nil {
			return f, err
		}

		logger.Debug("Marking bare specifier", "file", f.Relative(), "specifier", spec)
		f.SetContents(specifier.Mark(contents, spec))
		return f, nil
	})
}
