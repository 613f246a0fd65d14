package transform

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/phobologic/empathy/internal/lang"
	"github.com/phobologic/empathy/internal/model"
	"github.com/phobologic/empathy/internal/parse"
	"github.com/phobologic/empathy/internal/pipeline"
	"github.com/phobologic/empathy/internal/specifier"
)

// PathToBare rewrites relative references that point strictly inside
// assetsDir to the bare specifier of their target. References elsewhere
// are out of scope and never touched. Files of unsupported types pass
// through unchanged.
func PathToBare(assetsDir string, opts Options) pipeline.Stage {
	logger := opts.logger()

	return pipeline.Map(StagePathToBare, func(ctx context.Context, f *model.ModuleFile) (*model.ModuleFile, error) {
		if lang.ForPath(f.Path) == nil {
			logger.Debug("Passing through", "file", f.Relative())
			return f, nil
		}

		contents, err := f.Contents()
		if err != nil {
			return f, err
		}
		doc, err := parse.File(ctx, f.Path, contents)
		if err != nil {
			return f, err
		}

		logger.Info("Applying reverse empathy", "file", f.Relative())
		dir := filepath.Dir(f.Path)

		for _, spec := range doc.Specifiers {
			original := spec.Value()
			if !isRelative(original) {
				continue
			}

			target := filepath.Join(dir, filepath.FromSlash(original))
			if !specifier.Within(assetsDir, target) {
				continue
			}

			bare, err := specifier.ForFile(model.NewModuleFile(target, assetsDir), assetsDir)
			if err != nil {
				logger.Warn("Failed to adjust specifier", "file", f.Relative(), "specifier", original, "err", err)
				opts.Recorder.Failure(f.Relative(), StagePathToBare, err)
				continue
			}

			spec.SetValue(bare)
			logger.Info("Adjusting specifier", "file", f.Relative(), "from", original, "to", bare)
			opts.Recorder.Rewrite(model.Rewrite{File: f.Relative(), Kind: spec.Kind, From: original, To: bare})
		}

		if doc.Changed() {
			f.SetContents(doc.Render())
		}
		return f, nil
	})
}

func isRelative(spec string) bool {
	return spec == "." || spec == ".." || strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../")
}
