package transform

import (
	"context"

	"github.com/phobologic/empathy/internal/model"
	"github.com/phobologic/empathy/internal/parse"
	"github.com/phobologic/empathy/internal/pipeline"
	"github.com/phobologic/empathy/internal/specifier"
)

// BareToPath rewrites every bare module reference into a relative path
// resolvable from the file's location in the installed-module tree at root.
// Path references are left alone. A reference that cannot be resolved is
// logged and kept as written.
func BareToPath(root string, opts Options) pipeline.Stage {
	logger := opts.logger()

	return pipeline.Map(StageBareToPath, func(ctx context.Context, f *model.ModuleFile) (*model.ModuleFile, error) {
		contents, err := f.Contents()
		if err != nil {
			return f, err
		}
		doc, err := parse.File(ctx, f.Path, contents)
		if err != nil {
			return f, err
		}

		logger.Info("Applying empathy", "file", f.Relative())

		for _, spec := range doc.Specifiers {
			original := spec.Value()
			if !specifier.IsBare(original) {
				continue
			}

			target, err := specifier.Resolve(original, f.Path, root)
			if err == nil {
				var rel string
				if rel, err = specifier.Relative(f.Path, target); err == nil {
					spec.SetValue(rel)
				}
			}
			if err != nil {
				logger.Warn("Failed to resolve specifier", "file", f.Relative(), "specifier", original, "err", err)
				opts.Recorder.Failure(f.Relative(), StageBareToPath, err)
				continue
			}

			opts.Recorder.Rewrite(model.Rewrite{File: f.Relative(), Kind: spec.Kind, From: original, To: spec.Value()})
		}

		if doc.Changed() {
			f.SetContents(doc.Render())
		}
		return f, nil
	})
}
