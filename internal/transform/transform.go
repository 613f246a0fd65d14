// Package transform provides the pipeline stages that rewrite module
// specifiers between bare and path form.
//
// The forward chain (InjectProcessModule, MarkResolution, BareToPath) runs
// over an installed-module tree. PathToBare runs over published sources and
// rewrites references into an assets directory back to bare form.
package transform

import (
	"github.com/charmbracelet/log"

	"github.com/phobologic/empathy/internal/model"
	"github.com/phobologic/empathy/internal/pipeline"
)

// Stage names, as they appear in logs and reports.
const (
	StageInjectProcess  = "inject-process"
	StageMarkResolution = "mark-resolution"
	StageBareToPath     = "bare-to-path"
	StagePathToBare     = "path-to-bare"
)

// Options carries the collaborators shared by every stage.
type Options struct {
	Logger   *log.Logger
	Recorder *model.Recorder
}

func (o Options) logger() *log.Logger {
	if o.Logger == nil {
		return log.Default()
	}
	return o.Logger
}

// Forward returns the bare→path chain for the installed-module tree at
// root, in the order the stages must run. Each call gets its own process
// stub cell, so one call corresponds to one pipeline run.
func Forward(root string, opts Options) []pipeline.Stage {
	return []pipeline.Stage{
		InjectProcessModule(opts),
		MarkResolution(root, opts),
		BareToPath(root, opts),
	}
}
