// Package empathy stages dependencies as path-addressed assets and converts
// published sources that point into those assets back to bare specifiers.
package empathy

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/viant/afs"

	"github.com/phobologic/empathy/internal/discover"
	"github.com/phobologic/empathy/internal/model"
	"github.com/phobologic/empathy/internal/pipeline"
	"github.com/phobologic/empathy/internal/stage"
	"github.com/phobologic/empathy/internal/transform"
)

// Options configures a Service.
type Options struct {
	Logger    *log.Logger
	Installer stage.Installer // Defaults to npm
	TempDir   string          // Parent of staging directories
	Workers   int             // Per-file concurrency; defaults to GOMAXPROCS
	FS        afs.Service     // Used for the terminal tree copy
}

// Service runs empathy operations.
type Service struct {
	opts Options
}

// New creates a Service.
func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.FS == nil {
		opts.FS = afs.New()
	}
	return &Service{opts: opts}
}

// ApplyEmpathy stages deps, rewrites the staged modules to path specifiers
// and copies the result to outputDir. Only staging and copy failures are
// returned; per-file failures are logged and recorded in the report.
func (s *Service) ApplyEmpathy(ctx context.Context, outputDir string, deps map[string]string) (*model.Report, error) {
	logger := s.opts.Logger
	rec := &model.Recorder{}

	root, err := stage.Stage(ctx, deps, stage.Options{
		Logger:    logger,
		Installer: s.opts.Installer,
		TempDir:   s.opts.TempDir,
	})
	if err != nil {
		logger.Error("Unable to stage assets for specifier conversion", "err", err)
		return rec.Report("install", outputDir), err
	}

	entries, err := discover.Tree(root)
	if err != nil {
		logger.Error("Failed to discover staged modules", "err", err)
	}

	p := pipeline.New(s.pipelineOptions(rec), transform.Forward(root, transform.Options{Logger: logger, Recorder: rec})...)
	if err := p.Run(ctx, moduleFiles(entries), pipeline.DirSink{Dir: root}); err != nil {
		return rec.Report("install", outputDir), fmt.Errorf("transforming asset specifiers: %w", err)
	}
	logger.Info("Empathy applied!")

	if err := s.opts.FS.Copy(ctx, root, outputDir); err != nil {
		logger.Error("Failed to create assets directory", "dir", outputDir, "err", err)
		return rec.Report("install", outputDir), fmt.Errorf("copying assets to %s: %w", outputDir, err)
	}
	return rec.Report("install", outputDir), nil
}

// ReverseEmpathy rewrites sources matched by globs under cwd, converting
// references into assetsDir to bare specifiers, and writes every matched
// file to outputDir. Failures never abort the run; only cancellation is
// returned.
func (s *Service) ReverseEmpathy(ctx context.Context, cwd string, globs []string, assetsDir, outputDir string) (*model.Report, error) {
	logger := s.opts.Logger
	rec := &model.Recorder{}

	entries, err := discover.Sources(cwd, globs)
	if err != nil {
		logger.Error("Failed to discover sources", "err", err)
	}
	if len(entries) == 0 {
		logger.Warn("No sources matched", "globs", globs)
	}

	p := pipeline.New(s.pipelineOptions(rec), transform.PathToBare(assetsDir, transform.Options{Logger: logger, Recorder: rec}))
	if err := p.Run(ctx, moduleFiles(entries), pipeline.DirSink{Dir: outputDir}); err != nil {
		return rec.Report("publish", outputDir), fmt.Errorf("transforming source specifiers: %w", err)
	}
	return rec.Report("publish", outputDir), nil
}

func (s *Service) pipelineOptions(rec *model.Recorder) pipeline.Options {
	return pipeline.Options{Logger: s.opts.Logger, Workers: s.opts.Workers, Recorder: rec}
}

func moduleFiles(entries []discover.FileEntry) []*model.ModuleFile {
	files := make([]*model.ModuleFile, 0, len(entries))
	for _, e := range entries {
		files = append(files, model.NewModuleFile(e.Path, e.Base))
	}
	return files
}
