// Package pipeline streams module files through ordered transform stages.
//
// Every file passes each stage in composition order; files are processed
// concurrently with no ordering between them. A stage failure is logged and
// recorded, and the file continues through the remaining stages in whatever
// state the failing stage left it.
package pipeline

import (
	"context"
	"fmt"
	"runtime"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/empathy/internal/model"
)

// MapFunc transforms one file into one file. It may mutate f in place.
type MapFunc func(ctx context.Context, f *model.ModuleFile) (*model.ModuleFile, error)

// ExpandFunc transforms one file into zero or more files.
type ExpandFunc func(ctx context.Context, f *model.ModuleFile) ([]*model.ModuleFile, error)

// Stage is a named step of a pipeline.
type Stage struct {
	Name   string
	expand ExpandFunc
}

// Map returns a one-in, one-out stage.
func Map(name string, fn MapFunc) Stage {
	return Stage{Name: name, expand: func(ctx context.Context, f *model.ModuleFile) ([]*model.ModuleFile, error) {
		out, err := fn(ctx, f)
		if out == nil {
			return nil, err
		}
		return []*model.ModuleFile{out}, err
	}}
}

// Expand returns a one-in, zero-or-more-out stage.
func Expand(name string, fn ExpandFunc) Stage {
	return Stage{Name: name, expand: fn}
}

// Sink is the destination every file reaches after the last stage.
type Sink interface {
	Write(ctx context.Context, f *model.ModuleFile) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, f *model.ModuleFile) error

// Write calls fn.
func (fn SinkFunc) Write(ctx context.Context, f *model.ModuleFile) error {
	return fn(ctx, f)
}

// Options configures a Pipeline.
type Options struct {
	Logger   *log.Logger
	Workers  int             // Defaults to GOMAXPROCS
	Recorder *model.Recorder // Optional
}

// Pipeline is an ordered composition of stages.
type Pipeline struct {
	stages []Stage
	opts   Options
}

// New composes stages into a pipeline.
func New(opts Options, stages ...Stage) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Pipeline{stages: stages, opts: opts}
}

// Run pushes files through every stage into sink and returns once every
// file has reached it. Only cancellation of ctx is reported as an error.
func (p *Pipeline) Run(ctx context.Context, files []*model.ModuleFile, sink Sink) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)

	for _, f := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			p.process(gctx, f, sink)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (p *Pipeline) process(ctx context.Context, f *model.ModuleFile, sink Sink) {
	current := []*model.ModuleFile{f}
	for _, stage := range p.stages {
		next := make([]*model.ModuleFile, 0, len(current))
		for _, file := range current {
			next = append(next, p.apply(ctx, stage, file)...)
		}
		current = next
	}

	for _, file := range current {
		if ctx.Err() != nil {
			return
		}
		if err := sink.Write(ctx, file); err != nil {
			p.opts.Logger.Error("Failed to write file", "file", file.Relative(), "err", err)
			p.opts.Recorder.Failure(file.Relative(), "write", err)
			continue
		}
		p.opts.Recorder.File(file.Relative())
	}
}

// apply runs one stage on one file. On failure the file passes on as the
// stage left it, unless the stage itself produced replacement output.
func (p *Pipeline) apply(ctx context.Context, stage Stage, f *model.ModuleFile) (out []*model.ModuleFile) {
	defer func() {
		if r := recover(); r != nil {
			p.fail(stage, f, fmt.Errorf("panic: %v", r))
			out = []*model.ModuleFile{f}
		}
	}()

	out, err := stage.expand(ctx, f)
	if err != nil {
		p.fail(stage, f, err)
		if len(out) == 0 {
			out = []*model.ModuleFile{f}
		}
	}
	return out
}

func (p *Pipeline) fail(stage Stage, f *model.ModuleFile, err error) {
	p.opts.Logger.Error("Stage failed", "stage", stage.Name, "file", f.Relative(), "err", err)
	p.opts.Recorder.Failure(f.Relative(), stage.Name, err)
}
