// Package model defines core data structures for empathy.
package model

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// SpecifierKind is the kind of declaration carrying a module reference.
type SpecifierKind string

const (
	Import      SpecifierKind = "import"
	ExportNamed SpecifierKind = "export"
	ExportAll   SpecifierKind = "export-all"
)

// ModuleFile is a single file moving through a pipeline.
// Contents are read from Path on first access unless set explicitly.
type ModuleFile struct {
	Path string // Absolute path
	Base string // Pipeline base directory; output paths are relative to it

	// Synthetic files never existed on disk before the pipeline created them.
	Synthetic bool

	contents []byte
	loaded   bool
}

// NewModuleFile returns a file backed by path whose contents load lazily.
func NewModuleFile(path, base string) *ModuleFile {
	return &ModuleFile{Path: path, Base: base}
}

// NewSyntheticFile returns a file with in-memory contents.
func NewSyntheticFile(path, base string, contents []byte) *ModuleFile {
	return &ModuleFile{Path: path, Base: base, Synthetic: true, contents: contents, loaded: true}
}

// Contents returns the file contents, reading them from disk on first use.
func (f *ModuleFile) Contents() ([]byte, error) {
	if f.loaded {
		return f.contents, nil
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.Path, err)
	}
	f.contents = data
	f.loaded = true
	return data, nil
}

// SetContents replaces the file contents.
func (f *ModuleFile) SetContents(data []byte) {
	f.contents = data
	f.loaded = true
}

// Relative returns Path relative to Base, falling back to Path.
func (f *ModuleFile) Relative() string {
	rel, err := filepath.Rel(f.Base, f.Path)
	if err != nil {
		return f.Path
	}
	return rel
}

// Rewrite records one module reference whose value changed.
type Rewrite struct {
	File string
	Kind SpecifierKind
	From string
	To   string
}

// Failure records a stage or reference that could not be processed.
type Failure struct {
	File  string
	Stage string
	Err   string
}

// Report summarizes one empathy operation, ready for serialization.
type Report struct {
	Operation string
	Root      string
	Files     []string
	Rewrites  []Rewrite
	Failures  []Failure
}

// Recorder collects report entries from concurrently processed files.
// The zero value is ready to use; a nil Recorder discards everything.
type Recorder struct {
	mu     sync.Mutex
	report Report
}

// File records a file that reached the pipeline destination.
func (r *Recorder) File(path string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.report.Files = append(r.report.Files, path)
	r.mu.Unlock()
}

// Rewrite records a changed module reference.
func (r *Recorder) Rewrite(rw Rewrite) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.report.Rewrites = append(r.report.Rewrites, rw)
	r.mu.Unlock()
}

// Failure records a caught per-file or per-reference error.
func (r *Recorder) Failure(file, stage string, err error) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.report.Failures = append(r.report.Failures, Failure{File: file, Stage: stage, Err: err.Error()})
	r.mu.Unlock()
}

// Report returns a sorted snapshot of everything recorded so far.
func (r *Recorder) Report(operation, root string) *Report {
	rep := &Report{Operation: operation, Root: root}
	if r == nil {
		return rep
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rep.Files = append([]string(nil), r.report.Files...)
	rep.Rewrites = append([]Rewrite(nil), r.report.Rewrites...)
	rep.Failures = append([]Failure(nil), r.report.Failures...)

	sort.Strings(rep.Files)
	sort.SliceStable(rep.Rewrites, func(i, j int) bool {
		return rep.Rewrites[i].File < rep.Rewrites[j].File
	})
	sort.SliceStable(rep.Failures, func(i, j int) bool {
		return rep.Failures[i].File < rep.Failures[j].File
	})
	return rep
}
