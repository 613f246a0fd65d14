package transform

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/phobologic/empathy/internal/model"
	"github.com/phobologic/empathy/internal/parse"
	"github.com/phobologic/empathy/internal/pipeline"
	"github.com/phobologic/empathy/internal/specifier"
)

// ProcessGlobal is the reserved global that gets a synthetic module.
const ProcessGlobal = "process"

const (
	processStubName   = "process.js"
	processStubSource = "export const process = { env: { NODE_ENV: 'production' } };\n"
)

// processStub holds the one synthetic process module of a pipeline run.
type processStub struct {
	once sync.Once
	file *model.ModuleFile
}

// get returns the stub, creating it under base on first use. created is
// true only for the caller that created it.
func (s *processStub) get(base string) (file *model.ModuleFile, created bool) {
	s.once.Do(func() {
		s.file = model.NewSyntheticFile(filepath.Join(base, processStubName), base, []byte(processStubSource))
		created = true
	})
	return s.file, created
}

// InjectProcessModule prepends an import of a shared stub module to every
// file that uses process without declaring it at top level. The stub is
// emitted once, alongside the first file that needed it.
func InjectProcessModule(opts Options) pipeline.Stage {
	stub := &processStub{}
	logger := opts.logger()

	return pipeline.Expand(StageInjectProcess, func(ctx context.Context, f *model.ModuleFile) ([]*model.ModuleFile, error) {
		out := []*model.ModuleFile{f}

		contents, err := f.Contents()
		if err != nil {
			return out, err
		}
		if !bytes.Contains(contents, []byte(ProcessGlobal)) {
			return out, nil
		}

		doc, err := parse.File(ctx, f.Path, contents)
		if err != nil {
			return out, err
		}
		if !doc.References(ProcessGlobal) || doc.Declares(ProcessGlobal) {
			return out, nil
		}

		stubFile, created := stub.get(f.Base)
		rel, err := specifier.Relative(f.Path, stubFile.Path)
		if err != nil {
			return out, err
		}

		logger.Info("Prepending process module", "file", f.Relative())
		header := fmt.Sprintf("import { %s } from '%s';\n", ProcessGlobal, rel)
		f.SetContents(append([]byte(header), contents...))

		if created {
			out = append(out, stubFile)
		}
		return out, nil
	})
}
