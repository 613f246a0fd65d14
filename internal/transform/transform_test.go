package transform

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/empathy/internal/model"
	"github.com/phobologic/empathy/internal/pipeline"
	"github.com/phobologic/empathy/internal/specifier"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func testOptions() Options {
	return Options{Logger: log.New(io.Discard), Recorder: &model.Recorder{}}
}

// runStages streams the given files under base through stages, writing the
// results back in place.
func runStages(t *testing.T, opts Options, base string, rels []string, stages ...pipeline.Stage) {
	t.Helper()
	var files []*model.ModuleFile
	for _, rel := range rels {
		files = append(files, model.NewModuleFile(filepath.Join(base, filepath.FromSlash(rel)), base))
	}
	p := pipeline.New(pipeline.Options{Logger: opts.Logger, Recorder: opts.Recorder}, stages...)
	require.NoError(t, p.Run(context.Background(), files, pipeline.DirSink{Dir: base}))
}

func stagedTree(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "node_modules")
	writeFile(t, root, "pkg-a/package.json", `{"name":"pkg-a","main":"index.js"}`)
	writeFile(t, root, "pkg-a/index.js", "export * from 'pkg-a/lib/x';\n")
	writeFile(t, root, "pkg-a/lib/x.js", `import { b } from 'pkg-b';
import { y } from './y.js';
export { c } from "@scope/pkg-c/c";
export const x = b + y;
`)
	writeFile(t, root, "pkg-a/lib/y.js", "export const y = 1;\n")
	writeFile(t, root, "pkg-b/package.json", `{"name":"pkg-b","module":"b.mjs"}`)
	writeFile(t, root, "pkg-b/b.mjs", "export const b = 2;\n")
	writeFile(t, root, "@scope/pkg-c/package.json", `{"name":"@scope/pkg-c"}`)
	writeFile(t, root, "@scope/pkg-c/c.js", "export const c = 3;\n")
	return root
}

var stagedFiles = []string{"pkg-a/index.js", "pkg-a/lib/x.js", "pkg-a/lib/y.js", "pkg-b/b.mjs", "@scope/pkg-c/c.js"}

func TestForwardChain(t *testing.T) {
	t.Parallel()

	root := stagedTree(t)
	opts := testOptions()
	runStages(t, opts, root, stagedFiles, Forward(root, opts)...)

	assert.Equal(t, `/// BareSpecifier=pkg-a/lib/x
import { b } from '../../pkg-b/b.mjs';
import { y } from './y.js';
export { c } from "../../@scope/pkg-c/c.js";
export const x = b + y;
`, readFile(t, root, "pkg-a/lib/x.js"))

	assert.Equal(t, "/// BareSpecifier=pkg-a/index\nexport * from './lib/x.js';\n", readFile(t, root, "pkg-a/index.js"))
	assert.Equal(t, "/// BareSpecifier=pkg-b/b\nexport const b = 2;\n", readFile(t, root, "pkg-b/b.mjs"))

	for _, rel := range stagedFiles {
		doc := readFile(t, root, rel)
		assert.NotContains(t, doc, "from 'pkg-", rel)
	}

	rep := opts.Recorder.Report("install", root)
	assert.Empty(t, rep.Failures)
	assert.Len(t, rep.Rewrites, 3)
}

func TestBareToPathIdempotent(t *testing.T) {
	t.Parallel()

	root := stagedTree(t)
	runStages(t, testOptions(), root, stagedFiles, BareToPath(root, testOptions()))
	first := readFile(t, root, "pkg-a/lib/x.js")

	opts := testOptions()
	runStages(t, opts, root, stagedFiles, BareToPath(root, opts))
	assert.Equal(t, first, readFile(t, root, "pkg-a/lib/x.js"))
	assert.Empty(t, opts.Recorder.Report("install", root).Rewrites)
}

func TestBareToPathUnresolvableReferenceKept(t *testing.T) {
	t.Parallel()

	root := stagedTree(t)
	writeFile(t, root, "pkg-d/package.json", `{"name":"pkg-d"}`)
	writeFile(t, root, "pkg-d/d.js", "import 'missing-pkg';\nimport { b } from 'pkg-b';\n")

	opts := testOptions()
	runStages(t, opts, root, []string{"pkg-d/d.js"}, BareToPath(root, opts))

	assert.Equal(t, "import 'missing-pkg';\nimport { b } from '../pkg-b/b.mjs';\n", readFile(t, root, "pkg-d/d.js"))
	rep := opts.Recorder.Report("install", root)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, StageBareToPath, rep.Failures[0].Stage)
}

func TestForwardChainSyntaxErrorIsolated(t *testing.T) {
	t.Parallel()

	root := stagedTree(t)
	writeFile(t, root, "pkg-b/broken.js", "import { from 'pkg-a';\n")

	opts := testOptions()
	runStages(t, opts, root, []string{"pkg-b/broken.js", "pkg-b/b.mjs"}, Forward(root, opts)...)

	assert.Equal(t, "/// BareSpecifier=pkg-b/broken\nimport { from 'pkg-a';\n", readFile(t, root, "pkg-b/broken.js"))
	assert.Equal(t, "/// BareSpecifier=pkg-b/b\nexport const b = 2;\n", readFile(t, root, "pkg-b/b.mjs"))

	rep := opts.Recorder.Report("install", root)
	require.NotEmpty(t, rep.Failures)
	for _, f := range rep.Failures {
		assert.Equal(t, filepath.Join("pkg-b", "broken.js"), f.File)
	}
}

func TestMarkResolutionOutsidePackage(t *testing.T) {
	t.Parallel()

	root := stagedTree(t)
	writeFile(t, root, "loose.js", "export default 1;\n")

	opts := testOptions()
	runStages(t, opts, root, []string{"loose.js"}, MarkResolution(root, opts))

	assert.Equal(t, "export default 1;\n", readFile(t, root, "loose.js"))
	rep := opts.Recorder.Report("install", root)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, StageMarkResolution, rep.Failures[0].Stage)
}

func TestInjectProcessModuleSingleton(t *testing.T) {
	t.Parallel()

	root := stagedTree(t)
	users := []string{"pkg-a/lib/env.js", "pkg-a/env2.js", "pkg-b/deep/er/env.js", "@scope/pkg-c/env.js", "pkg-b/env.js"}
	for _, rel := range users {
		writeFile(t, root, rel, "export const mode = process.env.NODE_ENV;\n")
	}
	writeFile(t, root, "pkg-b/declared.js", "const process = { env: {} };\nexport const m = process.env.X;\n")
	writeFile(t, root, "pkg-b/plain.js", "export const processed = 1;\n")

	opts := testOptions()
	var mu sync.Mutex
	var stubs []string
	sink := pipeline.SinkFunc(func(ctx context.Context, f *model.ModuleFile) error {
		if f.Synthetic {
			mu.Lock()
			stubs = append(stubs, f.Path)
			mu.Unlock()
		}
		return pipeline.DirSink{Dir: root}.Write(ctx, f)
	})

	var files []*model.ModuleFile
	for _, rel := range append(users, "pkg-b/declared.js", "pkg-b/plain.js") {
		files = append(files, model.NewModuleFile(filepath.Join(root, filepath.FromSlash(rel)), root))
	}
	p := pipeline.New(pipeline.Options{Logger: log.New(io.Discard), Workers: 4}, Forward(root, opts)...)
	require.NoError(t, p.Run(context.Background(), files, sink))

	require.Equal(t, []string{filepath.Join(root, "process.js")}, stubs)
	assert.Equal(t, processStubSource, readFile(t, root, "process.js"))

	for _, rel := range users {
		contents := readFile(t, root, rel)
		lines := strings.SplitN(contents, "\n", 3)
		require.Len(t, lines, 3, rel)
		assert.True(t, strings.HasPrefix(lines[0], specifier.MarkerPrefix+"="), rel)

		want, err := specifier.Relative(filepath.Join(root, filepath.FromSlash(rel)), filepath.Join(root, "process.js"))
		require.NoError(t, err)
		assert.Equal(t, "import { process } from '"+want+"';", lines[1], rel)
	}

	assert.NotContains(t, readFile(t, root, "pkg-b/declared.js"), "import { process }")
	assert.NotContains(t, readFile(t, root, "pkg-b/plain.js"), "import { process }")
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	project := t.TempDir()
	assets := filepath.Join(project, "assets")
	stage := stagedTree(t)
	runStages(t, testOptions(), stage, stagedFiles, Forward(stage, testOptions())...)
	require.NoError(t, os.Rename(stage, assets))

	for _, rel := range stagedFiles {
		target := filepath.Join(assets, filepath.FromSlash(rel))
		want, err := specifier.ForPath(target, assets)
		require.NoError(t, err)

		src := filepath.Join(project, "src", "app.js")
		path, err := specifier.Relative(src, target)
		require.NoError(t, err)
		writeFile(t, project, "src/app.js", "import '"+path+"';\n")

		runStages(t, testOptions(), project, []string{"src/app.js"}, PathToBare(assets, testOptions()))
		assert.Equal(t, "import '"+want+"';\n", readFile(t, project, "src/app.js"), rel)
	}
}

func TestPathToBare(t *testing.T) {
	t.Parallel()

	project := t.TempDir()
	assets := filepath.Join(project, "assets")
	writeFile(t, assets, "left-pad/package.json", `{"name":"left-pad","main":"index.js"}`)
	writeFile(t, assets, "left-pad/index.js", "module.exports = leftPad;\n")
	writeFile(t, assets, "relocated/x.js", "/// BareSpecifier=pkg-a/lib/x\nexport const x = 1;\n")
	writeFile(t, project, "src/util.js", "export const u = 1;\n")
	writeFile(t, project, "assets-other/z.js", "")
	writeFile(t, project, "src/app.js", `import leftPad from '../assets/left-pad/index.js';
import { x } from '../assets/relocated/x.js';
import { u } from './util.js';
import { z } from '../assets-other/z.js';
import { missing } from '../assets/nowhere/m.js';
import lit from 'lit-html';
export * from '../assets/left-pad';
`)

	opts := testOptions()
	runStages(t, opts, project, []string{"src/app.js"}, PathToBare(assets, opts))

	assert.Equal(t, `import leftPad from 'left-pad/index';
import { x } from 'pkg-a/lib/x';
import { u } from './util.js';
import { z } from '../assets-other/z.js';
import { missing } from '../assets/nowhere/m.js';
import lit from 'lit-html';
export * from 'left-pad';
`, readFile(t, project, "src/app.js"))

	rep := opts.Recorder.Report("publish", project)
	assert.Len(t, rep.Rewrites, 3)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, StagePathToBare, rep.Failures[0].Stage)
}

func TestPathToBareUnsupportedPassThrough(t *testing.T) {
	t.Parallel()

	project := t.TempDir()
	writeFile(t, project, "src/style.css", "@import '../assets/x.css';\n")

	opts := testOptions()
	runStages(t, opts, project, []string{"src/style.css"}, PathToBare(filepath.Join(project, "assets"), opts))
	assert.Equal(t, "@import '../assets/x.css';\n", readFile(t, project, "src/style.css"))
	assert.Empty(t, opts.Recorder.Report("publish", project).Failures)
}
