package stage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeInstaller lays out one package directory per declared dependency.
type fakeInstaller struct {
	err error
}

func (f fakeInstaller) Install(_ context.Context, dir string) error {
	if f.err != nil {
		return f.err
	}
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	for name := range m.Dependencies {
		pkg := filepath.Join(dir, ModulesDir, name)
		if err := os.MkdirAll(pkg, 0o755); err != nil {
			return err
		}
		manifest := `{"name":"` + name + `","main":"index.js"}`
		if err := os.WriteFile(filepath.Join(pkg, "package.json"), []byte(manifest), 0o644); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(pkg, "index.js"), []byte("export default 1;\n"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func TestStage(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	modules, err := Stage(context.Background(), map[string]string{"left-pad": "1.0.0"}, Options{
		Logger:    log.New(io.Discard),
		Installer: fakeInstaller{},
		TempDir:   tmp,
	})
	require.NoError(t, err)

	assert.Equal(t, ModulesDir, filepath.Base(modules))
	assert.Equal(t, tmp, filepath.Dir(filepath.Dir(modules)))
	assert.DirExists(t, filepath.Join(modules, "left-pad"))

	data, err := os.ReadFile(filepath.Join(filepath.Dir(modules), "package.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"asset-stage","dependencies":{"left-pad":"1.0.0"}}`, string(data))
}

func TestStageUniqueDirectories(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	opts := Options{Logger: log.New(io.Discard), Installer: fakeInstaller{}, TempDir: tmp}

	a, err := Stage(context.Background(), nil, opts)
	require.NoError(t, err)
	b, err := Stage(context.Background(), nil, opts)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestStageInstallFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("registry unreachable")
	_, err := Stage(context.Background(), map[string]string{"x": "*"}, Options{
		Logger:    log.New(io.Discard),
		Installer: fakeInstaller{err: boom},
		TempDir:   t.TempDir(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestStageDirectoryFailure(t *testing.T) {
	t.Parallel()

	_, err := Stage(context.Background(), nil, Options{
		Logger:    log.New(io.Discard),
		Installer: fakeInstaller{},
		TempDir:   filepath.Join(t.TempDir(), "does", "not", "exist"),
	})
	assert.Error(t, err)
}

func TestNPMMissingCommand(t *testing.T) {
	t.Parallel()

	err := NPM{Command: "empathy-no-such-package-manager"}.Install(context.Background(), t.TempDir())
	assert.Error(t, err)
}
