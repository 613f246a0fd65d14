// Package stage materializes declared dependencies into an isolated
// installed-module tree.
package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/phobologic/empathy/internal/specifier"
)

const (
	// ManifestName is the name declared by every staging manifest.
	ManifestName = "asset-stage"
	// ModulesDir is the directory the package manager installs into.
	ModulesDir = "node_modules"

	dirPattern = "asset_stage"
)

// Manifest is the ephemeral package manifest written before install.
type Manifest struct {
	Name         string            `json:"name"`
	Dependencies map[string]string `json:"dependencies"`
}

// Installer installs the dependencies declared by the manifest in dir.
type Installer interface {
	Install(ctx context.Context, dir string) error
}

// NPM runs the npm client as an Installer.
type NPM struct {
	Command string   // Defaults to "npm"
	Args    []string // Defaults to ["install"]
}

// Install runs the package manager synchronously in dir.
func (n NPM) Install(ctx context.Context, dir string) error {
	command := n.Command
	if command == "" {
		command = "npm"
	}
	args := n.Args
	if len(args) == 0 {
		args = []string{"install"}
	}

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", command, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Options configures Stage.
type Options struct {
	Logger    *log.Logger
	Installer Installer // Defaults to NPM{}
	TempDir   string    // Parent of the staging directory; defaults to os.TempDir()
}

// Stage creates a uniquely named staging directory, writes a manifest
// declaring deps, installs them and returns the installed-module directory.
// Every failure is returned; nothing is retried.
func Stage(ctx context.Context, deps map[string]string, opts Options) (string, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	installer := opts.Installer
	if installer == nil {
		installer = NPM{}
	}
	if deps == nil {
		deps = map[string]string{}
	}

	dir, err := os.MkdirTemp(opts.TempDir, dirPattern)
	if err != nil {
		return "", fmt.Errorf("creating staging directory: %w", err)
	}
	logger.Info("Staging asset dependencies", "dir", dir)

	data, err := json.Marshal(Manifest{Name: ManifestName, Dependencies: deps})
	if err != nil {
		return "", fmt.Errorf("encoding staging manifest: %w", err)
	}
	logger.Info("Writing temporary asset manifest")
	if err := os.WriteFile(filepath.Join(dir, specifier.ManifestName), data, 0o644); err != nil {
		return "", fmt.Errorf("writing staging manifest: %w", err)
	}

	logger.Info("Installing modules to asset stage", "packages", len(deps))
	if err := installer.Install(ctx, dir); err != nil {
		return "", fmt.Errorf("installing staged dependencies: %w", err)
	}

	modules := filepath.Join(dir, ModulesDir)
	if err := os.MkdirAll(modules, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", modules, err)
	}
	return modules, nil
}
