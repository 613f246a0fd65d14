package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/phobologic/empathy/internal/config"
)

const (
	sentinelStart = "# empathy:start"
	sentinelEnd   = "# empathy:end"
)

// initCmd implements `empathy init`, which keeps installed assets out of
// version control and writes a starter config file.
func (a *app) initCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Ignore the assets directory in .gitignore and write a default config",
		Long: `Writes an empathy section to .gitignore listing the assets directory. The
section is wrapped in sentinel comments so it can be updated in place on
subsequent runs without touching surrounding content. A default ` + config.FileName + `
is created when none exists.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}

			gitignore := filepath.Join(a.cwd, ".gitignore")
			existing, _ := os.ReadFile(gitignore)
			updated := applySection(string(existing), generateSection(a.pretty(cfg.AssetsDirectory)))

			if dryRun {
				_, _ = fmt.Fprint(a.stdout, updated)
				return nil
			}

			if err := os.WriteFile(gitignore, []byte(updated), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", gitignore, err)
			}
			_, _ = fmt.Fprintf(a.stderr, "wrote empathy section to %s\n", gitignore)

			cfgPath := filepath.Join(a.cwd, config.FileName)
			if _, err := os.Stat(cfgPath); err == nil {
				return nil
			}
			data, err := defaultConfigYAML()
			if err != nil {
				return err
			}
			if err := os.WriteFile(cfgPath, data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", cfgPath, err)
			}
			_, _ = fmt.Fprintf(a.stderr, "wrote %s\n", cfgPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the resulting .gitignore without modifying anything")
	cmd.Flags().StringP("assets-directory", "a", "assets", "path where assets are installed")
	return cmd
}

// generateSection returns the sentinel-wrapped .gitignore block for dir.
func generateSection(dir string) string {
	entry := "/" + strings.TrimPrefix(filepath.ToSlash(dir), "/") + "/"
	return sentinelStart + "\n" + entry + "\n" + sentinelEnd
}

func defaultConfigYAML() ([]byte, error) {
	cfg := config.DefaultConfig()
	cfg.Workers = 0
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding default config: %w", err)
	}
	return data, nil
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not. It is a pure function for easy testing.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if len(content) > 0 {
		content += "\n"
	}
	return content + section + "\n"
}
