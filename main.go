// empathy installs npm dependencies as path-addressed assets and converts
// published sources back to bare module specifiers.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/phobologic/empathy/internal/config"
	"github.com/phobologic/empathy/internal/empathy"
	"github.com/phobologic/empathy/internal/manifest"
	"github.com/phobologic/empathy/internal/model"
	"github.com/phobologic/empathy/internal/stage"
	"github.com/phobologic/empathy/internal/toon"
)

var version = "dev"

const logo = "  ___ _ __ ___  _ __   __ _| |_| |__  _   _\n" +
	" / _ \\ '_ ` _ \\| '_ \\ / _` | __| '_ \\| | | |\n" +
	"|  __/ | | | | | |_) | (_| | |_| | | | |_| |\n" +
	" \\___|_| |_| |_| .__/ \\__,_|\\__|_| |_|\\__, |\n" +
	"               |_|                     |___/\n"

var errNoSources = errors.New("you must specify at least one input source glob to be published")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolving working directory: %w", err)
	}
	return newApp(cwd, stdout, stderr, nil).execute(args)
}

// app carries what every subcommand needs. installer overrides the
// configured package manager when set.
type app struct {
	cwd       string
	tempDir   string
	stdout    io.Writer
	stderr    io.Writer
	installer stage.Installer
	cfgFile   string
}

func newApp(cwd string, stdout, stderr io.Writer, installer stage.Installer) *app {
	return &app{cwd: cwd, stdout: stdout, stderr: stderr, installer: installer}
}

func (a *app) execute(args []string) error {
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	return root.Execute()
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "empathy",
		Short:         "Empathy manipulates JavaScript module specifiers in NPM packages",
		Long:          logo + "\nEmpathy manipulates JavaScript module specifiers in NPM packages.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ./"+config.FileName+")")
	root.PersistentFlags().Bool("verbose", false, "enable verbose output")
	root.PersistentFlags().Bool("report", false, "print a TOON report of every rewrite to stdout")
	root.PersistentFlags().Int("workers", 0, "files processed concurrently (default GOMAXPROCS)")

	root.AddCommand(a.installCmd(), a.publishCmd(), a.initCmd())
	return root
}

func (a *app) installCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install NPM dependencies as assets with path specifiers",
		Long: `Installs NPM packages as assets to a local directory. Assets have their
module specifiers "fixed" as browser-compatible path specifiers.`,
		Example: "  empathy install [-a <directory>] [-o <packages>] [-i <packages>]",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := a.logger(cfg)

			deps, err := manifest.AssetDependencies(a.cwd, cfg.Only, cfg.Ignore)
			if err != nil {
				return err
			}

			installer := a.installer
			if installer == nil {
				installer = stage.NPM{Command: cfg.NPMCommand}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.InstallTimeout)
			defer cancel()

			svc := empathy.New(empathy.Options{
				Logger:    logger,
				Installer: installer,
				TempDir:   a.tempDir,
				Workers:   cfg.Workers,
			})
			rep, err := svc.ApplyEmpathy(ctx, cfg.AssetsDirectory, deps)
			if err != nil {
				return err
			}

			logger.Info(fmt.Sprintf("Assets installed to %q", a.pretty(cfg.AssetsDirectory)))
			return a.printReport(cfg, rep)
		},
	}

	cmd.Flags().StringP("assets-directory", "a", "assets", "path where assets should be installed")
	cmd.Flags().StringSliceP("only", "o", nil, "dependency package names to convert to assets (excludes others)")
	cmd.Flags().StringSliceP("ignore", "i", nil, "dependency package names to ignore (includes others)")
	cmd.Flags().String("npm-command", "npm", "package manager executable used to stage dependencies")
	cmd.Flags().Duration("install-timeout", config.DefaultConfig().InstallTimeout, "abort staging and copying after this long")
	return cmd
}

func (a *app) publishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish [source globs...]",
		Short: "Convert local sources from path specifiers to names where appropriate",
		Long: `Converts local sources to use NPM package name specifiers where appropriate.
Only specifiers that refer to NPM package dependencies will be converted.
Generated sources are placed in an output directory.`,
		Example: "  empathy publish -s <source globs> [-a <directory>] [-d <directory>]",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := a.logger(cfg)

			sources := append(append([]string(nil), cfg.Sources...), args...)
			if len(sources) == 0 {
				_ = cmd.Usage()
				return errNoSources
			}

			svc := empathy.New(empathy.Options{Logger: logger, Workers: cfg.Workers})
			rep, err := svc.ReverseEmpathy(cmd.Context(), a.cwd, sources, cfg.AssetsDirectory, cfg.DistDirectory)
			if err != nil {
				return err
			}

			logger.Info(fmt.Sprintf("Artifacts with name specifiers placed in %q", a.pretty(cfg.DistDirectory)))
			return a.printReport(cfg, rep)
		},
	}

	cmd.Flags().StringSliceP("sources", "s", nil, "globs of sources to convert")
	cmd.Flags().StringP("dist-directory", "d", "dist", "path where generated artifacts should be placed")
	cmd.Flags().StringP("assets-directory", "a", "assets", "path where assets are installed")
	return cmd
}

func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(config.LoadOptions{
		Dir:            a.cwd,
		ConfigFilePath: a.cfgFile,
		Flags:          cmd.Flags(),
	})
}

func (a *app) logger(cfg *config.Config) *log.Logger {
	logger := log.NewWithOptions(a.stderr, log.Options{Prefix: config.AppName})
	if cfg.Verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

func (a *app) printReport(cfg *config.Config, rep *model.Report) error {
	if !cfg.Report {
		return nil
	}
	_, err := fmt.Fprintln(a.stdout, toon.Encode(rep))
	return err
}

func (a *app) pretty(path string) string {
	rel, err := filepath.Rel(a.cwd, path)
	if err != nil {
		return path
	}
	return rel
}
