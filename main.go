// starpugen generates cgo bindings for an installed StarPU.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/phobologic/starpugen/internal/config"
	"github.com/phobologic/starpugen/internal/locate"
	"github.com/phobologic/starpugen/internal/pipeline"
	"github.com/phobologic/starpugen/internal/target"
	"github.com/phobologic/starpugen/internal/toon"
)

var version = "dev"

const logLevelEnv = "STARPUGEN_LOG_LEVEL"

func init() {
	cobra.EnableCommandSorting = false
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	a := &app{
		runner: locate.ExecRunner{},
		lookup: os.LookupEnv,
		stdout: stdout,
		stderr: stderr,
	}
	return a.execute(args)
}

// app holds what commands need from the process, so tests can replace it.
type app struct {
	runner locate.Runner
	lookup func(string) (string, bool)
	stdout io.Writer
	stderr io.Writer

	dir        string
	configPath string
	logLevel   string
}

func (a *app) execute(args []string) error {
	root := a.newCLI()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return root.ExecuteContext(ctx)
}

func (a *app) newCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "starpugen",
		Short: "Generate cgo bindings for StarPU",
		Long: `starpugen locates StarPU through pkg-config, parses its public headers and
writes cgo binding sources into a Go package. Run it through go generate.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.generate(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.dir, "dir", "C", ".", "package directory holding the configuration and umbrella header")
	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "configuration file (default: starpugen.{yaml,yml,toml,json} in --dir)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (default $"+logLevelEnv+" or info)")

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the bindings (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.generate(cmd.Context())
		},
	}

	probeCmd := &cobra.Command{
		Use:   "probe",
		Short: "Print the resolved library and linker fixups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.options()
			if err != nil {
				return err
			}
			lib, fixups, err := pipeline.Probe(cmd.Context(), opts)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(a.stdout, toon.EncodeLibrary(lib, fixups))
			return nil
		},
	}

	symbolsCmd := &cobra.Command{
		Use:   "symbols",
		Short: "Print the generated binding surface without writing files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.options()
			if err != nil {
				return err
			}
			res, err := pipeline.Build(cmd.Context(), opts)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(a.stdout, toon.EncodeSurface(res.Surface, res.Dependencies))
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version and exit",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(a.stdout, "starpugen %s\n", version)
		},
	}

	rootCmd.AddCommand(generateCmd, probeCmd, symbolsCmd, a.newInitCmd(), versionCmd)
	return rootCmd
}

func (a *app) generate(ctx context.Context) error {
	// A documentation build must succeed without StarPU, so it is decided
	// before the configuration is read.
	if config.DocsBuild(a.lookup) {
		log, err := a.logger()
		if err != nil {
			return err
		}
		log.Info().Msg("documentation build, skipping binding generation")
		return nil
	}
	opts, err := a.options()
	if err != nil {
		return err
	}
	_, err = pipeline.Run(ctx, opts)
	return err
}

// options loads the configuration and builds the pipeline options.
func (a *app) options() (pipeline.Options, error) {
	log, err := a.logger()
	if err != nil {
		return pipeline.Options{}, err
	}

	dir, err := filepath.Abs(a.dir)
	if err != nil {
		return pipeline.Options{}, fmt.Errorf("resolving dir: %w", err)
	}

	var cfg config.Config
	if a.configPath != "" {
		cfg, err = config.Load(a.configPath)
	} else {
		cfg, err = config.LoadDir(dir)
	}
	if err != nil {
		return pipeline.Options{}, fmt.Errorf("config: %w", err)
	}
	cfg.ApplyEnv(a.lookup)

	return pipeline.Options{
		Config: cfg,
		Dir:    dir,
		Runner: a.runner,
		Target: target.NewDetector(a.lookup),
		Log:    log,
	}, nil
}

func (a *app) logger() (zerolog.Logger, error) {
	level := a.logLevel
	if level == "" {
		level, _ = a.lookup(logLevelEnv)
	}
	if level == "" {
		level = "info"
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("log level: %w", err)
	}
	w := zerolog.ConsoleWriter{Out: a.stderr, NoColor: true}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}
