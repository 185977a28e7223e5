package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stackfold/stackfold/pkg/must"
)

var (
	rootCmd = &cobra.Command{
		Use:               "stackfold",
		Short:             "Convert Java profiler dumps into folded flame-graph stacks",
		Long:              "Convert Java profiler dumps (hprof text, honest-profiler hpl) into the folded-stacks text format consumed by flamegraph.pl and compatible renderers",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: applyConfigFile,
	}

	logLevel   string
	outputPath string
	configPath string

	discardLineNo     bool
	discardThread     bool
	shortenPkgs       bool
	skipMissingFrames bool
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&logLevel, "log-level", "l", "info", "log level (`debug`, `info`, `warn`, `error`)")
	flags.StringVarP(&outputPath, "output", "o", "", "write folded stacks to this file instead of stdout")
	flags.StringVarP(&configPath, "config", "c", "", "path to YAML file with option defaults")
	flags.BoolVar(&discardLineNo, "discard-lineno", false, "drop line numbers from frame labels")
	flags.BoolVar(&discardThread, "discard-thread", false, "drop thread pseudo-frames")
	flags.BoolVar(&shortenPkgs, "shorten-pkgs", false, "abbreviate package names: foo.bar.Class.m -> f.b.Class.m")
	flags.BoolVar(&skipMissingFrames, "skip-missing-frames", false, "drop traces referencing undefined frames instead of substituting a placeholder")

	must.Must(rootCmd.MarkPersistentFlagFilename("config", "yaml", "yml"))
	must.Must(rootCmd.MarkPersistentFlagFilename("output"))
}

// configFile mirrors the persistent flags; explicitly-set flags win over it.
type configFile struct {
	LogLevel          string `yaml:"log_level"`
	DiscardLineNo     bool   `yaml:"discard_lineno"`
	DiscardThread     bool   `yaml:"discard_thread"`
	ShortenPkgs       bool   `yaml:"shorten_pkgs"`
	SkipMissingFrames bool   `yaml:"skip_missing_frames"`
}

func applyConfigFile(cmd *cobra.Command, _ []string) error {
	if configPath == "" {
		return nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var conf configFile
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	flags := cmd.Flags()
	if !flags.Changed("log-level") && conf.LogLevel != "" {
		logLevel = conf.LogLevel
	}
	if !flags.Changed("discard-lineno") {
		discardLineNo = conf.DiscardLineNo
	}
	if !flags.Changed("discard-thread") {
		discardThread = conf.DiscardThread
	}
	if !flags.Changed("shorten-pkgs") {
		shortenPkgs = conf.ShortenPkgs
	}
	if !flags.Changed("skip-missing-frames") {
		skipMissingFrames = conf.SkipMissingFrames
	}
	return nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
