package main

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/il-weaver/config"
	"github.com/wippyai/il-weaver/errors"
	"github.com/wippyai/il-weaver/resolve"
	"github.com/wippyai/il-weaver/store"
	"github.com/wippyai/il-weaver/vm"
	"github.com/wippyai/il-weaver/weave"
)

var rootCmd = &cobra.Command{
	Use:   "weave <module>",
	Short: "Weave annotation hooks into an il module",
	Long: `Weave rewrites the annotated members of an il module in place so that the
hooks declared by their annotation types run on entry, on exit, on faults and
around property access.

Referenced modules are searched in the configured search paths and next to
the module being woven. Settings are read from weaver.toml, found by walking
up from the module's directory, and can be overridden by flags.`,
	Example: `
# Weave a module in place
weave lib/App.ilm

# Keep going when a member cannot be woven
weave --isolate -I vendor lib/App.ilm

# Try it on the bundled sample
weave sample /tmp/demo && weave /tmp/demo/Demo.ilm
  `,
	Args:          cobra.ExactArgs(1),
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		path := args[0]
		cfg, err := settings(cmd, filepath.Dir(path))
		if err != nil {
			return err
		}
		log, err := setupLogging(cfg)
		if err != nil {
			return err
		}
		defer log.Sync()

		rep, err := weave.WeaveFile(path, weave.Config{
			SearchPaths:    cfg.SearchPathsAbs(),
			ExcludeMembers: cfg.Exclude,
			Isolate:        cfg.Isolate,
			RegenerateMVID: cfg.RegenerateMVID,
			Verify:         cfg.Verify,
		})
		if stderrors.Is(err, errors.AlreadyWoven("")) {
			log.Info("module already woven", zap.String("path", path))
			fmt.Fprintf(cmd.OutOrStdout(), "%s: already woven\n", path)
			return nil
		}
		if err != nil {
			return err
		}

		for _, s := range rep.Skipped {
			log.Info("skipped", zap.String("member", s.Member), zap.String("reason", s.Reason))
		}
		for _, f := range rep.Failures {
			log.Warn("not woven", zap.String("member", f.Member), zap.Error(f.Err))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d methods, %d properties, %d parameters woven",
			rep.Module, len(rep.Methods), len(rep.Properties), rep.Parameters)
		if n := len(rep.Failures); n > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), ", %d failed", n)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to weaver.toml (default: discovered from the module directory)")
	rootCmd.PersistentFlags().StringSliceP("search-path", "I", nil, "Directory searched for referenced modules (repeatable)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")

	rootCmd.Flags().Bool("isolate", false, "Roll back failing members and continue")
	rootCmd.Flags().Bool("regenerate-mvid", false, "Assign a new module version id to the woven module")
	rootCmd.Flags().Bool("verify", false, "Validate the module structure after weaving")
	rootCmd.Flags().StringSlice("exclude", nil, "Member pattern never woven, e.g. Ns.Type::Member or Ns.Type::* (repeatable)")
}

// settings loads weaver.toml and applies the flags set on cmd.
func settings(cmd *cobra.Command, dir string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.Discover(dir)
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if paths, _ := flags.GetStringSlice("search-path"); len(paths) > 0 {
		cfg.SearchPaths = append(absPaths(paths), cfg.SearchPaths...)
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Lookup("isolate") != nil {
		if flags.Changed("isolate") {
			cfg.Isolate, _ = flags.GetBool("isolate")
		}
		if flags.Changed("regenerate-mvid") {
			cfg.RegenerateMVID, _ = flags.GetBool("regenerate-mvid")
		}
		if flags.Changed("verify") {
			cfg.Verify, _ = flags.GetBool("verify")
		}
		if exclude, _ := flags.GetStringSlice("exclude"); len(exclude) > 0 {
			cfg.Exclude = append(cfg.Exclude, exclude...)
		}
	}
	return cfg, nil
}

func absPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		out = append(out, p)
	}
	return out
}

// setupLogging builds the logger from cfg and installs it in every package.
func setupLogging(cfg *config.Config) (*zap.Logger, error) {
	log, err := cfg.Logger()
	if err != nil {
		return nil, err
	}
	weave.SetLogger(log.Named("weave"))
	resolve.SetLogger(log.Named("resolve"))
	store.SetLogger(log.Named("store"))
	vm.SetLogger(log.Named("vm"))
	return log, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
