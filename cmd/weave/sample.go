package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wippyai/il-weaver/internal/fixture"
	"github.com/wippyai/il-weaver/store"
)

var sampleCmd = &cobra.Command{
	Use:   "sample <dir>",
	Short: "Write a sample annotated module and its aspects",
	Long: `Sample writes Aspects.ilm, a module of annotation types, and Demo.ilm, a
module using them, into dir. Their hooks report to the Host.Trace host type,
which "weave inspect" provides.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		dir := args[0]
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		if err := fixture.Write(store.NewFiles(false), dir); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s\n",
			fixture.Path(dir, fixture.AspectsModule), fixture.Path(dir, fixture.DemoModule))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sampleCmd)
}
