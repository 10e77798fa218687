package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wippyai/il-weaver/il"
	"github.com/wippyai/il-weaver/store"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm <module>",
	Short: "Print the method listings of a module",
	Example: `
# Everything
weave disasm lib/App.ilm

# One type, or one method
weave disasm lib/App.ilm --member App.Service::*
weave disasm lib/App.ilm --member App.Service::Run
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		m, err := store.NewFiles(false).Load(args[0])
		if err != nil {
			return err
		}
		filter, _ := cmd.Flags().GetString("member")

		out := cmd.OutOrStdout()
		woven := ""
		if m.Flags&il.ModuleFlagWoven != 0 {
			woven = " (woven)"
		}
		fmt.Fprintf(out, ".module %s%s\n.mvid %s\n", m.Name, woven, m.MVID)
		for _, td := range m.Types {
			for _, md := range td.Methods {
				if !selected(filter, td.FullName(), md.Name) {
					continue
				}
				fmt.Fprintf(out, "\n// %s::%s\n%s", td.FullName(), md.Name, il.Disassemble(m, md))
			}
		}
		return nil
	},
}

// selected matches "Ns.Type::Member", "Ns.Type::*" and "Member" filters.
func selected(filter, typeName, member string) bool {
	if filter == "" || filter == member {
		return true
	}
	if t, ok := strings.CutSuffix(filter, "::*"); ok {
		return t == typeName
	}
	return filter == typeName+"::"+member
}

func init() {
	disasmCmd.Flags().String("member", "", "Only list matching methods")
	rootCmd.AddCommand(disasmCmd)
}
