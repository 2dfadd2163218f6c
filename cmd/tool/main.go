package tool

import (
	"github.com/spf13/cobra"

	"github.com/tidestore/tidestore/cmd/tool/journal"
)

const (
	toolUsage     = "tool"
	toolShortDesc = "Executes tools as subcommands"
	toolLongDesc  = "This command executes the specified operator tool."
	toolExample   = "tidestore tool journal inspect [flags]"
)

var (
	// Cmd is the tool command.
	Cmd = &cobra.Command{
		Use:        toolUsage,
		Short:      toolShortDesc,
		Long:       toolLongDesc,
		SuggestFor: []string{"journal"},
		Example:    toolExample,
	}
)

func init() {
	Cmd.AddCommand(journal.Cmd)
}
