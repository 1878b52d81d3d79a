package others

import (
	"os"

	"github.com/spf13/cobra"
)

// Actions defines the maintenance commands.
type Actions interface {
	GC(cmd *cobra.Command, args []string) error
	Version(cmd *cobra.Command, args []string) error
}

// Commands returns gc, version and completion.
func Commands(h Actions) []*cobra.Command {
	gcCmd := &cobra.Command{
		Use:   "gc",
		Short: "Remove orphan image blobs and stale temp files of stored runs",
		Long: "Remove orphan image blobs and stale temp files. Runs whose index is locked\n" +
			"by a running server are skipped and left for the next collection.",
		Args: cobra.NoArgs,
		RunE: h.GC,
	}
	gcCmd.Flags().StringSlice("run", nil, "only collect these runs (repeatable)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version and build information",
		Args:  cobra.NoArgs,
		RunE:  h.Version,
	}
	versionCmd.Flags().Bool("short", false, "print the version number only")

	completionCmd := &cobra.Command{
		Use:                   "completion bash|zsh|fish|powershell",
		Short:                 "Generate a shell completion script",
		DisableFlagsInUseLine: true,
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			root := cmd.Root()
			switch args[0] {
			case "bash":
				return root.GenBashCompletionV2(os.Stdout, true)
			case "zsh":
				return root.GenZshCompletion(os.Stdout)
			case "fish":
				return root.GenFishCompletion(os.Stdout, true)
			default:
				return root.GenPowerShellCompletionWithDesc(os.Stdout)
			}
		},
	}
	return []*cobra.Command{gcCmd, versionCmd, completionCmd}
}
