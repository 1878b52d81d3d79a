package runs

import "github.com/spf13/cobra"

// Actions inspects run directories left on disk.
type Actions interface {
	List(cmd *cobra.Command, args []string) error
	Images(cmd *cobra.Command, args []string) error
	Delete(cmd *cobra.Command, args []string) error
}

// Command builds the "runs" parent command.
func Command(h Actions) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect workflow runs stored under the root directory",
	}
	runsCmd.AddCommand(
		&cobra.Command{
			Use:     "list",
			Aliases: []string{"ls"},
			Short:   "List runs with image count and archive state",
			Args:    cobra.NoArgs,
			RunE:    h.List,
		},
		&cobra.Command{
			Use:   "images RUN",
			Short: "List the images captured by a run",
			Args:  cobra.ExactArgs(1),
			RunE:  h.Images,
		},
		&cobra.Command{
			Use:     "delete RUN [RUN...]",
			Aliases: []string{"rm"},
			Short:   "Delete run directories",
			Args:    cobra.MinimumNArgs(1),
			RunE:    h.Delete,
		},
	)
	return runsCmd
}
