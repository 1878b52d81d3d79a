package serve

import "github.com/spf13/cobra"

// Actions defines the long-running controller operation.
type Actions interface {
	Serve(cmd *cobra.Command, args []string) error
}

// Command builds the "serve" command.
func Command(h Actions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the workflow controller and its HTTP API",
		Args:  cobra.NoArgs,
		RunE:  h.Serve,
	}
	cmd.Flags().String("listen", "", "HTTP listen address (overrides config)")
	cmd.Flags().Duration("poll-interval", 0, "capture device poll interval (overrides config)")
	return cmd
}
