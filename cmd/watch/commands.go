package watch

import "github.com/spf13/cobra"

// Actions defines the notification client.
type Actions interface {
	Watch(cmd *cobra.Command, args []string) error
}

// Command builds the "watch" command.
func Command(h Actions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch URL",
		Short: "Attach to a running controller and print its notifications",
		Long: "Attach to a running controller and print its notifications.\n" +
			"URL is the controller's base address (http://host:8080); attaching\n" +
			"displaces any other observer.",
		Args: cobra.ExactArgs(1),
		RunE: h.Watch,
	}
	cmd.Flags().Bool("json", false, "print raw JSON messages")
	return cmd
}
