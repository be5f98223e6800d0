package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var textCmd = &cobra.Command{
	Use:   "text <query>...",
	Short: "Send a TEXT query and print the response",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := dial(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.Text(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp)
		return nil
	},
}
