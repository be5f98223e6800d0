package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var pingCount int

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure TEXT round trips on one session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if pingCount < 1 {
			return fmt.Errorf("count must be at least 1")
		}

		ctx := cmd.Context()
		start := time.Now()
		c, err := dial(ctx)
		if err != nil {
			return err
		}
		defer c.Close()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "connected to %s in %v\n", c.RemoteAddr(), time.Since(start).Round(time.Microsecond))

		var total time.Duration
		for i := 1; i <= pingCount; i++ {
			sent := time.Now()
			if _, err := c.Text(ctx, fmt.Sprintf("ping %d", i)); err != nil {
				return err
			}
			rtt := time.Since(sent)
			total += rtt
			fmt.Fprintf(out, "seq=%d time=%v\n", i, rtt.Round(time.Microsecond))
		}
		fmt.Fprintf(out, "%d requests, avg %v\n", pingCount, (total / time.Duration(pingCount)).Round(time.Microsecond))
		return nil
	},
}

func init() {
	pingCmd.Flags().IntVarP(&pingCount, "count", "n", 1, "number of requests")
}
