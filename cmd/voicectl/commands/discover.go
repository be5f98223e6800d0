package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/skypro1111/voicelink-service/internal/discovery"
)

var discoverWait time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find voicelink servers advertised over mDNS",
	RunE: func(cmd *cobra.Command, args []string) error {
		found, err := discovery.Browse(cmd.Context(), discoverWait)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(found) == 0 {
			fmt.Fprintln(out, "no servers found")
			return nil
		}
		for _, s := range found {
			fmt.Fprintf(out, "%s\t%s:%d\t%v\n", s.Name, s.Host, s.Port, s.Info)
		}
		return nil
	},
}

func init() {
	discoverCmd.Flags().DurationVarP(&discoverWait, "wait", "w", 3*time.Second, "how long to listen for answers")
}
