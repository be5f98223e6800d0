package commands

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/skypro1111/voicelink-service/internal/client"
)

var (
	serverAddr string
	timeout    time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "voicectl",
	Short: "voicelink protocol client",
	Long: `voicectl talks to a voicelink server over its framed TCP protocol.

It sends text queries, streams PCM audio from WAV or raw files and saves
the WAV container the server returns.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverAddr, "addr", "a", "127.0.0.1:8888", "server host:port")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", client.DefaultTimeout, "per-request timeout")

	rootCmd.AddCommand(textCmd)
	rootCmd.AddCommand(audioCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(discoverCmd)
}

// dial connects using the global flags
func dial(ctx context.Context) (*client.Client, error) {
	return client.Dial(ctx, serverAddr, client.WithTimeout(timeout))
}
