package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skypro1111/voicelink-service/internal/audio"
	"github.com/skypro1111/voicelink-service/internal/client"
)

var (
	audioFile     string
	audioRate     int
	audioChannels int
	audioChunk    int
	audioOut      string
)

var audioCmd = &cobra.Command{
	Use:   "audio",
	Short: "Stream a WAV or raw PCM file and save the returned WAV",
	Long: `Streams 16-bit PCM to the server in CHUNK units and waits for the
AUDIO_RESP container. WAV input supplies its own rate and channel count;
raw input uses --rate and --channels.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if audioFile == "" {
			return fmt.Errorf("--file is required")
		}
		pcm, opts, err := loadPCM(audioFile, audioRate, audioChannels)
		if err != nil {
			return err
		}
		opts.ChunkSize = audioChunk

		ctx := cmd.Context()
		c, err := dial(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		wav, err := c.Audio(ctx, pcm, opts)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if info, err := audio.GetWAVInfo(wav); err == nil {
			fmt.Fprintf(out, "received %d bytes: %d Hz, %d ch, %.2fs\n",
				len(wav), info.SampleRate, info.Channels, info.Duration)
		} else {
			fmt.Fprintf(out, "received %d bytes\n", len(wav))
		}

		if audioOut != "" {
			if err := os.WriteFile(audioOut, wav, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", audioOut, err)
			}
			fmt.Fprintf(out, "saved %s\n", audioOut)
		}
		return nil
	},
}

func init() {
	audioCmd.Flags().StringVarP(&audioFile, "file", "f", "", "input .wav or raw 16-bit PCM file")
	audioCmd.Flags().IntVar(&audioRate, "rate", 16000, "sample rate of raw input")
	audioCmd.Flags().IntVar(&audioChannels, "channels", 1, "channel count of raw input")
	audioCmd.Flags().IntVar(&audioChunk, "chunk", client.DefaultChunkSize, "bytes per CHUNK unit")
	audioCmd.Flags().StringVarP(&audioOut, "out", "o", "", "write the returned WAV here")
}

// loadPCM reads PCM from a WAV file, or treats any other file as raw samples
func loadPCM(path string, rate, channels int) ([]byte, client.AudioOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, client.AudioOptions{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".wav") {
		pcm, format, err := audio.DecodeWAV(data)
		if err != nil {
			return nil, client.AudioOptions{}, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		if format.SampleWidth != 2 {
			return nil, client.AudioOptions{}, fmt.Errorf("%s: only 16-bit PCM is supported, got %d-bit", path, format.SampleWidth*8)
		}
		return pcm, client.AudioOptions{
			SampleRate: format.SampleRate,
			Channels:   format.Channels,
			Format:     "pcm_s16",
		}, nil
	}

	return data, client.AudioOptions{
		SampleRate: rate,
		Channels:   channels,
		Format:     "pcm_s16",
	}, nil
}
