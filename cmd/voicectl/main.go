// voicectl is a command line client for the voicelink TCP service.
//
// Usage:
//
//	voicectl text "hello"                                   # send a TEXT query
//	voicectl audio --file in.wav --out resp.wav             # stream a WAV file
//	voicectl audio --file in.pcm --rate 8000 --channels 1   # stream raw 16-bit PCM
//	voicectl ping --count 3                                 # measure round trips
//	voicectl discover                                       # find servers via mDNS
package main

import (
	"os"

	"github.com/skypro1111/voicelink-service/cmd/voicectl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
