// Package client speaks the voicelink protocol from the calling side: TEXT
// queries and AUDIO_START streams of tagged PCM chunks. A Client serialises
// requests on one connection, matching the server's one-request-at-a-time model.
package client
