// Package protocol implements the voicelink wire format.
// It handles newline-terminated header lines, big-endian length-prefixed frames,
// the metadata block that follows AUDIO_START, and the tagged CHUNK/STOP units
// that carry PCM audio inside an audio session.
package protocol
