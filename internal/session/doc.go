// Package session runs the per-connection protocol state machine.
//
// A session waits for a header line, answers TEXT requests with a transformed
// echo, and collects tagged PCM chunks after AUDIO_START until the STOP unit,
// then persists the WAV container and returns it. Any read failure inside a
// request aborts the session; nothing is resynchronised.
package session
