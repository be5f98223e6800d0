// Package broadcast serves a WebSocket endpoint that pushes text messages or
// synthetic PCM audio to each connected client at random intervals.
//
// It stands in for a live media feed when exercising clients that consume
// the same payload kinds the voicelink TCP service carries.
package broadcast
