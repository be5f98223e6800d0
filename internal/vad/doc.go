// Package vad provides energy-based voice activity detection for 16-bit PCM.
// Recordings are split into fixed windows whose RMS energy is compared with a
// threshold; the result is summarised as a voice ratio and voice segments.
package vad
