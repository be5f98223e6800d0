// Package audio assembles PCM chunks into a single buffer and packages it as a
// canonical WAV container. It also decodes WAV files back into PCM and format.
package audio
