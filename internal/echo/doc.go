// Package echo provides plain TCP echo services used as peers for the relay:
// a byte echo, and a prefixed echo standing in for an internal service.
package echo
