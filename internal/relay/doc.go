// Package relay forwards local TCP connections to an internal service through
// an SSH bastion. Each accepted connection gets its own SSH client and a
// direct-tcpip channel to the target; bytes are copied in both directions.
package relay
