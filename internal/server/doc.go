// Package server implements the TCP dispatcher that runs one protocol session
// per accepted connection, and the HTTP API used to monitor sessions, list
// persisted recordings and expose Prometheus metrics.
package server
