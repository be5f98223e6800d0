// Package storage persists finished audio containers. FileStore abstracts the
// backend (local directory or S3-compatible bucket) and Namer produces
// collision-free artifact names from the peer address and time.
package storage
