// Package catalog indexes persisted recordings so they can be listed and
// looked up without scanning the storage backend. Entries are JSON documents
// keyed "recordings:<id>" in BadgerDB, or kept in memory.
package catalog
