// Package storage groups the durable core.Store backends: sqlite for a
// single-file database and redis for a shared in-memory server.
package storage
