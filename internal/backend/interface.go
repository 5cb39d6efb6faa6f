// Package backend opens the configured ports.Store: SQLite for real
// deployments, memory for demos and tests.
package backend

import (
	"context"

	"subtrack/internal/ports"
)

// CleanupFunc releases whatever the store holds open.
type CleanupFunc func() error

// BackendResult is an opened store plus the function that closes it.
type BackendResult struct {
	Store   ports.Store
	Cleanup CleanupFunc
}

// Factory opens stores.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config selects a store. SQLiteDBPath is only read for SQLiteBackend.
type Config struct {
	Type         BackendType
	SQLiteDBPath string
}

// BackendType names a store implementation; values match DATA_BACKEND.
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid reports whether bt is one of the known backends.
func (bt BackendType) IsValid() bool {
	for _, known := range GetBackendTypes() {
		if bt == known {
			return true
		}
	}
	return false
}
