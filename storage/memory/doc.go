// Package memory provides the in-process implementation of the storage interfaces.
//
// Expiring[T] is a generic keyed store with per-record expiry. Store composes two of
// them, one for authorization codes and one for access tokens, and owns the periodic
// sweep that removes expired records.
//
// Features:
//   - Thread-safe operations using sync.RWMutex
//   - Expiry checked on every read, independent of sweep timing
//   - Atomic take for single-use authorization codes
//   - Sweep loop started and stopped by the owner, cancellable through its context
//
// Example usage:
//
//	store := memory.New(memory.WithSweepInterval(10 * time.Minute))
//	store.Start(ctx)
//	defer store.Stop()
//
//	srv, _ := server.New(store, store, config, logger)
package memory
