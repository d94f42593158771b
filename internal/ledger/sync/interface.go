// Package sync reconciles the local store with the remote ledger service.
package sync

import "context"

// Syncer runs the three synchronization flows against the remote service.
//
// Every flow holds the store lock from its first read to its cursor stamp,
// network call included, so no other store operation interleaves with it.
// A ctx cancelled before the lock is acquired aborts the flow; once the
// flow runs, cancellation no longer reaches it.
//
// Individual entities that fail to apply are logged and skipped; the
// cursor is stamped whenever the network call succeeded.
type Syncer interface {
	// Pull fetches remote changes since the stored cursor and applies
	// them locally. Remote data wins per id.
	//
	// With no remote configured Pull does nothing and returns nil.
	Pull(ctx context.Context) (Result, error)

	// Push sends the full local dataset to the remote.
	//
	// With no remote configured Push does nothing and returns nil.
	Push(ctx context.Context) (Result, error)

	// Restore replaces all local transactions and recurring templates
	// with the remote's full dataset.
	//
	// Restore requires a remote; without one it returns
	// ErrRemoteNotConfigured and leaves the store untouched.
	Restore(ctx context.Context) (Result, error)
}
