// Package store holds the single, process-wide handle to the
// Persistence Gateway. Callers never construct a concrete adapter
// themselves; they call store.Open once at startup and then use the
// package-level accessors, mirroring the teacher's package-scope
// Init-once singleton habit (see its auth_token.go / store.RegisterAuthScheme
// pattern).
package store

import (
	"errors"
	"sync"

	"github.com/riverline-chat/riverline/server/store/adapter"
)

var (
	mu     sync.RWMutex
	adp    adapter.Adapter
	opened bool
)

// Open registers the concrete Adapter implementation to use for the
// remainder of the process lifetime and opens its connection pool. It is
// an error to call Open twice without an intervening Close.
func Open(a adapter.Adapter, dsn string) error {
	mu.Lock()
	defer mu.Unlock()
	if opened {
		return errors.New("store: already open")
	}
	if err := a.Open(dsn); err != nil {
		return err
	}
	adp = a
	opened = true
	return nil
}

// Close releases the underlying adapter's connection pool.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if !opened {
		return nil
	}
	err := adp.Close()
	opened = false
	adp = nil
	return err
}

// IsOpen reports whether Open has succeeded and Close has not since been
// called.
func IsOpen() bool {
	mu.RLock()
	defer mu.RUnlock()
	return opened
}

// Adapter returns the process-wide Persistence Gateway. Panics if Open
// has not been called; this mirrors the teacher's own assumption that
// store accessors are only ever reached after startup wiring completes.
func Adapter() adapter.Adapter {
	mu.RLock()
	defer mu.RUnlock()
	if !opened {
		panic("store: Adapter() called before Open()")
	}
	return adp
}
