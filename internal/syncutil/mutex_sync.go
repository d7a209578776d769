//go:build !deadlock

// Package syncutil holds the locking primitives shared by the stack
// manager: plain or deadlock-checked mutexes and the Event rendezvous used
// to wait for controller confirmations.
//
// Building with -tags=deadlock swaps every lock for its go-deadlock
// counterpart, which reports lock-order inversions between the manager's
// per-operation events.
package syncutil

import "sync"

// Mutex is a sync.Mutex unless built with the deadlock tag.
//
//nolint:gocritic // embedded to expose Lock and Unlock
type Mutex struct {
	sync.Mutex
}

// RWMutex is a sync.RWMutex unless built with the deadlock tag.
//
//nolint:gocritic // embedded to expose the lock methods
type RWMutex struct {
	sync.RWMutex
}
