//go:build deadlock

package syncutil

import deadlock "github.com/sasha-s/go-deadlock"

// Mutex reports lock-order problems through go-deadlock.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex reports lock-order problems through go-deadlock.
type RWMutex struct {
	deadlock.RWMutex
}
