/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package service runs the process lifecycle: a tree of units that are started together
// and stopped together on a shutdown signal or on the first fatal error.
package service

// Unit represents a service unit that can be started and stopped.
type Unit interface {
	// Start begins the unit's operation. It may return immediately or block for the unit's lifetime.
	// A failed start is reported by writing to fatalErr; a successful one must never write to it.
	Start(fatalErr chan<- error)

	// Stop halts the unit. It may be called even if Start has failed or was never called.
	Stop(gracefully bool) error
}
