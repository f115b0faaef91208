/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package lrucache provides a bounded in-memory map with LRU eviction.
// It keeps per-client state (e.g. rate limiters) without unbounded growth.
package lrucache
