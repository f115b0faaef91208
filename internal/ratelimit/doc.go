/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit limits the rate of inbound batch requests per client.
//
// Two algorithms are supported: leaky bucket (GCRA) and sliding window.
// State is kept per key (the client IP by default) in a bounded LRU store,
// so the number of tracked clients never exceeds the configured maximum.
package ratelimit
