/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package logtest provides an in-memory logger for asserting log entries in tests.
package logtest
