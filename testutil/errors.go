/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import "github.com/stretchr/testify/require"

// RequireNoErrorInChannel fails if the buffered channel already holds an error.
// It does not block, so it fits checks of service fatal-error channels.
func RequireNoErrorInChannel(t require.TestingT, c <-chan error, msgAndArgs ...interface{}) {
	helper(t)
	select {
	case err := <-c:
		require.NoError(t, err, msgAndArgs...)
	default:
	}
}
