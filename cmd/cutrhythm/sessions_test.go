package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionsLimitDefaultsAreIndependent(t *testing.T) {
	require.NoError(t, sessionsListCmd.ParseFlags(nil))
	require.NoError(t, sessionsSimilarCmd.ParseFlags(nil))

	assert.Equal(t, defaultListLimit, sessionsFlags.listLimit)
	assert.Equal(t, defaultSimilarLimit, sessionsFlags.similarLimit)
	assert.Equal(t, "20", sessionsListCmd.Flags().Lookup("limit").DefValue)
	assert.Equal(t, "10", sessionsSimilarCmd.Flags().Lookup("limit").DefValue)
}

func TestSessionsLimitFlagsDoNotShareStorage(t *testing.T) {
	t.Cleanup(func() {
		sessionsFlags.listLimit = defaultListLimit
		sessionsFlags.similarLimit = defaultSimilarLimit
	})

	require.NoError(t, sessionsSimilarCmd.ParseFlags([]string{"--limit", "3"}))
	assert.Equal(t, 3, sessionsFlags.similarLimit)
	assert.Equal(t, defaultListLimit, sessionsFlags.listLimit)
}
