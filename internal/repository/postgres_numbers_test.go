package repository

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/voxline/voxline-agents/internal/domain"
)

func TestNumberConflictNamesTheHolder(t *testing.T) {
	agentID := int64(42)
	err := numberConflict(domain.PhoneNumber{Number: "+15550001111", AgentID: &agentID})
	require.True(t, domain.IsCode(err, domain.CodeConflict))
	require.Contains(t, err.Error(), "agent 42")
}

func TestNumberConflictToleratesConcurrentRelease(t *testing.T) {
	// The row can be released between the guarded statement and the
	// re-read; the holder is gone by then.
	err := numberConflict(domain.PhoneNumber{Number: "+15550001111", IsAvailable: true})
	require.True(t, domain.IsCode(err, domain.CodeConflict))
	require.Contains(t, err.Error(), "+15550001111")
}
