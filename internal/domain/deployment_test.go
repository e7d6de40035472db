package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessingTimeUnsetWhenNeverStarted(t *testing.T) {
	var rec DeploymentRecord
	assert.Nil(t, rec.ProcessingTime(time.Now()))
}

func TestProcessingTimeEndsAtTerminalTimestamp(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	deployed := start.Add(42 * time.Second)
	failed := start.Add(7 * time.Second)

	live := DeploymentRecord{Status: StatusLive, ProcessingStartedAt: &start, DeployedAt: &deployed}
	got := live.ProcessingTime(start.Add(time.Hour))
	require.NotNil(t, got)
	assert.Equal(t, 42*time.Second, *got)

	broken := DeploymentRecord{Status: StatusError, ProcessingStartedAt: &start, ErrorAt: &failed}
	got = broken.ProcessingTime(start.Add(time.Hour))
	require.NotNil(t, got)
	assert.Equal(t, 7*time.Second, *got)
}

func TestProcessingTimeRunningAndClockSkew(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rec := DeploymentRecord{Status: StatusProcessing, ProcessingStartedAt: &start}

	got := rec.ProcessingTime(start.Add(3 * time.Second))
	require.NotNil(t, got)
	assert.Equal(t, 3*time.Second, *got)

	got = rec.ProcessingTime(start.Add(-time.Second))
	require.NotNil(t, got)
	assert.Zero(t, *got)
}

func TestTerminal(t *testing.T) {
	assert.False(t, DeploymentRecord{Status: StatusProcessing}.Terminal())
	assert.False(t, DeploymentRecord{Status: StatusPending}.Terminal())
	assert.True(t, DeploymentRecord{Status: StatusLive}.Terminal())
	assert.True(t, DeploymentRecord{Status: StatusError}.Terminal())
}
