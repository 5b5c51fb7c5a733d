package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob(t *testing.T) {
	ended := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	job, err := NewJob(JobTypeArchiveComments, ArchivePayload{StreamID: "s1", EndedAt: ended})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, JobTypeArchiveComments, job.Type)
	assert.Zero(t, job.Attempt)

	var p ArchivePayload
	require.NoError(t, json.Unmarshal(job.Payload, &p))
	assert.Equal(t, "s1", p.StreamID)
	assert.True(t, ended.Equal(p.EndedAt))
}

func TestKey(t *testing.T) {
	assert.Equal(t, QueueArchive, Key(JobTypeArchiveComments))
	assert.Equal(t, QueuePush, Key(JobTypeLiveStarted))
}
