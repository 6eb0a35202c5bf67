package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepTaskIDPerRound(t *testing.T) {
	p := SweepPayload{Key: "uploads/videos/u1/k-clip.mp4", OwnerID: "u1"}
	assert.Equal(t, "media:sweep-orphan:uploads/videos/u1/k-clip.mp4", p.TaskID())

	p.Round = 2
	assert.Equal(t, "media:sweep-orphan:uploads/videos/u1/k-clip.mp4:2", p.TaskID())

	task, err := NewSweepTask(p)
	require.NoError(t, err)
	assert.Equal(t, SweepOrphanTask, task.Type())
	var got SweepPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &got))
	assert.Equal(t, p, got)
}
