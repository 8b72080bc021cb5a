package jobstore

import (
	"testing"

	"github.com/Mindburn-Labs/uclse/pkg/contracts"
	"github.com/stretchr/testify/require"
)

func TestCreateLinksParentJob(t *testing.T) {
	s := NewInMemoryJobStore()

	parent, err := s.Create("", "code-1", "pool-1")
	require.NoError(t, err)
	require.Equal(t, contracts.JobCreated, parent.Status)

	child, err := s.Create(parent.ID, "code-2", "pool-1")
	require.NoError(t, err)
	require.Equal(t, parent.ID, child.ParentJobID)

	children := s.ListChildren(parent.ID)
	require.Len(t, children, 1)
	require.Equal(t, child.ID, children[0].ID)
}

func TestProgressMutation(t *testing.T) {
	s := NewInMemoryJobStore()
	job, err := s.Create("", "code-1", "")
	require.NoError(t, err)

	require.NoError(t, s.InitProgress(job.ID, 10))
	require.NoError(t, s.IncrementProgress(job.ID, 3))
	require.NoError(t, s.SetProgress(job.ID, 7))

	got, err := s.Get(job.ID)
	require.NoError(t, err)
	require.Equal(t, 10, got.NIters)
	require.Equal(t, 7, got.CurrentIter)
}

func TestLogStoreOrdering(t *testing.T) {
	logs := NewInMemoryLogStore()
	for i := 0; i < 5; i++ {
		require.NoError(t, logs.Append("log-1", contracts.LogEntry{JobID: "job-1", Text: string(rune('a' + i))}))
	}
	entries := logs.Entries("log-1")
	require.Len(t, entries, 5)
	for i, e := range entries {
		require.Equal(t, string(rune('a'+i)), e.Text)
	}
}

func TestLogStoreIsolatedByID(t *testing.T) {
	logs := NewInMemoryLogStore()
	require.NoError(t, logs.Append("a", contracts.LogEntry{Text: "x"}))
	require.NoError(t, logs.Append("b", contracts.LogEntry{Text: "y"}))
	require.Len(t, logs.Entries("a"), 1)
	require.Len(t, logs.Entries("b"), 1)
}
