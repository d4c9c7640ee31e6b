package sessionstore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-neurodata/nwbconvertd/internal/streaming"
	"github.com/agentic-neurodata/nwbconvertd/internal/types"
)

func TestTransition_RefusesDisallowedPath(t *testing.T) {
	s := New(streaming.New())

	err := s.Transition(types.StatusConverting, types.PhaseConversion)
	require.Error(t, err)
	assert.True(t, types.IsTransitionRefused(err))

	snapshot := s.Snapshot()
	assert.Equal(t, types.StatusIdle, snapshot.Status)
}

func TestTransition_AllowsConfiguredPath(t *testing.T) {
	s := New(streaming.New())

	require.NoError(t, s.Transition(types.StatusUploadAcknowledged, types.PhaseIdle))
	snapshot := s.Snapshot()
	assert.Equal(t, types.StatusUploadAcknowledged, snapshot.Status)
}

func TestIncrementCorrectionAttempt_BoundedByMax(t *testing.T) {
	s := New(streaming.New())
	const max = 2

	require.NoError(t, s.IncrementCorrectionAttempt(max))
	require.NoError(t, s.IncrementCorrectionAttempt(max))

	err := s.IncrementCorrectionAttempt(max)
	require.Error(t, err)
	assert.True(t, types.IsRetryRefused(err))
	assert.Equal(t, 2, s.CorrectionAttempt())
}

func TestCanRetry_DerivedFromAttemptCount(t *testing.T) {
	s := New(streaming.New())
	const max = 1

	assert.True(t, s.CanRetry(max))
	require.NoError(t, s.IncrementCorrectionAttempt(max))
	assert.False(t, s.CanRetry(max))
}

func TestReset_RestoresInitialValues(t *testing.T) {
	s := New(streaming.New())

	require.NoError(t, s.Transition(types.StatusUploadAcknowledged, types.PhaseIdle))
	s.SetInputPath("/tmp/in.dat")
	s.SetMetadataPolicy(types.MetadataProceedingMinimal)
	require.NoError(t, s.IncrementCorrectionAttempt(5))
	s.AppendMessage(types.RoleUser, "hello")

	require.NoError(t, s.Reset())

	snapshot := s.Snapshot()
	assert.Equal(t, types.StatusIdle, snapshot.Status)
	assert.Equal(t, types.PhaseIdle, snapshot.Phase)
	assert.Equal(t, "", snapshot.InputPath)
	assert.Equal(t, types.MetadataNotRequested, snapshot.MetadataPolicy)
	assert.Equal(t, 0, snapshot.CorrectionAttempt)
	assert.Empty(t, snapshot.ConversationHistory)
	assert.NotEmpty(t, snapshot.SessionID)
}

func TestReset_RefusedWhileActiveProcessing(t *testing.T) {
	s := New(streaming.New())
	require.NoError(t, s.AcquireLLMSlot())

	err := s.Reset()
	require.Error(t, err)
	assert.True(t, types.IsBusy(err))
}

func TestAcquireLLMSlot_RejectsConcurrentAcquire(t *testing.T) {
	s := New(streaming.New())
	require.NoError(t, s.AcquireLLMSlot())

	err := s.AcquireLLMSlot()
	require.Error(t, err)
	assert.True(t, types.IsBusy(err))

	s.ReleaseLLMSlot()
	require.NoError(t, s.AcquireLLMSlot())
}

func TestAppendMessage_KeepsEveryMessageUnderConcurrency(t *testing.T) {
	s := New(streaming.New())

	var wg sync.WaitGroup
	const n = 100
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			s.AppendMessage(types.RoleUser, "msg")
		}()
	}
	wg.Wait()

	snapshot := s.Snapshot()
	assert.Len(t, snapshot.ConversationHistory, n)
}

func TestSnapshot_IsIndependentOfLiveSession(t *testing.T) {
	s := New(streaming.New())
	snapshot := s.Snapshot()

	s.AppendMessage(types.RoleUser, "after snapshot")

	assert.Empty(t, snapshot.ConversationHistory)
}
