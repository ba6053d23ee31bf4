package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/matcha-check/internal/imageprocessor"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestSessionCameraFlow(t *testing.T) {
	s := NewSession("a-1", "user-1", now)
	require.Equal(t, StepIdle, s.Step)

	require.NoError(t, s.Start(now))
	require.Equal(t, StepScanning, s.Step)

	require.NoError(t, s.Capture("hash", now))
	require.Equal(t, StepProcessing, s.Step)
	require.False(t, s.Done())

	result := &imageprocessor.Result{CupFound: true, ColorScore: 8, MaxScore: 10, AvgColor: "#7baf5c"}
	require.NoError(t, s.Complete(result, "/images/hash.jpg", now))
	require.True(t, s.Done())
	require.Equal(t, "/images/hash.jpg", s.ImageURL)
}

func TestSessionUploadSkipsScanning(t *testing.T) {
	s := NewSession("a-1", "user-1", now)
	require.NoError(t, s.Capture("hash", now))
	require.Equal(t, StepProcessing, s.Step)
}

func TestSessionRejectsInvalidTransitions(t *testing.T) {
	s := NewSession("a-1", "user-1", now)
	require.ErrorIs(t, s.Complete(&imageprocessor.Result{}, "", now), ErrInvalidTransition)

	require.NoError(t, s.Capture("hash", now))
	require.ErrorIs(t, s.Start(now), ErrInvalidTransition)
	require.ErrorIs(t, s.Capture("other", now), ErrInvalidTransition)
	require.Error(t, s.Complete(nil, "", now))
}

func TestSessionRetakeDiscardsResult(t *testing.T) {
	s := NewSession("a-1", "user-1", now)
	require.NoError(t, s.Capture("hash", now))
	require.NoError(t, s.Complete(&imageprocessor.Result{CupFound: true}, "url", now))

	later := now.Add(time.Minute)
	s.Retake(later)
	require.Equal(t, StepIdle, s.Step)
	require.Nil(t, s.Result)
	require.Empty(t, s.ImageHash)
	require.Equal(t, later, s.UpdatedAt)

	// a late completion of the abandoned analysis no longer applies
	require.ErrorIs(t, s.Complete(&imageprocessor.Result{}, "", later), ErrInvalidTransition)
}
