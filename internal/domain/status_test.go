package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusTransitionTable(t *testing.T) {
	cases := []struct {
		from    ServerStatus
		to      StatusKind
		allowed bool
	}{
		{Idle(), StatusRunning, true},
		{Idle(), StatusError, true},
		{Idle(), StatusStopped, false},
		{Stopped(""), StatusRunning, true},
		{Stopped(""), StatusError, true},
		{Errored("boom", 1), StatusRunning, true},
		{Errored("boom", 1), StatusError, true},
		{Running(42, 0), StatusStopped, true},
		{Running(42, 0), StatusError, true},
		{Running(42, 0), StatusIdle, false},
		{Stopped(""), StatusIdle, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.allowed, tc.from.CanTransition(tc.to),
			"from %s to %s", tc.from.Kind, tc.to)
	}
}

func TestStatusUpdatingReachableFromAnywhere(t *testing.T) {
	for _, from := range []ServerStatus{Idle(), Running(1, 0), Stopped("x"), Errored("e", 2), Updating(10)} {
		require.True(t, from.CanTransition(StatusUpdating), "from %s", from.Kind)
	}
	// updating returns to any prior state on completion
	for _, to := range []StatusKind{StatusIdle, StatusRunning, StatusStopped, StatusError} {
		require.True(t, Updating(50).CanTransition(to), "to %s", to)
	}
}

func TestEnsureStartable(t *testing.T) {
	require.ErrorIs(t, Running(1, 0).EnsureStartable(0), ErrAlreadyRunning)
	require.NoError(t, Idle().EnsureStartable(0))
	require.NoError(t, Stopped("done").EnsureStartable(0))
	require.NoError(t, Errored("boom", 5).EnsureStartable(0), "retryLimit 0 means unlimited")
	require.NoError(t, Errored("boom", 3).EnsureStartable(3))
	require.ErrorIs(t, Errored("boom", 4).EnsureStartable(3), ErrRetryExhausted)
}

func TestEnsureStoppable(t *testing.T) {
	require.NoError(t, Running(1, 0).EnsureStoppable())
	require.ErrorIs(t, Idle().EnsureStoppable(), ErrNotRunning)
	require.ErrorIs(t, Stopped("").EnsureStoppable(), ErrNotRunning)
	require.ErrorIs(t, Errored("e", 1).EnsureStoppable(), ErrNotRunning)
}

func TestUpdatingProgressClamped(t *testing.T) {
	require.Equal(t, 0, Updating(-5).Updating.Progress)
	require.Equal(t, 100, Updating(250).Updating.Progress)
}

func TestStatusCloneDetachesPayload(t *testing.T) {
	original := Running(4242, 8080)
	copied := original.Clone()
	copied.Running.PID = 1
	require.Equal(t, 4242, original.Running.PID)
}
