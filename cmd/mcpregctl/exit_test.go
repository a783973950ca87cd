package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	require.Equal(t, 0, exitCode(nil))
	require.Equal(t, 3, exitCode(exitError{code: 3, message: "boom"}))
	require.Equal(t, 2, exitCode(exitSilent(2)))
	require.Equal(t, 1, exitCode(errors.New("plain")))
	require.Equal(t, 4, exitCode(fmt.Errorf("wrapped: %w", exitError{code: 4, silent: true})))
}
