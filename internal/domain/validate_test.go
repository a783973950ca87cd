package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validInput() CreateServerInput {
	return CreateServerInput{
		Name: "alpha",
		Configuration: ServerConfiguration{
			Command: "node",
			Args:    []string{"a.js"},
		},
	}
}

func TestValidateCreateAccumulatesAllViolations(t *testing.T) {
	input := CreateServerInput{
		Name: "x",
		Configuration: ServerConfiguration{
			Command:   "node; rm -rf /",
			TimeoutMs: -1,
		},
		HealthCheck: HealthCheckConfig{Enabled: true},
	}
	violations := ValidateCreate(input)
	require.GreaterOrEqual(t, len(violations), 4)
}

func TestValidateCreateValid(t *testing.T) {
	require.Empty(t, ValidateCreate(validInput()))
}

func TestValidateDeltaEmpty(t *testing.T) {
	violations := ValidateDelta(ServerDelta{})
	require.Len(t, violations, 1)
}

func TestCommandDenylist(t *testing.T) {
	for _, bad := range []string{"a;b", "a && b", "a || b", "a | b", "a > b", "a < b", "a `b`", "a $(b)"} {
		_, err := NewCommand(bad)
		require.Error(t, err, "command %q", bad)
	}
	cmd, err := NewCommand("  npx  ")
	require.NoError(t, err)
	require.Equal(t, "npx", cmd.String())
}

func TestServerNameBounds(t *testing.T) {
	_, err := NewServerName("ab")
	require.Error(t, err)
	_, err = NewServerName("valid name-1_ok")
	require.NoError(t, err)
	_, err = NewServerName("bad!name")
	require.Error(t, err)
}

func TestNewPort(t *testing.T) {
	_, err := NewPort(0)
	require.Error(t, err)
	_, err = NewPort(70000)
	require.Error(t, err)
	port, err := NewPort(8080)
	require.NoError(t, err)
	require.Equal(t, Port(8080), port)
}

func TestValidationFailedPayload(t *testing.T) {
	err := ValidationFailed("registry.create", []string{"name: too short", "configuration.command: required"})
	payload := PayloadFrom(err)
	require.Equal(t, "VALIDATION", payload.Code)
	require.Len(t, payload.Details, 2)
}
