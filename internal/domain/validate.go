package domain

import (
	"errors"
	"fmt"
)

// ValidateCreate checks a create payload and returns every violation found,
// never just the first.
func ValidateCreate(input CreateServerInput) []string {
	var violations []string
	if _, err := NewServerName(input.Name); err != nil {
		violations = append(violations, describeViolation("name", err))
	}
	violations = append(violations, validateConfiguration(input.Configuration)...)
	violations = append(violations, validateHealthCheck(input.HealthCheck)...)
	return violations
}

// ValidateDelta checks a partial update; untouched fields are not inspected.
func ValidateDelta(delta ServerDelta) []string {
	var violations []string
	if delta.IsEmpty() {
		return []string{"delta: at least one field must be set"}
	}
	if delta.Name != nil {
		if _, err := NewServerName(*delta.Name); err != nil {
			violations = append(violations, describeViolation("name", err))
		}
	}
	if delta.Configuration != nil {
		violations = append(violations, validateConfiguration(*delta.Configuration)...)
	}
	if delta.HealthCheck != nil {
		violations = append(violations, validateHealthCheck(*delta.HealthCheck)...)
	}
	if delta.Status != nil && !delta.Status.Kind.Valid() {
		violations = append(violations, fmt.Sprintf("status: unknown kind %q", delta.Status.Kind))
	}
	return violations
}

func validateConfiguration(config ServerConfiguration) []string {
	var violations []string
	if _, err := NewCommand(config.Command); err != nil {
		violations = append(violations, describeViolation("configuration.command", err))
	}
	for key := range config.Environment {
		if key == "" {
			violations = append(violations, "configuration.environment: empty variable name")
			break
		}
	}
	if config.TimeoutMs < 0 {
		violations = append(violations, "configuration.timeoutMs: must not be negative")
	}
	if config.RetryLimit < 0 {
		violations = append(violations, "configuration.retryLimit: must not be negative")
	}
	return violations
}

func validateHealthCheck(health HealthCheckConfig) []string {
	if !health.Enabled {
		return nil
	}
	var violations []string
	if health.IntervalMs <= 0 {
		violations = append(violations, "healthCheck.intervalMs: must be positive when enabled")
	}
	if health.TimeoutMs <= 0 {
		violations = append(violations, "healthCheck.timeoutMs: must be positive when enabled")
	}
	if health.Retries < 0 {
		violations = append(violations, "healthCheck.retries: must not be negative")
	}
	return violations
}

func describeViolation(field string, err error) string {
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr.Message != "" {
		return fmt.Sprintf("%s: %s", field, domainErr.Message)
	}
	return fmt.Sprintf("%s: %s", field, err.Error())
}

// ValidationFailed wraps accumulated violations in the boundary error shape.
func ValidationFailed(op string, violations []string) *Error {
	return &Error{
		Code:    CodeValidation,
		Op:      op,
		Message: "validation failed",
		Details: violations,
	}
}
