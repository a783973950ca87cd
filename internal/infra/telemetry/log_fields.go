package telemetry

import (
	"time"

	"go.uber.org/zap"

	"mcpreg/internal/domain"
)

// Canonical field names so log lines stay greppable across components.
const (
	FieldServerID  = "serverId"
	FieldServer    = "server"
	FieldVersion   = "version"
	FieldStatus    = "status"
	FieldOperation = "operation"
	FieldDuration  = "duration"
	FieldPID       = "pid"
)

func ServerIDField(id domain.ServerID) zap.Field {
	return zap.String(FieldServerID, id.String())
}

func ServerField(name string) zap.Field {
	return zap.String(FieldServer, name)
}

func VersionField(version int64) zap.Field {
	return zap.Int64(FieldVersion, version)
}

func StatusField(kind domain.StatusKind) zap.Field {
	return zap.String(FieldStatus, string(kind))
}

func OperationField(op string) zap.Field {
	return zap.String(FieldOperation, op)
}

func DurationField(d time.Duration) zap.Field {
	return zap.Duration(FieldDuration, d)
}

func PIDField(pid int) zap.Field {
	return zap.Int(FieldPID, pid)
}
