package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventCreated       EventType = "created"
	EventUpdated       EventType = "updated"
	EventDeleted       EventType = "deleted"
	EventStarted       EventType = "started"
	EventStopped       EventType = "stopped"
	EventErrorOccurred EventType = "error_occurred"
)

// ServerEvent is an immutable, append-only fact about a server. The per-server
// event log is the audit trail and the source of watch notifications.
type ServerEvent struct {
	ID        string          `json:"id"`
	ServerID  ServerID        `json:"serverId"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type CreatedPayload struct {
	Input   CreateServerInput `json:"input"`
	Version int64             `json:"version"`
}

type UpdatedPayload struct {
	Delta   ServerDelta `json:"delta"`
	Version int64       `json:"version"`
}

type DeletedPayload struct {
	Name        string `json:"name"`
	StopFailure string `json:"stopFailure,omitempty"`
}

type StartedPayload struct {
	PID  int `json:"pid,omitempty"`
	Port int `json:"port,omitempty"`
}

type StoppedPayload struct {
	Reason string `json:"reason,omitempty"`
}

type ErrorPayloadEvent struct {
	Error      string `json:"error"`
	RetryCount int    `json:"retryCount,omitempty"`
}

func newEvent(serverID ServerID, eventType EventType, payload any) ServerEvent {
	event := ServerEvent{
		ID:        uuid.NewString(),
		ServerID:  serverID,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			event.Payload = raw
		}
	}
	return event
}

func NewCreatedEvent(serverID ServerID, input CreateServerInput, version int64) ServerEvent {
	return newEvent(serverID, EventCreated, CreatedPayload{Input: input, Version: version})
}

func NewUpdatedEvent(serverID ServerID, delta ServerDelta, version int64) ServerEvent {
	return newEvent(serverID, EventUpdated, UpdatedPayload{Delta: delta, Version: version})
}

func NewDeletedEvent(serverID ServerID, name, stopFailure string) ServerEvent {
	return newEvent(serverID, EventDeleted, DeletedPayload{Name: name, StopFailure: stopFailure})
}

func NewStartedEvent(serverID ServerID, pid, port int) ServerEvent {
	return newEvent(serverID, EventStarted, StartedPayload{PID: pid, Port: port})
}

func NewStoppedEvent(serverID ServerID, reason string) ServerEvent {
	return newEvent(serverID, EventStopped, StoppedPayload{Reason: reason})
}

func NewErrorEvent(serverID ServerID, message string, retryCount int) ServerEvent {
	return newEvent(serverID, EventErrorOccurred, ErrorPayloadEvent{Error: message, RetryCount: retryCount})
}

func DecodeDeletedPayload(event ServerEvent) (DeletedPayload, error) {
	var payload DeletedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return DeletedPayload{}, E(CodeInternal, "domain.decodeEvent", "malformed deleted payload", err)
	}
	return payload, nil
}

func DecodeStartedPayload(event ServerEvent) (StartedPayload, error) {
	var payload StartedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return StartedPayload{}, E(CodeInternal, "domain.decodeEvent", "malformed started payload", err)
	}
	return payload, nil
}
