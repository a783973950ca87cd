package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ServerID is an opaque identifier assigned once at creation.
type ServerID string

func NewServerID() ServerID {
	return ServerID(uuid.NewString())
}

func ParseServerID(raw string) (ServerID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", E(CodeValidation, "", fmt.Sprintf("invalid server id %q", raw), err)
	}
	return ServerID(parsed.String()), nil
}

func (id ServerID) String() string {
	return string(id)
}

func (id ServerID) IsZero() bool {
	return id == ""
}

const (
	MinNameLength = 3
	MaxNameLength = 100
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9\s\-_]+$`)

// ServerName is unique (case-sensitive) across non-deleted servers.
type ServerName string

func NewServerName(raw string) (ServerName, error) {
	if len(raw) < MinNameLength || len(raw) > MaxNameLength {
		return "", E(CodeValidation, "", fmt.Sprintf("name must be %d-%d characters", MinNameLength, MaxNameLength), nil)
	}
	if !namePattern.MatchString(raw) {
		return "", E(CodeValidation, "", "name may only contain letters, digits, spaces, hyphens and underscores", nil)
	}
	return ServerName(raw), nil
}

func (n ServerName) String() string {
	return string(n)
}

// shellMetaTokens are rejected outright; commands are never handed to a shell,
// but a command string carrying these is a configuration mistake at best.
var shellMetaTokens = []string{";", "&&", "||", "|", ">", "<", "`", "$("}

// Command is an executable path or name that passed the injection denylist.
type Command string

func NewCommand(raw string) (Command, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", E(CodeValidation, "", "command is required", nil)
	}
	for _, token := range shellMetaTokens {
		if strings.Contains(trimmed, token) {
			return "", E(CodeValidation, "", fmt.Sprintf("command contains forbidden token %q", token), nil)
		}
	}
	return Command(trimmed), nil
}

func (c Command) String() string {
	return string(c)
}

// Port is a TCP port validated at construction.
type Port int

func NewPort(value int) (Port, error) {
	if value < 1 || value > 65535 {
		return 0, E(CodeValidation, "", fmt.Sprintf("port %d out of range 1-65535", value), nil)
	}
	return Port(value), nil
}
