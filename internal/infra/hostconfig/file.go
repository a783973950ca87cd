// Package hostconfig reads and writes the host application's JSON config
// file. The schema is owned by the host application; this package only
// translates between it and the registry's server model.
package hostconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"

	"mcpreg/internal/domain"
)

const FileName = "claude_desktop_config.json"

// Document mirrors the host file schema. Fields outside mcpServers are
// preserved verbatim across a save.
type Document struct {
	GlobalShortcut string                 `json:"globalShortcut,omitempty"`
	Servers        map[string]ServerEntry `json:"mcpServers"`
}

// ServerEntry is one entry of the mcpServers map. Env must stay absent from
// the file when the environment is empty, hence the nil-map contract.
type ServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// ResolvePath returns the fixed host config location for the current
// platform. Running on any other platform is a startup error.
func ResolvePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", domain.E(domain.CodeConfigIO, "hostconfig.resolvePath", "resolve home dir", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Claude", FileName), nil
	case "linux":
		return filepath.Join(home, ".config", "Claude", FileName), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "Claude", FileName), nil
	default:
		return "", domain.E(domain.CodeConfigIO, "hostconfig.resolvePath", runtime.GOOS, domain.ErrUnsupportedOS)
	}
}

// ReadDocument loads the host file. A missing file is an empty document,
// not an error; anything else unreadable is.
func ReadDocument(path string) (Document, error) {
	const op = "hostconfig.read"
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Document{Servers: map[string]ServerEntry{}}, nil
		}
		return Document{}, domain.E(domain.CodeConfigIO, op, path, err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, domain.E(domain.CodeConfigIO, op, "malformed host config", err)
	}
	if doc.Servers == nil {
		doc.Servers = map[string]ServerEntry{}
	}
	return doc, nil
}

// WriteDocument writes the host file with 2-space indentation and stable key
// ordering, creating parent directories as needed. The write goes through a
// temp file and rename so a crash never leaves a truncated config behind.
func WriteDocument(path string, doc Document) error {
	const op = "hostconfig.write"
	if doc.Servers == nil {
		doc.Servers = map[string]ServerEntry{}
	}
	encoded, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return domain.E(domain.CodeConfigIO, op, "encode host config", err)
	}
	encoded = append(encoded, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return domain.E(domain.CodeConfigIO, op, "ensure config dir", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".hostconfig-*")
	if err != nil {
		return domain.E(domain.CodeConfigIO, op, "create temp file", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return domain.E(domain.CodeConfigIO, op, "write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return domain.E(domain.CodeConfigIO, op, "close temp file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return domain.E(domain.CodeConfigIO, op, path, err)
	}
	return nil
}
