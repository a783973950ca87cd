package hostconfig

import (
	"context"

	"go.uber.org/zap"

	"mcpreg/internal/domain"
)

// Adapter synchronizes the registry with the host config file. Save is a
// full overwrite of the mcpServers map; entries absent from the registry are
// dropped. Load produces create inputs, since the host file carries no
// runtime status.
type Adapter struct {
	path   string
	logger *zap.Logger
}

func NewAdapter(path string, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{path: path, logger: logger.Named("hostconfig")}
}

func (a *Adapter) Path() string { return a.path }

// Save replaces the host file's mcpServers map with the given servers,
// preserving every other field of the document.
func (a *Adapter) Save(ctx context.Context, servers []domain.Server) error {
	if err := ctx.Err(); err != nil {
		return domain.E(domain.CodeConfigIO, "hostconfig.save", "", err)
	}
	doc, err := ReadDocument(a.path)
	if err != nil {
		return err
	}

	doc.Servers = make(map[string]ServerEntry, len(servers))
	for _, server := range servers {
		entry := ServerEntry{
			Command: server.Configuration.Command,
			Args:    append([]string(nil), server.Configuration.Args...),
		}
		if len(server.Configuration.Environment) > 0 {
			entry.Env = make(map[string]string, len(server.Configuration.Environment))
			for key, value := range server.Configuration.Environment {
				entry.Env[key] = value
			}
		}
		doc.Servers[server.Name] = entry
	}

	if err := WriteDocument(a.path, doc); err != nil {
		return err
	}
	a.logger.Info("host config saved",
		zap.String("path", a.path),
		zap.Int("servers", len(servers)),
	)
	return nil
}

// Load reads the host file and turns each mcpServers entry into a create
// input. A missing file yields an empty slice.
func (a *Adapter) Load(ctx context.Context) ([]domain.CreateServerInput, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.E(domain.CodeConfigIO, "hostconfig.load", "", err)
	}
	doc, err := ReadDocument(a.path)
	if err != nil {
		return nil, err
	}

	inputs := make([]domain.CreateServerInput, 0, len(doc.Servers))
	for name, entry := range doc.Servers {
		input := domain.CreateServerInput{
			Name: name,
			Configuration: domain.ServerConfiguration{
				Command: entry.Command,
				Args:    append([]string(nil), entry.Args...),
			},
		}
		if len(entry.Env) > 0 {
			input.Configuration.Environment = make(map[string]string, len(entry.Env))
			for key, value := range entry.Env {
				input.Configuration.Environment[key] = value
			}
		}
		inputs = append(inputs, input)
	}
	a.logger.Debug("host config loaded",
		zap.String("path", a.path),
		zap.Int("servers", len(inputs)),
	)
	return inputs, nil
}
