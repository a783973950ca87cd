package store

import (
	"context"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	"mcpreg/internal/domain"
)

// snapshot is the native export format: plaintext JSON regardless of the
// at-rest encryption setting, so snapshots move between stores with
// different keys.
type snapshot struct {
	ExportedAt time.Time       `json:"exportedAt"`
	Servers    []domain.Server `json:"servers"`
}

func (s *Store) Export(ctx context.Context) ([]byte, error) {
	var servers []domain.Server
	err := s.view(ctx, func(tx *bolt.Tx) error {
		return s.scanServers(tx, func(server domain.Server) error {
			servers = append(servers, server)
			return nil
		})
	})
	if err != nil {
		return nil, wrapRepoErr("store.export", err)
	}
	sortServers(servers, domain.SortByName, domain.SortAsc)
	raw, err := json.MarshalIndent(snapshot{ExportedAt: time.Now().UTC(), Servers: servers}, "", "  ")
	if err != nil {
		return nil, domain.E(domain.CodeRepository, "store.export", "marshal snapshot", err)
	}
	return raw, nil
}

// Import upserts every snapshot entry independently and partitions the
// outcome per entry.
func (s *Store) Import(ctx context.Context, raw []byte) (domain.BatchResult, error) {
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.BatchResult{}, domain.E(domain.CodeRepository, "store.import", "unmarshal snapshot", err)
	}
	result := domain.BatchResult{Failed: map[domain.ServerID]error{}}
	for _, server := range snap.Servers {
		if err := s.upsert(ctx, server); err != nil {
			result.Failed[server.ID] = err
			continue
		}
		result.Succeeded = append(result.Succeeded, server.ID)
	}
	return result, nil
}

func (s *Store) upsert(ctx context.Context, server domain.Server) error {
	var prev *domain.Server
	err := s.update(ctx, func(tx *bolt.Tx) error {
		if existing, err := s.readServer(tx, server.ID); err == nil {
			prev = &existing
		}
		return s.writeServer(tx, server)
	})
	if err != nil {
		return wrapRepoErr("store.import", err)
	}
	s.afterCommit(domain.EventUpdated, server, prev)
	return nil
}
