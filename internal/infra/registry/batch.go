package registry

import (
	"context"

	"mcpreg/internal/domain"
)

// Batch lifecycle operations process every unit independently: one failure
// never aborts the rest, and the result partitions ids into succeeded and
// failed with the per-unit error.

func (s *Service) StartServers(ctx context.Context, ids []domain.ServerID) domain.BatchResult {
	return s.forEach(ids, func(id domain.ServerID) error {
		_, err := s.StartServer(ctx, id)
		return err
	})
}

func (s *Service) StopServers(ctx context.Context, ids []domain.ServerID, reason string) domain.BatchResult {
	return s.forEach(ids, func(id domain.ServerID) error {
		_, err := s.StopServer(ctx, id, reason)
		return err
	})
}

func (s *Service) DeleteServers(ctx context.Context, ids []domain.ServerID) domain.BatchResult {
	return s.forEach(ids, func(id domain.ServerID) error {
		return s.DeleteServer(ctx, id)
	})
}

func (s *Service) forEach(ids []domain.ServerID, fn func(domain.ServerID) error) domain.BatchResult {
	result := domain.BatchResult{Failed: make(map[domain.ServerID]error)}
	for _, id := range ids {
		if err := fn(id); err != nil {
			result.Failed[id] = err
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	return result
}
