package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"mcpreg/internal/domain"
)

var _ domain.Repository = (*Store)(nil)

// wrapRepoErr wraps storage failures as repository errors while letting the
// contract sentinels (not found, version conflict) keep their own identity.
func wrapRepoErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrVersionConflict) ||
		errors.Is(err, domain.ErrEventsOff) || errors.Is(err, domain.ErrWatchersOff) ||
		errors.Is(err, domain.ErrTransactionsOff) || errors.Is(err, domain.ErrStoreClosed) {
		return err
	}
	return domain.Wrap(domain.CodeRepository, op, err)
}

func (s *Store) FindByID(ctx context.Context, id domain.ServerID) (domain.Server, error) {
	if s.cache != nil {
		if server, ok := s.cache.get(id); ok {
			return server, nil
		}
	}
	var server domain.Server
	err := s.view(ctx, func(tx *bolt.Tx) error {
		found, err := s.readServer(tx, id)
		if err != nil {
			return err
		}
		server = found
		return nil
	})
	if err != nil {
		return domain.Server{}, wrapRepoErr("store.findById", err)
	}
	if s.cache != nil {
		s.cache.put(server)
	}
	return server, nil
}

func (s *Store) FindMany(ctx context.Context, query domain.ListQuery) (domain.ListResult, error) {
	var matched []domain.Server
	err := s.view(ctx, func(tx *bolt.Tx) error {
		return s.scanServers(tx, func(server domain.Server) error {
			if matchesFilter(server, query.Filter) {
				matched = append(matched, server)
			}
			return nil
		})
	})
	if err != nil {
		return domain.ListResult{}, wrapRepoErr("store.findMany", err)
	}
	sortServers(matched, query.Sort, query.Order)
	page := paginate(matched, query.Page)
	return domain.ListResult{
		Servers: page,
		Total:   len(matched),
		Page:    query.Page.Number,
		Limit:   query.Page.Limit,
	}, nil
}

func (s *Store) Create(ctx context.Context, server domain.Server) (domain.Server, error) {
	now := time.Now().UTC()
	if server.CreatedAt.IsZero() {
		server.CreatedAt = now
	}
	if server.UpdatedAt.IsZero() {
		server.UpdatedAt = now
	}
	if server.Version == 0 {
		server.Version = 1
	}
	err := s.update(ctx, func(tx *bolt.Tx) error {
		return createServerTx(s, tx, server)
	})
	if err != nil {
		return domain.Server{}, wrapRepoErr("store.create", err)
	}
	s.afterCommit(domain.EventCreated, server, nil)
	return server, nil
}

func createServerTx(s *Store, tx *bolt.Tx, server domain.Server) error {
	if _, err := s.readServer(tx, server.ID); err == nil {
		return domain.E(domain.CodeRepository, "store.create", fmt.Sprintf("server %s already exists", server.ID), nil)
	}
	return s.writeServer(tx, server)
}

// Update is the compare-and-swap write: a stale expectedVersion fails with
// ErrVersionConflict and leaves the stored record untouched.
func (s *Store) Update(ctx context.Context, id domain.ServerID, delta domain.ServerDelta, expectedVersion int64) (domain.Server, error) {
	var updated, before domain.Server
	err := s.update(ctx, func(tx *bolt.Tx) error {
		next, prev, err := updateServerTx(s, tx, id, delta, expectedVersion)
		if err != nil {
			return err
		}
		updated, before = next, prev
		return nil
	})
	if err != nil {
		return domain.Server{}, wrapRepoErr("store.update", err)
	}
	s.afterCommit(domain.EventUpdated, updated, &before)
	return updated, nil
}

func updateServerTx(s *Store, tx *bolt.Tx, id domain.ServerID, delta domain.ServerDelta, expectedVersion int64) (domain.Server, domain.Server, error) {
	current, err := s.readServer(tx, id)
	if err != nil {
		return domain.Server{}, domain.Server{}, err
	}
	if current.Version != expectedVersion {
		return domain.Server{}, domain.Server{}, fmt.Errorf("%w: have %d, expected %d", domain.ErrVersionConflict, current.Version, expectedVersion)
	}
	next := delta.Apply(current)
	next.Version = current.Version + 1
	next.UpdatedAt = time.Now().UTC()
	if err := s.writeServer(tx, next); err != nil {
		return domain.Server{}, domain.Server{}, err
	}
	return next, current, nil
}

func (s *Store) Delete(ctx context.Context, id domain.ServerID) error {
	var removed domain.Server
	err := s.update(ctx, func(tx *bolt.Tx) error {
		server, err := deleteServerTx(s, tx, id)
		if err != nil {
			return err
		}
		removed = server
		return nil
	})
	if err != nil {
		return wrapRepoErr("store.delete", err)
	}
	s.afterCommit(domain.EventDeleted, removed, &removed)
	return nil
}

func deleteServerTx(s *Store, tx *bolt.Tx, id domain.ServerID) (domain.Server, error) {
	server, err := s.readServer(tx, id)
	if err != nil {
		return domain.Server{}, err
	}
	bucket := tx.Bucket([]byte(serversBucketName))
	if err := bucket.Delete([]byte(id)); err != nil {
		return domain.Server{}, err
	}
	return server, nil
}

func (s *Store) Exists(ctx context.Context, id domain.ServerID) (bool, error) {
	exists := false
	err := s.view(ctx, func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(serversBucketName))
		exists = bucket != nil && bucket.Get([]byte(id)) != nil
		return nil
	})
	if err != nil {
		return false, wrapRepoErr("store.exists", err)
	}
	return exists, nil
}

func (s *Store) Count(ctx context.Context, filter domain.ListFilter) (int, error) {
	count := 0
	err := s.view(ctx, func(tx *bolt.Tx) error {
		return s.scanServers(tx, func(server domain.Server) error {
			if matchesFilter(server, filter) {
				count++
			}
			return nil
		})
	})
	if err != nil {
		return 0, wrapRepoErr("store.count", err)
	}
	return count, nil
}

// CreateMany applies each unit independently and partitions the outcome;
// there is no implicit transaction across members.
func (s *Store) CreateMany(ctx context.Context, servers []domain.Server) (domain.BatchResult, error) {
	result := domain.BatchResult{Failed: map[domain.ServerID]error{}}
	for _, server := range servers {
		if _, err := s.Create(ctx, server); err != nil {
			result.Failed[server.ID] = err
			continue
		}
		result.Succeeded = append(result.Succeeded, server.ID)
	}
	return result, nil
}

func (s *Store) DeleteMany(ctx context.Context, ids []domain.ServerID) (domain.BatchResult, error) {
	result := domain.BatchResult{Failed: map[domain.ServerID]error{}}
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			result.Failed[id] = err
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	return result, nil
}

func (s *Store) Search(ctx context.Context, text string, fields []string) ([]domain.Server, error) {
	var matched []domain.Server
	err := s.view(ctx, func(tx *bolt.Tx) error {
		return s.scanServers(tx, func(server domain.Server) error {
			if text == "" || matchesSearch(server, text, fields) {
				matched = append(matched, server)
			}
			return nil
		})
	})
	if err != nil {
		return nil, wrapRepoErr("store.search", err)
	}
	sortServers(matched, domain.SortByName, domain.SortAsc)
	return matched, nil
}

func (s *Store) SaveEvent(ctx context.Context, event domain.ServerEvent) error {
	if !s.opts.EnableEvents {
		return domain.ErrEventsOff
	}
	err := s.update(ctx, func(tx *bolt.Tx) error {
		return saveEventTx(tx, event)
	})
	return wrapRepoErr("store.saveEvent", err)
}

func saveEventTx(tx *bolt.Tx, event domain.ServerEvent) error {
	events := tx.Bucket([]byte(eventsBucketName))
	if events == nil {
		return domain.E(domain.CodeRepository, "store.saveEvent", "missing events bucket", nil)
	}
	perServer, err := events.CreateBucketIfNotExists([]byte(event.ServerID))
	if err != nil {
		return err
	}
	seq, err := perServer.NextSequence()
	if err != nil {
		return err
	}
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return perServer.Put(key, raw)
}

// Events returns the append-only log for a server in commit order.
func (s *Store) Events(ctx context.Context, id domain.ServerID) ([]domain.ServerEvent, error) {
	if !s.opts.EnableEvents {
		return nil, domain.ErrEventsOff
	}
	var out []domain.ServerEvent
	err := s.view(ctx, func(tx *bolt.Tx) error {
		events := tx.Bucket([]byte(eventsBucketName))
		if events == nil {
			return nil
		}
		perServer := events.Bucket([]byte(id))
		if perServer == nil {
			return nil
		}
		return perServer.ForEach(func(_, value []byte) error {
			var event domain.ServerEvent
			if err := json.Unmarshal(value, &event); err != nil {
				return err
			}
			out = append(out, event)
			return nil
		})
	})
	if err != nil {
		return nil, wrapRepoErr("store.events", err)
	}
	return out, nil
}

// InvalidateCache drops entries so subsequent reads hit the committed state.
// With no ids the whole cache is cleared.
func (s *Store) InvalidateCache(_ context.Context, ids ...domain.ServerID) error {
	if s.cache == nil {
		return nil
	}
	if len(ids) == 0 {
		s.cache.clear()
		return nil
	}
	for _, id := range ids {
		s.cache.invalidate(id)
	}
	return nil
}

func (s *Store) PreloadCache(ctx context.Context, ids ...domain.ServerID) error {
	if s.cache == nil {
		return nil
	}
	for _, id := range ids {
		server, err := s.FindByID(ctx, id)
		if err != nil {
			return err
		}
		s.cache.put(server)
	}
	return nil
}

// afterCommit runs the post-write bookkeeping shared by every mutation path:
// cache invalidation first, then watcher notification. prev is the pre-commit
// row, nil on creation.
func (s *Store) afterCommit(eventType domain.EventType, server domain.Server, prev *domain.Server) {
	if s.cache != nil {
		s.cache.invalidate(server.ID)
	}
	if s.watch != nil {
		notification := domain.Notification{Type: eventType, Server: server.Clone()}
		if prev != nil {
			before := prev.Clone()
			notification.Previous = &before
		}
		s.watch.notify(notification)
	}
	s.logger.Debug("commit",
		zap.String("type", string(eventType)),
		zap.String("serverId", server.ID.String()),
		zap.Int64("version", server.Version),
	)
}
