package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"

	"mcpreg/internal/domain"
)

// Transaction runs fn against a handle whose writes are all-or-nothing.
// Watch notifications and cache invalidation for staged writes happen only
// after the outer commit succeeds.
func (s *Store) Transaction(ctx context.Context, fn func(tx domain.Repository) error) error {
	if !s.opts.EnableTransactions {
		return domain.ErrTransactionsOff
	}
	var staged []stagedCommit
	err := s.update(ctx, func(tx *bolt.Tx) error {
		handle := &txRepo{store: s, tx: tx}
		if err := fn(handle); err != nil {
			return err
		}
		staged = handle.staged
		return nil
	})
	if err != nil {
		return wrapRepoErr("store.transaction", err)
	}
	for _, commit := range staged {
		s.afterCommit(commit.eventType, commit.server, commit.previous)
	}
	return nil
}

type stagedCommit struct {
	eventType domain.EventType
	server    domain.Server
	previous  *domain.Server
}

// txRepo is the repository handle handed to a Transaction callback. All
// writes share the outer bolt transaction; watch and cache operations are
// deferred to commit time.
type txRepo struct {
	store  *Store
	tx     *bolt.Tx
	staged []stagedCommit
}

var _ domain.Repository = (*txRepo)(nil)

func (r *txRepo) FindByID(_ context.Context, id domain.ServerID) (domain.Server, error) {
	return r.store.readServer(r.tx, id)
}

func (r *txRepo) FindMany(_ context.Context, query domain.ListQuery) (domain.ListResult, error) {
	var matched []domain.Server
	err := r.store.scanServers(r.tx, func(server domain.Server) error {
		if matchesFilter(server, query.Filter) {
			matched = append(matched, server)
		}
		return nil
	})
	if err != nil {
		return domain.ListResult{}, err
	}
	sortServers(matched, query.Sort, query.Order)
	page := paginate(matched, query.Page)
	return domain.ListResult{Servers: page, Total: len(matched), Page: query.Page.Number, Limit: query.Page.Limit}, nil
}

func (r *txRepo) Create(_ context.Context, server domain.Server) (domain.Server, error) {
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
	if err := createServerTx(r.store, r.tx, server); err != nil {
		return domain.Server{}, err
	}
	r.stage(domain.EventCreated, server, nil)
	return server, nil
}

func (r *txRepo) Update(_ context.Context, id domain.ServerID, delta domain.ServerDelta, expectedVersion int64) (domain.Server, error) {
	updated, before, err := updateServerTx(r.store, r.tx, id, delta, expectedVersion)
	if err != nil {
		return domain.Server{}, err
	}
	r.stage(domain.EventUpdated, updated, &before)
	return updated, nil
}

func (r *txRepo) Delete(_ context.Context, id domain.ServerID) error {
	removed, err := deleteServerTx(r.store, r.tx, id)
	if err != nil {
		return err
	}
	r.stage(domain.EventDeleted, removed, &removed)
	return nil
}

func (r *txRepo) Exists(_ context.Context, id domain.ServerID) (bool, error) {
	_, err := r.store.readServer(r.tx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *txRepo) Count(_ context.Context, filter domain.ListFilter) (int, error) {
	count := 0
	err := r.store.scanServers(r.tx, func(server domain.Server) error {
		if matchesFilter(server, filter) {
			count++
		}
		return nil
	})
	return count, err
}

func (r *txRepo) CreateMany(ctx context.Context, servers []domain.Server) (domain.BatchResult, error) {
	result := domain.BatchResult{Failed: map[domain.ServerID]error{}}
	for _, server := range servers {
		if _, err := r.Create(ctx, server); err != nil {
			// inside a transaction a single failure aborts the batch
			return domain.BatchResult{}, err
		}
		result.Succeeded = append(result.Succeeded, server.ID)
	}
	return result, nil
}

func (r *txRepo) DeleteMany(ctx context.Context, ids []domain.ServerID) (domain.BatchResult, error) {
	result := domain.BatchResult{Failed: map[domain.ServerID]error{}}
	for _, id := range ids {
		if err := r.Delete(ctx, id); err != nil {
			return domain.BatchResult{}, err
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	return result, nil
}

func (r *txRepo) Search(_ context.Context, text string, fields []string) ([]domain.Server, error) {
	var matched []domain.Server
	err := r.store.scanServers(r.tx, func(server domain.Server) error {
		if text == "" || matchesSearch(server, text, fields) {
			matched = append(matched, server)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortServers(matched, domain.SortByName, domain.SortAsc)
	return matched, nil
}

func (r *txRepo) WatchByID(context.Context, domain.ServerID) (*domain.Subscription, error) {
	return nil, domain.E(domain.CodeRepository, "store.transaction", "watch is not available inside a transaction", nil)
}

func (r *txRepo) WatchMany(context.Context, domain.ListFilter) (*domain.Subscription, error) {
	return nil, domain.E(domain.CodeRepository, "store.transaction", "watch is not available inside a transaction", nil)
}

func (r *txRepo) SaveEvent(_ context.Context, event domain.ServerEvent) error {
	if !r.store.opts.EnableEvents {
		return domain.ErrEventsOff
	}
	return saveEventTx(r.tx, event)
}

func (r *txRepo) Events(_ context.Context, id domain.ServerID) ([]domain.ServerEvent, error) {
	if !r.store.opts.EnableEvents {
		return nil, domain.ErrEventsOff
	}
	var out []domain.ServerEvent
	events := r.tx.Bucket([]byte(eventsBucketName))
	if events == nil {
		return nil, nil
	}
	perServer := events.Bucket([]byte(id))
	if perServer == nil {
		return nil, nil
	}
	err := perServer.ForEach(func(_, value []byte) error {
		var event domain.ServerEvent
		if err := json.Unmarshal(value, &event); err != nil {
			return err
		}
		out = append(out, event)
		return nil
	})
	return out, err
}

func (r *txRepo) InvalidateCache(context.Context, ...domain.ServerID) error { return nil }
func (r *txRepo) PreloadCache(context.Context, ...domain.ServerID) error    { return nil }

func (r *txRepo) Export(_ context.Context) ([]byte, error) {
	var servers []domain.Server
	err := r.store.scanServers(r.tx, func(server domain.Server) error {
		servers = append(servers, server)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortServers(servers, domain.SortByName, domain.SortAsc)
	return json.MarshalIndent(snapshot{ExportedAt: time.Now().UTC(), Servers: servers}, "", "  ")
}

func (r *txRepo) Import(ctx context.Context, raw []byte) (domain.BatchResult, error) {
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.BatchResult{}, domain.E(domain.CodeRepository, "store.import", "unmarshal snapshot", err)
	}
	result := domain.BatchResult{Failed: map[domain.ServerID]error{}}
	for _, server := range snap.Servers {
		var prev *domain.Server
		if existing, err := r.store.readServer(r.tx, server.ID); err == nil {
			prev = &existing
		}
		if err := r.store.writeServer(r.tx, server); err != nil {
			return domain.BatchResult{}, err
		}
		r.stage(domain.EventUpdated, server, prev)
		result.Succeeded = append(result.Succeeded, server.ID)
	}
	return result, nil
}

func (r *txRepo) HealthCheck(context.Context) error { return nil }

// Transaction nested inside a transaction reuses the same handle.
func (r *txRepo) Transaction(_ context.Context, fn func(tx domain.Repository) error) error {
	return fn(r)
}

func (r *txRepo) stage(eventType domain.EventType, server domain.Server, prev *domain.Server) {
	commit := stagedCommit{eventType: eventType, server: server.Clone()}
	if prev != nil {
		before := prev.Clone()
		commit.previous = &before
	}
	r.staged = append(r.staged, commit)
}
