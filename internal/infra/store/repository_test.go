package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"mcpreg/internal/domain"
)

func newTestStore(t *testing.T, mutate ...func(*Options)) *Store {
	t.Helper()
	opts := DefaultOptions(filepath.Join(t.TempDir(), "registry.db"))
	for _, fn := range mutate {
		fn(&opts)
	}
	s, err := Open(opts, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testServer(name string) domain.Server {
	return domain.Server{
		ID:   domain.NewServerID(),
		Name: name,
		Configuration: domain.ServerConfiguration{
			Command: "node",
			Args:    []string{"server.js"},
		},
		Status: domain.Idle(),
	}
}

func TestCreateAndFindByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, testServer("alpha"))
	require.NoError(t, err)
	require.Equal(t, int64(1), created.Version)
	require.False(t, created.CreatedAt.IsZero())

	found, err := s.FindByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "alpha", found.Name)

	_, err = s.FindByID(ctx, domain.NewServerID())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateCompareAndSwap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, testServer("alpha"))
	require.NoError(t, err)

	desc := "first"
	updated, err := s.Update(ctx, created.ID, domain.ServerDelta{Description: &desc}, 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), updated.Version)

	// stale version: fails and mutates nothing
	stale := "stale write"
	_, err = s.Update(ctx, created.ID, domain.ServerDelta{Description: &stale}, 1)
	require.ErrorIs(t, err, domain.ErrVersionConflict)

	current, err := s.FindByID(ctx, created.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(updated, current); diff != "" {
		t.Fatalf("stored entity changed after failed CAS (-want +got):\n%s", diff)
	}

	// current version succeeds and yields version 3
	_, err = s.Update(ctx, created.ID, domain.ServerDelta{Tags: []string{"x"}}, 2)
	require.NoError(t, err)
	current, err = s.FindByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), current.Version)
	require.Equal(t, []string{"x"}, current.Tags)
}

func TestVersionAfterNSuccessfulUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, testServer("alpha"))
	require.NoError(t, err)

	const updates = 5
	version := created.Version
	for i := 0; i < updates; i++ {
		desc := fmt.Sprintf("rev %d", i)
		updated, err := s.Update(ctx, created.ID, domain.ServerDelta{Description: &desc}, version)
		require.NoError(t, err)
		version = updated.Version
	}
	require.Equal(t, int64(1+updates), version)
}

func TestDeleteRemovesServer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, testServer("alpha"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, created.ID))

	_, err = s.FindByID(ctx, created.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	exists, err := s.Exists(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, exists)

	require.ErrorIs(t, s.Delete(ctx, created.ID), domain.ErrNotFound)
}

func TestFindManyPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		_, err := s.Create(ctx, testServer(fmt.Sprintf("server-%02d", i)))
		require.NoError(t, err)
	}

	result, err := s.FindMany(ctx, domain.ListQuery{
		Sort: domain.SortByName,
		Page: domain.Page{Number: 3, Limit: 10},
	})
	require.NoError(t, err)
	require.Equal(t, 25, result.Total)
	require.Len(t, result.Servers, 5)
	require.Equal(t, "server-20", result.Servers[0].Name)

	empty, err := s.FindMany(ctx, domain.ListQuery{
		Sort: domain.SortByName,
		Page: domain.Page{Number: 4, Limit: 10},
	})
	require.NoError(t, err)
	require.Empty(t, empty.Servers)
	require.Equal(t, 25, empty.Total)
}

func TestFindManyFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alpha := testServer("alpha worker")
	alpha.Tags = []string{"prod", "edge"}
	beta := testServer("beta worker")
	beta.Tags = []string{"prod"}
	beta.Status = domain.Stopped("manual")
	gamma := testServer("gamma")
	gamma.Description = "worker of last resort"

	for _, server := range []domain.Server{alpha, beta, gamma} {
		_, err := s.Create(ctx, server)
		require.NoError(t, err)
	}

	byStatus, err := s.FindMany(ctx, domain.ListQuery{Filter: domain.ListFilter{Status: domain.StatusStopped}})
	require.NoError(t, err)
	require.Len(t, byStatus.Servers, 1)
	require.Equal(t, "beta worker", byStatus.Servers[0].Name)

	anyTag, err := s.FindMany(ctx, domain.ListQuery{Filter: domain.ListFilter{Tags: []string{"edge", "missing"}}})
	require.NoError(t, err)
	require.Len(t, anyTag.Servers, 1)

	allTags, err := s.FindMany(ctx, domain.ListQuery{Filter: domain.ListFilter{Tags: []string{"prod", "edge"}, MatchAllTags: true}})
	require.NoError(t, err)
	require.Len(t, allTags.Servers, 1)
	require.Equal(t, "alpha worker", allTags.Servers[0].Name)

	// search spans name and description, case-insensitive
	search, err := s.FindMany(ctx, domain.ListQuery{Filter: domain.ListFilter{Search: "WORKER"}})
	require.NoError(t, err)
	require.Len(t, search.Servers, 3)
}

func TestSortByStatusKindOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	statuses := []domain.ServerStatus{
		domain.Errored("x", 1),
		domain.Running(1, 0),
		domain.Updating(5),
		domain.Idle(),
		domain.Stopped(""),
	}
	for i, status := range statuses {
		server := testServer(fmt.Sprintf("srv-%d", i))
		server.Status = status
		_, err := s.Create(ctx, server)
		require.NoError(t, err)
	}

	result, err := s.FindMany(ctx, domain.ListQuery{Sort: domain.SortByStatus})
	require.NoError(t, err)
	var kinds []domain.StatusKind
	for _, server := range result.Servers {
		kinds = append(kinds, server.Status.Kind)
	}
	require.Equal(t, []domain.StatusKind{
		domain.StatusIdle, domain.StatusRunning, domain.StatusStopped,
		domain.StatusError, domain.StatusUpdating,
	}, kinds)
}

func TestEventLogAppendAndRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, testServer("alpha"))
	require.NoError(t, err)

	require.NoError(t, s.SaveEvent(ctx, domain.NewCreatedEvent(created.ID, domain.CreateServerInput{Name: "alpha"}, 1)))
	require.NoError(t, s.SaveEvent(ctx, domain.NewStartedEvent(created.ID, 4242, 0)))

	events, err := s.Events(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, domain.EventCreated, events[0].Type)
	require.Equal(t, domain.EventStarted, events[1].Type)
}

func TestEventsDisabled(t *testing.T) {
	s := newTestStore(t, func(o *Options) { o.EnableEvents = false })
	err := s.SaveEvent(context.Background(), domain.NewStartedEvent(domain.NewServerID(), 1, 0))
	require.ErrorIs(t, err, domain.ErrEventsOff)
}

func TestCacheInvalidationNeverServesStale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, testServer("alpha"))
	require.NoError(t, err)

	// populate the cache
	_, err = s.FindByID(ctx, created.ID)
	require.NoError(t, err)

	desc := "changed"
	_, err = s.Update(ctx, created.ID, domain.ServerDelta{Description: &desc}, 1)
	require.NoError(t, err)

	fresh, err := s.FindByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "changed", fresh.Description)

	require.NoError(t, s.InvalidateCache(ctx))
	again, err := s.FindByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), again.Version)
}

func TestEncryptedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.db")
	opts := DefaultOptions(path)
	opts.EncryptionKey = "super-secret"

	s, err := Open(opts, nil)
	require.NoError(t, err)
	created, err := s.Create(context.Background(), testServer("alpha"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// reopen with the same key and read back
	s2, err := Open(opts, nil)
	require.NoError(t, err)
	defer s2.Close()
	found, err := s2.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, "alpha", found.Name)
}

func TestExportImportRoundTrip(t *testing.T) {
	source := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"alpha", "beta"} {
		_, err := source.Create(ctx, testServer(name))
		require.NoError(t, err)
	}
	raw, err := source.Export(ctx)
	require.NoError(t, err)

	target := newTestStore(t)
	result, err := target.Import(ctx, raw)
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 2)
	require.Empty(t, result.Failed)

	count, err := target.Count(ctx, domain.ListFilter{})
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestHealthCheck(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.HealthCheck(context.Background()))
	require.NoError(t, s.Close())
	require.ErrorIs(t, s.HealthCheck(context.Background()), domain.ErrStoreClosed)
}

func TestCreateManyPartitionsOutcomes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alpha := testServer("alpha")
	dup := testServer("alpha-copy")
	dup.ID = alpha.ID

	result, err := s.CreateMany(ctx, []domain.Server{alpha, testServer("beta"), dup})
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 2)
	require.Len(t, result.Failed, 1)
	require.Error(t, result.Failed[dup.ID])

	count, err := s.Count(ctx, domain.ListFilter{})
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestDeleteManyPartitionsOutcomes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alpha, err := s.Create(ctx, testServer("alpha"))
	require.NoError(t, err)
	missing := domain.NewServerID()

	result, err := s.DeleteMany(ctx, []domain.ServerID{alpha.ID, missing})
	require.NoError(t, err)
	require.Equal(t, []domain.ServerID{alpha.ID}, result.Succeeded)
	require.ErrorIs(t, result.Failed[missing], domain.ErrNotFound)
}

func TestPreloadCacheWarmsReads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, testServer("alpha"))
	require.NoError(t, err)
	require.NoError(t, s.InvalidateCache(ctx))
	require.NoError(t, s.PreloadCache(ctx, created.ID))

	found, err := s.FindByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, found.ID)
}
