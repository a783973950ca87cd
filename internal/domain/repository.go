package domain

import (
	"context"
	"time"
)

type SortField string

const (
	SortByName      SortField = "name"
	SortByCreatedAt SortField = "createdAt"
	SortByUpdatedAt SortField = "updatedAt"
	SortByStatus    SortField = "status"
)

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListFilter narrows a findMany scan. Zero values mean "no constraint".
type ListFilter struct {
	Status        StatusKind
	Tags          []string
	MatchAllTags  bool
	Search        string
	CreatedAfter  time.Time
	CreatedBefore time.Time
	UpdatedAfter  time.Time
	UpdatedBefore time.Time
}

// Page is 1-indexed; a page past the available rows yields an empty slice.
type Page struct {
	Number int
	Limit  int
}

type ListQuery struct {
	Filter ListFilter
	Sort   SortField
	Order  SortOrder
	Page   Page
}

type ListResult struct {
	Servers []Server
	Total   int
	Page    int
	Limit   int
}

// Notification is pushed to watchers after a commit that affects their query.
// Duplicates are allowed; subscribers must tolerate at-least-once delivery.
// Previous carries the pre-commit row for updates so filtered watchers still
// see the commit that moved a row out of their result set; it is nil on
// creation.
type Notification struct {
	Type     EventType
	Server   Server
	Previous *Server
}

// Subscription is a watch handle; Cancel is idempotent and closes the channel.
type Subscription struct {
	C      <-chan Notification
	Cancel func()
}

type BatchResult struct {
	Succeeded []ServerID
	Failed    map[ServerID]error
}

// Repository is the persistence contract. Update performs a compare-and-swap
// on version: a stale expectedVersion fails with ErrVersionConflict and no
// mutation. There are no locks held across calls.
type Repository interface {
	FindByID(ctx context.Context, id ServerID) (Server, error)
	FindMany(ctx context.Context, query ListQuery) (ListResult, error)
	Create(ctx context.Context, server Server) (Server, error)
	Update(ctx context.Context, id ServerID, delta ServerDelta, expectedVersion int64) (Server, error)
	Delete(ctx context.Context, id ServerID) error
	Exists(ctx context.Context, id ServerID) (bool, error)
	Count(ctx context.Context, filter ListFilter) (int, error)
	CreateMany(ctx context.Context, servers []Server) (BatchResult, error)
	DeleteMany(ctx context.Context, ids []ServerID) (BatchResult, error)
	Search(ctx context.Context, text string, fields []string) ([]Server, error)

	WatchByID(ctx context.Context, id ServerID) (*Subscription, error)
	WatchMany(ctx context.Context, filter ListFilter) (*Subscription, error)

	SaveEvent(ctx context.Context, event ServerEvent) error
	Events(ctx context.Context, id ServerID) ([]ServerEvent, error)

	InvalidateCache(ctx context.Context, ids ...ServerID) error
	PreloadCache(ctx context.Context, ids ...ServerID) error

	Export(ctx context.Context) ([]byte, error)
	Import(ctx context.Context, snapshot []byte) (BatchResult, error)

	HealthCheck(ctx context.Context) error

	// Transaction runs fn against a handle whose writes commit atomically;
	// any error rolls the whole batch back.
	Transaction(ctx context.Context, fn func(tx Repository) error) error
}

// ProcessInfo is what a process manager reports after a confirmed spawn.
type ProcessInfo struct {
	PID  int
	Port int
}

// ProcessExit signals an unexpected process termination.
type ProcessExit struct {
	ServerID ServerID
	Err      error
	At       time.Time
}

// ProcessManager is the process-control boundary. Start returns only after
// the process is confirmed running; Stop returns only after teardown.
type ProcessManager interface {
	Start(ctx context.Context, server Server) (ProcessInfo, error)
	Stop(ctx context.Context, server Server, reason string) error
	Exits() <-chan ProcessExit
}

// EventBus fans committed events out to subscribers. Publication order
// follows commit order; cross-subscriber ordering is not enforced.
type EventBus interface {
	Publish(event ServerEvent)
	Subscribe(ctx context.Context) <-chan ServerEvent
}
