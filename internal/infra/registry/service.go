// Package registry is the service layer: it enforces the business rules the
// repository does not know about, coordinates multi-step operations against
// the process manager, and translates lower-layer failures into the stable
// error taxonomy.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mcpreg/internal/domain"
	"mcpreg/internal/infra/telemetry"
)

const DefaultSettleDelay = 500 * time.Millisecond

type Service struct {
	repo        domain.Repository
	proc        domain.ProcessManager
	bus         domain.EventBus
	logger      *zap.Logger
	metrics     *telemetry.PrometheusMetrics
	settleDelay time.Duration
}

type Options struct {
	Repository     domain.Repository
	ProcessManager domain.ProcessManager
	EventBus       domain.EventBus
	Logger         *zap.Logger
	Metrics        *telemetry.PrometheusMetrics
	// SettleDelay is the unconditional pause between the stop and start
	// halves of a restart, allowing process teardown.
	SettleDelay time.Duration
}

func NewService(opts Options) *Service {
	if opts.Repository == nil {
		panic("registry.Service requires a repository")
	}
	if opts.ProcessManager == nil {
		panic("registry.Service requires a process manager")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	settle := opts.SettleDelay
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	return &Service{
		repo:        opts.Repository,
		proc:        opts.ProcessManager,
		bus:         opts.EventBus,
		logger:      logger.Named("registry"),
		metrics:     opts.Metrics,
		settleDelay: settle,
	}
}

func (s *Service) CreateServer(ctx context.Context, input domain.CreateServerInput) (domain.Server, error) {
	const op = "registry.createServer"
	started := time.Now()

	if violations := domain.ValidateCreate(input); len(violations) > 0 {
		s.observe(op, "invalid", started)
		return domain.Server{}, domain.ValidationFailed(op, violations)
	}
	if err := s.ensureNameFree(ctx, op, input.Name, ""); err != nil {
		s.observe(op, "conflict", started)
		return domain.Server{}, err
	}

	server := domain.Server{
		ID:            domain.NewServerID(),
		Name:          input.Name,
		Description:   input.Description,
		Configuration: input.Configuration,
		HealthCheck:   input.HealthCheck,
		Tags:          append([]string(nil), input.Tags...),
		Status:        domain.Idle(),
	}

	created, err := s.repo.Create(ctx, server)
	if err != nil {
		s.observe(op, "error", started)
		return domain.Server{}, domain.Wrap(domain.CodeRepository, op, err)
	}

	s.recordEvent(ctx, domain.NewCreatedEvent(created.ID, input, created.Version))
	s.logger.Info("server created",
		telemetry.ServerIDField(created.ID),
		telemetry.ServerField(created.Name),
		telemetry.VersionField(created.Version),
	)
	s.observe(op, "ok", started)
	return created, nil
}

func (s *Service) GetServer(ctx context.Context, id domain.ServerID) (domain.Server, error) {
	const op = "registry.getServer"
	server, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Server{}, domain.E(domain.CodeNotFound, op, fmt.Sprintf("server %s", id), err)
		}
		return domain.Server{}, domain.Wrap(domain.CodeRepository, op, err)
	}
	return server, nil
}

func (s *Service) ListServers(ctx context.Context, query domain.ListQuery) (domain.ListResult, error) {
	result, err := s.repo.FindMany(ctx, query)
	if err != nil {
		return domain.ListResult{}, domain.Wrap(domain.CodeRepository, "registry.listServers", err)
	}
	return result, nil
}

func (s *Service) ServerEvents(ctx context.Context, id domain.ServerID) ([]domain.ServerEvent, error) {
	const op = "registry.serverEvents"
	events, err := s.repo.Events(ctx, id)
	if err != nil {
		return nil, domain.Wrap(domain.CodeRepository, op, err)
	}
	return events, nil
}

func (s *Service) UpdateServer(ctx context.Context, id domain.ServerID, delta domain.ServerDelta) (domain.Server, error) {
	const op = "registry.updateServer"
	started := time.Now()

	if violations := domain.ValidateDelta(delta); len(violations) > 0 {
		s.observe(op, "invalid", started)
		return domain.Server{}, domain.ValidationFailed(op, violations)
	}

	current, err := s.GetServer(ctx, id)
	if err != nil {
		s.observe(op, "not_found", started)
		return domain.Server{}, err
	}
	if delta.Name != nil && *delta.Name != current.Name {
		if err := s.ensureNameFree(ctx, op, *delta.Name, id); err != nil {
			s.observe(op, "conflict", started)
			return domain.Server{}, err
		}
	}
	// a field update may not smuggle an illegal lifecycle transition through
	if delta.Status != nil && delta.Status.Kind != current.Status.Kind {
		if !current.Status.CanTransition(delta.Status.Kind) {
			s.observe(op, "invalid_transition", started)
			return domain.Server{}, domain.E(domain.CodeInvalidTransition, op,
				fmt.Sprintf("cannot move from %s to %s", current.Status.Kind, delta.Status.Kind),
				domain.ErrInvalidTransition)
		}
	}

	updated, err := s.repo.Update(ctx, id, delta, current.Version)
	if err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			s.observe(op, "conflict", started)
			return domain.Server{}, domain.E(domain.CodeVersionConflict, op,
				"concurrent modification, re-fetch and retry", err)
		}
		s.observe(op, "error", started)
		return domain.Server{}, domain.Wrap(domain.CodeRepository, op, err)
	}

	s.recordEvent(ctx, domain.NewUpdatedEvent(id, delta, updated.Version))
	s.logger.Info("server updated",
		telemetry.ServerIDField(id),
		telemetry.VersionField(updated.Version),
	)
	s.observe(op, "ok", started)
	return updated, nil
}

// DeleteServer force-deletes: a running server gets exactly one best-effort
// stop attempt first, and a stop failure is recorded but never blocks the
// delete. Callers needing graceful shutdown must stop explicitly beforehand.
func (s *Service) DeleteServer(ctx context.Context, id domain.ServerID) error {
	const op = "registry.deleteServer"
	started := time.Now()

	current, err := s.GetServer(ctx, id)
	if err != nil {
		s.observe(op, "not_found", started)
		return err
	}

	stopFailure := ""
	if current.Status.Kind == domain.StatusRunning {
		if err := s.proc.Stop(ctx, current, "delete"); err != nil {
			stopFailure = err.Error()
			s.metrics.IncStop("failure")
			s.logger.Warn("stop before delete failed, proceeding",
				telemetry.ServerIDField(id),
				telemetry.ServerField(current.Name),
				zap.Error(err),
			)
		} else {
			s.metrics.IncStop("success")
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		s.observe(op, "error", started)
		return domain.Wrap(domain.CodeRepository, op, err)
	}

	s.recordEvent(ctx, domain.NewDeletedEvent(id, current.Name, stopFailure))
	s.logger.Info("server deleted",
		telemetry.ServerIDField(id),
		telemetry.ServerField(current.Name),
	)
	s.observe(op, "ok", started)
	return nil
}

// ensureNameFree performs the duplicate-name check. The repository search is
// a superset scan (substring match), so the exact-name filter afterwards is
// mandatory.
func (s *Service) ensureNameFree(ctx context.Context, op, name string, selfID domain.ServerID) error {
	candidates, err := s.repo.Search(ctx, name, []string{"name"})
	if err != nil {
		return domain.Wrap(domain.CodeRepository, op, err)
	}
	for _, candidate := range candidates {
		if candidate.Name == name && candidate.ID != selfID {
			return &domain.Error{
				Code:    domain.CodeDuplicateName,
				Op:      op,
				Message: fmt.Sprintf("name %q is already taken", name),
				Meta:    map[string]string{"conflictingId": candidate.ID.String()},
			}
		}
	}
	return nil
}

// recordEvent appends to the audit log and fans out to subscribers. Append
// failures are logged, never fatal: the state mutation already committed.
func (s *Service) recordEvent(ctx context.Context, event domain.ServerEvent) {
	if err := s.repo.SaveEvent(ctx, event); err != nil && !errors.Is(err, domain.ErrEventsOff) {
		s.logger.Warn("event append failed",
			telemetry.ServerIDField(event.ServerID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
	if s.bus != nil {
		s.bus.Publish(event)
	}
	s.metrics.IncEvent(string(event.Type))
}

func (s *Service) observe(op, status string, started time.Time) {
	s.metrics.ObserveOperation(op, status, time.Since(started))
}
