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

// StartServer spawns the server process and persists the running status.
// Status only advances after the process manager confirms the spawn; a spawn
// failure moves the server to the error status with an incremented retry
// count instead.
func (s *Service) StartServer(ctx context.Context, id domain.ServerID) (domain.Server, error) {
	const op = "registry.startServer"
	started := time.Now()

	current, err := s.GetServer(ctx, id)
	if err != nil {
		s.observe(op, "not_found", started)
		return domain.Server{}, err
	}

	if err := current.Status.EnsureStartable(current.Configuration.RetryLimit); err != nil {
		s.observe(op, "rejected", started)
		switch {
		case errors.Is(err, domain.ErrAlreadyRunning):
			return domain.Server{}, domain.E(domain.CodeAlreadyRunning, op, current.Name, err)
		case errors.Is(err, domain.ErrRetryExhausted):
			return domain.Server{}, domain.E(domain.CodeInvalidTransition, op,
				fmt.Sprintf("%s exceeded its retry limit of %d", current.Name, current.Configuration.RetryLimit), err)
		default:
			return domain.Server{}, domain.E(domain.CodeInvalidTransition, op, current.Name, err)
		}
	}

	info, err := s.proc.Start(ctx, current)
	if err != nil {
		s.metrics.IncStart("failure")
		s.observe(op, "start_error", started)
		return domain.Server{}, s.markErrored(ctx, op, current, err)
	}

	running := domain.Running(info.PID, info.Port)
	updated, err := s.repo.Update(ctx, id, domain.ServerDelta{Status: &running}, current.Version)
	if err != nil {
		// the process is up but the record did not advance, so tear it down
		// rather than leave an untracked child behind
		if stopErr := s.proc.Stop(ctx, current, "rollback"); stopErr != nil {
			s.logger.Error("rollback stop failed, process may be orphaned",
				telemetry.ServerIDField(id),
				telemetry.PIDField(info.PID),
				zap.Error(stopErr),
			)
		}
		s.metrics.IncStart("failure")
		s.observe(op, "error", started)
		if errors.Is(err, domain.ErrVersionConflict) {
			return domain.Server{}, domain.E(domain.CodeVersionConflict, op,
				"concurrent modification, re-fetch and retry", err)
		}
		return domain.Server{}, domain.Wrap(domain.CodeRepository, op, err)
	}

	s.recordEvent(ctx, domain.NewStartedEvent(id, info.PID, info.Port))
	s.metrics.IncStart("success")
	s.logger.Info("server started",
		telemetry.ServerIDField(id),
		telemetry.ServerField(updated.Name),
		telemetry.PIDField(info.PID),
	)
	s.observe(op, "ok", started)
	return updated, nil
}

// StopServer terminates the process and persists the stopped status with the
// given reason. A non-running server is rejected before the process manager
// is consulted.
func (s *Service) StopServer(ctx context.Context, id domain.ServerID, reason string) (domain.Server, error) {
	const op = "registry.stopServer"
	started := time.Now()

	current, err := s.GetServer(ctx, id)
	if err != nil {
		s.observe(op, "not_found", started)
		return domain.Server{}, err
	}
	if err := current.Status.EnsureStoppable(); err != nil {
		s.observe(op, "rejected", started)
		return domain.Server{}, domain.E(domain.CodeNotRunning, op, current.Name, err)
	}

	if err := s.proc.Stop(ctx, current, reason); err != nil {
		s.metrics.IncStop("failure")
		s.observe(op, "stop_error", started)
		return domain.Server{}, domain.E(domain.CodeStopError, op, current.Name, err)
	}

	stopped := domain.Stopped(reason)
	updated, err := s.repo.Update(ctx, id, domain.ServerDelta{Status: &stopped}, current.Version)
	if err != nil {
		s.observe(op, "error", started)
		if errors.Is(err, domain.ErrVersionConflict) {
			return domain.Server{}, domain.E(domain.CodeVersionConflict, op,
				"concurrent modification, re-fetch and retry", err)
		}
		return domain.Server{}, domain.Wrap(domain.CodeRepository, op, err)
	}

	s.recordEvent(ctx, domain.NewStoppedEvent(id, reason))
	s.metrics.IncStop("success")
	s.logger.Info("server stopped",
		telemetry.ServerIDField(id),
		telemetry.ServerField(updated.Name),
		zap.String("reason", reason),
	)
	s.observe(op, "ok", started)
	return updated, nil
}

// RestartServer stops the server if it is running, waits out the settle
// delay, then starts it again. A failed stop is logged and does not abort
// the restart; the outcome is the outcome of the start.
func (s *Service) RestartServer(ctx context.Context, id domain.ServerID) (domain.Server, error) {
	const op = "registry.restartServer"

	current, err := s.GetServer(ctx, id)
	if err != nil {
		return domain.Server{}, err
	}

	if current.Status.Kind == domain.StatusRunning {
		if _, err := s.StopServer(ctx, id, "restart"); err != nil {
			s.logger.Warn("stop half of restart failed, starting anyway",
				telemetry.ServerIDField(id),
				zap.Error(err),
			)
		}
	}

	select {
	case <-ctx.Done():
		return domain.Server{}, domain.Wrap(domain.CodeInternal, op, ctx.Err())
	case <-time.After(s.settleDelay):
	}

	restarted, err := s.StartServer(ctx, id)
	if err != nil {
		return domain.Server{}, err
	}

	now := time.Now().UTC()
	metrics := restarted.Metrics
	metrics.RestartCount++
	metrics.LastRestart = &now
	withMetrics, err := s.repo.Update(ctx, id, domain.ServerDelta{Metrics: &metrics}, restarted.Version)
	if err != nil {
		// the restart itself succeeded, a stale counter is not worth failing it
		s.logger.Warn("restart bookkeeping update failed",
			telemetry.ServerIDField(id),
			zap.Error(err),
		)
		return restarted, nil
	}
	return withMetrics, nil
}

// MonitorExits consumes unexpected process exits until ctx is cancelled,
// moving the affected server from running to the error status and appending
// an error event. Servers configured with autoRestart get one restart
// attempt, still subject to their retry limit.
func (s *Service) MonitorExits(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case exit, ok := <-s.proc.Exits():
			if !ok {
				return
			}
			s.handleExit(ctx, exit)
		}
	}
}

func (s *Service) handleExit(ctx context.Context, exit domain.ProcessExit) {
	const op = "registry.handleExit"

	current, err := s.repo.FindByID(ctx, exit.ServerID)
	if err != nil {
		s.logger.Warn("exited server not found",
			telemetry.ServerIDField(exit.ServerID),
			zap.Error(err),
		)
		return
	}
	if current.Status.Kind != domain.StatusRunning {
		// already transitioned by a concurrent stop or delete
		return
	}

	cause := errors.New("process exited unexpectedly")
	if exit.Err != nil {
		cause = exit.Err
	}
	if err := s.markErrored(ctx, op, current, cause); err != nil {
		s.logger.Error("recording unexpected exit failed",
			telemetry.ServerIDField(exit.ServerID),
			zap.Error(err),
		)
		return
	}
	s.logger.Warn("server exited unexpectedly",
		telemetry.ServerIDField(exit.ServerID),
		telemetry.ServerField(current.Name),
		zap.Error(cause),
	)

	if current.Configuration.AutoRestart {
		if _, err := s.StartServer(ctx, exit.ServerID); err != nil {
			s.logger.Warn("auto restart failed",
				telemetry.ServerIDField(exit.ServerID),
				zap.Error(err),
			)
		}
	}
}

// markErrored persists the error status with an incremented retry count and
// appends the matching event. The returned error wraps cause for the caller.
func (s *Service) markErrored(ctx context.Context, op string, current domain.Server, cause error) error {
	retry := current.Status.RetryCount() + 1
	errored := domain.Errored(cause.Error(), retry)
	if _, err := s.repo.Update(ctx, current.ID, domain.ServerDelta{Status: &errored}, current.Version); err != nil {
		s.logger.Error("persisting error status failed",
			telemetry.ServerIDField(current.ID),
			zap.Error(err),
		)
		return domain.E(domain.CodeStartError, op, current.Name, cause)
	}
	s.recordEvent(ctx, domain.NewErrorEvent(current.ID, cause.Error(), retry))
	return domain.E(domain.CodeStartError, op, current.Name, cause)
}
