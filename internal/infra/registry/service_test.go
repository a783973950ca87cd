package registry

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mcpreg/internal/domain"
	"mcpreg/internal/infra/events"
	"mcpreg/internal/infra/store"
)

// fakeProcessManager records calls and lets tests script spawn outcomes and
// inject exits.
type fakeProcessManager struct {
	mu       sync.Mutex
	startErr error
	stopErr  error
	nextPID  int
	started  []domain.ServerID
	stopped  []domain.ServerID
	exits    chan domain.ProcessExit
}

func newFakeProcessManager() *fakeProcessManager {
	return &fakeProcessManager{nextPID: 4242, exits: make(chan domain.ProcessExit, 4)}
}

func (f *fakeProcessManager) Start(_ context.Context, server domain.Server) (domain.ProcessInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return domain.ProcessInfo{}, f.startErr
	}
	f.started = append(f.started, server.ID)
	return domain.ProcessInfo{PID: f.nextPID}, nil
}

func (f *fakeProcessManager) Stop(_ context.Context, server domain.Server, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stopped = append(f.stopped, server.ID)
	return nil
}

func (f *fakeProcessManager) Exits() <-chan domain.ProcessExit { return f.exits }

func (f *fakeProcessManager) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stopped)
}

func newTestService(t *testing.T, proc domain.ProcessManager) *Service {
	t.Helper()
	st, err := store.Open(store.DefaultOptions(filepath.Join(t.TempDir(), "registry.db")), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return NewService(Options{
		Repository:     st,
		ProcessManager: proc,
		EventBus:       events.NewBus(nil),
		SettleDelay:    time.Millisecond,
	})
}

func codeOf(t *testing.T, err error) domain.ErrorCode {
	t.Helper()
	require.Error(t, err)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok, "error carries no code: %v", err)
	return code
}

func validInput(name string) domain.CreateServerInput {
	return domain.CreateServerInput{
		Name: name,
		Configuration: domain.ServerConfiguration{
			Command:    "/usr/bin/mcp-weather",
			Args:       []string{"--stdio"},
			TimeoutMs:  30000,
			RetryLimit: 3,
		},
		Tags: []string{"tools"},
	}
}

func TestCreateServerAssignsIdentityAndVersion(t *testing.T) {
	svc := newTestService(t, newFakeProcessManager())
	ctx := context.Background()

	created, err := svc.CreateServer(ctx, validInput("alpha"))
	require.NoError(t, err)
	require.False(t, created.ID.IsZero())
	require.Equal(t, int64(1), created.Version)
	require.Equal(t, domain.StatusIdle, created.Status.Kind)

	evts, err := svc.ServerEvents(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, evts, 1)
	require.Equal(t, domain.EventCreated, evts[0].Type)
}

func TestCreateServerRejectsInvalidInput(t *testing.T) {
	svc := newTestService(t, newFakeProcessManager())

	input := validInput("x")
	input.Configuration.Command = "rm -rf /; echo done"
	_, err := svc.CreateServer(context.Background(), input)

	require.Equal(t, domain.CodeValidation, codeOf(t, err))
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	// the name and the command violation must both be reported
	require.Len(t, derr.Details, 2)
}

func TestCreateServerRejectsDuplicateName(t *testing.T) {
	svc := newTestService(t, newFakeProcessManager())
	ctx := context.Background()

	first, err := svc.CreateServer(ctx, validInput("alpha"))
	require.NoError(t, err)

	_, err = svc.CreateServer(ctx, validInput("alpha"))
	require.Equal(t, domain.CodeDuplicateName, codeOf(t, err))
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	require.Equal(t, first.ID.String(), derr.Meta["conflictingId"])

	// a substring collision is not a duplicate
	_, err = svc.CreateServer(ctx, validInput("alpha-2"))
	require.NoError(t, err)
}

func TestUpdateServerStaleVersionConflicts(t *testing.T) {
	svc := newTestService(t, newFakeProcessManager())
	ctx := context.Background()

	created, err := svc.CreateServer(ctx, validInput("alpha"))
	require.NoError(t, err)

	desc := "first writer"
	_, err = svc.UpdateServer(ctx, created.ID, domain.ServerDelta{Description: &desc})
	require.NoError(t, err)

	// second writer raced on the same base version
	stale := "second writer"
	_, err = svc.repo.Update(ctx, created.ID, domain.ServerDelta{Description: &stale}, created.Version)
	require.ErrorIs(t, err, domain.ErrVersionConflict)

	current, err := svc.GetServer(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "first writer", current.Description)
}

func TestUpdateServerRejectsIllegalStatusTransition(t *testing.T) {
	svc := newTestService(t, newFakeProcessManager())
	ctx := context.Background()

	created, err := svc.CreateServer(ctx, validInput("alpha"))
	require.NoError(t, err)

	// idle cannot jump straight to stopped
	stopped := domain.Stopped("manual")
	_, err = svc.UpdateServer(ctx, created.ID, domain.ServerDelta{Status: &stopped})
	require.Equal(t, domain.CodeInvalidTransition, codeOf(t, err))
}

func TestStartStopLifecycle(t *testing.T) {
	proc := newFakeProcessManager()
	svc := newTestService(t, proc)
	ctx := context.Background()

	created, err := svc.CreateServer(ctx, validInput("alpha"))
	require.NoError(t, err)

	running, err := svc.StartServer(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusRunning, running.Status.Kind)
	require.Equal(t, 4242, running.Status.Running.PID)

	// starting again must fail before touching the process manager
	_, err = svc.StartServer(ctx, created.ID)
	require.Equal(t, domain.CodeAlreadyRunning, codeOf(t, err))
	require.Len(t, proc.started, 1)

	stopped, err := svc.StopServer(ctx, created.ID, "manual")
	require.NoError(t, err)
	require.Equal(t, domain.StatusStopped, stopped.Status.Kind)
	require.Equal(t, "manual", stopped.Status.Stopped.Reason)

	_, err = svc.StopServer(ctx, created.ID, "manual")
	require.Equal(t, domain.CodeNotRunning, codeOf(t, err))

	evts, err := svc.ServerEvents(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, evts, 3)
	require.Equal(t, domain.EventStarted, evts[1].Type)
	require.Equal(t, domain.EventStopped, evts[2].Type)
}

func TestStartServerSpawnFailureMovesToError(t *testing.T) {
	proc := newFakeProcessManager()
	proc.startErr = errors.New("binary not found")
	svc := newTestService(t, proc)
	ctx := context.Background()

	created, err := svc.CreateServer(ctx, validInput("alpha"))
	require.NoError(t, err)

	_, err = svc.StartServer(ctx, created.ID)
	require.Equal(t, domain.CodeStartError, codeOf(t, err))

	current, err := svc.GetServer(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusError, current.Status.Kind)
	require.Equal(t, 1, current.Status.Error.RetryCount)

	// a second attempt bumps the count again
	_, err = svc.StartServer(ctx, created.ID)
	require.Equal(t, domain.CodeStartError, codeOf(t, err))
	current, err = svc.GetServer(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, 2, current.Status.Error.RetryCount)
}

func TestStartServerHonorsRetryLimit(t *testing.T) {
	proc := newFakeProcessManager()
	proc.startErr = errors.New("boom")
	svc := newTestService(t, proc)
	ctx := context.Background()

	input := validInput("alpha")
	input.Configuration.RetryLimit = 2
	created, err := svc.CreateServer(ctx, input)
	require.NoError(t, err)

	// attempts keep going until the counter exceeds the limit
	for i := 0; i < 3; i++ {
		_, err = svc.StartServer(ctx, created.ID)
		require.Equal(t, domain.CodeStartError, codeOf(t, err))
	}

	_, err = svc.StartServer(ctx, created.ID)
	require.Equal(t, domain.CodeInvalidTransition, codeOf(t, err))
	require.ErrorIs(t, err, domain.ErrRetryExhausted)
}

func TestDeleteRunningServerStopsFirst(t *testing.T) {
	proc := newFakeProcessManager()
	svc := newTestService(t, proc)
	ctx := context.Background()

	created, err := svc.CreateServer(ctx, validInput("alpha"))
	require.NoError(t, err)
	_, err = svc.StartServer(ctx, created.ID)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteServer(ctx, created.ID))
	require.Equal(t, 1, proc.stopCount())

	_, err = svc.GetServer(ctx, created.ID)
	require.Equal(t, domain.CodeNotFound, codeOf(t, err))
}

func TestDeleteProceedsWhenStopFails(t *testing.T) {
	proc := newFakeProcessManager()
	svc := newTestService(t, proc)
	ctx := context.Background()

	created, err := svc.CreateServer(ctx, validInput("alpha"))
	require.NoError(t, err)
	_, err = svc.StartServer(ctx, created.ID)
	require.NoError(t, err)

	proc.stopErr = errors.New("kill refused")
	require.NoError(t, svc.DeleteServer(ctx, created.ID))

	evts, err := svc.ServerEvents(ctx, created.ID)
	require.NoError(t, err)
	last := evts[len(evts)-1]
	require.Equal(t, domain.EventDeleted, last.Type)
	payload, err := domain.DecodeDeletedPayload(last)
	require.NoError(t, err)
	require.Equal(t, "kill refused", payload.StopFailure)
}

func TestRestartServer(t *testing.T) {
	proc := newFakeProcessManager()
	svc := newTestService(t, proc)
	ctx := context.Background()

	created, err := svc.CreateServer(ctx, validInput("alpha"))
	require.NoError(t, err)
	_, err = svc.StartServer(ctx, created.ID)
	require.NoError(t, err)

	restarted, err := svc.RestartServer(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusRunning, restarted.Status.Kind)
	require.Equal(t, 1, restarted.Metrics.RestartCount)
	require.NotNil(t, restarted.Metrics.LastRestart)
	require.Equal(t, 1, proc.stopCount())
	require.Len(t, proc.started, 2)
}

func TestBatchStartPartitionsOutcomes(t *testing.T) {
	proc := newFakeProcessManager()
	svc := newTestService(t, proc)
	ctx := context.Background()

	a, err := svc.CreateServer(ctx, validInput("alpha"))
	require.NoError(t, err)
	b, err := svc.CreateServer(ctx, validInput("beta"))
	require.NoError(t, err)
	missing := domain.NewServerID()

	result := svc.StartServers(ctx, []domain.ServerID{a.ID, missing, b.ID})
	require.ElementsMatch(t, []domain.ServerID{a.ID, b.ID}, result.Succeeded)
	require.Len(t, result.Failed, 1)
	require.Equal(t, domain.CodeNotFound, codeOf(t, result.Failed[missing]))
}

func TestMonitorExitsMovesRunningServerToError(t *testing.T) {
	proc := newFakeProcessManager()
	svc := newTestService(t, proc)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	created, err := svc.CreateServer(ctx, validInput("alpha"))
	require.NoError(t, err)
	_, err = svc.StartServer(ctx, created.ID)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		svc.MonitorExits(ctx)
		close(done)
	}()

	proc.exits <- domain.ProcessExit{ServerID: created.ID, Err: errors.New("exit status 3"), At: time.Now()}

	require.Eventually(t, func() bool {
		current, err := svc.GetServer(ctx, created.ID)
		return err == nil && current.Status.Kind == domain.StatusError
	}, 2*time.Second, 10*time.Millisecond)

	current, err := svc.GetServer(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "exit status 3", current.Status.Error.Error)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not exit on cancel")
	}
}
