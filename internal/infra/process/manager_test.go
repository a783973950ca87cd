package process

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mcpreg/internal/domain"
)

func sleepServer(t *testing.T, args ...string) domain.Server {
	t.Helper()
	if len(args) == 0 {
		args = []string{"30"}
	}
	return domain.Server{
		ID:   domain.NewServerID(),
		Name: "test sleeper",
		Configuration: domain.ServerConfiguration{
			Command: "sleep",
			Args:    args,
		},
	}
}

func TestStartAndStop(t *testing.T) {
	m := NewManager(Options{StopGrace: time.Second})
	srv := sleepServer(t)

	info, err := m.Start(context.Background(), srv)
	require.NoError(t, err)
	require.Greater(t, info.PID, 0)

	require.NoError(t, m.Stop(context.Background(), srv, "test"))

	// a deliberate stop must not surface as an unexpected exit
	select {
	case exit := <-m.Exits():
		t.Fatalf("unexpected exit event: %v", exit.Err)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestStartSpawnFailure(t *testing.T) {
	m := NewManager(Options{})
	srv := sleepServer(t)
	srv.Configuration.Command = "definitely-not-a-binary-xyz"

	_, err := m.Start(context.Background(), srv)
	require.Error(t, err)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeStartError, code)
}

func TestStartRejectsShellMeta(t *testing.T) {
	m := NewManager(Options{})
	srv := sleepServer(t)
	srv.Configuration.Command = "sleep 30; rm -rf /"

	_, err := m.Start(context.Background(), srv)
	require.Error(t, err)
	code, _ := domain.CodeFrom(err)
	require.Equal(t, domain.CodeValidation, code)
}

func TestStopWithoutStart(t *testing.T) {
	m := NewManager(Options{})
	err := m.Stop(context.Background(), sleepServer(t), "test")
	require.ErrorIs(t, err, domain.ErrNotRunning)
}

func TestUnexpectedExitReported(t *testing.T) {
	m := NewManager(Options{})
	srv := sleepServer(t)
	srv.Configuration.Command = "sh"
	srv.Configuration.Args = []string{"-c", "exit 3"}

	_, err := m.Start(context.Background(), srv)
	require.NoError(t, err)

	select {
	case exit := <-m.Exits():
		require.Equal(t, srv.ID, exit.ServerID)
		require.Error(t, exit.Err)
	case <-time.After(5 * time.Second):
		t.Fatal("no exit event")
	}
}

func TestDoubleStartRejected(t *testing.T) {
	m := NewManager(Options{StopGrace: time.Second})
	srv := sleepServer(t)

	_, err := m.Start(context.Background(), srv)
	require.NoError(t, err)
	defer func() { _ = m.Stop(context.Background(), srv, "cleanup") }()

	_, err = m.Start(context.Background(), srv)
	require.ErrorIs(t, err, domain.ErrAlreadyRunning)
}

func TestConcurrentStartsTrackExactlyOne(t *testing.T) {
	m := NewManager(Options{StopGrace: time.Second})
	srv := sleepServer(t)

	const racers = 8
	errs := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Start(context.Background(), srv)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	started := 0
	for err := range errs {
		if err == nil {
			started++
			continue
		}
		require.ErrorIs(t, err, domain.ErrAlreadyRunning)
	}
	require.Equal(t, 1, started)

	// the single tracked child stops cleanly and leaves no stray exit event
	require.NoError(t, m.Stop(context.Background(), srv, "test"))
	select {
	case exit := <-m.Exits():
		t.Fatalf("unexpected exit event: %v", exit.Err)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestStartReleasesSlotAfterSpawnFailure(t *testing.T) {
	m := NewManager(Options{StopGrace: time.Second})
	srv := sleepServer(t)
	srv.Configuration.Command = "definitely-not-a-binary-xyz"

	_, err := m.Start(context.Background(), srv)
	require.Error(t, err)

	srv.Configuration.Command = "sleep"
	_, err = m.Start(context.Background(), srv)
	require.NoError(t, err)
	require.NoError(t, m.Stop(context.Background(), srv, "test"))
}
