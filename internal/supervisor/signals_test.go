package supervisor

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestWatcherTranslatesSignals(t *testing.T) {
	flags := NewFlags()
	w := WatchSignals(flags)
	defer w.Stop()

	pid := os.Getpid()

	require.NoError(t, unix.Kill(pid, unix.SIGUSR1))
	require.Eventually(t, func() bool {
		starts, _ := flags.TakeRecordToggles()
		return starts > 0
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, unix.Kill(pid, unix.SIGUSR2))
	require.Eventually(t, func() bool {
		_, stops := flags.TakeRecordToggles()
		return stops > 0
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, unix.Kill(pid, unix.SIGHUP))
	require.Eventually(t, func() bool {
		return flags.TakeRestart()
	}, 2*time.Second, time.Millisecond)

	require.False(t, flags.ExitRequested())
}

func TestWatcherStopJoins(t *testing.T) {
	flags := NewFlags()
	w := WatchSignals(flags)

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestFlagsExitIsSticky(t *testing.T) {
	flags := NewFlags()
	require.False(t, flags.ExitRequested())
	flags.RequestExit()
	require.True(t, flags.ExitRequested())
	require.True(t, flags.ExitRequested(), "exit is one-way")
}
