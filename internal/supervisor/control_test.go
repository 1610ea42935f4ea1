package supervisor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/e7canasta/skylink-receiver/internal/config"
	"github.com/e7canasta/skylink-receiver/internal/display"
	"github.com/e7canasta/skylink-receiver/internal/framestats"
	"github.com/e7canasta/skylink-receiver/internal/ingest"
	"github.com/e7canasta/skylink-receiver/internal/pipeline"
	"github.com/e7canasta/skylink-receiver/internal/record"
)

// fakeController records control calls and simulates lifecycle state.
type fakeController struct {
	mu           sync.Mutex
	state        pipeline.State
	startErr     error
	stopBlocks   bool
	starts       int
	stops        int
	polls        int
	recEnables   int
	recDisables  int
	lastRecord   config.RecordConfig
	enableRecErr error
}

func newFakeController() *fakeController {
	return &fakeController{state: pipeline.Running}
}

func (c *fakeController) Start(*config.Config, display.Target, int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts++
	if c.startErr != nil {
		return c.startErr
	}
	c.state = pipeline.Running
	return nil
}

func (c *fakeController) Stop(time.Duration) {
	c.mu.Lock()
	blocks := c.stopBlocks
	c.stops++
	c.state = pipeline.Stopped
	c.mu.Unlock()
	if blocks {
		select {} // simulate a wedged teardown
	}
}

func (c *fakeController) PollChild() {
	c.mu.Lock()
	c.polls++
	c.mu.Unlock()
}

func (c *fakeController) CurrentState() pipeline.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeController) EnableRecording(rc config.RecordConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recEnables++
	c.lastRecord = rc
	return c.enableRecErr
}

func (c *fakeController) DisableRecording() {
	c.mu.Lock()
	c.recDisables++
	c.mu.Unlock()
}

func (c *fakeController) IngestStats() ingest.Stats    { return ingest.Stats{} }
func (c *fakeController) FrameStats() framestats.Stats { return framestats.Stats{} }
func (c *fakeController) RecordingStats() record.Stats { return record.Stats{} }

func (c *fakeController) counts() (starts, stops, enables, disables int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts, c.stops, c.recEnables, c.recDisables
}

func newTestSupervisor(ctl Controller) (*Supervisor, *Flags) {
	flags := NewFlags()
	cfg := config.Defaults()
	s := New(flags, ctl, cfg, display.Target{}, -1)
	s.tick = 2 * time.Millisecond
	return s, flags
}

func TestRunExitsOnRequest(t *testing.T) {
	ctl := newFakeController()
	s, flags := newTestSupervisor(ctl)

	errc := make(chan error, 1)
	go func() { errc <- s.Run() }()

	time.Sleep(20 * time.Millisecond)
	flags.RequestExit()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("control loop did not exit")
	}
}

func TestRunReportsUnplannedTermination(t *testing.T) {
	ctl := newFakeController()
	s, _ := newTestSupervisor(ctl)

	go func() {
		time.Sleep(10 * time.Millisecond)
		ctl.mu.Lock()
		ctl.state = pipeline.Stopped
		ctl.mu.Unlock()
	}()

	err := s.Run()
	require.Error(t, err)
	require.Contains(t, err.Error(), "terminated unexpectedly")
}

func TestRunAppliesRecordToggles(t *testing.T) {
	ctl := newFakeController()
	s, flags := newTestSupervisor(ctl)

	errc := make(chan error, 1)
	go func() { errc <- s.Run() }()

	flags.startRecord.Add(1)
	require.Eventually(t, func() bool {
		_, _, enables, _ := ctl.counts()
		return enables == 1
	}, time.Second, time.Millisecond)

	flags.stopRecord.Add(1)
	require.Eventually(t, func() bool {
		_, _, _, disables := ctl.counts()
		return disables == 1
	}, time.Second, time.Millisecond)

	flags.RequestExit()
	require.NoError(t, <-errc)
}

func TestRecordToggleIgnoredWhenNotRunning(t *testing.T) {
	ctl := newFakeController()
	ctl.state = pipeline.Stopped
	s, flags := newTestSupervisor(ctl)

	flags.startRecord.Add(1)
	s.applyRecordToggles()

	_, _, enables, _ := ctl.counts()
	require.Zero(t, enables)
}

func TestRecordToggleTracksConfigEnable(t *testing.T) {
	ctl := newFakeController()
	s, flags := newTestSupervisor(ctl)

	flags.startRecord.Add(1)
	s.applyRecordToggles()
	require.True(t, s.cfg.Record.Enable)

	flags.stopRecord.Add(1)
	s.applyRecordToggles()
	require.False(t, s.cfg.Record.Enable)
}

func TestRecordTogglesCoalesce(t *testing.T) {
	flags := NewFlags()
	flags.startRecord.Add(1)
	flags.startRecord.Add(1)
	flags.stopRecord.Add(1)

	starts, stops := flags.TakeRecordToggles()
	require.Equal(t, uint32(2), starts)
	require.Equal(t, uint32(1), stops)

	starts, stops = flags.TakeRecordToggles()
	require.Zero(t, starts)
	require.Zero(t, stops)
}

func TestRunRestartsPipeline(t *testing.T) {
	ctl := newFakeController()
	s, flags := newTestSupervisor(ctl)
	s.cfg.Record.Enable = true

	errc := make(chan error, 1)
	go func() { errc <- s.Run() }()

	flags.restart.Store(true)
	require.Eventually(t, func() bool {
		starts, stops, enables, _ := ctl.counts()
		return starts == 1 && stops == 1 && enables == 1
	}, time.Second, time.Millisecond)

	rc := func() config.RecordConfig {
		ctl.mu.Lock()
		defer ctl.mu.Unlock()
		return ctl.lastRecord
	}()
	require.True(t, rc.Enable)

	flags.RequestExit()
	require.NoError(t, <-errc)
}

func TestRunFailsWhenRestartFails(t *testing.T) {
	ctl := newFakeController()
	ctl.startErr = errors.New("bind failed")
	s, flags := newTestSupervisor(ctl)

	flags.restart.Store(true)
	err := s.Run()
	require.Error(t, err)
	require.Contains(t, err.Error(), "restart failed")
}

func TestShutdownCompletes(t *testing.T) {
	ctl := newFakeController()
	s, _ := newTestSupervisor(ctl)

	exited := false
	s.exit = func(int) { exited = true }

	s.Shutdown()
	require.False(t, exited)

	_, stops, _, _ := ctl.counts()
	require.Equal(t, 1, stops)
}

func TestShutdownForcesExitOnDeadline(t *testing.T) {
	ctl := newFakeController()
	ctl.stopBlocks = true
	s, _ := newTestSupervisor(ctl)
	s.shutdownWait = 10 * time.Millisecond

	codes := make(chan int, 1)
	s.exit = func(code int) { codes <- code }

	s.Shutdown()

	select {
	case code := <-codes:
		require.Equal(t, 128, code)
	default:
		t.Fatal("expected forced exit")
	}
}
