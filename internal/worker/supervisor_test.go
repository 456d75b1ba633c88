package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunwarman/bree/internal/job"
	logx "github.com/shaunwarman/bree/pkg/logx"
)

// fakeRuntime is an in-memory substrate for supervisor tests.
type fakeRuntime struct {
	mu      sync.Mutex
	spawned int
	handles []*fakeHandle
}

func (r *fakeRuntime) Spawn(ctx context.Context, path string, init InitData) (Handle, error) {
	h := &fakeHandle{events: make(chan Event, 16)}
	h.events <- Event{Kind: EventOnline}
	r.mu.Lock()
	r.spawned++
	r.handles = append(r.handles, h)
	r.mu.Unlock()
	return h, nil
}

func (r *fakeRuntime) spawnCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spawned
}

func (r *fakeRuntime) last() *fakeHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.handles) == 0 {
		return nil
	}
	return r.handles[len(r.handles)-1]
}

type fakeHandle struct {
	events chan Event

	mu         sync.Mutex
	posted     []string
	terminated bool
	exitCode   int
}

func (h *fakeHandle) Events() <-chan Event { return h.events }

func (h *fakeHandle) Post(payload string) error {
	h.mu.Lock()
	h.posted = append(h.posted, payload)
	h.mu.Unlock()
	return nil
}

func (h *fakeHandle) Terminate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.terminated {
		return
	}
	h.terminated = true
	h.events <- Event{Kind: EventExit, Code: h.exitCode}
	close(h.events)
}

// exit simulates the unit finishing on its own.
func (h *fakeHandle) exit(code int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.terminated {
		return
	}
	h.terminated = true
	h.events <- Event{Kind: EventExit, Code: code}
	close(h.events)
}

func (h *fakeHandle) received(tok string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range h.posted {
		if p == tok {
			return true
		}
	}
	return false
}

func (h *fakeHandle) wasTerminated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.terminated
}

func testJob(name string) job.Job {
	return job.Job{Name: name, Path: "/bin/" + name}
}

func TestTriggerAtMostOneRun(t *testing.T) {
	t.Parallel()
	rt := &fakeRuntime{}
	sup := NewSupervisor(Config{}, rt, logx.Nop(), nil, nil)

	require.NoError(t, sup.Trigger(context.Background(), testJob("x")))
	err := sup.Trigger(context.Background(), testJob("x"))
	require.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Equal(t, 1, rt.spawnCount(), "second trigger must not spawn")
	assert.True(t, sup.Active("x"))

	// After the unit exits the job can run again.
	rt.last().exit(0)
	require.Eventually(t, func() bool { return !sup.Active("x") }, time.Second, 5*time.Millisecond)
	require.NoError(t, sup.Trigger(context.Background(), testJob("x")))
	assert.Equal(t, 2, rt.spawnCount())
}

func TestCancelHandshake(t *testing.T) {
	t.Parallel()
	rt := &fakeRuntime{}
	sup := NewSupervisor(Config{}, rt, logx.Nop(), nil, nil)

	require.NoError(t, sup.Trigger(context.Background(), testJob("x")))
	h := rt.last()

	sup.Cancel("x")
	require.Eventually(t, func() bool { return h.received(TokenCancel) }, time.Second, 5*time.Millisecond)

	// Worker acknowledges; supervisor must terminate it and drop the handle.
	h.events <- Event{Kind: EventMessage, Payload: TokenCancelled}
	require.Eventually(t, func() bool { return h.wasTerminated() }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !sup.Active("x") }, time.Second, 5*time.Millisecond)
}

func TestCancelWithoutAckLeavesHandle(t *testing.T) {
	t.Parallel()
	rt := &fakeRuntime{}
	sup := NewSupervisor(Config{}, rt, logx.Nop(), nil, nil)

	require.NoError(t, sup.Trigger(context.Background(), testJob("x")))
	h := rt.last()

	sup.Cancel("x")
	require.Eventually(t, func() bool { return h.received(TokenCancel) }, time.Second, 5*time.Millisecond)

	// No acknowledgment, no hard-kill configured: the handle stays. This
	// is the documented gap, not a leak to paper over.
	time.Sleep(50 * time.Millisecond)
	assert.True(t, sup.Active("x"))
	assert.False(t, h.wasTerminated())
}

func TestCancelledTokenFromOrdinaryOutputIgnored(t *testing.T) {
	t.Parallel()
	rt := &fakeRuntime{}
	sup := NewSupervisor(Config{}, rt, logx.Nop(), nil, nil)

	require.NoError(t, sup.Trigger(context.Background(), testJob("x")))
	h := rt.last()

	// Without a pending cancel, the reserved token is just a message.
	h.events <- Event{Kind: EventMessage, Payload: TokenCancelled}
	time.Sleep(50 * time.Millisecond)
	assert.True(t, sup.Active("x"))
	assert.False(t, h.wasTerminated())
}

func TestHardKillTimer(t *testing.T) {
	t.Parallel()
	rt := &fakeRuntime{}
	sup := NewSupervisor(Config{}, rt, logx.Nop(), nil, nil)

	j := testJob("x")
	j.CloseAfter = 80 * time.Millisecond
	require.NoError(t, sup.Trigger(context.Background(), j))
	h := rt.last()

	start := time.Now()
	require.Eventually(t, func() bool { return h.wasTerminated() }, time.Second, 5*time.Millisecond)
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond, "terminated too early")
	require.Eventually(t, func() bool { return !sup.Active("x") }, time.Second, 5*time.Millisecond)
}

func TestGlobalCloseAfterApplies(t *testing.T) {
	t.Parallel()
	rt := &fakeRuntime{}
	sup := NewSupervisor(Config{CloseAfter: 60 * time.Millisecond}, rt, logx.Nop(), nil, nil)

	require.NoError(t, sup.Trigger(context.Background(), testJob("x")))
	h := rt.last()
	require.Eventually(t, func() bool { return h.wasTerminated() }, time.Second, 5*time.Millisecond)
}

func TestClearHardKill(t *testing.T) {
	t.Parallel()
	rt := &fakeRuntime{}
	sup := NewSupervisor(Config{CloseAfter: 60 * time.Millisecond}, rt, logx.Nop(), nil, nil)

	require.NoError(t, sup.Trigger(context.Background(), testJob("x")))
	sup.ClearHardKill("x")

	h := rt.last()
	time.Sleep(120 * time.Millisecond)
	assert.False(t, h.wasTerminated(), "cleared hard-kill timer must not fire")
	assert.True(t, sup.Active("x"))
}
