package proc_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetherproc/tether/internal/proc"
	"github.com/tetherproc/tether/util"
	"go.uber.org/zap"
)

const (
	// echoServer answers every "ping" line with "pong" and stays alive
	echoServer = `while read line; do [ "$line" = "ping" ] && echo pong; done`

	// sleeper emits "done" long after any reasonable deadline
	sleeper = `sleep 10; echo done`
)

func newController(t *testing.T, registry *proc.Registry, script string) *proc.Controller {
	t.Helper()

	return proc.New(proc.Config{
		Cmd:     "sh",
		Args:    []string{"-c", script},
		LogName: t.Name(),
	}, proc.Params{
		Registry: registry,
		Log:      zap.NewNop(),
	})
}

func TestController_Start_IsAlive(t *testing.T) {
	registry := proc.NewRegistry(zap.NewNop())

	c := newController(t, registry, "cat")

	err := c.Start(context.Background())
	require.NoError(t, err)

	defer c.Kill()

	assert.True(t, c.Alive())

	pid := c.Pid()
	require.NotZero(t, pid, "pid should be set after Start")

	require.Eventually(t, func() bool {
		return util.IsProcessAlive(pid)
	}, 2*time.Second, 10*time.Millisecond, "process never reported alive")
}

func TestController_Start_FailsIfStarted(t *testing.T) {
	registry := proc.NewRegistry(zap.NewNop())

	c := newController(t, registry, "cat")

	err := c.Start(context.Background())
	require.NoError(t, err)

	defer c.Kill()

	err = c.Start(context.Background())
	assert.ErrorIs(t, err, proc.ErrAlreadyStarted)
}

func TestController_Start_InvalidCommand(t *testing.T) {
	registry := proc.NewRegistry(zap.NewNop())

	c := proc.New(proc.Config{
		Cmd: "/nonexistent/binary",
	}, proc.Params{
		Registry: registry,
		Log:      zap.NewNop(),
	})

	err := c.Start(context.Background())
	assert.Error(t, err)

	// a failed spawn must not leave a registry entry
	assert.Zero(t, registry.Len())

	// the controller must still be uninitialized
	assert.ErrorIs(t, c.Write("hello\n"), proc.ErrNotStarted)
}

func TestController_Start_FailsIfContextCancelled(t *testing.T) {
	registry := proc.NewRegistry(zap.NewNop())

	c := newController(t, registry, "cat")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Start(ctx)
	assert.Error(t, err)
}

func TestController_ReadUntil_EchoScenario(t *testing.T) {
	registry := proc.NewRegistry(zap.NewNop())

	c := newController(t, registry, echoServer)

	err := c.Start(context.Background())
	require.NoError(t, err)

	defer c.Kill()

	err = c.Write("ping\n")
	require.NoError(t, err)

	lines, status, err := c.ReadUntil("pong", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, proc.StatusOK, status)

	require.NotEmpty(t, lines)
	assert.Equal(t, "pong", lines[len(lines)-1])
}

func TestController_ReadUntil_Timeout(t *testing.T) {
	registry := proc.NewRegistry(zap.NewNop())

	c := newController(t, registry, sleeper)

	err := c.Start(context.Background())
	require.NoError(t, err)

	defer c.Kill()

	lines, status, err := c.ReadUntil("done", 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, proc.StatusTimeout, status)
	assert.Empty(t, lines)
}

func TestController_ReadUntil_ZeroTimeoutWaits(t *testing.T) {
	registry := proc.NewRegistry(zap.NewNop())

	c := newController(t, registry, `sleep 0.2; echo ready`)

	err := c.Start(context.Background())
	require.NoError(t, err)

	defer c.Kill()

	lines, status, err := c.ReadUntil("ready", 0)
	require.NoError(t, err)
	assert.Equal(t, proc.StatusOK, status)
	assert.Equal(t, []string{"ready"}, lines)
}

func TestController_ReadUntil_PrefixMatch(t *testing.T) {
	registry := proc.NewRegistry(zap.NewNop())

	c := newController(t, registry, `echo info string; echo bestmove e2e4 ponder; sleep 10`)

	err := c.Start(context.Background())
	require.NoError(t, err)

	defer c.Kill()

	lines, status, err := c.ReadUntil("bestmove", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, proc.StatusOK, status)
	assert.Equal(t, []string{"info string", "bestmove e2e4 ponder"}, lines)
}

func TestController_ReadUntil_ErrOnChildExit(t *testing.T) {
	registry := proc.NewRegistry(zap.NewNop())

	c := newController(t, registry, `echo hello`)

	err := c.Start(context.Background())
	require.NoError(t, err)

	defer c.Kill()

	// the child exits after one line; the terminator never arrives
	lines, status, err := c.ReadUntil("never", 5*time.Second)
	assert.Error(t, err)
	assert.Equal(t, proc.StatusErr, status)
	assert.Equal(t, []string{"hello"}, lines)
}

func TestController_Write_AfterChildExit(t *testing.T) {
	registry := proc.NewRegistry(zap.NewNop())

	c := newController(t, registry, "true")

	err := c.Start(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return !c.Alive()
	}, 2*time.Second, 10*time.Millisecond, "child never exited")

	err = c.Write("hello\n")
	assert.ErrorIs(t, err, proc.ErrNotAlive)

	// the failed write must have cleaned up the controller
	assert.Zero(t, registry.Len())
	assert.ErrorIs(t, c.Write("hello\n"), proc.ErrNotStarted)
}

func TestController_Kill_Idempotent(t *testing.T) {
	registry := proc.NewRegistry(zap.NewNop())

	c := newController(t, registry, "cat")

	err := c.Start(context.Background())
	require.NoError(t, err)

	pid := c.Pid()

	c.Kill()
	c.Kill()

	assert.Zero(t, registry.Len())

	require.Eventually(t, func() bool {
		return !util.IsProcessAlive(pid)
	}, 2*time.Second, 10*time.Millisecond, "process still alive after Kill")
}

func TestController_Kill_BeforeStart(t *testing.T) {
	registry := proc.NewRegistry(zap.NewNop())

	c := newController(t, registry, "cat")

	// killing a never-started controller must be a no-op
	c.Kill()

	assert.Zero(t, registry.Len())
}

func TestController_RegistryLifecycle(t *testing.T) {
	registry := proc.NewRegistry(zap.NewNop())

	c := newController(t, registry, "cat")

	err := c.Start(context.Background())
	require.NoError(t, err)

	assert.True(t, registry.Contains(c.Pid()))

	c.Kill()

	assert.False(t, registry.Contains(c.Pid()))
	assert.Zero(t, registry.Len())
}

func TestController_Restart(t *testing.T) {
	registry := proc.NewRegistry(zap.NewNop())

	c := newController(t, registry, "cat")

	err := c.Start(context.Background())
	require.NoError(t, err)

	defer c.Kill()

	oldPid := c.Pid()

	err = c.Restart(context.Background())
	require.NoError(t, err)

	assert.True(t, c.Alive())
	assert.NotEqual(t, oldPid, c.Pid())
	assert.True(t, registry.Contains(c.Pid()))
	assert.False(t, registry.Contains(oldPid))
}

func TestController_Alive_PanicsBeforeStart(t *testing.T) {
	registry := proc.NewRegistry(zap.NewNop())

	c := newController(t, registry, "cat")

	assert.Panics(t, func() {
		c.Alive()
	})
}

func TestController_SetAffinity_EmptyIsNoop(t *testing.T) {
	registry := proc.NewRegistry(zap.NewNop())

	c := newController(t, registry, "cat")

	// an empty CPU set is a no-op even before Start
	assert.NoError(t, c.SetAffinity(nil))

	assert.ErrorIs(t, c.SetAffinity([]int{0}), proc.ErrNotStarted)
}

func TestController_Wait_ReturnsExitError(t *testing.T) {
	registry := proc.NewRegistry(zap.NewNop())

	c := newController(t, registry, "exit 3")

	err := c.Start(context.Background())
	require.NoError(t, err)

	defer c.Kill()

	err = c.Wait(context.Background())
	require.Error(t, err)

	code, signal, ok := proc.ExitStatus(err)
	require.True(t, ok)
	assert.Equal(t, 3, code)
	assert.Zero(t, signal)
}

func TestController_Wait_ContextCancelled(t *testing.T) {
	registry := proc.NewRegistry(zap.NewNop())

	c := newController(t, registry, "cat")

	err := c.Start(context.Background())
	require.NoError(t, err)

	defer c.Kill()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = c.Wait(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
