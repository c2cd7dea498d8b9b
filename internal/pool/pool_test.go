package pool_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetherproc/tether/internal/pool"
	"github.com/tetherproc/tether/internal/proc"
	"github.com/tetherproc/tether/util"
	"go.uber.org/zap"
)

func newPool(t *testing.T, registry *proc.Registry, maxSize int) *pool.Pool {
	t.Helper()

	p, err := pool.New(pool.Params{
		Config: proc.Config{
			Cmd:     "cat",
			LogName: t.Name(),
		},
		MaxSize:  maxSize,
		Registry: registry,
		Log:      zap.NewNop(),
	})
	require.NoError(t, err)

	return p
}

func TestPool_AcquireStartsChild(t *testing.T) {
	registry := proc.NewRegistry(zap.NewNop())

	p := newPool(t, registry, 2)
	defer p.Shutdown()

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)

	defer lease.Release()

	ctl := lease.Controller()
	assert.True(t, ctl.Alive())
	assert.True(t, registry.Contains(ctl.Pid()))
}

func TestPool_ReleaseReusesChild(t *testing.T) {
	registry := proc.NewRegistry(zap.NewNop())

	p := newPool(t, registry, 1)
	defer p.Shutdown()

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)

	pid := lease.Controller().Pid()
	lease.Release()

	lease, err = p.Acquire(context.Background())
	require.NoError(t, err)

	defer lease.Release()

	assert.Equal(t, pid, lease.Controller().Pid())
}

func TestPool_DestroyKillsChild(t *testing.T) {
	registry := proc.NewRegistry(zap.NewNop())

	p := newPool(t, registry, 1)
	defer p.Shutdown()

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)

	pid := lease.Controller().Pid()
	lease.Destroy()

	require.Eventually(t, func() bool {
		return !util.IsProcessAlive(pid)
	}, 2*time.Second, 10*time.Millisecond, "child still alive after destroy")

	// the next acquire spawns a fresh child
	lease, err = p.Acquire(context.Background())
	require.NoError(t, err)

	defer lease.Release()

	assert.NotEqual(t, pid, lease.Controller().Pid())
}

func TestPool_ShutdownKillsAllChildren(t *testing.T) {
	registry := proc.NewRegistry(zap.NewNop())

	p := newPool(t, registry, 2)

	first, err := p.Acquire(context.Background())
	require.NoError(t, err)

	second, err := p.Acquire(context.Background())
	require.NoError(t, err)

	pids := []int{first.Controller().Pid(), second.Controller().Pid()}

	first.Release()
	second.Release()

	p.Shutdown()

	for _, pid := range pids {
		require.Eventually(t, func() bool {
			return !util.IsProcessAlive(pid)
		}, 2*time.Second, 10*time.Millisecond, "child still alive after shutdown")
	}

	assert.Zero(t, registry.Len())
}
