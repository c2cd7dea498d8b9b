package proc

import (
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetherproc/tether/util"
	"go.uber.org/zap"
)

func TestRegistry_AddRemove(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	r.Add(123)
	assert.True(t, r.Contains(123))
	assert.Equal(t, 1, r.Len())

	r.Remove(123)
	assert.False(t, r.Contains(123))
	assert.Zero(t, r.Len())
}

func TestRegistry_IgnoresInvalidPids(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	r.Add(0)
	r.Add(-1)

	assert.Zero(t, r.Len())
}

func TestRegistry_RemoveUnknownPid(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	// removing a pid that was never added must not fail
	r.Remove(999)

	assert.Zero(t, r.Len())
}

func TestRegistry_ConcurrentAddRemove(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()

			r.Add(pid)
			r.Remove(pid)
		}(i)
	}
	wg.Wait()

	assert.Zero(t, r.Len())
}

func TestRegistry_ShutdownTerminatesOrphans(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	cmd := exec.Command("cat")
	initCmd(cmd)

	require.NoError(t, cmd.Start())

	pid := cmd.Process.Pid
	go cmd.Wait()

	r.Add(pid)

	r.Shutdown()

	assert.Zero(t, r.Len())

	require.Eventually(t, func() bool {
		return !util.IsProcessAlive(pid)
	}, 2*time.Second, 10*time.Millisecond, "orphan still alive after shutdown")
}
