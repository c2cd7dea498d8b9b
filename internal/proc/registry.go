package proc

import (
	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
)

// Registry is the process-wide set of live child pids, shared by every
// controller. Controllers add their pid on Start and remove it on Kill;
// Shutdown sweeps whatever is left so an abnormal host exit cannot
// orphan children. The underlying set is safe for concurrent use.
type Registry struct {
	pids mapset.Set[int]
	log  *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		pids: mapset.NewSet[int](),
		log:  log.Named("registry"),
	}
}

func (r *Registry) Add(pid int) {
	if pid <= 0 {
		return
	}

	r.pids.Add(pid)
}

func (r *Registry) Remove(pid int) {
	r.pids.Remove(pid)
}

func (r *Registry) Contains(pid int) bool {
	return r.pids.Contains(pid)
}

func (r *Registry) Len() int {
	return r.pids.Cardinality()
}

// Shutdown force-terminates every still-registered child. It is the
// safety net for exit paths that bypass individual Kill calls, and is
// meant to run exactly once, at host shutdown.
func (r *Registry) Shutdown() {
	for _, pid := range r.pids.ToSlice() {
		r.log.Warn("terminating orphaned child", zap.Int("pid", pid))

		if err := killProcess(pid); err != nil {
			r.log.Error("failed to terminate child", zap.Int("pid", pid), zap.Error(err))
		}

		r.pids.Remove(pid)
	}
}
