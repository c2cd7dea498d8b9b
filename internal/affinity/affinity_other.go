//go:build !linux && !windows

package affinity

// Bind is a no-op: the platform has no per-pid affinity primitive
// (macOS in particular does not support pinning another process).
func Bind(pid int, cpus []int) error {
	return nil
}
