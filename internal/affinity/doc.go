// Package affinity binds child processes to a set of logical CPUs.
// Only Linux and Windows expose a per-pid affinity primitive; on other
// platforms Bind is a no-op.
package affinity
