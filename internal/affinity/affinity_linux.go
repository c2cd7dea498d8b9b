package affinity

import (
	"golang.org/x/sys/unix"
)

func Bind(pid int, cpus []int) error {
	var set unix.CPUSet

	set.Zero()
	for _, cpu := range cpus {
		set.Set(cpu)
	}

	return unix.SchedSetaffinity(pid, &set)
}
