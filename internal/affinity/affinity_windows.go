package affinity

import (
	"golang.org/x/sys/windows"
)

var (
	kernel32               = windows.NewLazySystemDLL("kernel32.dll")
	setProcessAffinityMask = kernel32.NewProc("SetProcessAffinityMask")
)

func Bind(pid int, cpus []int) error {
	handle, err := windows.OpenProcess(
		windows.PROCESS_SET_INFORMATION|windows.PROCESS_QUERY_INFORMATION,
		false,
		uint32(pid),
	)
	if err != nil {
		return err
	}
	defer windows.CloseHandle(handle)

	var mask uintptr
	for _, cpu := range cpus {
		mask |= 1 << cpu
	}

	ret, _, err := setProcessAffinityMask.Call(uintptr(handle), mask)
	if ret == 0 {
		return err
	}

	return nil
}
