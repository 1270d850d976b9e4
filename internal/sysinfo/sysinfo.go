// Package sysinfo reports host compute resources. The report is informational
// only: batch sizing and device counts come from configuration, never from
// detection.
package sysinfo

import (
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// AcceleratorEnv overrides detection, mainly for tests and CI.
const AcceleratorEnv = "LESIONTRAIN_ACCELERATOR"

// Accelerator kinds, in preference order.
const (
	AcceleratorGPU = "gpu"
	AcceleratorMPS = "mps"
	AcceleratorCPU = "cpu"
)

// Accelerator describes the detected compute device.
type Accelerator struct {
	Kind    string
	Devices int
}

// Detect probes for an accelerator: NVIDIA device nodes first, then Apple
// silicon, else CPU.
func Detect() Accelerator {
	if kind := os.Getenv(AcceleratorEnv); kind != "" {
		return Accelerator{Kind: kind, Devices: 1}
	}

	devices := 0
	for i := 0; i < 16; i++ {
		if _, err := os.Stat(fmt.Sprintf("/dev/nvidia%d", i)); err != nil {
			break
		}
		devices++
	}
	if devices > 0 {
		return Accelerator{Kind: AcceleratorGPU, Devices: devices}
	}

	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		return Accelerator{Kind: AcceleratorMPS, Devices: 1}
	}

	return Accelerator{Kind: AcceleratorCPU, Devices: runtime.NumCPU()}
}

// HostMemoryGB reports total physical memory in GiB.
func HostMemoryGB() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("read host memory: %w", err)
	}
	return float64(vm.Total) / (1 << 30), nil
}

// CPUCount reports logical CPU count, falling back to the runtime's view.
func CPUCount() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		return runtime.NumCPU()
	}
	return n
}
