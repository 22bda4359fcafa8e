package process

import gopsproc "github.com/shirou/gopsutil/v4/process"

// sample reads resident memory and CPU usage for pid. Zero values are
// returned when the platform does not expose them.
func sample(pid int) (uint64, float64) {
	if pid <= 0 {
		return 0, 0
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return 0, 0
	}
	var rss uint64
	if mi, err := p.MemoryInfo(); err == nil && mi != nil {
		rss = mi.RSS
	}
	cpu, err := p.CPUPercent()
	if err != nil {
		cpu = 0
	}
	return rss, cpu
}
