package system

import (
	"fmt"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Snapshot is a point-in-time resource reading for the performance report.
type Snapshot struct {
	At         time.Time
	CPUPercent float64
	MemUsed    uint64
	MemTotal   uint64
	MemPercent float64
	HeapAlloc  uint64
	Goroutines int
	PoolAllocs int64
	PoolReuses int64
}

// Stats samples host CPU and memory plus process heap figures. Host
// readings that fail are left zero.
func Stats() Snapshot {
	s := Snapshot{At: time.Now(), Goroutines: runtime.NumGoroutine()}

	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemUsed, s.MemTotal, s.MemPercent = vm.Used, vm.Total, vm.UsedPercent
	}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		s.CPUPercent = pct[0]
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.HeapAlloc = ms.HeapAlloc
	s.PoolAllocs, s.PoolReuses = PoolStats()
	return s
}

func (s Snapshot) String() string {
	return fmt.Sprintf("cpu %.1f%% | mem %s/%s (%.1f%%) | heap %s | goroutines %d | frame pool %d new, %d reused",
		s.CPUPercent, bytesHuman(s.MemUsed), bytesHuman(s.MemTotal), s.MemPercent,
		bytesHuman(s.HeapAlloc), s.Goroutines, s.PoolAllocs, s.PoolReuses)
}

// SuggestWorkers sizes a worker pool from logical CPUs, capped so that each
// worker can hold perWorker bytes of available memory.
func SuggestWorkers(perWorker uint64) int {
	n := runtime.NumCPU()
	if counts, err := cpu.Counts(true); err == nil && counts > 0 {
		n = counts
	}
	if perWorker > 0 {
		if vm, err := mem.VirtualMemory(); err == nil {
			if byMem := int(vm.Available / perWorker); byMem < n {
				n = byMem
			}
		}
	}
	return max(1, n)
}

func bytesHuman(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
