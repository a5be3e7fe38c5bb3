package health

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// Collector produces health snapshots. Implementations must not block for long
// and must never fail as a whole.
type Collector interface {
	Collect() Snapshot
}

// SystemCollector reads the host through gopsutil and the Go heap through the runtime.
type SystemCollector struct {
	pid  int32
	args []string
}

// NewSystemCollector returns a collector for the current process.
func NewSystemCollector() *SystemCollector {
	return &SystemCollector{
		pid:  int32(os.Getpid()),
		args: os.Args,
	}
}

func (c *SystemCollector) Collect() Snapshot {
	var s Snapshot

	if vm, err := mem.VirtualMemory(); err != nil {
		skipped("memory", err)
	} else {
		s.MemoryBytesTotal = uint64Ptr(vm.Total)
		s.MemoryBytesAvailable = uint64Ptr(vm.Available)
		s.MemoryBytesUsed = uint64Ptr(vm.Used)
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.HeapBytesTotal = uint64Ptr(ms.HeapSys)
	s.HeapBytesUsed = uint64Ptr(ms.HeapAlloc)
	s.HeapBytesAvailable = uint64Ptr(ms.HeapSys - ms.HeapAlloc)

	// Interval 0 compares against the previous call, so this never sleeps.
	if load, err := cpu.Percent(0, false); err != nil {
		skipped("cpu_system_load", err)
	} else if len(load) > 0 && !math.IsNaN(load[0]) {
		v := load[0] / 100
		s.CPUSystemLoad = &v
	}

	if n, err := cpu.Counts(true); err != nil {
		skipped("cpu_thread_count", err)
	} else {
		v := int64(n)
		s.CPUThreadCount = &v
	}

	if p, err := process.NewProcess(c.pid); err != nil {
		skipped("process", err)
	} else {
		if created, err := p.CreateTime(); err != nil {
			skipped("process_start_time", err)
		} else {
			t := time.UnixMilli(created).UTC()
			s.ProcessStartTime = &t
		}
		if info, err := p.MemoryInfo(); err != nil {
			skipped("process_virtual_size", err)
		} else {
			s.ProcessVirtualSize = uint64Ptr(info.VMS)
		}
	}

	args := strings.Join(c.args, " ")
	s.ProcessArguments = &args

	if info, err := host.Info(); err != nil {
		skipped("os_information", err)
	} else {
		desc := describeHost(info)
		s.OSInformation = &desc
	}

	return s
}

func describeHost(info *host.InfoStat) string {
	return fmt.Sprintf("%s %s %s (kernel %s, %s)",
		info.OS, info.Platform, info.PlatformVersion, info.KernelVersion, info.KernelArch)
}

func skipped(metric string, err error) {
	log.Debug().Err(err).Str("metric", metric).Msg("health metric unavailable")
}

func uint64Ptr(v uint64) *int64 {
	if v > math.MaxInt64 {
		v = math.MaxInt64
	}
	i := int64(v)
	return &i
}
