// Package health samples local process and host state for node registration
// and gauge emission.
package health

import "time"

// Gauge metric names, as stored in node_metrics_gauges.metric_name.
const (
	MetricMemoryBytesTotal     = "memory_bytes_total"
	MetricMemoryBytesAvailable = "memory_bytes_available"
	MetricMemoryBytesUsed      = "memory_bytes_used"
	MetricHeapBytesTotal       = "heap_bytes_total"
	MetricHeapBytesAvailable   = "heap_bytes_available"
	MetricHeapBytesUsed        = "heap_bytes_used"
	MetricCPUSystemLoad        = "cpu_system_load"
	MetricProcessVirtualSize   = "process_virtual_size"
)

// Snapshot is a point-in-time view of the local node. A nil field means the
// value could not be read.
type Snapshot struct {
	MemoryBytesTotal     *int64     `json:"memory_bytes_total"`
	MemoryBytesAvailable *int64     `json:"memory_bytes_available"`
	MemoryBytesUsed      *int64     `json:"memory_bytes_used"`
	HeapBytesTotal       *int64     `json:"heap_bytes_total"`
	HeapBytesAvailable   *int64     `json:"heap_bytes_available"`
	HeapBytesUsed        *int64     `json:"heap_bytes_used"`
	CPUSystemLoad        *float64   `json:"cpu_system_load"`
	CPUThreadCount       *int64     `json:"cpu_thread_count"`
	ProcessStartTime     *time.Time `json:"process_start_time"`
	ProcessVirtualSize   *int64     `json:"process_virtual_size"`
	ProcessArguments     *string    `json:"process_arguments"`
	OSInformation        *string    `json:"os_information"`
}

// Gauge is one numeric snapshot field exported as a time series.
type Gauge struct {
	Name  string
	Value *float64
}

// Gauges returns the numeric snapshot fields that are emitted as gauges, in a fixed order.
func (s Snapshot) Gauges() []Gauge {
	return []Gauge{
		{Name: MetricMemoryBytesTotal, Value: intToFloat(s.MemoryBytesTotal)},
		{Name: MetricMemoryBytesAvailable, Value: intToFloat(s.MemoryBytesAvailable)},
		{Name: MetricMemoryBytesUsed, Value: intToFloat(s.MemoryBytesUsed)},
		{Name: MetricHeapBytesTotal, Value: intToFloat(s.HeapBytesTotal)},
		{Name: MetricHeapBytesAvailable, Value: intToFloat(s.HeapBytesAvailable)},
		{Name: MetricHeapBytesUsed, Value: intToFloat(s.HeapBytesUsed)},
		{Name: MetricCPUSystemLoad, Value: s.CPUSystemLoad},
		{Name: MetricProcessVirtualSize, Value: intToFloat(s.ProcessVirtualSize)},
	}
}

func intToFloat(v *int64) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}
