package db

import (
	"time"
)

// NodeRecord is the shared registry row for one node identity. Health columns
// are nullable because any single metric may be unreadable on the reporting node.
type NodeRecord struct {
	UUID                 string `gorm:"primaryKey;size:36"`
	Name                 string `gorm:"index"`
	HTTPExternalURI      string
	Version              string
	LastSeen             time.Time `gorm:"index"`
	MemoryBytesTotal     *int64
	MemoryBytesAvailable *int64
	MemoryBytesUsed      *int64
	HeapBytesTotal       *int64
	HeapBytesAvailable   *int64
	HeapBytesUsed        *int64
	CPUSystemLoad        *float64
	CPUThreadCount       *int64
	ProcessStartTime     *time.Time
	ProcessVirtualSize   *int64
	ProcessArguments     *string
	OSInformation        *string
	CreatedAt            time.Time
}

// TableName pins the registry table name.
func (NodeRecord) TableName() string {
	return "nodes"
}

// NodeMetricGauge is a single timestamped measurement written by a node about itself.
type NodeMetricGauge struct {
	ID          uint   `gorm:"primaryKey"`
	NodeID      string `gorm:"size:36;index:idx_gauge_node_metric"`
	MetricName  string `gorm:"index:idx_gauge_node_metric"`
	MetricValue float64
	CreatedAt   time.Time `gorm:"index"`
}

func (NodeMetricGauge) TableName() string {
	return "node_metrics_gauges"
}

// mutableNodeColumns are overwritten on every registration of an existing node.
// created_at is deliberately absent.
var mutableNodeColumns = []string{
	"name",
	"http_external_uri",
	"version",
	"last_seen",
	"memory_bytes_total",
	"memory_bytes_available",
	"memory_bytes_used",
	"heap_bytes_total",
	"heap_bytes_available",
	"heap_bytes_used",
	"cpu_system_load",
	"cpu_thread_count",
	"process_start_time",
	"process_virtual_size",
	"process_arguments",
	"os_information",
}
