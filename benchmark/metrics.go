// Package benchmark - Latency benchmarks across models and test images.
package benchmark

import (
	"runtime"
	"time"
)

// Report is the outcome of benchmarking one model against one image.
type Report struct {
	Model           string        `json:"model"`
	Image           string        `json:"image"`
	Width           int           `json:"width"`
	Height          int           `json:"height"`
	Iterations      int           `json:"iterations"`
	AverageMillis   float64       `json:"average_ms"`
	FramesPerSecond float64       `json:"frames_per_second"`
	TotalDuration   time.Duration `json:"total_duration"`
	MemoryStats     MemoryMetrics `json:"memory_stats"`
	Timestamp       time.Time     `json:"timestamp"`
	Error           string        `json:"error,omitempty"`
}

// MemoryMetrics captures memory usage statistics
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"`
}

// memoryDelta reports end-state memory and the allocation/GC activity since start.
func memoryDelta(start, end runtime.MemStats) MemoryMetrics {
	return MemoryMetrics{
		AllocBytes:      end.Alloc,
		TotalAllocBytes: end.TotalAlloc - start.TotalAlloc,
		SysBytes:        end.Sys,
		NumGC:           end.NumGC - start.NumGC,
		HeapAllocBytes:  end.HeapAlloc,
	}
}
