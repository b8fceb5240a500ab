package common

import (
	"log/slog"
	"runtime"
)

// MemStats is a compact heap snapshot for diagnostics.
type MemStats struct {
	HeapAllocKB  uint64
	TotalAllocKB uint64
	SysKB        uint64
	NumGC        uint32
}

// ReadMemStats samples the Go runtime.
func ReadMemStats() MemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemStats{
		HeapAllocKB:  m.HeapAlloc / 1024,
		TotalAllocKB: m.TotalAlloc / 1024,
		SysKB:        m.Sys / 1024,
		NumGC:        m.NumGC,
	}
}

func (m MemStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("heap_alloc_kb", m.HeapAllocKB),
		slog.Uint64("total_alloc_kb", m.TotalAllocKB),
		slog.Uint64("sys_kb", m.SysKB),
		slog.Uint64("num_gc", uint64(m.NumGC)),
	)
}
