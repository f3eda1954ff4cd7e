// Package runtimeopt applies the one-time GC tuning the teacher's
// core/pools/gc_tuning.go performs at startup to absorb the allocation
// pressure of a connection-per-goroutine-free reactor under load.
package runtimeopt

import "runtime/debug"

// Config holds the knobs Tune applies.
type Config struct {
	// GOGCPercent sets the garbage collector's target percentage; the Go
	// default is 100, lower means more frequent GC.
	GOGCPercent int
	// MemoryLimitBytes sets a soft memory limit; 0 means no limit.
	MemoryLimitBytes int64
}

// ForIOLoops returns the tuning this repository applies when running with
// a dedicated IO loop pool, where each loop is expected to hold many
// concurrently-live TcpConnections and their Buffers: a looser GOGC
// trades memory for fewer stop-the-world pauses on the accept/read path.
func ForIOLoops() Config {
	return Config{GOGCPercent: 200, MemoryLimitBytes: 0}
}

// Tune applies cfg to the running process. Call once, at startup.
func Tune(cfg Config) {
	if cfg.GOGCPercent > 0 {
		debug.SetGCPercent(cfg.GOGCPercent)
	}
	if cfg.MemoryLimitBytes > 0 {
		debug.SetMemoryLimit(cfg.MemoryLimitBytes)
	}
}
