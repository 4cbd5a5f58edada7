// Package observability aggregates runtime counters for the log stream and
// the heartbeat report.
package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

type MessageStats struct {
	TotalMessages     uint64    `json:"totalMessages"`
	ProcessedMessages uint64    `json:"processedMessages"`
	FailedMessages    uint64    `json:"failedMessages"`
	LastReset         time.Time `json:"lastReset"`
}

// StatsManager tracks message throughput with atomic counters.
type StatsManager struct {
	total     atomic.Uint64
	processed atomic.Uint64
	failed    atomic.Uint64

	mu        sync.Mutex
	lastReset time.Time
}

func NewStatsManager() *StatsManager {
	return &StatsManager{lastReset: time.Now().UTC()}
}

func (s *StatsManager) IncTotal()     { s.total.Add(1) }
func (s *StatsManager) IncProcessed() { s.processed.Add(1) }
func (s *StatsManager) IncFailed()    { s.failed.Add(1) }

func (s *StatsManager) Snapshot() MessageStats {
	s.mu.Lock()
	lastReset := s.lastReset
	s.mu.Unlock()
	return MessageStats{
		TotalMessages:     s.total.Load(),
		ProcessedMessages: s.processed.Load(),
		FailedMessages:    s.failed.Load(),
		LastReset:         lastReset,
	}
}

func (s *StatsManager) Reset() {
	s.total.Store(0)
	s.processed.Store(0)
	s.failed.Store(0)
	s.mu.Lock()
	s.lastReset = time.Now().UTC()
	s.mu.Unlock()
}
