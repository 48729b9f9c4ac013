package ingest

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Stats tracks run statistics. All counters are safe for concurrent use;
// the fetchers feed the request counters through the Counters interface.
type Stats struct {
	RequestsSent   atomic.Int64
	RequestsFailed atomic.Int64
	PagesProcessed atomic.Int64
	ItemsSeen      atomic.Int64
	Persisted      atomic.Int64
	Duplicates     atomic.Int64
	Errors         atomic.Int64
	StartTime      time.Time
}

// NewStats creates run statistics with the clock started.
func NewStats() *Stats {
	return &Stats{StartTime: time.Now()}
}

// RequestSent counts one attempt that went on the wire.
func (s *Stats) RequestSent() { s.RequestsSent.Add(1) }

// RequestFailed counts one target whose retries were exhausted.
func (s *Stats) RequestFailed() { s.RequestsFailed.Add(1) }

// Snapshot returns a copy of the counters safe for reading.
func (s *Stats) Snapshot() map[string]any {
	return map[string]any{
		"requests_sent":   s.RequestsSent.Load(),
		"requests_failed": s.RequestsFailed.Load(),
		"pages_processed": s.PagesProcessed.Load(),
		"items_seen":      s.ItemsSeen.Load(),
		"persisted":       s.Persisted.Load(),
		"duplicates":      s.Duplicates.Load(),
		"errors":          s.Errors.Load(),
		"elapsed":         time.Since(s.StartTime).String(),
	}
}

// Report renders a human-readable run summary.
func (s *Stats) Report() string {
	elapsed := time.Since(s.StartTime)
	persisted := s.Persisted.Load()
	rate := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(persisted) / secs
	}
	return fmt.Sprintf(
		"pages=%d items=%d persisted=%d duplicates=%d errors=%d requests=%d failed=%d elapsed=%s (%.2f listings/s)",
		s.PagesProcessed.Load(),
		s.ItemsSeen.Load(),
		persisted,
		s.Duplicates.Load(),
		s.Errors.Load(),
		s.RequestsSent.Load(),
		s.RequestsFailed.Load(),
		elapsed.Round(time.Millisecond),
		rate,
	)
}
