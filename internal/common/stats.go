package common

import (
	"log"
	"sync/atomic"
	"time"
)

// Stats holds atomic counters for a single tool run. Years may be processed
// by concurrent workers, so every field is updated atomically.
type Stats struct {
	YearsWritten   atomic.Uint64
	YearsFailed    atomic.Uint64
	SamplesWritten atomic.Uint64
	RecordsWritten atomic.Uint64
	BytesFetched   atomic.Uint64

	start time.Time
}

// NewStats creates a new Stats instance with the clock started.
func NewStats() *Stats {
	return &Stats{start: time.Now()}
}

// AddYear records a successfully written year and its sample count.
func (s *Stats) AddYear(samples int) {
	s.YearsWritten.Add(1)
	s.SamplesWritten.Add(uint64(samples))
}

// FailYear records a year that produced no output.
func (s *Stats) FailYear() {
	s.YearsFailed.Add(1)
}

// AddRecords records magephem rows written.
func (s *Stats) AddRecords(n int) {
	s.RecordsWritten.Add(uint64(n))
}

// AddBytes records raw bytes fetched from the network.
func (s *Stats) AddBytes(n int) {
	s.BytesFetched.Add(uint64(n))
}

// Elapsed returns time since NewStats.
func (s *Stats) Elapsed() time.Duration {
	return time.Since(s.start)
}

// Failed reports whether any unit of work failed.
func (s *Stats) Failed() bool {
	return s.YearsFailed.Load() > 0
}

// PrintSummary writes the final statistics banner.
func (s *Stats) PrintSummary(title string) {
	log.Println()
	log.Println("=========================================================")
	log.Println(title)
	log.Println("=========================================================")
	if n := s.YearsWritten.Load() + s.YearsFailed.Load(); n > 0 {
		log.Printf("Years:    %d written, %d failed", s.YearsWritten.Load(), s.YearsFailed.Load())
		log.Printf("Samples:  %d", s.SamplesWritten.Load())
	}
	if n := s.RecordsWritten.Load(); n > 0 {
		log.Printf("Records:  %d", n)
	}
	if n := s.BytesFetched.Load(); n > 0 {
		log.Printf("Fetched:  %.1f KiB", float64(n)/1024)
	}
	log.Printf("Elapsed:  %v", s.Elapsed().Round(time.Millisecond))
	log.Println("=========================================================")
}
