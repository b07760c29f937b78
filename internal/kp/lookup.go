package kp

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Lookup returns the sample in effect at t: the latest sample whose Time is
// not after t. A Kp value stays valid for Interval; a gap of exactly
// Interval is accepted.
func (s *Series) Lookup(t time.Time) (Sample, error) {
	// first index strictly after t
	i := sort.Search(len(s.Samples), func(i int) bool {
		return s.Samples[i].Time.After(t)
	})
	if i == 0 {
		return Sample{}, &StaleDataError{Query: t}
	}

	smp := s.Samples[i-1]
	if gap := t.Sub(smp.Time); gap > Interval {
		return Sample{}, &StaleDataError{Query: t, Matched: smp.Time, Gap: gap}
	}
	return smp, nil
}

// Store answers lookups from the per-year files in Dir. Files are read on
// first use and cached; a Store is safe for concurrent use.
type Store struct {
	Dir string
	Ext string // file suffix after "_kp", default ".csv"

	mu     sync.Mutex
	series map[int]*Series
}

// NewStore returns a Store over dir using files with extension ext.
func NewStore(dir, ext string) *Store {
	return &Store{Dir: dir, Ext: ext}
}

// Path returns the file holding year.
func (s *Store) Path(year int) string {
	ext := s.Ext
	if ext == "" {
		ext = ".csv"
	}
	return filepath.Join(s.Dir, fmt.Sprintf("%d_kp%s", year, ext))
}

// Year returns the series for year, loading it if needed.
func (s *Store) Year(year int) (*Series, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ser, ok := s.series[year]; ok {
		return ser, nil
	}
	ser, err := ReadFile(s.Path(year))
	if err != nil {
		return nil, err
	}
	if s.series == nil {
		s.series = make(map[int]*Series)
	}
	s.series[year] = ser
	return ser, nil
}

// Lookup resolves t against the file for t's UTC year.
func (s *Store) Lookup(t time.Time) (Sample, error) {
	t = t.UTC()
	ser, err := s.Year(t.Year())
	if err != nil {
		return Sample{}, err
	}
	return ser.Lookup(t)
}

// LookupAll resolves every time independently. It stops at the first error.
func (s *Store) LookupAll(times []time.Time) ([]Sample, error) {
	out := make([]Sample, len(times))
	for i, t := range times {
		smp, err := s.Lookup(t)
		if err != nil {
			return nil, err
		}
		out[i] = smp
	}
	return out, nil
}
