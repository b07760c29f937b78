package kp

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func testSeries() *Series {
	day := time.Date(2021, 3, 14, 0, 0, 0, 0, time.UTC)
	values := [SamplesPerDay]int{0, 3, 7, 10, MissingValue, 33, 90, MissingDay}
	return &Series{
		Year:    2021,
		Format:  FormatRealTime,
		Samples: expandDay(nil, day, values),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for _, ext := range []string{".csv", ".csv.gz", ".csv.zst", ".parquet"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "2021_kp"+ext)
			want := testSeries()

			if err := WriteFile(path, want); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			got, err := ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}

			if got.Year != 2021 {
				t.Errorf("Year = %d, want 2021", got.Year)
			}
			if got.Len() != want.Len() {
				t.Fatalf("got %d samples, want %d", got.Len(), want.Len())
			}
			for i := range want.Samples {
				w, g := want.Samples[i], got.Samples[i]
				if !g.Time.Equal(w.Time) || g.Kp != w.Kp {
					t.Errorf("sample %d = %s/%d, want %s/%d",
						i, g.Time.Format(TimeLayout), g.Kp, w.Time.Format(TimeLayout), w.Kp)
				}
			}
			if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
				t.Error("temporary file left behind")
			}
		})
	}
}

func TestWriteFileCSVLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "2021_kp.csv")
	if err := WriteFile(path, testSeries()); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "dateTime,kp" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "2021-03-14T00:00:00,0" {
		t.Errorf("first row = %q", lines[1])
	}
	if lines[8] != "2021-03-14T21:00:00,-990" {
		t.Errorf("last row = %q", lines[8])
	}
}

func TestWriteFileOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "2021_kp.csv")
	if err := os.WriteFile(path, []byte("stale contents\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := WriteFile(path, testSeries()); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got.Len() != SamplesPerDay {
		t.Errorf("got %d samples, want %d", got.Len(), SamplesPerDay)
	}
}

func TestWriteFileRejectsUnordered(t *testing.T) {
	s := testSeries()
	s.Samples[3], s.Samples[4] = s.Samples[4], s.Samples[3]

	path := filepath.Join(t.TempDir(), "2021_kp.csv")
	if err := WriteFile(path, s); err == nil {
		t.Fatal("expected error for unordered samples")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("no file should be written for an invalid series")
	}
}

func TestReadFileLegacyFloats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "1932_kp.csv")
	legacy := "dateTime,kp\n1932-01-01T00:00:00,7.0\n1932-01-01T03:00:00,33.0\n"
	if err := os.WriteFile(path, []byte(legacy), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if s.Len() != 2 || s.Samples[0].Kp != 7 || s.Samples[1].Kp != 33 {
		t.Errorf("samples = %v", s.Samples)
	}
}

func TestReadFileErrors(t *testing.T) {
	tests := map[string]string{
		"bad header":   "time,value\n2021-01-01T00:00:00,3\n",
		"bad time":     "dateTime,kp\nyesterday,3\n",
		"bad kp":       "dateTime,kp\n2021-01-01T00:00:00,3.5\n",
		"out of order": "dateTime,kp\n2021-01-01T03:00:00,3\n2021-01-01T00:00:00,3\n",
		"empty":        "",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "2021_kp.csv")
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := ReadFile(path); err == nil {
				t.Error("expected error")
			}
		})
	}

	_, err := ReadFile(filepath.Join(t.TempDir(), "missing_kp.csv"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: got %v, want os.ErrNotExist", err)
	}
}

func TestWriteFileConcurrentSamePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2021_kp.csv")
	s := testSeries()

	for round := 0; round < 20; round++ {
		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = WriteFile(path, s)
			}(i)
		}
		wg.Wait()
		for i, err := range errs {
			if err != nil {
				t.Fatalf("round %d writer %d: %v", round, i, err)
			}
		}
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got.Len() != s.Len() {
		t.Errorf("read %d samples, want %d", got.Len(), s.Len())
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("leftover files in %s: %d entries", dir, len(entries))
	}
}
