package kp

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/parquet-go/parquet-go"
)

// TimeLayout is the stored timestamp format: ISO-8601, whole seconds,
// implicitly UTC.
const TimeLayout = "2006-01-02T15:04:05"

// Column names of the stored table.
const (
	ColDateTime = "dateTime"
	ColKp       = "kp"
)

// alternate layouts accepted on read
var readLayouts = []string{TimeLayout, "2006-01-02 15:04:05", time.RFC3339}

type codec int

const (
	codecCSV codec = iota
	codecGzip
	codecZstd
	codecParquet
)

func codecFor(path string) codec {
	p := strings.ToLower(path)
	switch {
	case strings.HasSuffix(p, ".gz"):
		return codecGzip
	case strings.HasSuffix(p, ".zst"):
		return codecZstd
	case strings.HasSuffix(p, ".parquet"):
		return codecParquet
	default:
		return codecCSV
	}
}

// kpRow is the Parquet schema of a stored sample.
type kpRow struct {
	DateTime int64 `parquet:"date_time"` // Unix seconds, UTC
	Kp       int32 `parquet:"kp"`
}

// WriteFile stores s at path, replacing any existing file. The codec follows
// the extension: .csv, .csv.gz, .csv.zst or .parquet. The write goes through
// a temporary file so a failure never leaves a partial table behind.
func WriteFile(path string, s *Series) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("refusing to write %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory failed: %w", err)
	}

	// unique per call so concurrent writers never share a temp file
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create file failed: %w", err)
	}
	tmpPath := f.Name()
	if err := f.Chmod(0644); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("create file failed: %w", err)
	}

	err = encode(f, codecFor(path), s)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", path, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename failed: %w", err)
	}
	return nil
}

func encode(w io.Writer, c codec, s *Series) error {
	switch c {
	case codecGzip:
		zw := pgzip.NewWriter(w)
		if err := encodeCSV(zw, s); err != nil {
			zw.Close()
			return err
		}
		return zw.Close()
	case codecZstd:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return err
		}
		if err := encodeCSV(enc, s); err != nil {
			enc.Close()
			return err
		}
		return enc.Close()
	case codecParquet:
		rows := make([]kpRow, len(s.Samples))
		for i, smp := range s.Samples {
			rows[i] = kpRow{DateTime: smp.Time.Unix(), Kp: int32(smp.Kp)}
		}
		pw := parquet.NewGenericWriter[kpRow](w)
		if _, err := pw.Write(rows); err != nil {
			pw.Close()
			return err
		}
		return pw.Close()
	default:
		return encodeCSV(w, s)
	}
}

func encodeCSV(w io.Writer, s *Series) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{ColDateTime, ColKp}); err != nil {
		return err
	}
	for _, smp := range s.Samples {
		rec := []string{smp.Time.UTC().Format(TimeLayout), strconv.Itoa(smp.Kp)}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadFile loads a table written by WriteFile. Float kp columns such as
// "17.0" from older pandas exports are accepted when integral.
func ReadFile(path string) (*Series, error) {
	var samples []Sample
	var err error

	switch codecFor(path) {
	case codecParquet:
		samples, err = readParquet(path)
	default:
		samples, err = readCSVFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	s := &Series{Samples: samples}
	if len(samples) > 0 {
		s.Year = samples[0].Time.Year()
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return s, nil
}

func readParquet(path string) ([]Sample, error) {
	rows, err := parquet.ReadFile[kpRow](path)
	if err != nil {
		return nil, err
	}
	samples := make([]Sample, len(rows))
	for i, r := range rows {
		samples[i] = Sample{Time: time.Unix(r.DateTime, 0).UTC(), Kp: int(r.Kp)}
	}
	return samples, nil
}

func readCSVFile(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	switch codecFor(path) {
	case codecGzip:
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	case codecZstd:
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		r = dec
	}
	return decodeCSV(r)
}

func decodeCSV(r io.Reader) ([]Sample, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if len(header) != 2 || header[0] != ColDateTime || header[1] != ColKp {
		return nil, fmt.Errorf("invalid CSV header: expected [%s %s], got %v", ColDateTime, ColKp, header)
	}

	var samples []Sample
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}

		ts, err := parseTime(record[0])
		if err != nil {
			return nil, err
		}
		v, err := parseKp(record[1])
		if err != nil {
			return nil, fmt.Errorf("invalid kp at %s: %w", record[0], err)
		}
		samples = append(samples, Sample{Time: ts, Kp: v})
	}
	return samples, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range readLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid %s %q", ColDateTime, s)
}

func parseKp(s string) (int, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("non-integral value %q", s)
	}
	return int(f), nil
}
