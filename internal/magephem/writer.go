package magephem

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// TimeLayout keeps the millisecond resolution of POES timestamps.
const TimeLayout = "2006-01-02T15:04:05.000"

// Columns returns the column names for modelName.
func Columns(modelName string) []string {
	return []string{"dateTime", "L_" + modelName, "MLT_" + modelName}
}

// WriteFile writes records to path as CSV, or as Parquet when path ends in
// .parquet. The file is replaced atomically.
func WriteFile(path, modelName string, records []Record) error {
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

	if strings.HasSuffix(strings.ToLower(path), ".parquet") {
		err = writeParquet(f, modelName, records)
	} else {
		err = writeCSV(f, modelName, records)
	}
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

func writeCSV(w io.Writer, modelName string, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns(modelName)); err != nil {
		return err
	}
	for _, r := range records {
		rec := []string{
			r.Time.UTC().Format(TimeLayout),
			strconv.FormatFloat(r.L, 'g', -1, 64),
			strconv.FormatFloat(r.MLT, 'g', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// parquetSchema builds the schema at runtime because column names carry the
// model name.
func parquetSchema(modelName string) *parquet.Schema {
	cols := Columns(modelName)
	return parquet.NewSchema("magephem", parquet.Group{
		cols[0]: parquet.Timestamp(parquet.Millisecond),
		cols[1]: parquet.Leaf(parquet.DoubleType),
		cols[2]: parquet.Leaf(parquet.DoubleType),
	})
}

func writeParquet(w io.Writer, modelName string, records []Record) error {
	schema := parquetSchema(modelName)
	cols := Columns(modelName)

	idx := make([]int, len(cols))
	for i, name := range cols {
		leaf, ok := schema.Lookup(name)
		if !ok {
			return fmt.Errorf("column %s missing from schema", name)
		}
		idx[i] = leaf.ColumnIndex
	}

	rows := make([]parquet.Row, len(records))
	for i, r := range records {
		row := make(parquet.Row, len(cols))
		row[idx[0]] = parquet.Int64Value(r.Time.UnixMilli()).Level(0, 0, idx[0])
		row[idx[1]] = parquet.DoubleValue(r.L).Level(0, 0, idx[1])
		row[idx[2]] = parquet.DoubleValue(r.MLT).Level(0, 0, idx[2])
		rows[i] = row
	}

	pw := parquet.NewWriter(w, schema)
	if _, err := pw.WriteRows(rows); err != nil {
		pw.Close()
		return err
	}
	return pw.Close()
}
