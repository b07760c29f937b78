package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPipelineCounters(t *testing.T) {
	p := New()
	p.FetchAttempt("ftp.swpc.noaa.gov")
	p.FetchAttempt("ftp.swpc.noaa.gov")
	p.FetchFailure("ftp.swpc.noaa.gov")
	p.SamplesWritten("realtime", 2920)

	if got := testutil.ToFloat64(p.fetchAttempts.WithLabelValues("ftp.swpc.noaa.gov")); got != 2 {
		t.Errorf("attempts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(p.fetchFailures.WithLabelValues("ftp.swpc.noaa.gov")); got != 1 {
		t.Errorf("failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.samplesWritten.WithLabelValues("realtime")); got != 2920 {
		t.Errorf("samples = %v, want 2920", got)
	}
}

func TestNilPipelineIsNoop(t *testing.T) {
	var p *Pipeline
	p.FetchAttempt("x")
	p.FetchBytes(10)
	p.RecordsWritten("T89", 3)
	if err := p.WriteTextfile("/nonexistent/dir/kp.prom"); err != nil {
		t.Fatalf("nil pipeline WriteTextfile: %v", err)
	}
}

func TestWriteTextfile(t *testing.T) {
	p := New()
	p.RecordsWritten("T89", 42)

	path := filepath.Join(t.TempDir(), "kp.prom")
	if err := p.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `kp_magephem_records_total{model="T89"} 42`) {
		t.Errorf("textfile missing records counter:\n%s", data)
	}
}
