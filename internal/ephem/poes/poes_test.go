package poes

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fhs/go-netcdf/netcdf"
)

// createPOESFile writes a minimal POES-like file with n records.
func createPOESFile(t *testing.T, path string, msec []int32, alt, lat, lon []float32) {
	t.Helper()
	f, err := netcdf.CreateFile(path, netcdf.CLOBBER)
	if err != nil {
		t.Fatalf("create nc: %v", err)
	}
	defer f.Close()

	n := uint64(len(msec))
	timeDim, err := f.AddDim("time", n)
	if err != nil {
		t.Fatalf("add dim: %v", err)
	}
	dims := []netcdf.Dim{timeDim}
	vyear, _ := f.AddVar(VarYear, netcdf.SHORT, dims)
	vday, _ := f.AddVar(VarDay, netcdf.SHORT, dims)
	vmsec, _ := f.AddVar(VarMsec, netcdf.INT, dims)
	valt, _ := f.AddVar(VarAlt, netcdf.FLOAT, dims)
	vlat, _ := f.AddVar(VarLat, netcdf.FLOAT, dims)
	vlon, _ := f.AddVar(VarLon, netcdf.DOUBLE, dims)

	if err := f.EndDef(); err != nil {
		t.Fatalf("enddef: %v", err)
	}

	years := make([]int16, n)
	days := make([]int16, n)
	lon64 := make([]float64, n)
	for i := range years {
		years[i] = 2018
		days[i] = 265
		lon64[i] = float64(lon[i])
	}
	if err := vyear.WriteInt16s(years); err != nil {
		t.Fatalf("write year: %v", err)
	}
	if err := vday.WriteInt16s(days); err != nil {
		t.Fatalf("write day: %v", err)
	}
	if err := vmsec.WriteInt32s(msec); err != nil {
		t.Fatalf("write msec: %v", err)
	}
	if err := valt.WriteFloat32s(alt); err != nil {
		t.Fatalf("write alt: %v", err)
	}
	if err := vlat.WriteFloat32s(lat); err != nil {
		t.Fatalf("write lat: %v", err)
	}
	if err := vlon.WriteFloat64s(lon64); err != nil {
		t.Fatalf("write lon: %v", err)
	}
}

func TestNetCDFLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poes_m01_20180922_raw.nc")
	createPOESFile(t, path,
		[]int32{0, 2000, 86_398_000},
		[]float32{820, 821.5, 822},
		[]float32{-45, 0, 72.5},
		[]float32{10, -120, 359},
	)

	samples, err := New(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("got %d samples, want 3", len(samples))
	}

	day := time.Date(2018, 9, 22, 0, 0, 0, 0, time.UTC)
	if !samples[0].Time.Equal(day) {
		t.Errorf("first time = %s, want %s", samples[0].Time, day)
	}
	if want := day.Add(2 * time.Second); !samples[1].Time.Equal(want) {
		t.Errorf("second time = %s, want %s", samples[1].Time, want)
	}
	if want := day.Add(23*time.Hour + 59*time.Minute + 58*time.Second); !samples[2].Time.Equal(want) {
		t.Errorf("last time = %s, want %s", samples[2].Time, want)
	}
	if samples[1].AltKm != 821.5 || samples[2].Lat != 72.5 || samples[1].Lon != -120 {
		t.Errorf("positions = %+v", samples)
	}
}

func TestNetCDFMissingVariable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.nc")
	f, err := netcdf.CreateFile(path, netcdf.CLOBBER)
	if err != nil {
		t.Fatalf("create nc: %v", err)
	}
	dim, _ := f.AddDim("time", 1)
	v, _ := f.AddVar(VarYear, netcdf.INT, []netcdf.Dim{dim})
	if err := f.EndDef(); err != nil {
		t.Fatalf("enddef: %v", err)
	}
	if err := v.WriteInt32s([]int32{2018}); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if _, err := New(path).Load(context.Background()); err == nil {
		t.Fatal("expected error for missing variables")
	}
}

