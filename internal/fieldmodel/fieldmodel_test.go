package fieldmodel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"testing"
	"time"
)

func TestNewUnsupported(t *testing.T) {
	_, err := New("IGRF99", Options{})
	var unsupported *UnsupportedModelError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected *UnsupportedModelError, got %v", err)
	}
	if unsupported.Name != "IGRF99" {
		t.Errorf("Name = %q", unsupported.Name)
	}
}

func TestNewExternalNeedsHelper(t *testing.T) {
	for _, name := range []string{"T89", "opq77"} {
		if _, err := New(name, Options{}); !errors.Is(err, ErrNoHelper) {
			t.Errorf("%s: expected ErrNoHelper, got %v", name, err)
		}
	}
}

func TestNewDipole(t *testing.T) {
	m, err := New("dipole", Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m.Name() != NameDipole || m.NeedsKp() {
		t.Errorf("model = %s needsKp=%v", m.Name(), m.NeedsKp())
	}
}

func TestMagneticPole(t *testing.T) {
	mlat, _ := Magnetic(dipolePoleLat, dipolePoleLon)
	if math.Abs(mlat-math.Pi/2) > 1e-6 {
		t.Errorf("pole magnetic latitude = %v, want pi/2", mlat)
	}
	mlat, _ = Magnetic(-dipolePoleLat, dipolePoleLon+180)
	if math.Abs(mlat+math.Pi/2) > 1e-6 {
		t.Errorf("antipole magnetic latitude = %v, want -pi/2", mlat)
	}
}

// magneticEquatorPoint returns a geographic point on the dipole equator: 90
// degrees from the pole along its meridian.
func magneticEquatorPoint() (lat, lon float64) {
	return dipolePoleLat - 90, dipolePoleLon
}

func TestDipoleL(t *testing.T) {
	lat, lon := magneticEquatorPoint()
	ts := time.Date(2018, 9, 22, 12, 0, 0, 0, time.UTC)

	l, _ := Dipole{}.At(ts, EarthRadiusKm, lat, lon)
	if math.Abs(l-2) > 1e-9 {
		t.Errorf("equatorial L at one Earth radius altitude = %v, want 2", l)
	}

	l, _ = Dipole{}.At(ts, 0, lat, lon)
	if math.Abs(l-1) > 1e-9 {
		t.Errorf("surface equatorial L = %v, want 1", l)
	}

	// L = r / cos^2(mlat); 60 degrees magnetic latitude at the surface is L = 4
	l, _ = Dipole{}.At(ts, 0, dipolePoleLat-30, dipolePoleLon)
	if math.Abs(l-4) > 1e-6 {
		t.Errorf("L at 60 degrees magnetic latitude = %v, want 4", l)
	}

	l, mlt := Dipole{}.At(ts, 800, dipolePoleLat, dipolePoleLon)
	if l != BadValue || mlt != BadValue {
		t.Errorf("pole = %v/%v, want BadValue", l, mlt)
	}
}

func TestDipoleMLT(t *testing.T) {
	ts := time.Date(2020, 6, 21, 6, 30, 0, 0, time.UTC)

	sunLat, sunLon := SubsolarPoint(ts)
	if math.Abs(sunLat-23.44) > 0.1 {
		t.Errorf("solstice subsolar latitude = %v", sunLat)
	}
	// 06:30 UT puts the sun near 82.5E, less the equation of time
	if math.Abs(sunLon-82.0) > 1.5 {
		t.Errorf("subsolar longitude = %v", sunLon)
	}

	_, noon := Dipole{}.At(ts, 500, sunLat, sunLon)
	if math.Abs(noon-12) > 1e-6 {
		t.Errorf("MLT under the sun = %v, want 12", noon)
	}

	_, midnight := Dipole{}.At(ts, 500, -sunLat, sunLon+180)
	if midnight > 1e-6 && midnight < 24-1e-6 {
		t.Errorf("MLT at the antisolar point = %v, want 0", midnight)
	}
}

func TestMLTFromLongitudes(t *testing.T) {
	tests := []struct {
		mlon, sun, want float64
	}{
		{0, 0, 12},
		{math.Pi, 0, 0},
		{-math.Pi / 2, 0, 6},
		{math.Pi / 2, 0, 18},
		{0, math.Pi / 2, 6},
	}
	for _, tt := range tests {
		got := MLTFromLongitudes(tt.mlon, tt.sun)
		if math.Abs(got-tt.want) > 1e-9 && math.Abs(got-tt.want) < 24-1e-9 {
			t.Errorf("MLT(%v, %v) = %v, want %v", tt.mlon, tt.sun, got, tt.want)
		}
	}

	// points half a turn apart are twelve hours apart
	for _, mlon := range []float64{-3, -1, 0.5, 2} {
		a := MLTFromLongitudes(mlon, 0.7)
		b := MLTFromLongitudes(mlon+math.Pi, 0.7)
		if d := math.Abs(a - b); math.Abs(d-12) > 1e-9 {
			t.Errorf("mlon %v: MLT %v and %v not 12h apart", mlon, a, b)
		}
	}
}

func TestDipoleComputeBatch(t *testing.T) {
	ts := time.Date(2018, 9, 22, 0, 0, 0, 0, time.UTC)
	lat, lon := magneticEquatorPoint()
	inputs := []Input{
		{Time: ts, AltKm: EarthRadiusKm, Lat: lat, Lon: lon},
		{Time: ts.Add(time.Hour), AltKm: 0, Lat: lat, Lon: lon},
	}

	out, err := Dipole{}.Compute(context.Background(), inputs)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(out.L) != 2 || len(out.MLT) != 2 {
		t.Fatalf("output lengths %d/%d", len(out.L), len(out.MLT))
	}
	// same place one hour later; the dipole tilt keeps this from being exact
	if d := math.Mod(out.MLT[1]-out.MLT[0]+24, 24); math.Abs(d-1) > 0.25 {
		t.Errorf("MLT advanced %v hours in one hour", d)
	}
}

// TestHelperProcess is not a real test. It is the field model helper run by
// the Exec tests.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		fmt.Fprintf(os.Stderr, "bad request: %v", err)
		os.Exit(2)
	}

	switch os.Getenv("HELPER_MODE") {
	case "error":
		json.NewEncoder(os.Stdout).Encode(Response{Error: "field line tracing failed"})
		return
	case "short":
		json.NewEncoder(os.Stdout).Encode(Response{Output: Output{L: []float64{1}, MLT: []float64{1}}})
		return
	case "crash":
		fmt.Fprint(os.Stderr, "segmentation fault")
		os.Exit(3)
	}

	var resp Response
	for _, in := range req.Inputs {
		resp.L = append(resp.L, in.AltKm/100)
		resp.MLT = append(resp.MLT, float64(in.Kp))
	}
	if strings.EqualFold(req.Model, NameOPQ77) {
		resp.MLT = make([]float64, len(req.Inputs))
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

func helperModel(t *testing.T, name, mode string) Model {
	t.Helper()
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	t.Setenv("HELPER_MODE", mode)

	m, err := New(name, Options{
		Helper: os.Args[0],
		Args:   []string{"-test.run=TestHelperProcess", "--"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestExecCompute(t *testing.T) {
	m := helperModel(t, "t89", "")
	if m.Name() != NameT89 || !m.NeedsKp() {
		t.Fatalf("model = %s needsKp=%v", m.Name(), m.NeedsKp())
	}

	ts := time.Date(2018, 9, 22, 0, 0, 0, 0, time.UTC)
	inputs := []Input{
		{Time: ts, AltKm: 820, Lat: 10, Lon: 20, Kp: 17},
		{Time: ts.Add(time.Second), AltKm: 830, Lat: 11, Lon: 21, Kp: 23},
	}
	out, err := m.Compute(context.Background(), inputs)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if out.L[0] != 8.2 || out.L[1] != 8.3 {
		t.Errorf("L = %v", out.L)
	}
	if out.MLT[0] != 17 || out.MLT[1] != 23 {
		t.Errorf("Kp not passed through: MLT = %v", out.MLT)
	}

	opq := helperModel(t, "OPQ77", "")
	if opq.NeedsKp() {
		t.Error("OPQ77 should not need Kp")
	}
}

func TestExecFailures(t *testing.T) {
	inputs := []Input{{Time: time.Unix(0, 0).UTC(), AltKm: 800}, {Time: time.Unix(1, 0).UTC(), AltKm: 800}}
	for _, mode := range []string{"error", "short", "crash"} {
		t.Run(mode, func(t *testing.T) {
			m := helperModel(t, NameT89, mode)
			if _, err := m.Compute(context.Background(), inputs); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewMissingHelperBinary(t *testing.T) {
	_, err := New(NameT89, Options{Helper: "/nonexistent/t89-helper"})
	if err == nil {
		t.Fatal("expected error for a missing helper")
	}
}
