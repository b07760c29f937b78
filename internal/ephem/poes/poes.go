// Package poes loads POES ephemeris files. It links libnetcdf through cgo;
// the rest of internal/ephem builds without it.
package poes

import (
	"context"
	"fmt"
	"math"

	"github.com/fhs/go-netcdf/netcdf"

	"github.com/KI7MT/kp-magephem/internal/ephem"
)

// Variable names of a POES NetCDF file.
const (
	VarYear = "year"
	VarDay  = "day"
	VarMsec = "msec"
	VarAlt  = "alt"
	VarLat  = "lat"
	VarLon  = "lon"
)

// NetCDF reads POES-style ephemeris files: parallel one-dimensional
// variables year, day (day of year), msec (millisecond of day), alt, lat
// and lon.
type NetCDF struct {
	Path string
}

// New returns an ephem.Source over the file at path.
func New(path string) *NetCDF {
	return &NetCDF{Path: path}
}

// Load reads every record of the file.
func (n *NetCDF) Load(ctx context.Context) ([]ephem.Sample, error) {
	nc, err := netcdf.OpenFile(n.Path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open NetCDF file: %w", err)
	}
	defer func() { _ = nc.Close() }()

	names := []string{VarYear, VarDay, VarMsec, VarAlt, VarLat, VarLon}
	cols := make(map[string][]float64, len(names))
	length := -1
	for _, name := range names {
		v, err := nc.Var(name)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		data, err := readFloat64Var(v)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		if length >= 0 && len(data) != length {
			return nil, fmt.Errorf("variable %q has %d values, expected %d", name, len(data), length)
		}
		length = len(data)
		cols[name] = data
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	samples := make([]ephem.Sample, length)
	for i := range samples {
		t, err := ephem.DayOfYearTime(int(cols[VarYear][i]), int(cols[VarDay][i]), int64(math.Round(cols[VarMsec][i])))
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		samples[i] = ephem.Sample{
			Time:  t,
			AltKm: cols[VarAlt][i],
			Lat:   cols[VarLat][i],
			Lon:   cols[VarLon][i],
		}
	}
	return samples, nil
}

// readFloat64Var reads a 1D numeric variable of any integer or float type.
func readFloat64Var(v netcdf.Var) ([]float64, error) {
	dims, err := v.Dims()
	if err != nil {
		return nil, fmt.Errorf("failed to get dimensions: %w", err)
	}
	if len(dims) != 1 {
		return nil, fmt.Errorf("expected 1D variable, got %dD", len(dims))
	}

	length, err := dims[0].Len()
	if err != nil {
		return nil, err
	}

	t, err := v.Type()
	if err != nil {
		return nil, fmt.Errorf("failed to get var type: %w", err)
	}

	out := make([]float64, length)
	switch t {
	case netcdf.DOUBLE:
		if err := v.ReadFloat64s(out); err != nil {
			return nil, err
		}
	case netcdf.FLOAT:
		tmp := make([]float32, length)
		if err := v.ReadFloat32s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.INT:
		tmp := make([]int32, length)
		if err := v.ReadInt32s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.SHORT:
		tmp := make([]int16, length)
		if err := v.ReadInt16s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.BYTE:
		tmp := make([]int8, length)
		if err := v.ReadInt8s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	default:
		return nil, fmt.Errorf("unsupported var type: %v", t)
	}
	return out, nil
}
