package fieldmodel

import (
	"context"
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/sidereal"
	"github.com/soniakeys/meeus/v3/solar"
	"github.com/soniakeys/unit"
)

const (
	// EarthRadiusKm is the IGRF reference radius.
	EarthRadiusKm = 6371.2

	// IGRF-13 epoch 2020 geomagnetic north pole.
	dipolePoleLat = 80.65
	dipolePoleLon = -72.68
)

var (
	poleColat = unit.AngleFromDeg(90 - dipolePoleLat).Rad()
	poleLon   = unit.AngleFromDeg(dipolePoleLon).Rad()
)

// Dipole is a centered tilted dipole. L is the equatorial crossing distance
// of the dipole field line through the point, in Earth radii. It does not
// depend on Kp.
type Dipole struct{}

func (Dipole) Name() string  { return NameDipole }
func (Dipole) NeedsKp() bool { return false }

// Compute evaluates every input.
func (d Dipole) Compute(ctx context.Context, inputs []Input) (*Output, error) {
	out := &Output{
		L:   make([]float64, len(inputs)),
		MLT: make([]float64, len(inputs)),
	}
	for i, in := range inputs {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out.L[i], out.MLT[i] = d.At(in.Time, in.AltKm, in.Lat, in.Lon)
	}
	return out, nil
}

// At returns L and MLT (hours) for one geographic position.
func (Dipole) At(t time.Time, altKm, lat, lon float64) (l, mlt float64) {
	r := (EarthRadiusKm + altKm) / EarthRadiusKm
	if r <= 0 {
		return BadValue, BadValue
	}

	mlat, mlon := Magnetic(lat, lon)
	c := math.Cos(mlat)
	if c*c < 1e-12 {
		return BadValue, BadValue
	}

	_, sunLon := Magnetic(SubsolarPoint(t))
	return r / (c * c), MLTFromLongitudes(mlon, sunLon)
}

// Magnetic rotates geographic latitude and longitude (degrees) into dipole
// latitude and longitude (radians).
func Magnetic(lat, lon float64) (mlat, mlon float64) {
	la := unit.AngleFromDeg(lat).Rad()
	lo := unit.AngleFromDeg(lon).Rad()

	x := math.Cos(la) * math.Cos(lo)
	y := math.Cos(la) * math.Sin(lo)
	z := math.Sin(la)

	// meridian of the pole onto the x axis
	x1 := x*math.Cos(poleLon) + y*math.Sin(poleLon)
	y1 := -x*math.Sin(poleLon) + y*math.Cos(poleLon)

	// pole onto the z axis
	x2 := x1*math.Cos(poleColat) - z*math.Sin(poleColat)
	z2 := x1*math.Sin(poleColat) + z*math.Cos(poleColat)

	return math.Asin(math.Max(-1, math.Min(1, z2))), math.Atan2(y1, x2)
}

// MLTFromLongitudes returns magnetic local time in hours [0, 24) for a
// point at magnetic longitude mlon when the sun is at sunLon (radians).
func MLTFromLongitudes(mlon, sunLon float64) float64 {
	h := math.Mod(12+(mlon-sunLon)*12/math.Pi, 24)
	if h < 0 {
		h += 24
	}
	return h
}

// SubsolarPoint returns the geographic latitude and longitude (degrees)
// where the sun is at zenith.
func SubsolarPoint(t time.Time) (lat, lon float64) {
	jd := julian.TimeToJD(t.UTC())
	ra, dec := solar.ApparentEquatorial(jd)
	gast := sidereal.Apparent(jd)

	lon = unit.Angle(ra.Rad() - gast.Rad()).Deg()
	lon = math.Mod(lon+540, 360) - 180
	return dec.Deg(), lon
}
