// Package fieldmodel maps spacecraft positions to magnetic field-line
// parameters (L-shell and magnetic local time).
package fieldmodel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-kit/log"
)

// BadValue marks an invalid result, such as an open field line over the
// polar cap.
const BadValue = -1e31

// Model names accepted by New.
const (
	NameDipole = "DIPOLE"
	NameT89    = "T89"
	NameOPQ77  = "OPQ77"
)

// Input is one position to evaluate. Kp is on the tenths scale of the kp
// package and is only meaningful for models that report NeedsKp.
type Input struct {
	Time  time.Time `json:"time"`
	AltKm float64   `json:"alt"`
	Lat   float64   `json:"lat"`
	Lon   float64   `json:"lon"`
	Kp    int       `json:"kp"`
}

// Output holds results parallel to the Compute inputs.
type Output struct {
	L   []float64 `json:"L"`
	MLT []float64 `json:"MLT"`
}

// Model computes L and MLT for a batch of positions in one call.
type Model interface {
	Name() string
	NeedsKp() bool
	Compute(ctx context.Context, inputs []Input) (*Output, error)
}

// UnsupportedModelError reports a model name New does not know.
type UnsupportedModelError struct {
	Name string
}

func (e *UnsupportedModelError) Error() string {
	return fmt.Sprintf("unsupported field model %q (want %s, %s or %s)", e.Name, NameDipole, NameT89, NameOPQ77)
}

// Options configure external models.
type Options struct {
	Helper string // executable implementing the helper protocol
	Args   []string
	Logger log.Logger
}

// New returns the model called name (case-insensitive).
func New(name string, opts Options) (Model, error) {
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}

	switch strings.ToUpper(strings.TrimSpace(name)) {
	case NameDipole:
		return Dipole{}, nil
	case NameT89:
		return newExec(NameT89, true, opts)
	case NameOPQ77:
		return newExec(NameOPQ77, false, opts)
	}
	return nil, &UnsupportedModelError{Name: name}
}

// check verifies a model returned one result per input.
func (o *Output) check(n int) error {
	if len(o.L) != n || len(o.MLT) != n {
		return fmt.Errorf("model returned %d L and %d MLT values for %d inputs", len(o.L), len(o.MLT), n)
	}
	return nil
}
