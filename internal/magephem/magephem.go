// Package magephem joins an ephemeris with Kp and a field model into a
// magnetic ephemeris: L-shell and MLT per position sample.
package magephem

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/KI7MT/kp-magephem/internal/ephem"
	"github.com/KI7MT/kp-magephem/internal/fieldmodel"
	"github.com/KI7MT/kp-magephem/internal/kp"
	"github.com/KI7MT/kp-magephem/internal/metrics"
)

// Record is one row of a magnetic ephemeris.
type Record struct {
	Time time.Time
	L    float64
	MLT  float64
}

// Valid reports whether neither value is fieldmodel.BadValue.
func (r Record) Valid() bool {
	return r.L != fieldmodel.BadValue && r.MLT != fieldmodel.BadValue
}

// KpLookup resolves the Kp value in effect at a time. *kp.Store and
// *kp.Series satisfy it.
type KpLookup interface {
	Lookup(t time.Time) (kp.Sample, error)
}

// Options control Build.
type Options struct {
	// SkipStale drops samples whose Kp lookup is stale instead of failing.
	SkipStale bool
	Logger    log.Logger
	Metrics   *metrics.Pipeline
}

// Skipped is a sample left out under SkipStale.
type Skipped struct {
	Time time.Time
	Err  error
}

// Result is the output of Build.
type Result struct {
	Model   string
	Records []Record
	Skipped []Skipped
}

// Build evaluates model over samples. Kp is looked up only when the model
// needs it; a stale lookup fails the batch unless opts.SkipStale is set.
// All inputs go to the model in a single Compute call and records come back
// in input order.
func Build(ctx context.Context, samples []ephem.Sample, lookup KpLookup, model fieldmodel.Model, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	logger = log.With(logger, "model", model.Name())

	res := &Result{Model: model.Name()}
	inputs := make([]fieldmodel.Input, 0, len(samples))

	for _, s := range samples {
		in := fieldmodel.Input{Time: s.Time, AltKm: s.AltKm, Lat: s.Lat, Lon: s.Lon}
		if model.NeedsKp() {
			if lookup == nil {
				return nil, fmt.Errorf("model %s needs Kp but no Kp source is configured", model.Name())
			}
			smp, err := lookup.Lookup(s.Time)
			if err != nil {
				var stale *kp.StaleDataError
				if opts.SkipStale && errors.As(err, &stale) {
					res.Skipped = append(res.Skipped, Skipped{Time: s.Time, Err: err})
					opts.Metrics.StaleLookups(1)
					continue
				}
				return nil, fmt.Errorf("Kp lookup at %s: %w", s.Time.Format(kp.TimeLayout), err)
			}
			in.Kp = smp.Kp
		}
		inputs = append(inputs, in)
	}

	if len(res.Skipped) > 0 {
		level.Warn(logger).Log("msg", "skipped samples with stale Kp", "skipped", len(res.Skipped),
			"first", res.Skipped[0].Time.Format(kp.TimeLayout))
	}
	if len(inputs) == 0 {
		return res, nil
	}

	level.Info(logger).Log("msg", "computing magnetic ephemeris", "samples", len(inputs))
	out, err := model.Compute(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("field model %s: %w", model.Name(), err)
	}
	if len(out.L) != len(inputs) || len(out.MLT) != len(inputs) {
		return nil, fmt.Errorf("field model %s returned %d/%d values for %d inputs",
			model.Name(), len(out.L), len(out.MLT), len(inputs))
	}

	res.Records = make([]Record, len(inputs))
	for i, in := range inputs {
		res.Records[i] = Record{Time: in.Time, L: out.L[i], MLT: out.MLT[i]}
	}
	opts.Metrics.RecordsWritten(model.Name(), len(res.Records))
	return res, nil
}

// Valid drops records carrying BadValue and replaces L by its absolute
// value. A negative L only signals a particle inside the bounce loss cone.
func Valid(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if !r.Valid() {
			continue
		}
		r.L = math.Abs(r.L)
		out = append(out, r)
	}
	return out
}
