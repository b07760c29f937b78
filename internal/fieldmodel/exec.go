package fieldmodel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// ErrNoHelper is returned by New for an external model without a helper.
var ErrNoHelper = errors.New("field model helper not configured")

// Request is written as JSON to the helper's stdin.
type Request struct {
	Model  string  `json:"model"`
	Inputs []Input `json:"inputs"`
}

// Response is read as JSON from the helper's stdout. A non-empty Error
// fails the batch.
type Response struct {
	Output
	Error string `json:"error,omitempty"`
}

// Exec delegates to an external program (for example a wrapper around a
// Tsyganenko or Olson-Pfitzer implementation). One process runs per Compute
// call with the whole batch.
type Exec struct {
	name    string
	needsKp bool
	helper  string
	args    []string
	logger  log.Logger
}

func newExec(name string, needsKp bool, opts Options) (*Exec, error) {
	if opts.Helper == "" {
		return nil, fmt.Errorf("model %s: %w", name, ErrNoHelper)
	}
	path, err := exec.LookPath(opts.Helper)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", name, err)
	}
	return &Exec{
		name:    name,
		needsKp: needsKp,
		helper:  path,
		args:    opts.Args,
		logger:  log.With(opts.Logger, "model", name),
	}, nil
}

func (e *Exec) Name() string  { return e.name }
func (e *Exec) NeedsKp() bool { return e.needsKp }

// Compute runs the helper once over all inputs.
func (e *Exec) Compute(ctx context.Context, inputs []Input) (*Output, error) {
	payload, err := json.Marshal(Request{Model: e.name, Inputs: inputs})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.helper, e.args...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	level.Debug(e.logger).Log("msg", "running field model helper", "helper", e.helper, "inputs", len(inputs))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("helper %s failed: %w: %s", e.helper, err, strings.TrimSpace(stderr.String()))
	}
	level.Debug(e.logger).Log("msg", "field model helper finished", "elapsed", time.Since(start))

	var resp Response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("decode helper response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("helper %s: %s", e.helper, resp.Error)
	}
	if err := resp.Output.check(len(inputs)); err != nil {
		return nil, err
	}
	return &resp.Output, nil
}
