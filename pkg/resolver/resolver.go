// Package resolver relocates live elements from ranked locator candidates.
package resolver

import (
	"context"
	"time"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
	"github.com/devicelab-dev/hybrid-runner/pkg/locator"
	"github.com/devicelab-dev/hybrid-runner/pkg/logger"
)

// DefaultNominalTimeout is the slice given to the first attempt.
const DefaultNominalTimeout = 5 * time.Second

// Options tunes one resolution.
type Options struct {
	// NominalTimeout is the first attempt's slice and the base for later
	// slices. 0 = DefaultNominalTimeout.
	NominalTimeout time.Duration
	// TotalBudget caps the whole resolution, xpath layer included. 0 = none.
	TotalBudget time.Duration
}

func (o Options) nominal() time.Duration {
	if o.NominalTimeout <= 0 {
		return DefaultNominalTimeout
	}
	return o.NominalTimeout
}

// Result is a resolved element and the candidate that found it.
type Result struct {
	Handle    core.ElementHandle
	Candidate locator.Candidate
	Attempts  int
}

// TimeoutSlice returns the wait budget for the attempt-th candidate:
// full nominal first, then 60% (max 3s), 40% (max 2s), 20% (max 1s).
func TimeoutSlice(attempt int, nominal time.Duration) time.Duration {
	scaled := func(pct int64, ceiling time.Duration) time.Duration {
		d := time.Duration(int64(nominal) * pct / 100)
		if d > ceiling {
			return ceiling
		}
		return d
	}
	switch {
	case attempt == 0:
		return nominal
	case attempt <= 2:
		return scaled(60, 3*time.Second)
	case attempt <= 4:
		return scaled(40, 2*time.Second)
	default:
		return scaled(20, time.Second)
	}
}

// Resolve tries candidates in order and returns on the first visible match.
// When all are exhausted and desc carries an xpath, the xpath and its
// rewrites are tried with the nominal timeout each. Failures report the
// first candidate's selector.
//
// Resolve holds no state between calls and never retries a candidate.
func Resolve(ctx context.Context, driver core.PageDriver, candidates []locator.Candidate, desc *core.ElementDescriptor, opts Options) (*Result, error) {
	nominal := opts.nominal()
	start := time.Now()

	first := ""
	if len(candidates) > 0 {
		first = candidates[0].Selector
	} else if desc != nil && desc.XPath != "" {
		first = locator.NormalizeXPath(desc.XPath)
	}

	// remaining clamps a slice to the total budget; ok is false once spent.
	remaining := func(slice time.Duration) (time.Duration, bool) {
		if opts.TotalBudget <= 0 {
			return slice, true
		}
		left := opts.TotalBudget - time.Since(start)
		if left <= 0 {
			return 0, false
		}
		if slice > left {
			return left, true
		}
		return slice, true
	}

	attempts := 0
	try := func(c locator.Candidate, slice time.Duration) (*Result, bool, error) {
		slice, ok := remaining(slice)
		if !ok {
			return nil, true, core.ErrStepTimeout.WithSelector(first)
		}
		attempts++
		h, err := driver.Locate(ctx, c.Selector)
		if err != nil || h == nil {
			logger.Debug("resolve: %s not located (%v)", core.TruncateSelector(c.Selector), err)
			return nil, ctx.Err() != nil, nil
		}
		visible, err := driver.WaitVisible(ctx, h, slice)
		if err != nil || !visible {
			logger.Debug("resolve: %s not visible within %s", core.TruncateSelector(c.Selector), slice)
			return nil, ctx.Err() != nil, nil
		}
		return &Result{Handle: h, Candidate: c, Attempts: attempts}, true, nil
	}

	for i, c := range candidates {
		res, stop, err := try(c, TimeoutSlice(i, nominal))
		if res != nil {
			logger.Debug("resolve: found element with %s (%s) after %d attempts", core.TruncateSelector(c.Selector), c.Kind, attempts)
			return res, nil
		}
		if stop {
			return nil, stopError(ctx, err, first)
		}
	}

	for _, c := range locator.XPathCandidates(desc) {
		res, stop, err := try(c, nominal)
		if res != nil {
			logger.Debug("resolve: found element with xpath fallback %s", core.TruncateSelector(c.Selector))
			return res, nil
		}
		if stop {
			return nil, stopError(ctx, err, first)
		}
	}

	return nil, core.ErrElementNotFound.WithSelector(first)
}

func stopError(ctx context.Context, err error, first string) error {
	if err != nil {
		return err
	}
	return core.ErrStepTimeout.WithSelector(first).WithCause(ctx.Err())
}
