// Package reduce lowers a GIF's effective frame rate by collapsing runs of
// fast frames while preserving deliberate pauses. It is pure timing math;
// callers pair the result with a codec to materialize the output.
package reduce

import (
	"fmt"
	"time"

	"github.com/aidecameron/gifcut/internal/domain/entity"
)

type Spec struct {
	// KeepInterval keeps one frame out of every KeepInterval fast frames.
	// Must be at least 2.
	KeepInterval int
	// DelayThreshold splits frames: at or above it a frame is "slow" and
	// survives verbatim, below it the frame joins a collapsible run.
	DelayThreshold time.Duration
	// MaxDelay caps every output delay.
	MaxDelay time.Duration
}

type Plan struct {
	// KeptIndices are the surviving source frame indices, ascending.
	KeptIndices []int
	// Delays are the output delays, parallel to KeptIndices.
	Delays []time.Duration
}

// Reduce computes which frames survive and with what delays.
//
// Slow frames always survive, clamped to MaxDelay, and reset the fast-run
// counter. Fast frames accumulate into runs of up to KeepInterval; each run
// keeps its first frame, carrying min(sum of run delays, MaxDelay). The sum
// is computed before clamping, so a run of frames each below MaxDelay can
// still hit the cap. A trailing partial run is flushed the same way.
func Reduce(delays []time.Duration, spec Spec) (*Plan, error) {
	if spec.KeepInterval < 2 {
		return nil, fmt.Errorf("%w: keep interval must be at least 2, got %d",
			entity.ErrInvalidParameter, spec.KeepInterval)
	}
	if len(delays) == 0 {
		return nil, fmt.Errorf("%w: empty delay list", entity.ErrInvalidParameter)
	}

	plan := &Plan{}

	runStart := -1
	runSum := time.Duration(0)
	runLen := 0

	flush := func() {
		if runLen == 0 {
			return
		}
		d := runSum
		if d > spec.MaxDelay {
			d = spec.MaxDelay
		}
		plan.KeptIndices = append(plan.KeptIndices, runStart)
		plan.Delays = append(plan.Delays, d)
		runStart, runSum, runLen = -1, 0, 0
	}

	for i, d := range delays {
		if d >= spec.DelayThreshold {
			flush()
			kept := d
			if kept > spec.MaxDelay {
				kept = spec.MaxDelay
			}
			plan.KeptIndices = append(plan.KeptIndices, i)
			plan.Delays = append(plan.Delays, kept)
			continue
		}

		if runLen == 0 {
			runStart = i
		}
		runSum += d
		runLen++
		if runLen == spec.KeepInterval {
			flush()
		}
	}
	flush()

	return plan, nil
}

// TotalDuration sums the plan's output delays.
func (p *Plan) TotalDuration() time.Duration {
	total := time.Duration(0)
	for _, d := range p.Delays {
		total += d
	}
	return total
}
