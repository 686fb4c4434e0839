package reduce

import (
	"testing"
	"time"

	"github.com/aidecameron/gifcut/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func TestReduceRejectsBadSpec(t *testing.T) {
	_, err := Reduce([]time.Duration{ms(10)}, Spec{KeepInterval: 1, DelayThreshold: ms(50), MaxDelay: ms(500)})
	assert.ErrorIs(t, err, entity.ErrInvalidParameter)

	_, err = Reduce(nil, Spec{KeepInterval: 2, DelayThreshold: ms(50), MaxDelay: ms(500)})
	assert.ErrorIs(t, err, entity.ErrInvalidParameter)
}

func TestReduceCollapsesFastRunsAndKeepsSlowFrames(t *testing.T) {
	// Three fast frames collapse into one, the slow frame survives, and
	// the trailing partial run flushes.
	delays := []time.Duration{ms(10), ms(10), ms(10), ms(200), ms(10), ms(10)}

	plan, err := Reduce(delays, Spec{KeepInterval: 3, DelayThreshold: ms(50), MaxDelay: ms(500)})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 3, 4}, plan.KeptIndices)
	assert.Equal(t, []time.Duration{ms(30), ms(200), ms(20)}, plan.Delays)
	assert.Equal(t, ms(250), plan.TotalDuration())
}

func TestReduceSlowFrameResetsRun(t *testing.T) {
	// The slow frame interrupts a run of two, so the run flushes early and
	// a fresh run starts after it.
	delays := []time.Duration{ms(10), ms(10), ms(100), ms(10), ms(10), ms(10)}

	plan, err := Reduce(delays, Spec{KeepInterval: 3, DelayThreshold: ms(50), MaxDelay: ms(500)})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 2, 3}, plan.KeptIndices)
	assert.Equal(t, []time.Duration{ms(20), ms(100), ms(30)}, plan.Delays)
}

func TestReduceClampsAfterSumming(t *testing.T) {
	// Each frame is below MaxDelay but their sum is not: the clamp applies
	// to the summed run delay.
	delays := []time.Duration{ms(40), ms(40), ms(40)}

	plan, err := Reduce(delays, Spec{KeepInterval: 3, DelayThreshold: ms(50), MaxDelay: ms(100)})
	require.NoError(t, err)

	assert.Equal(t, []int{0}, plan.KeptIndices)
	assert.Equal(t, []time.Duration{ms(100)}, plan.Delays)
}

func TestReduceClampsSlowFrames(t *testing.T) {
	delays := []time.Duration{ms(800), ms(10)}

	plan, err := Reduce(delays, Spec{KeepInterval: 2, DelayThreshold: ms(50), MaxDelay: ms(500)})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, plan.KeptIndices)
	assert.Equal(t, []time.Duration{ms(500), ms(10)}, plan.Delays)
}

func TestReduceAllSlowFramesKeepsEverything(t *testing.T) {
	delays := []time.Duration{ms(100), ms(120), ms(90)}

	plan, err := Reduce(delays, Spec{KeepInterval: 2, DelayThreshold: ms(50), MaxDelay: ms(500)})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2}, plan.KeptIndices)
	assert.Equal(t, delays, plan.Delays)
}

func TestReduceKeptIndicesAscending(t *testing.T) {
	delays := make([]time.Duration, 50)
	for i := range delays {
		if i%7 == 0 {
			delays[i] = ms(120)
		} else {
			delays[i] = ms(20)
		}
	}

	plan, err := Reduce(delays, Spec{KeepInterval: 4, DelayThreshold: ms(50), MaxDelay: ms(500)})
	require.NoError(t, err)
	require.Equal(t, len(plan.KeptIndices), len(plan.Delays))

	for i := 1; i < len(plan.KeptIndices); i++ {
		assert.Greater(t, plan.KeptIndices[i], plan.KeptIndices[i-1])
	}
}
