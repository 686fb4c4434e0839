package dedup

import (
	"math"
	"time"
)

// HashedFrame is the merge input: a fingerprint and the frame's display
// delay, in sequence order.
type HashedFrame struct {
	Fingerprint Fingerprint
	Delay       time.Duration
}

// MergeGroup is a maximal run of consecutive frames collapsed into one
// output frame. RepresentativeIndex is the first frame of the run and the
// pixel source for the rebuilt output; TotalDelay is the sum of the run's
// delays.
type MergeGroup struct {
	RepresentativeIndex int
	TotalDelay          time.Duration
	MemberCount         int
}

// ThresholdFromSimilarity maps a similarity percentage in [0, 100] to a
// Hamming threshold: max(1, round((100-s)*64/100)). The floor of 1 keeps a
// 100% setting from merging only bit-identical hashes. The curve is a
// deliberate heuristic kept for behavioral parity; do not retune it.
func ThresholdFromSimilarity(similarity int) uint32 {
	t := int(math.Round(float64(100-similarity) * 64.0 / 100.0))
	if t < 1 {
		t = 1
	}
	return uint32(t)
}

// Merge walks the frames in order and collapses runs whose fingerprints
// stay within threshold of the run's anchor. Comparison is always against
// the anchor (the first frame of the run), never the previous frame, so
// similarity does not accumulate transitively across a slow drift.
//
// The returned groups partition [0, len(frames)) contiguously and in order,
// and their delay totals sum to the input total exactly.
func Merge(frames []HashedFrame, threshold uint32) []MergeGroup {
	if len(frames) == 0 {
		return nil
	}

	groups := []MergeGroup{{
		RepresentativeIndex: 0,
		TotalDelay:          frames[0].Delay,
		MemberCount:         1,
	}}

	for i := 1; i < len(frames); i++ {
		cur := &groups[len(groups)-1]
		anchor := frames[cur.RepresentativeIndex].Fingerprint
		if uint32(frames[i].Fingerprint.Distance(anchor)) <= threshold {
			cur.TotalDelay += frames[i].Delay
			cur.MemberCount++
			continue
		}
		groups = append(groups, MergeGroup{
			RepresentativeIndex: i,
			TotalDelay:          frames[i].Delay,
			MemberCount:         1,
		})
	}
	return groups
}
