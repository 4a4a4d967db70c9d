package models

import "testing"

// Usage merge: if both old and new have values, each field is the max of
// the two (spec §8 boundary behaviour).
func TestMergeMaxTakesFieldwiseMax(t *testing.T) {
	a := Usage{Input: 10, Output: 50, CacheRead: 5, CacheWrite: 0, Total: 60, Cost: 0.01}
	b := Usage{Input: 8, Output: 55, CacheRead: 5, CacheWrite: 2, Total: 60, Cost: 0.02}

	got := MergeMax(a, b)
	want := Usage{Input: 10, Output: 55, CacheRead: 5, CacheWrite: 2, Total: 60, Cost: 0.02}
	if got != want {
		t.Fatalf("MergeMax(%+v, %+v) = %+v, want %+v", a, b, got, want)
	}
}

func TestMergeMaxZeroValueIsIdentity(t *testing.T) {
	a := Usage{Input: 3, Output: 4, Total: 7, Cost: 0.5}
	got := MergeMax(a, Usage{})
	if got != a {
		t.Fatalf("MergeMax(a, zero) = %+v, want %+v", got, a)
	}
}

func TestThinkingLevelRankOrdering(t *testing.T) {
	levels := []ThinkingLevel{ThinkingOff, ThinkingMinimal, ThinkingLow, ThinkingMedium, ThinkingHigh, ThinkingXHigh}
	for i := 1; i < len(levels); i++ {
		if levels[i].Rank() <= levels[i-1].Rank() {
			t.Fatalf("%q.Rank()=%d should be > %q.Rank()=%d", levels[i], levels[i].Rank(), levels[i-1], levels[i-1].Rank())
		}
	}
}
