package signals

import (
	"sort"

	"riskgate/internal/types"
)

// Timing summarizes one event stream.
type Timing struct {
	Count         int     `json:"count"`
	MeanDelta     float64 `json:"meanDelta"`
	DeltaVariance float64 `json:"deltaVariance"`
}

type BehaviorSummary struct {
	Pointer  Timing `json:"pointer"`
	Keyboard Timing `json:"keyboard"`
	Touch    Timing `json:"touch"`
}

func Summarize(e types.Events) BehaviorSummary {
	return BehaviorSummary{
		Pointer:  timing(e.Pointer),
		Keyboard: timing(e.Keyboard),
		Touch:    timing(e.Touch),
	}
}

// Total is the number of interaction events across all streams.
func (b BehaviorSummary) Total() int {
	return b.Pointer.Count + b.Keyboard.Count + b.Touch.Count
}

func (b BehaviorSummary) Map() map[string]any {
	return map[string]any{
		"pointer":  b.Pointer.Map(),
		"keyboard": b.Keyboard.Map(),
		"touch":    b.Touch.Map(),
	}
}

func (t Timing) Map() map[string]any {
	return map[string]any{
		"count":         t.Count,
		"meanDelta":     t.MeanDelta,
		"deltaVariance": t.DeltaVariance,
	}
}

// timing computes inter-event delta statistics. Timestamps may arrive out of order
// when the sensor merges buffers, so they are sorted first.
func timing(ts []float64) Timing {
	t := Timing{Count: len(ts)}
	if len(ts) < 2 {
		return t
	}
	sorted := append([]float64(nil), ts...)
	sort.Float64s(sorted)

	deltas := make([]float64, 0, len(sorted)-1)
	var sum float64
	for i := 1; i < len(sorted); i++ {
		d := sorted[i] - sorted[i-1]
		deltas = append(deltas, d)
		sum += d
	}
	t.MeanDelta = sum / float64(len(deltas))

	var sq float64
	for _, d := range deltas {
		diff := d - t.MeanDelta
		sq += diff * diff
	}
	t.DeltaVariance = sq / float64(len(deltas))
	return t
}
