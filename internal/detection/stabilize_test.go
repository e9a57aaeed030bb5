package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func diseaseResult(dets ...Detection) *Result {
	return &Result{
		IsTeaLeaf:       true,
		TeaConfidence:   0.9,
		TotalDetections: len(dets),
		Diseases:        dets,
	}
}

func TestHistoryEvictsOldestAtCapacity(t *testing.T) {
	h := NewHistory(3)
	first := diseaseResult(Detection{Category: "a", Confidence: 0.1})
	h.Push(first)
	h.Push(diseaseResult(Detection{Category: "b", Confidence: 0.2}))
	h.Push(diseaseResult(Detection{Category: "c", Confidence: 0.3}))
	assert.Equal(t, 3, h.Len())

	h.Push(diseaseResult(Detection{Category: "d", Confidence: 0.4}))
	assert.Equal(t, 3, h.Len())
	assert.NotContains(t, h.Entries(), first)
}

func TestHistoryReset(t *testing.T) {
	h := NewHistory(3)
	h.Push(diseaseResult())
	h.Reset()
	assert.Zero(t, h.Len())
	assert.Nil(t, h.Latest())
}

func TestStabilizeEmptyHistory(t *testing.T) {
	assert.Nil(t, Stabilize(nil))
	assert.Nil(t, Stabilize(NewHistory(3)))
}

func TestStabilizeSingleEntryVerbatim(t *testing.T) {
	h := NewHistory(3)
	only := diseaseResult(
		Detection{Category: "Blister Blight", Confidence: 0.6},
		Detection{Category: "grey blight", Confidence: 0.2},
	)
	h.Push(only)

	assert.Same(t, only, Stabilize(h))
}

func TestStabilizeMergesMaxConfidencePerCategory(t *testing.T) {
	// Stream {A:0.6, B:0.3}, {A:0.5, C:0.9}, {A:0.8} must stabilize to
	// [C:0.9, A:0.8, B:0.3].
	h := NewHistory(3)
	h.Push(diseaseResult(
		Detection{Category: "A", Confidence: 0.6},
		Detection{Category: "B", Confidence: 0.3},
	))
	h.Push(diseaseResult(
		Detection{Category: "A", Confidence: 0.5},
		Detection{Category: "C", Confidence: 0.9},
	))
	h.Push(diseaseResult(Detection{Category: "A", Confidence: 0.8}))

	got := Stabilize(h)
	require.NotNil(t, got)
	require.Len(t, got.Diseases, 3)
	assert.Equal(t, "C", got.Diseases[0].Category)
	assert.InDelta(t, 0.9, got.Diseases[0].Confidence, 1e-9)
	assert.Equal(t, "A", got.Diseases[1].Category)
	assert.InDelta(t, 0.8, got.Diseases[1].Confidence, 1e-9)
	assert.Equal(t, "B", got.Diseases[2].Category)
	assert.InDelta(t, 0.3, got.Diseases[2].Confidence, 1e-9)
}

func TestStabilizeCategorySetIsUnionWithMaxConfidence(t *testing.T) {
	h := NewHistory(3)
	h.Push(diseaseResult(Detection{Category: "lichen", Confidence: 0.45}))
	h.Push(&Result{
		IsTeaLeaf:    true,
		Deficiencies: []Detection{{Category: "magnesium", Confidence: 0.35}},
	})

	got := Stabilize(h)
	require.NotNil(t, got)

	categories := map[string]float64{}
	for _, d := range got.AllDetections() {
		_, dup := categories[d.Key()]
		require.False(t, dup, "duplicate category %q after stabilization", d.Key())
		categories[d.Key()] = d.Confidence
	}
	assert.Equal(t, map[string]float64{"lichen": 0.45, "magnesium": 0.35}, categories)
}

func TestStabilizeCaseInsensitiveDuplicates(t *testing.T) {
	h := NewHistory(3)
	h.Push(diseaseResult(Detection{Category: "Brown Blight", Confidence: 0.4}))
	h.Push(diseaseResult(Detection{Category: "brown blight", Confidence: 0.7}))

	got := Stabilize(h)
	require.NotNil(t, got)
	require.Len(t, got.Diseases, 1)
	assert.Equal(t, "brown blight", got.Diseases[0].Category)
	assert.InDelta(t, 0.7, got.Diseases[0].Confidence, 1e-9)
}

func TestStabilizeScalarFieldsFromLatest(t *testing.T) {
	h := NewHistory(3)
	h.Push(&Result{IsTeaLeaf: true, IsHealthy: false, TeaConfidence: 0.5, Engine: "old"})
	h.Push(&Result{IsTeaLeaf: true, IsHealthy: true, TeaConfidence: 0.95, Engine: "new", InferenceTime: 0.2})

	got := Stabilize(h)
	require.NotNil(t, got)
	assert.True(t, got.IsHealthy, "latest isHealthy wins immediately")
	assert.InDelta(t, 0.95, got.TeaConfidence, 1e-9)
	assert.Equal(t, "new", got.Engine)
	assert.InDelta(t, 0.2, got.InferenceTime, 1e-9)
}

func TestStabilizeDeficiencyPlacementFollowsWinner(t *testing.T) {
	// The same category reported as a disease in one frame and a deficiency
	// in another keeps only the higher-confidence sighting, in its own list.
	h := NewHistory(3)
	h.Push(&Result{IsTeaLeaf: true, Diseases: []Detection{{Category: "sulfur", Confidence: 0.3}}})
	h.Push(&Result{IsTeaLeaf: true, Deficiencies: []Detection{{Category: "Sulfur", Confidence: 0.8}}})

	got := Stabilize(h)
	require.NotNil(t, got)
	assert.Empty(t, got.Diseases)
	require.Len(t, got.Deficiencies, 1)
	assert.InDelta(t, 0.8, got.Deficiencies[0].Confidence, 1e-9)
}
