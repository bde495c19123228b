package detection

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIoU(t *testing.T) {
	tests := []struct {
		name     string
		a, b     BoundingBox
		expected float32
	}{
		{"identical", BoundingBox{0, 0, 100, 100}, BoundingBox{0, 0, 100, 100}, 1},
		{"no overlap", BoundingBox{0, 0, 100, 100}, BoundingBox{200, 200, 100, 100}, 0},
		{"touching edges", BoundingBox{0, 0, 100, 100}, BoundingBox{100, 0, 100, 100}, 0},
		{"quarter overlap", BoundingBox{0, 0, 100, 100}, BoundingBox{50, 50, 100, 100}, 2500.0 / 17500.0},
		{"one inside other", BoundingBox{0, 0, 100, 100}, BoundingBox{25, 25, 50, 50}, 0.25},
		{"zero area", BoundingBox{10, 10, 0, 0}, BoundingBox{10, 10, 0, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IoU(tt.a, tt.b)
			assert.InDelta(t, tt.expected, got, 0.001)
			assert.InDelta(t, got, IoU(tt.b, tt.a), 0.0001, "IoU must be symmetric")
		})
	}
}

func TestSuppress_OverlappingPairKeepsHigherConfidence(t *testing.T) {
	high := Scored{Box: BoundingBox{0, 0, 100, 100}, Confidence: 0.9, Class: 0}
	low := Scored{Box: BoundingBox{0, 0, 100, 70}, Confidence: 0.6, Class: 0}
	require.InDelta(t, 0.7, IoU(high.Box, low.Box), 0.0001)

	got := Suppress([]Scored{low, high}, DefaultNMSThreshold)
	assert.Equal(t, []Scored{high}, got)
}

func TestSuppress_IsClassAgnostic(t *testing.T) {
	person := Scored{Box: BoundingBox{10, 10, 50, 50}, Confidence: 0.8, Class: 0}
	dog := Scored{Box: BoundingBox{12, 12, 50, 50}, Confidence: 0.7, Class: 16}

	got := Suppress([]Scored{person, dog}, DefaultNMSThreshold)
	assert.Equal(t, []Scored{person}, got)
}

func TestSuppress_ThresholdIsExclusive(t *testing.T) {
	a := Scored{Box: BoundingBox{0, 0, 100, 100}, Confidence: 0.9}
	b := Scored{Box: BoundingBox{0, 0, 100, 40}, Confidence: 0.8}
	require.Equal(t, float32(0.4), IoU(a.Box, b.Box))

	got := Suppress([]Scored{a, b}, DefaultNMSThreshold)
	assert.Len(t, got, 2)
}

func TestSuppress_OrdersBySelection(t *testing.T) {
	a := Scored{Box: BoundingBox{0, 0, 10, 10}, Confidence: 0.55}
	b := Scored{Box: BoundingBox{100, 100, 10, 10}, Confidence: 0.95}
	c := Scored{Box: BoundingBox{200, 200, 10, 10}, Confidence: 0.75}

	got := Suppress([]Scored{a, b, c}, DefaultNMSThreshold)
	assert.Equal(t, []Scored{b, c, a}, got)
}

func TestSuppress_EqualConfidenceKeepsInputOrder(t *testing.T) {
	first := Scored{Box: BoundingBox{0, 0, 100, 100}, Confidence: 0.8, Class: 1}
	second := Scored{Box: BoundingBox{5, 5, 100, 100}, Confidence: 0.8, Class: 2}
	apart := Scored{Box: BoundingBox{500, 500, 10, 10}, Confidence: 0.8, Class: 3}

	got := Suppress([]Scored{first, second, apart}, DefaultNMSThreshold)
	assert.Equal(t, []Scored{first, apart}, got)

	got = Suppress([]Scored{second, first, apart}, DefaultNMSThreshold)
	assert.Equal(t, []Scored{second, apart}, got)
}

func TestSuppress_EmptyInput(t *testing.T) {
	got := Suppress(nil, DefaultNMSThreshold)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSuppress_DoesNotModifyInput(t *testing.T) {
	in := []Scored{
		{Box: BoundingBox{0, 0, 10, 10}, Confidence: 0.6},
		{Box: BoundingBox{0, 0, 10, 10}, Confidence: 0.9},
	}
	snapshot := append([]Scored(nil), in...)
	Suppress(in, DefaultNMSThreshold)
	assert.Equal(t, snapshot, in)
}

func TestSuppress_RandomPoolsRespectThreshold(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		n := rng.Intn(60)
		pool := make([]Scored, n)
		for i := range pool {
			pool[i] = Scored{
				Box: BoundingBox{
					X:      rng.Intn(300),
					Y:      rng.Intn(300),
					Width:  1 + rng.Intn(120),
					Height: 1 + rng.Intn(120),
				},
				Confidence: 0.5 + float32(rng.Intn(50))/100,
				Class:      rng.Intn(3),
			}
		}

		kept := Suppress(pool, DefaultNMSThreshold)
		require.LessOrEqual(t, len(kept), len(pool))
		for i := range kept {
			for j := i + 1; j < len(kept); j++ {
				iou := IoU(kept[i].Box, kept[j].Box)
				if iou > DefaultNMSThreshold {
					t.Fatalf("round %d: kept boxes %d and %d overlap with IoU %.3f", round, i, j, iou)
				}
			}
			if i > 0 && kept[i].Confidence > kept[i-1].Confidence {
				t.Fatalf("round %d: selection order not descending at %d", round, i)
			}
		}
		if n > 0 {
			assert.NotEmpty(t, kept)
		}
	}
}
