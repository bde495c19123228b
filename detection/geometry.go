// Package detection turns raw per-anchor detector output into labeled,
// non-overlapping boxes.
package detection

// Defaults for YOLOv3 darknet models.
const (
	DefaultConfThreshold = 0.5
	DefaultNMSThreshold  = 0.4
	// DefaultScoreOffset skips cx, cy, w, h and the objectness column of a YOLOv3 row.
	DefaultScoreOffset = 5
	// DefaultInputSize is the square network input in pixels.
	DefaultInputSize = 416
)

// Candidate is one anchor prediction. Geometry is normalized to [0,1].
type Candidate struct {
	CenterX     float32
	CenterY     float32
	Width       float32
	Height      float32
	ClassScores []float32
}

// BoundingBox is in absolute pixels, origin top-left.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Detection is the unit returned to clients and persisted.
type Detection struct {
	Label      string  `json:"name"`
	Confidence float32 `json:"score"`
	BoundingBox
}

// Scored is a decoded candidate that survived the confidence threshold.
type Scored struct {
	Box        BoundingBox
	Confidence float32
	Class      int
}

// CandidateFromRow splits a raw row into geometry and class scores. Class
// scores start at scoreOffset; columns between index 4 and scoreOffset are ignored.
func CandidateFromRow(row []float32, scoreOffset int) (Candidate, bool) {
	if scoreOffset < 4 || len(row) <= scoreOffset {
		return Candidate{}, false
	}
	return Candidate{
		CenterX:     row[0],
		CenterY:     row[1],
		Width:       row[2],
		Height:      row[3],
		ClassScores: row[scoreOffset:],
	}, true
}

// argmax returns the index of the first maximum.
func argmax(scores []float32) int {
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return best
}

// Decode converts a candidate to pixel space for an image of the given size.
// It reports false when the best class score does not exceed threshold.
func Decode(c Candidate, width, height int, threshold float32) (Scored, bool) {
	if len(c.ClassScores) == 0 {
		return Scored{}, false
	}
	class := argmax(c.ClassScores)
	confidence := c.ClassScores[class]
	if confidence <= threshold {
		return Scored{}, false
	}

	// Each step truncates toward zero, matching int() on the reference values.
	centerX := int(c.CenterX * float32(width))
	centerY := int(c.CenterY * float32(height))
	w := int(c.Width * float32(width))
	h := int(c.Height * float32(height))

	return Scored{
		Box: BoundingBox{
			X:      int(float32(centerX) - float32(w)/2),
			Y:      int(float32(centerY) - float32(h)/2),
			Width:  w,
			Height: h,
		},
		Confidence: confidence,
		Class:      class,
	}, true
}
