package detection

import (
	"context"
	"fmt"
	"os"
	"strings"

	iface "ImageInsightServer/interface"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrInvalidImage reports upload bytes that could not be decoded to pixels.
var ErrInvalidImage = errors.New("invalid image")

// ErrDetector marks failures of the inference backend.
var ErrDetector = errors.New("detector backend failed")

type Options struct {
	Names         []string
	ConfThreshold float32
	NMSThreshold  float32
	ScoreOffset   int
}

func (o *Options) applyDefaults() {
	if o.ConfThreshold <= 0 {
		o.ConfThreshold = DefaultConfThreshold
	}
	if o.NMSThreshold <= 0 {
		o.NMSThreshold = DefaultNMSThreshold
	}
	if o.ScoreOffset == 0 {
		o.ScoreOffset = DefaultScoreOffset
	}
}

// Pipeline decodes and suppresses the output of a detector backend. It holds
// no mutable state and is safe for concurrent use.
type Pipeline struct {
	backend iface.Backend
	opts    Options
	log     *zap.Logger
}

func NewPipeline(backend iface.Backend, opts Options, log *zap.Logger) *Pipeline {
	opts.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{backend: backend, opts: opts, log: log}
}

// Run detects objects in a decoded image.
func (p *Pipeline) Run(ctx context.Context, img iface.ImageData) ([]Detection, error) {
	if img.Empty() {
		return nil, ErrInvalidImage
	}
	layers, err := p.backend.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDetector, err)
	}
	detections := p.Decode(layers, img.Width, img.Height)
	p.log.Debug("detection finished",
		zap.Int("layers", len(layers)),
		zap.Int("detections", len(detections)))
	return detections, nil
}

// Decode flattens every layer, in layer then row order, into one candidate
// pool, filters it by confidence and suppresses overlaps.
func (p *Pipeline) Decode(layers []iface.Tensor, width, height int) []Detection {
	var pool []Scored
	for _, layer := range layers {
		for i := 0; i < layer.Rows; i++ {
			c, ok := CandidateFromRow(layer.Row(i), p.opts.ScoreOffset)
			if !ok {
				continue
			}
			if s, ok := Decode(c, width, height, p.opts.ConfThreshold); ok {
				pool = append(pool, s)
			}
		}
	}

	kept := Suppress(pool, p.opts.NMSThreshold)
	out := make([]Detection, 0, len(kept))
	for _, s := range kept {
		out = append(out, Detection{
			Label:       p.Label(s.Class),
			Confidence:  s.Confidence,
			BoundingBox: s.Box,
		})
	}
	return out
}

// Label maps a class index to its configured name.
func (p *Pipeline) Label(class int) string {
	if class >= 0 && class < len(p.opts.Names) {
		return p.opts.Names[class]
	}
	return fmt.Sprintf("class_%d", class)
}

// LoadNames reads one class name per line, ignoring blank lines and CRLF endings.
func LoadNames(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read class names %s", path)
	}
	var names []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, line)
		}
	}
	if len(names) == 0 {
		return nil, errors.Errorf("class names file %s is empty", path)
	}
	return names, nil
}
