package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ImageInsightServer/auth"
	"ImageInsightServer/detection"
	iface "ImageInsightServer/interface"
	"ImageInsightServer/monitor"

	"go.uber.org/zap"
)

// ErrCaptioner wraps failures of the captioning service.
var ErrCaptioner = errors.New("caption service failed")

// Detector runs object detection over a decoded image.
type Detector interface {
	Run(ctx context.Context, img iface.ImageData) ([]detection.Detection, error)
}

// DecodeFunc turns upload bytes into pixels, returning
// detection.ErrInvalidImage when they are not an image.
type DecodeFunc func(raw []byte) (iface.ImageData, error)

type Config struct {
	// TargetLanguage is the language descriptions and labels are translated
	// to. Empty disables translation.
	TargetLanguage string
}

// Service runs the describe, detect and analyse flows.
type Service struct {
	captioner  iface.Captioner
	translator iface.Translator
	detector   Detector
	decode     DecodeFunc
	recorder   *Recorder
	cfg        Config
	log        *zap.Logger

	labels sync.Map
}

func NewService(captioner iface.Captioner, translator iface.Translator, detector Detector, decode DecodeFunc, recorder *Recorder, cfg Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		captioner:  captioner,
		translator: translator,
		detector:   detector,
		decode:     decode,
		recorder:   recorder,
		cfg:        cfg,
		log:        log,
	}
}

// Analyse captions and detects objects in raw, then records the result for
// id's user when the token is valid.
func (s *Service) Analyse(ctx context.Context, raw []byte, id auth.Identity) (Result, error) {
	img, err := s.decode(raw)
	if err != nil {
		return Result{}, err
	}
	description, err := s.describe(ctx, raw)
	if err != nil {
		return Result{}, err
	}
	detections, err := s.detect(ctx, img)
	if err != nil {
		return Result{}, err
	}
	return s.recorder.Record(ctx, description, detections, raw, id)
}

// Describe returns the translated caption of raw.
func (s *Service) Describe(ctx context.Context, raw []byte) (string, error) {
	if _, err := s.decode(raw); err != nil {
		return "", err
	}
	return s.describe(ctx, raw)
}

// Detect returns the objects found in raw with translated labels.
func (s *Service) Detect(ctx context.Context, raw []byte) ([]detection.Detection, error) {
	img, err := s.decode(raw)
	if err != nil {
		return nil, err
	}
	return s.detect(ctx, img)
}

func (s *Service) describe(ctx context.Context, raw []byte) (string, error) {
	caption, err := s.captioner.Caption(ctx, raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCaptioner, err)
	}
	return s.translate(ctx, caption), nil
}

func (s *Service) detect(ctx context.Context, img iface.ImageData) ([]detection.Detection, error) {
	detections, err := s.detector.Run(ctx, img)
	if err != nil {
		return nil, err
	}
	for i := range detections {
		detections[i].Label = s.translateLabel(ctx, detections[i].Label)
	}
	monitor.DetectionsTotal.Add(float64(len(detections)))
	return detections, nil
}

// translate falls back to the untranslated text when the translator fails.
func (s *Service) translate(ctx context.Context, text string) string {
	if s.translator == nil || s.cfg.TargetLanguage == "" {
		return text
	}
	out, err := s.translator.Translate(ctx, text, s.cfg.TargetLanguage)
	if err != nil {
		s.log.Warn("translation failed, keeping untranslated text",
			zap.String("target", s.cfg.TargetLanguage),
			zap.Error(err))
		return text
	}
	return out
}

// translateLabel caches successful translations; class names are a small
// fixed set.
func (s *Service) translateLabel(ctx context.Context, label string) string {
	if v, ok := s.labels.Load(label); ok {
		return v.(string)
	}
	if s.translator == nil || s.cfg.TargetLanguage == "" {
		return label
	}
	out, err := s.translator.Translate(ctx, label, s.cfg.TargetLanguage)
	if err != nil {
		s.log.Warn("label translation failed, keeping class name",
			zap.String("label", label),
			zap.Error(err))
		return label
	}
	s.labels.Store(label, out)
	return out
}
