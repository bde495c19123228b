// Package analysis combines captioning, detection and persistence of image
// analyses, and reads them back per user.
package analysis

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"ImageInsightServer/auth"
	"ImageInsightServer/detection"
	"ImageInsightServer/model"
	"ImageInsightServer/monitor"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store persists analyses. ListByUser returns records in insertion order.
type Store interface {
	Insert(ctx context.Context, a *model.Analysis) error
	ListByUser(ctx context.Context, userID string) ([]model.Analysis, error)
}

// Result is what a caller gets back from an analysis, persisted or not.
type Result struct {
	Description string                `json:"description"`
	Detections  []detection.Detection `json:"detections"`
}

type Recorder struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

func NewRecorder(store Store, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{store: store, log: log, now: time.Now}
}

// Record returns the analysis result and, when id carries a valid token,
// persists it together with the base64 encoded image under that user.
func (r *Recorder) Record(ctx context.Context, description string, detections []detection.Detection, raw []byte, id auth.Identity) (Result, error) {
	if detections == nil {
		detections = []detection.Detection{}
	}
	res := Result{Description: description, Detections: detections}

	if id.State != auth.ValidToken {
		if id.State == auth.InvalidToken {
			r.log.Warn("invalid token on analysis, treating request as anonymous", zap.Error(id.Err))
		}
		monitor.AnalysesTotal.WithLabelValues("false").Inc()
		return res, nil
	}

	rec := &model.Analysis{
		ID:           uuid.NewString(),
		UserID:       id.UserID,
		Description:  description,
		Detections:   detections,
		ImagePayload: base64.StdEncoding.EncodeToString(raw),
		CreatedAt:    r.now().UTC(),
	}
	if err := r.store.Insert(ctx, rec); err != nil {
		return Result{}, fmt.Errorf("failed to persist analysis: %w", err)
	}
	monitor.AnalysesTotal.WithLabelValues("true").Inc()
	r.log.Info("analysis recorded",
		zap.String("analysis_id", rec.ID),
		zap.String("user_id", rec.UserID),
		zap.Int("detections", len(detections)))
	return res, nil
}
