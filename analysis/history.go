package analysis

import (
	"context"
	"fmt"

	"ImageInsightServer/auth"
	"ImageInsightServer/detection"
)

// Entry is one upload as shown in a user's history.
type Entry struct {
	Description string                `json:"description"`
	Detections  []detection.Detection `json:"detections"`
	ImageFile   string                `json:"image_file"`
}

type HistoryReader struct {
	store Store
}

func NewHistoryReader(store Store) *HistoryReader {
	return &HistoryReader{store: store}
}

// History lists the analyses owned by id's user, oldest first. Requests
// without a valid token get an empty list.
func (h *HistoryReader) History(ctx context.Context, id auth.Identity) ([]Entry, error) {
	if id.State != auth.ValidToken {
		return []Entry{}, nil
	}
	records, err := h.store.ListByUser(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		detections := rec.Detections
		if detections == nil {
			detections = []detection.Detection{}
		}
		entries = append(entries, Entry{
			Description: rec.Description,
			Detections:  detections,
			ImageFile:   rec.ImagePayload,
		})
	}
	return entries, nil
}
