package store

import (
	"context"
	"encoding/json"
	"fmt"

	"ImageInsightServer/model"
)

// AnalysisRepository implements analysis.Store.
type AnalysisRepository struct {
	db *DB
}

func NewAnalysisRepository(db *DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

func (r *AnalysisRepository) Insert(ctx context.Context, a *model.Analysis) error {
	detections, err := json.Marshal(a.Detections)
	if err != nil {
		return fmt.Errorf("failed to encode detections: %w", err)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	_, err = r.db.conn.ExecContext(ctx, `
		INSERT INTO analyses (id, user_id, description, detections, image_payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, a.UserID, a.Description, string(detections), a.ImagePayload, a.CreatedAt)
	if err != nil {
		return wrapInsert("analysis", err)
	}
	return nil
}

// ListByUser returns every analysis of userID in insertion order.
func (r *AnalysisRepository) ListByUser(ctx context.Context, userID string) ([]model.Analysis, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT id, user_id, description, detections, image_payload, created_at
		FROM analyses WHERE user_id = ?
		ORDER BY seq ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	analyses := []model.Analysis{}
	for rows.Next() {
		var a model.Analysis
		var detections string
		if err := rows.Scan(&a.ID, &a.UserID, &a.Description, &detections, &a.ImagePayload, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		if err := json.Unmarshal([]byte(detections), &a.Detections); err != nil {
			return nil, fmt.Errorf("failed to decode detections of %s: %w", a.ID, err)
		}
		analyses = append(analyses, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analyses: %w", err)
	}
	return analyses, nil
}

// CountByUser returns how many analyses userID owns.
func (r *AnalysisRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var count int
	if err := r.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM analyses WHERE user_id = ?`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count analyses: %w", err)
	}
	return count, nil
}
