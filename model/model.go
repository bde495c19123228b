// Package model holds the records persisted by the store.
package model

import (
	"errors"
	"time"

	"ImageInsightServer/detection"
)

// ErrDuplicate is returned by stores when a unique key already exists.
var ErrDuplicate = errors.New("duplicate record")

// User is a registered credential. It is never updated in place.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Analysis is one persisted analysis, owned by UserID.
type Analysis struct {
	ID           string                `json:"id"`
	UserID       string                `json:"user_id"`
	Description  string                `json:"description"`
	Detections   []detection.Detection `json:"detections"`
	ImagePayload string                `json:"image_file"`
	CreatedAt    time.Time             `json:"created_at"`
}
