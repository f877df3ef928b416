package models

import (
	"time"

	"github.com/google/uuid"
)

// PhotoStatus is the per-photo processing state machine:
// pending -> processing -> processed | failed. A failed photo returns to
// pending only via an explicit retry.
type PhotoStatus string

const (
	PhotoStatusPending    PhotoStatus = "pending"
	PhotoStatusProcessing PhotoStatus = "processing"
	PhotoStatusProcessed  PhotoStatus = "processed"
	PhotoStatusFailed     PhotoStatus = "failed"
)

// Terminal reports whether the status admits no further worker transitions.
func (s PhotoStatus) Terminal() bool {
	return s == PhotoStatusProcessed || s == PhotoStatusFailed
}

type Photo struct {
	ID              uuid.UUID   `json:"id" db:"id"`
	EventID         uuid.UUID   `json:"event_id" db:"event_id"`
	BlobKey         string      `json:"blob_key" db:"blob_key"`
	Status          PhotoStatus `json:"status" db:"status"`
	ProcessingError string      `json:"processing_error,omitempty" db:"processing_error"`
	Attempt         int         `json:"attempt" db:"attempt"`
	FaceCount       int         `json:"face_count" db:"face_count"`
	UploadedAt      time.Time   `json:"uploaded_at" db:"uploaded_at"`
	ProcessedAt     *time.Time  `json:"processed_at,omitempty" db:"processed_at"`
}

// Face is one detected face within a processed photo. Immutable once written.
type Face struct {
	Index      int        `json:"index" db:"face_index"`
	BBox       [4]float32 `json:"bbox" db:"bbox"` // x1, y1, x2, y2
	Embedding  []float32  `json:"-" db:"embedding"`
	Confidence float32    `json:"confidence" db:"confidence"`
}

// PhotoJob is the message published to NATS for worker processing.
// Delivery is at-least-once; the commit path must tolerate duplicates.
type PhotoJob struct {
	PhotoID uuid.UUID `json:"photo_id"`
	EventID uuid.UUID `json:"event_id"`
	BlobKey string    `json:"blob_key"`
	Attempt int       `json:"attempt"`
}

// ProcessingUpdate is published after a worker commits a photo, so the API
// can push live progress to WebSocket subscribers.
type ProcessingUpdate struct {
	Type      string    `json:"type"` // photo_processed | photo_failed
	EventID   uuid.UUID `json:"event_id"`
	PhotoID   uuid.UUID `json:"photo_id"`
	FaceCount int       `json:"face_count"`
	Error     string    `json:"error,omitempty"`
}

// EventProgress is derived from photo rows; it is never stored.
type EventProgress struct {
	TotalPhotos     int `json:"total_photos"`
	ProcessedPhotos int `json:"processed_photos"`
	FailedPhotos    int `json:"failed_photos"`
	PhotosWithFaces int `json:"photos_with_faces"`
}

// Complete reports whether no photo of the event is still pending or in flight.
func (p EventProgress) Complete() bool {
	return p.TotalPhotos > 0 && p.ProcessedPhotos+p.FailedPhotos == p.TotalPhotos
}
