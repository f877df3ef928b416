package models

import (
	"time"

	"github.com/google/uuid"
)

// Registration is a guest's enrollment record for an event.
// Embedding is set at most once, when a face is found in the selfie,
// and is never serialized to API callers.
type Registration struct {
	ID            uuid.UUID `json:"id" db:"id"`
	EventID       uuid.UUID `json:"event_id" db:"event_id"`
	Name          string    `json:"name" db:"name"`
	Email         string    `json:"email" db:"email"`
	Phone         string    `json:"phone" db:"phone"`
	SelfieKey     string    `json:"selfie_key" db:"selfie_key"`
	Embedding     []float32 `json:"-" db:"embedding"`
	FaceProcessed bool      `json:"face_processed" db:"face_processed"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
