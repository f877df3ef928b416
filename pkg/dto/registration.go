package dto

import "github.com/google/uuid"

// RegistrationResponse never carries the embedding; only the FaceProcessed
// flag is observable from outside.
type RegistrationResponse struct {
	ID            uuid.UUID `json:"registration_id"`
	EventID       uuid.UUID `json:"event_id"`
	Name          string    `json:"name"`
	Email         string    `json:"email,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	FaceProcessed bool      `json:"face_processed"`
	SelfieURL     string    `json:"selfie_url,omitempty"`
	CreatedAt     string    `json:"created_at"`
}

type RegistrationListResponse struct {
	Registrations []RegistrationResponse `json:"registrations"`
	Total         int                    `json:"total"`
}
