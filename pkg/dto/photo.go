package dto

import "github.com/google/uuid"

type UploadedPhoto struct {
	ID uuid.UUID `json:"id"`
}

type UploadResponse struct {
	PhotosUploaded int             `json:"photos_uploaded"`
	Photos         []UploadedPhoto `json:"photos"`
}

type StatusResponse struct {
	EventID            uuid.UUID `json:"event_id"`
	TotalPhotos        int       `json:"total_photos"`
	ProcessedPhotos    int       `json:"processed_photos"`
	FailedPhotos       int       `json:"failed_photos"`
	PhotosWithFaces    int       `json:"photos_with_faces"`
	ProcessingComplete bool      `json:"processing_complete"`
}

type SearchRequest struct {
	RegistrationID uuid.UUID `json:"registration_id" binding:"required"`
	EventID        uuid.UUID `json:"event_id" binding:"required"`
	// Threshold is a cosine similarity; values <= 0 (including an absent
	// field) select the server default.
	Threshold float64 `json:"threshold"`
}

type FaceMatchResponse struct {
	FaceIndex  int     `json:"face_index"`
	Confidence float64 `json:"confidence"`
}

type PhotoMatchResponse struct {
	ID         uuid.UUID           `json:"id"`
	URL        string              `json:"url"`
	UploadedAt string              `json:"uploaded_at"`
	Matches    []FaceMatchResponse `json:"matches"`
}

type SearchResponse struct {
	TotalPhotosSearched int                  `json:"total_photos_searched"`
	TotalFacesSearched  int                  `json:"total_faces_searched"`
	MatchesFound        int                  `json:"matches_found"`
	Photos              []PhotoMatchResponse `json:"photos"`
}

// WSUpdate is a WebSocket message for live processing progress.
type WSUpdate struct {
	Type      string    `json:"type"` // photo_processed | photo_failed
	EventID   uuid.UUID `json:"event_id"`
	PhotoID   uuid.UUID `json:"photo_id"`
	FaceCount int       `json:"face_count"`
	Error     string    `json:"error,omitempty"`
}
