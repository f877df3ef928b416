// Package match implements the guest-to-photo matching engine: one query
// embedding scanned against every face of an event's processed photos.
//
// The metric is cosine similarity on L2-normalized embeddings; a face matches
// iff similarity >= threshold. The default threshold 0.4 is on that scale.
package match

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facematch/internal/models"
	"github.com/your-org/facematch/internal/observability"
	"github.com/your-org/facematch/internal/storage"
)

var (
	// ErrRegistrationNotFound means the registration id is unknown.
	ErrRegistrationNotFound = errors.New("registration not found")
	// ErrNoEmbedding means the guest registered without a usable selfie;
	// an expected condition, not a server fault.
	ErrNoEmbedding = errors.New("registration has no face embedding")
)

// Store is the read surface the engine needs. Only committed (processed)
// photos are ever returned, so the scan takes no locks: a photo transitioning
// concurrently is either fully visible or fully absent.
type Store interface {
	GetRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	ProcessedPhotos(ctx context.Context, eventID uuid.UUID) ([]storage.PhotoFaces, error)
}

// FaceMatch is one matching face within a photo.
type FaceMatch struct {
	FaceIndex  int     `json:"face_index"`
	Confidence float64 `json:"confidence"` // 0-100
}

// PhotoMatch is a photo containing at least one matching face.
type PhotoMatch struct {
	Photo   models.Photo
	Matches []FaceMatch
}

// Result is the outcome of one search. Zero matches is a successful result.
type Result struct {
	Photos              []PhotoMatch
	TotalPhotosSearched int
	TotalFacesSearched  int
	MatchesFound        int
}

type Engine struct {
	store            Store
	defaultThreshold float64
}

func NewEngine(store Store, defaultThreshold float64) *Engine {
	return &Engine{store: store, defaultThreshold: defaultThreshold}
}

// FindMatches scans all faces of eventID's processed photos against the
// registration's embedding. threshold <= 0 selects the configured default.
// Pending and failed photos contribute nothing; searching mid-processing
// yields a partial result.
func (e *Engine) FindMatches(ctx context.Context, registrationID, eventID uuid.UUID, threshold float64) (*Result, error) {
	start := time.Now()
	defer func() {
		observability.SearchDuration.Observe(time.Since(start).Seconds())
	}()

	if threshold <= 0 {
		threshold = e.defaultThreshold
	}

	reg, err := e.store.GetRegistration(ctx, registrationID)
	if err != nil {
		return nil, fmt.Errorf("load registration: %w", err)
	}
	if reg == nil {
		return nil, ErrRegistrationNotFound
	}
	if !reg.FaceProcessed || len(reg.Embedding) == 0 {
		return nil, ErrNoEmbedding
	}

	photos, err := e.store.ProcessedPhotos(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load processed photos: %w", err)
	}

	result := &Result{TotalPhotosSearched: len(photos)}

	for _, pf := range photos {
		result.TotalFacesSearched += len(pf.Faces)

		var matches []FaceMatch
		for _, face := range pf.Faces {
			score := CosineSimilarity(reg.Embedding, face.Embedding)
			if score >= threshold {
				matches = append(matches, FaceMatch{
					FaceIndex:  face.Index,
					Confidence: confidence(score),
				})
			}
		}
		if len(matches) == 0 {
			continue
		}

		sort.Slice(matches, func(i, j int) bool {
			if matches[i].Confidence != matches[j].Confidence {
				return matches[i].Confidence > matches[j].Confidence
			}
			return matches[i].FaceIndex < matches[j].FaceIndex
		})

		result.MatchesFound += len(matches)
		result.Photos = append(result.Photos, PhotoMatch{Photo: pf.Photo, Matches: matches})
	}

	// Best match first; newest upload wins ties.
	sort.SliceStable(result.Photos, func(i, j int) bool {
		bi := result.Photos[i].Matches[0].Confidence
		bj := result.Photos[j].Matches[0].Confidence
		if bi != bj {
			return bi > bj
		}
		return result.Photos[i].Photo.UploadedAt.After(result.Photos[j].Photo.UploadedAt)
	})

	return result, nil
}
