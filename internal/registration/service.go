// Package registration handles guest enrollment: profile plus an optional
// selfie that is embedded synchronously, since the guest needs an immediate
// accept/reject and registrations are low-volume.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/your-org/facematch/internal/models"
	"github.com/your-org/facematch/internal/vision"
)

var (
	// ErrValidation means required input is missing or malformed.
	ErrValidation = errors.New("invalid registration input")
	// ErrProviderUnavailable means the embedding model failed; nothing is
	// persisted and the caller should retry later.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
)

type Store interface {
	CreateRegistration(ctx context.Context, r *models.Registration) error
	GetRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	ListRegistrationsByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Registration, error)
}

type Blobs interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

type Service struct {
	store    Store
	blobs    Blobs
	provider vision.Provider
}

func NewService(store Store, blobs Blobs, provider vision.Provider) *Service {
	return &Service{store: store, blobs: blobs, provider: provider}
}

type Input struct {
	EventID           uuid.UUID
	Name              string
	Email             string
	Phone             string
	Selfie            []byte
	SelfieContentType string
}

// Register creates a registration. With a selfie present the provider is
// called synchronously: a provider failure aborts the whole registration
// (ErrProviderUnavailable), while a selfie with no detectable face is
// accepted with FaceProcessed=false so the guest can re-register with a
// better photo later.
func (s *Service) Register(ctx context.Context, in Input) (*models.Registration, error) {
	if in.EventID == uuid.Nil {
		return nil, fmt.Errorf("%w: event id required", ErrValidation)
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: name required", ErrValidation)
	}

	reg := &models.Registration{
		EventID: in.EventID,
		Name:    strings.TrimSpace(in.Name),
		Email:   strings.TrimSpace(in.Email),
		Phone:   strings.TrimSpace(in.Phone),
	}

	if len(in.Selfie) > 0 {
		if s.provider == nil {
			return nil, fmt.Errorf("%w: no provider configured", ErrProviderUnavailable)
		}
		faces, err := s.provider.Detect(ctx, in.Selfie)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}

		if best := bestFace(faces); best != nil {
			reg.Embedding = best.Embedding
			reg.FaceProcessed = true
		} else {
			slog.Info("no face in selfie, registering without embedding", "event_id", in.EventID)
		}

		key := fmt.Sprintf("selfies/%s/%s", in.EventID, uuid.New())
		if err := s.blobs.PutObject(ctx, key, in.Selfie, in.SelfieContentType); err != nil {
			return nil, fmt.Errorf("store selfie: %w", err)
		}
		reg.SelfieKey = key
	}

	if err := s.store.CreateRegistration(ctx, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	return s.store.GetRegistration(ctx, id)
}

func (s *Service) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Registration, error) {
	return s.store.ListRegistrationsByEvent(ctx, eventID)
}

// bestFace picks the highest-confidence detection; the embedding stored for
// a guest is set exactly once, from this face.
func bestFace(faces []models.Face) *models.Face {
	if len(faces) == 0 {
		return nil
	}
	best := &faces[0]
	for i := range faces[1:] {
		if faces[i+1].Confidence > best.Confidence {
			best = &faces[i+1]
		}
	}
	return best
}
