// Package process is the worker side of the pipeline: it consumes photo jobs,
// runs the embedding provider, and commits results through CAS-guarded status
// transitions so at-least-once delivery cannot corrupt a photo's state.
package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facematch/internal/models"
	"github.com/your-org/facematch/internal/observability"
	"github.com/your-org/facematch/internal/vision"
)

var (
	// ErrPhotoNotFound means the photo id is unknown.
	ErrPhotoNotFound = errors.New("photo not found")
	// ErrNotRetryable means retry was requested for a photo that is being
	// processed or already committed.
	ErrNotRetryable = errors.New("photo is not retryable")
)

type PhotoStore interface {
	GetPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error)
	ClaimPhoto(ctx context.Context, id uuid.UUID) (bool, error)
	CompletePhoto(ctx context.Context, id uuid.UUID, faces []models.Face) (bool, error)
	FailPhoto(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	ResetFailedPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error)
}

type Blobs interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
}

type Publisher interface {
	PublishPhotoJob(ctx context.Context, job models.PhotoJob) error
	PublishProgress(ctx context.Context, upd models.ProcessingUpdate) error
}

type Processor struct {
	store    PhotoStore
	blobs    Blobs
	provider vision.Provider
	producer Publisher
}

func NewProcessor(store PhotoStore, blobs Blobs, provider vision.Provider, producer Publisher) *Processor {
	return &Processor{store: store, blobs: blobs, provider: provider, producer: producer}
}

// Handle processes one delivered job. Returning nil acknowledges the message;
// returning an error leaves it for redelivery after the visibility timeout.
//
// The flow is idempotent on photo id: a redelivered job whose photo is
// already terminal is acknowledged without work, and the commit step's status
// guard means at most one delivery ever writes faces.
func (p *Processor) Handle(ctx context.Context, job models.PhotoJob) error {
	photo, err := p.store.GetPhoto(ctx, job.PhotoID)
	if err != nil {
		return fmt.Errorf("load photo %s: %w", job.PhotoID, err)
	}
	if photo == nil {
		slog.Warn("dropping job for unknown photo", "photo_id", job.PhotoID)
		return nil
	}
	if photo.Status.Terminal() {
		return nil
	}

	claimed, err := p.store.ClaimPhoto(ctx, photo.ID)
	if err != nil {
		return fmt.Errorf("claim photo %s: %w", photo.ID, err)
	}
	if !claimed {
		return nil
	}

	data, err := p.blobs.GetObject(ctx, photo.BlobKey)
	if err != nil {
		// Blob store hiccups are transient; leave the photo claimed and let
		// redelivery try again.
		return fmt.Errorf("load photo bytes %s: %w", photo.BlobKey, err)
	}

	start := time.Now()
	faces, err := p.provider.Detect(ctx, data)
	if err != nil {
		return p.markFailed(ctx, photo, err)
	}
	observability.DetectDuration.WithLabelValues("photo").Observe(time.Since(start).Seconds())

	committed, err := p.store.CompletePhoto(ctx, photo.ID, faces)
	if err != nil {
		return fmt.Errorf("commit photo %s: %w", photo.ID, err)
	}
	if !committed {
		// Another delivery won the commit race.
		return nil
	}

	eventLabel := photo.EventID.String()
	observability.PhotosProcessed.WithLabelValues(eventLabel).Inc()
	observability.FacesDetected.WithLabelValues(eventLabel).Add(float64(len(faces)))

	p.publishUpdate(ctx, models.ProcessingUpdate{
		Type:      "photo_processed",
		EventID:   photo.EventID,
		PhotoID:   photo.ID,
		FaceCount: len(faces),
	})

	slog.Info("photo processed", "photo_id", photo.ID, "event_id", photo.EventID, "faces", len(faces))
	return nil
}

// markFailed records a provider failure on the photo row and acknowledges the
// job. Failed photos are never re-enqueued automatically; they wait for an
// explicit retry.
func (p *Processor) markFailed(ctx context.Context, photo *models.Photo, cause error) error {
	failed, err := p.store.FailPhoto(ctx, photo.ID, cause.Error())
	if err != nil {
		return fmt.Errorf("mark photo %s failed: %w", photo.ID, err)
	}
	if !failed {
		return nil
	}

	observability.PhotosFailed.WithLabelValues(photo.EventID.String()).Inc()

	p.publishUpdate(ctx, models.ProcessingUpdate{
		Type:    "photo_failed",
		EventID: photo.EventID,
		PhotoID: photo.ID,
		Error:   cause.Error(),
	})

	slog.Warn("photo failed", "photo_id", photo.ID, "event_id", photo.EventID, "error", cause)
	return nil
}

// Retrier re-enqueues failed photos. It is separate from Processor so the
// API binary can offer retries without loading the embedding models.
type Retrier struct {
	store    PhotoStore
	producer Publisher
}

func NewRetrier(store PhotoStore, producer Publisher) *Retrier {
	return &Retrier{store: store, producer: producer}
}

// Retry re-enqueues a failed or pending photo. Failed photos are reset to
// pending first; pending photos are re-published as-is, which covers rows
// whose original enqueue was lost (duplicate jobs are absorbed by the
// idempotent commit). The attempt counter is preserved. Allowed any number
// of times.
func (p *Retrier) Retry(ctx context.Context, photoID uuid.UUID) error {
	photo, err := p.store.GetPhoto(ctx, photoID)
	if err != nil {
		return fmt.Errorf("load photo %s: %w", photoID, err)
	}
	if photo == nil {
		return ErrPhotoNotFound
	}

	switch photo.Status {
	case models.PhotoStatusFailed:
		reset, err := p.store.ResetFailedPhoto(ctx, photoID)
		if err != nil {
			return fmt.Errorf("reset photo %s: %w", photoID, err)
		}
		if reset == nil {
			// Lost a race with another retry or a worker; nothing to do.
			return ErrNotRetryable
		}
		photo = reset
	case models.PhotoStatusPending:
		// Nothing to reset; the row never left pending.
	default:
		return ErrNotRetryable
	}

	job := models.PhotoJob{
		PhotoID: photo.ID,
		EventID: photo.EventID,
		BlobKey: photo.BlobKey,
		Attempt: photo.Attempt,
	}
	if err := p.producer.PublishPhotoJob(ctx, job); err != nil {
		return fmt.Errorf("re-enqueue photo %s: %w", photoID, err)
	}

	slog.Info("photo retry enqueued", "photo_id", photoID, "attempt", photo.Attempt)
	return nil
}

func (p *Processor) publishUpdate(ctx context.Context, upd models.ProcessingUpdate) {
	if err := p.producer.PublishProgress(ctx, upd); err != nil {
		slog.Error("publish progress update", "photo_id", upd.PhotoID, "error", err)
	}
}
