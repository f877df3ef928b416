// Package ingest accepts event photo uploads: bytes to the blob store, a
// pending row per photo, and a job on the queue. The upload path never waits
// on face extraction.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/your-org/facematch/internal/models"
)

var (
	// ErrValidation means required input is missing.
	ErrValidation = errors.New("invalid upload input")
	// ErrNotImage means a file's content is not an image type.
	ErrNotImage = errors.New("file is not an image")
)

type Store interface {
	CreatePhoto(ctx context.Context, p *models.Photo) error
}

type Blobs interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

type Queue interface {
	PublishPhotoJob(ctx context.Context, job models.PhotoJob) error
}

type Service struct {
	store Store
	blobs Blobs
	queue Queue
}

func NewService(store Store, blobs Blobs, queue Queue) *Service {
	return &Service{store: store, blobs: blobs, queue: queue}
}

// File is one uploaded image.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Upload stores each image and enqueues its extraction job, returning the
// created photo rows (all pending). No face detection happens on this path.
// There is deliberately no count or size cap here; MIME checking is the only
// gate.
func (s *Service) Upload(ctx context.Context, eventID uuid.UUID, files []File) ([]models.Photo, error) {
	if eventID == uuid.Nil {
		return nil, fmt.Errorf("%w: event id required", ErrValidation)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files", ErrValidation)
	}

	for _, f := range files {
		if !isImage(f) {
			return nil, fmt.Errorf("%w: %s", ErrNotImage, f.Name)
		}
	}

	photos := make([]models.Photo, 0, len(files))
	for _, f := range files {
		key := fmt.Sprintf("photos/%s/%s_%s", eventID, uuid.New(), f.Name)
		if err := s.blobs.PutObject(ctx, key, f.Data, contentType(f)); err != nil {
			return photos, fmt.Errorf("store photo %s: %w", f.Name, err)
		}

		photo := models.Photo{EventID: eventID, BlobKey: key}
		if err := s.store.CreatePhoto(ctx, &photo); err != nil {
			return photos, fmt.Errorf("create photo %s: %w", f.Name, err)
		}

		job := models.PhotoJob{
			PhotoID: photo.ID,
			EventID: photo.EventID,
			BlobKey: photo.BlobKey,
		}
		if err := s.queue.PublishPhotoJob(ctx, job); err != nil {
			// The row exists and stays pending; the retry endpoint accepts
			// pending photos and re-publishes the job, so the upload is
			// still reported.
			slog.Error("enqueue photo job", "photo_id", photo.ID, "error", err)
		}

		photos = append(photos, photo)
	}

	return photos, nil
}

func isImage(f File) bool {
	return strings.HasPrefix(contentType(f), "image/")
}

func contentType(f File) string {
	if f.ContentType != "" && f.ContentType != "application/octet-stream" {
		return f.ContentType
	}
	return http.DetectContentType(f.Data)
}
