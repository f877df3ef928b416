package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facematch/internal/ingest"
	"github.com/your-org/facematch/internal/match"
	"github.com/your-org/facematch/internal/process"
	"github.com/your-org/facematch/internal/storage"
	"github.com/your-org/facematch/pkg/dto"
)

type PhotoHandler struct {
	ingest  *ingest.Service
	engine  *match.Engine
	retrier *process.Retrier
	db      *storage.PostgresStore
	blobs   *storage.MinIOStore
}

func NewPhotoHandler(ingestSvc *ingest.Service, engine *match.Engine, retrier *process.Retrier, db *storage.PostgresStore, blobs *storage.MinIOStore) *PhotoHandler {
	return &PhotoHandler{ingest: ingestSvc, engine: engine, retrier: retrier, db: db, blobs: blobs}
}

// Upload accepts a multipart batch of event photos. The response returns as
// soon as bytes are stored and jobs enqueued; no face extraction happens on
// this path.
func (h *PhotoHandler) Upload(c *gin.Context) {
	eventID, err := uuid.Parse(c.PostForm("event_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event_id"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
		return
	}

	fileHeaders := form.File["photos"]
	files := make([]ingest.File, 0, len(fileHeaders))
	for _, fh := range fileHeaders {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "open upload failed"})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "read upload failed"})
			return
		}
		files = append(files, ingest.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	photos, err := h.ingest.Upload(c.Request.Context(), eventID, files)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrValidation), errors.Is(err, ingest.ErrNotImage):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	resp := dto.UploadResponse{PhotosUploaded: len(photos)}
	for _, p := range photos {
		resp.Photos = append(resp.Photos, dto.UploadedPhoto{ID: p.ID})
	}
	c.JSON(http.StatusCreated, resp)
}

// Status reports the event's processing progress, derived from photo rows.
func (h *PhotoHandler) Status(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	prog, err := h.db.EventProgress(c.Request.Context(), eventID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.StatusResponse{
		EventID:            eventID,
		TotalPhotos:        prog.TotalPhotos,
		ProcessedPhotos:    prog.ProcessedPhotos,
		FailedPhotos:       prog.FailedPhotos,
		PhotosWithFaces:    prog.PhotosWithFaces,
		ProcessingComplete: prog.Complete(),
	})
}

// Search finds all processed photos of an event containing the registered
// guest's face. Zero matches is a normal, successful response.
func (h *PhotoHandler) Search(c *gin.Context) {
	var req dto.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.engine.FindMatches(c.Request.Context(), req.RegistrationID, req.EventID, req.Threshold)
	if err != nil {
		switch {
		case errors.Is(err, match.ErrRegistrationNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "registration not found"})
		case errors.Is(err, match.ErrNoEmbedding):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "registration has no usable selfie"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	resp := dto.SearchResponse{
		TotalPhotosSearched: result.TotalPhotosSearched,
		TotalFacesSearched:  result.TotalFacesSearched,
		MatchesFound:        result.MatchesFound,
		Photos:              make([]dto.PhotoMatchResponse, 0, len(result.Photos)),
	}
	for _, pm := range result.Photos {
		matches := make([]dto.FaceMatchResponse, 0, len(pm.Matches))
		for _, m := range pm.Matches {
			matches = append(matches, dto.FaceMatchResponse{FaceIndex: m.FaceIndex, Confidence: m.Confidence})
		}
		resp.Photos = append(resp.Photos, dto.PhotoMatchResponse{
			ID:         pm.Photo.ID,
			URL:        "/v1/photos/" + pm.Photo.ID.String() + "/image",
			UploadedAt: pm.Photo.UploadedAt.Format(time.RFC3339),
			Matches:    matches,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// Retry re-enqueues a failed photo, or a pending one whose job was lost.
func (h *PhotoHandler) Retry(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid photo id"})
		return
	}

	if err := h.retrier.Retry(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, process.ErrPhotoNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
		case errors.Is(err, process.ErrNotRetryable):
			c.JSON(http.StatusConflict, gin.H{"error": "photo is not retryable"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "queued"})
}

// Image proxies the original photo bytes from the blob store.
func (h *PhotoHandler) Image(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid photo id"})
		return
	}

	photo, err := h.db.GetPhoto(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if photo == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
		return
	}

	data, err := h.blobs.GetObject(c.Request.Context(), photo.BlobKey)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo bytes not found"})
		return
	}

	contentType, err := h.blobs.StatObject(c.Request.Context(), photo.BlobKey)
	if err != nil || contentType == "" {
		contentType = "image/jpeg"
	}
	c.Data(http.StatusOK, contentType, data)
}
