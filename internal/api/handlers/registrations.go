package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facematch/internal/models"
	"github.com/your-org/facematch/internal/registration"
	"github.com/your-org/facematch/internal/storage"
	"github.com/your-org/facematch/pkg/dto"
)

type RegistrationHandler struct {
	svc   *registration.Service
	blobs *storage.MinIOStore
}

func NewRegistrationHandler(svc *registration.Service, blobs *storage.MinIOStore) *RegistrationHandler {
	return &RegistrationHandler{svc: svc, blobs: blobs}
}

// Create registers a guest. Multipart form: event_id, name, email, phone and
// an optional selfie file. The selfie is embedded synchronously so the guest
// learns immediately whether their face was usable.
func (h *RegistrationHandler) Create(c *gin.Context) {
	eventID, err := uuid.Parse(c.PostForm("event_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event_id"})
		return
	}

	in := registration.Input{
		EventID: eventID,
		Name:    c.PostForm("name"),
		Email:   c.PostForm("email"),
		Phone:   c.PostForm("phone"),
	}

	if file, header, err := c.Request.FormFile("selfie"); err == nil {
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "read selfie failed"})
			return
		}
		in.Selfie = data
		in.SelfieContentType = header.Header.Get("Content-Type")
	}

	reg, err := h.svc.Register(c.Request.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, registration.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, registration.ErrProviderUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "face service unavailable, try again later"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, registrationResponse(reg))
}

func (h *RegistrationHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid registration id"})
		return
	}

	reg, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if reg == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "registration not found"})
		return
	}

	c.JSON(http.StatusOK, registrationResponse(reg))
}

func (h *RegistrationHandler) ListByEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	regs, err := h.svc.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.RegistrationResponse, 0, len(regs))
	for i := range regs {
		resp = append(resp, registrationResponse(&regs[i]))
	}

	c.JSON(http.StatusOK, dto.RegistrationListResponse{Registrations: resp, Total: len(resp)})
}

// Selfie proxies the registration's selfie image from the blob store.
func (h *RegistrationHandler) Selfie(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid registration id"})
		return
	}

	reg, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if reg == nil || reg.SelfieKey == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "selfie not found"})
		return
	}

	data, err := h.blobs.GetObject(c.Request.Context(), reg.SelfieKey)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "selfie not found"})
		return
	}

	contentType, err := h.blobs.StatObject(c.Request.Context(), reg.SelfieKey)
	if err != nil || contentType == "" {
		contentType = "image/jpeg"
	}
	c.Data(http.StatusOK, contentType, data)
}

func registrationResponse(r *models.Registration) dto.RegistrationResponse {
	resp := dto.RegistrationResponse{
		ID:            r.ID,
		EventID:       r.EventID,
		Name:          r.Name,
		Email:         r.Email,
		Phone:         r.Phone,
		FaceProcessed: r.FaceProcessed,
		CreatedAt:     r.CreatedAt.Format(time.RFC3339),
	}
	if r.SelfieKey != "" {
		resp.SelfieURL = "/v1/registrations/" + r.ID.String() + "/selfie"
	}
	return resp
}
