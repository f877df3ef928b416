package vision

import (
	"context"

	"github.com/your-org/facematch/internal/models"
)

// Provider is the external face-embedding capability: given image bytes it
// returns the faces found in the image, each with a bounding box and an
// L2-normalized identity embedding.
//
// Zero faces is a successful result (empty slice, nil error); a non-nil error
// means the model itself failed and the caller decides whether that is a
// hard failure (synchronous registration) or a recorded per-photo failure
// (async worker).
type Provider interface {
	Detect(ctx context.Context, imageData []byte) ([]models.Face, error)
}
