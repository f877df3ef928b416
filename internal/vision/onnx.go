package vision

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/your-org/facematch/internal/config"
	"github.com/your-org/facematch/internal/models"
	"github.com/your-org/facematch/internal/observability"
)

// ONNXProvider implements Provider with local RetinaFace + ArcFace models.
// ONNX sessions reuse fixed input/output buffers, so runs are serialized with
// a mutex; concurrency comes from running multiple worker processes.
type ONNXProvider struct {
	mu       sync.Mutex
	detector *Detector
	embedder *Embedder
}

// NewONNXProvider loads both models from cfg.ModelsDir.
// ONNX Runtime must already be initialized by the caller.
func NewONNXProvider(cfg config.VisionConfig) (*ONNXProvider, error) {
	detPath := filepath.Join(cfg.ModelsDir, "det_10g.onnx")
	embPath := filepath.Join(cfg.ModelsDir, "w600k_r50.onnx")

	slog.Info("loading detection model", "path", detPath)
	det, err := NewDetector(detPath, float32(cfg.DetectionThreshold))
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath)
	emb, err := NewEmbedder(embPath)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	return &ONNXProvider{detector: det, embedder: emb}, nil
}

// Detect finds all faces in the image and extracts an embedding per face.
// Faces are returned in detection-confidence order and indexed accordingly.
func (p *ONNXProvider) Detect(ctx context.Context, imageData []byte) ([]models.Face, error) {
	img, err := imaging.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	origW := bounds.Dx()
	origH := bounds.Dy()

	detW, detH := p.detector.InputSize()

	start := time.Now()
	detInput := imageToCHW(imaging.Resize(img, detW, detH, imaging.Linear),
		[3]float32{127.5, 127.5, 127.5}, [3]float32{128.0, 128.0, 128.0})
	observability.DetectDuration.WithLabelValues("preprocess").Observe(time.Since(start).Seconds())

	p.mu.Lock()
	defer p.mu.Unlock()

	start = time.Now()
	detections, err := p.detector.Detect(detInput, origW, origH)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	observability.DetectDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	faces := make([]models.Face, 0, len(detections))
	embW, embH := p.embedder.InputSize()

	for i, det := range detections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		crop := cropFace(img, det.BBox)
		if crop == nil {
			continue
		}

		start = time.Now()
		embInput := imageToCHW(imaging.Resize(crop, embW, embH, imaging.Linear),
			[3]float32{127.5, 127.5, 127.5}, [3]float32{127.5, 127.5, 127.5})
		embedding, err := p.embedder.Extract(embInput)
		if err != nil {
			return nil, fmt.Errorf("embed face %d: %w", i, err)
		}
		observability.DetectDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())

		faces = append(faces, models.Face{
			Index:      len(faces),
			BBox:       det.BBox,
			Embedding:  embedding,
			Confidence: det.Confidence,
		})
	}

	return faces, nil
}

// Close releases all ONNX sessions.
func (p *ONNXProvider) Close() {
	if p.detector != nil {
		p.detector.Close()
	}
	if p.embedder != nil {
		p.embedder.Close()
	}
}

// cropFace extracts the face region with 10% padding on each side.
func cropFace(img image.Image, bbox [4]float32) image.Image {
	bounds := img.Bounds()

	w := bbox[2] - bbox[0]
	h := bbox[3] - bbox[1]
	if w <= 0 || h <= 0 {
		return nil
	}

	padW := int(w * 0.1)
	padH := int(h * 0.1)

	rect := image.Rect(
		int(bbox[0])-padW,
		int(bbox[1])-padH,
		int(bbox[2])+padW,
		int(bbox[3])+padH,
	).Intersect(bounds)
	if rect.Empty() {
		return nil
	}

	return imaging.Crop(img, rect)
}

// imageToCHW converts an image to CHW float32 with per-channel normalization:
//
//	pixel = (pixel - mean) / std
func imageToCHW(img image.Image, mean, std [3]float32) []float32 {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	data := make([]float32, 3*h*w)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()

			// 16-bit to 8-bit
			rf := float32(r >> 8)
			gf := float32(g >> 8)
			bf := float32(b >> 8)

			idx := y*w + x
			data[0*h*w+idx] = (rf - mean[0]) / std[0]
			data[1*h*w+idx] = (gf - mean[1]) / std[1]
			data[2*h*w+idx] = (bf - mean[2]) / std[2]
		}
	}

	return data
}
