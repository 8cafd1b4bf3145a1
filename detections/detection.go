// Package detections wraps the ONNX detection model: it prepares the input
// tensor from a decoded image, runs the session, and normalizes the raw
// output grid into labeled, threshold-filtered detections.
package detections

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"sync"
	"time"

	"github.com/oceanwatch/debris-detection-service/models"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"
)

// Detector runs inference on a decoded image and returns normalized
// detections in model output order.
type Detector interface {
	Detect(ctx context.Context, img image.Image, timings *models.ProcessingTimings) ([]models.Detection, error)
}

type ModelSession struct {
	Session    *ort.AdvancedSession
	Input      *ort.Tensor[float32]
	Output     *ort.Tensor[float32]
	NumClasses int
}

func (m *ModelSession) Destroy() {
	if m.Session != nil {
		m.Session.Destroy()
	}
	if m.Input != nil {
		m.Input.Destroy()
	}
	if m.Output != nil {
		m.Output.Destroy()
	}
}

var bufferPool = sync.Pool{
	New: func() interface{} {
		return make([]float32, InputWidth*InputHeight*3)
	},
}

// ProcessImage runs the model on img and returns the retained detections.
// The returned slice preserves the model's output order.
func ProcessImage(ctx context.Context, img image.Image, model *ModelSession, labels []string, timings *models.ProcessingTimings) ([]models.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resizeStart := time.Now()
	resized := imaging.Resize(img, InputWidth, InputHeight, imaging.Linear)
	timings.Resize = time.Since(resizeStart)

	prepStart := time.Now()
	prepareInput(resized, model.Input)
	timings.Preprocess = time.Since(prepStart)

	inferStart := time.Now()
	if err := model.Session.Run(); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}
	timings.Inference = time.Since(inferStart)

	postStart := time.Now()
	detections, err := decodePredictions(model.Output.GetData(), model.NumClasses, labels, img.Bounds().Dx(), img.Bounds().Dy())
	if err != nil {
		return nil, fmt.Errorf("process predictions: %w", err)
	}
	timings.Postprocess = time.Since(postStart)

	return detections, nil
}

// prepareInput fills the input tensor with planar BGR float data, the channel
// order the model was exported with.
func prepareInput(pic image.Image, dst *ort.Tensor[float32]) {
	data := dst.GetData()
	channelSize := InputWidth * InputHeight

	buffer := bufferPool.Get().([]float32)
	defer bufferPool.Put(buffer)

	numWorkers := runtime.NumCPU()
	rowsPerWorker := InputHeight / numWorkers
	var wg sync.WaitGroup

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		startY := w * rowsPerWorker
		endY := startY + rowsPerWorker
		if w == numWorkers-1 {
			endY = InputHeight
		}

		go func(startY, endY int) {
			defer wg.Done()
			for y := startY; y < endY; y++ {
				offset := y * InputWidth
				for x := 0; x < InputWidth; x++ {
					i := offset + x
					r, g, b, _ := pic.At(x, y).RGBA()
					buffer[i] = float32(b>>8) / 255.0
					buffer[channelSize+i] = float32(g>>8) / 255.0
					buffer[channelSize*2+i] = float32(r>>8) / 255.0
				}
			}
		}(startY, endY)
	}

	wg.Wait()

	copy(data, buffer)
}

// decodePredictions walks the raw (4+numClasses)x8400 output grid. For each
// anchor the best class score is taken as the detection confidence; anchors
// at or below the threshold are dropped. Anchors are scanned in order, so the
// result keeps the model's output order. No further suppression is applied
// beyond what the model does internally.
func decodePredictions(predictions []float32, numClasses int, labels []string, originalWidth, originalHeight int) ([]models.Detection, error) {
	expectedSize := (4 + numClasses) * NumAnchors
	if len(predictions) != expectedSize {
		return nil, fmt.Errorf("unexpected predictions length: got %d, want %d", len(predictions), expectedSize)
	}

	detections := make([]models.Detection, 0, 32)
	for i := 0; i < NumAnchors; i++ {
		classID := -1
		confidence := float32(0.0)
		for c := 0; c < numClasses; c++ {
			score := predictions[(4+c)*NumAnchors+i]
			if score > confidence {
				confidence = score
				classID = c
			}
		}

		if classID == -1 || confidence <= ConfThreshold {
			continue
		}

		bbox := calculateBBox(
			[]float32{
				predictions[i],
				predictions[NumAnchors+i],
				predictions[2*NumAnchors+i],
				predictions[3*NumAnchors+i],
			},
			float64(originalWidth),
			float64(originalHeight),
		)
		detections = append(detections, models.Detection{
			BBox:       bbox,
			Confidence: float64(confidence),
			Class:      ClassName(labels, classID),
		})
	}

	return detections, nil
}

// calculateBBox converts a center/size box in model input pixels to corner
// coordinates in original image pixels, clamped to the image.
func calculateBBox(coords []float32, origWidth, origHeight float64) [4]float64 {
	scaleX := origWidth / InputWidth
	scaleY := origHeight / InputHeight

	centerX := float64(coords[0])
	centerY := float64(coords[1])
	width := float64(coords[2])
	height := float64(coords[3])

	x1 := (centerX - width/2) * scaleX
	y1 := (centerY - height/2) * scaleY
	x2 := (centerX + width/2) * scaleX
	y2 := (centerY + height/2) * scaleY

	return [4]float64{
		maxF(0, x1),
		maxF(0, y1),
		minF(origWidth, x2),
		minF(origHeight, y2),
	}
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
