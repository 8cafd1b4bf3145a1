package models

import "time"

// Detection is a single normalized model detection. Coordinates are pixel
// positions in the original image, x1 < x2 and y1 < y2.
type Detection struct {
	BBox       [4]float64 `json:"bbox"`
	Confidence float64    `json:"confidence"`
	Class      string     `json:"class"`
}

type DetectionResponse struct {
	DetectionCount  int         `json:"detection_count"`
	SeverityLevel   string      `json:"severity_level"`
	SeverityMessage string      `json:"severity_message"`
	Detections      []Detection `json:"detections"`
	AnnotatedImage  string      `json:"annotated_image"`
	Filename        string      `json:"filename"`
}

type ProcessingTimings struct {
	RequestID   string
	ImageDecode time.Duration
	Resize      time.Duration
	Preprocess  time.Duration
	Inference   time.Duration
	Postprocess time.Duration
	Annotate    time.Duration
	Total       time.Duration
}
