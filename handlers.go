package main

import (
	"bytes"
	"encoding/json"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/oceanwatch/debris-detection-service/annotate"
	"github.com/oceanwatch/debris-detection-service/detections"
	"github.com/oceanwatch/debris-detection-service/models"
	"github.com/oceanwatch/debris-detection-service/severity"
)

const maxUploadBytes = 10 << 20

type AppState struct {
	Detector    detections.Detector // nil while running without a model
	Pool        *ModelSessionPool   // nil while running without a model
	StrictSniff bool
	Audit       *DetectionAudit
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Marine Debris Detection API is running",
	})
}

func (s *AppState) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":       "healthy",
		"model_loaded": s.Detector != nil,
	})
}

func handleDetect(state *AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTotal := time.Now()
		requestID := uuid.NewString()
		timings := &models.ProcessingTimings{RequestID: requestID}

		ctx := r.Context()

		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			sendErrorResponse(w, "invalid_request", err.Error(), http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			sendErrorResponse(w, "invalid_request", "missing file field", http.StatusBadRequest)
			return
		}
		defer file.Close()

		contentType := header.Header.Get("Content-Type")
		if !strings.HasPrefix(contentType, "image/") {
			sendErrorResponse(w, "invalid_content_type", "file must be an image", http.StatusBadRequest)
			return
		}

		imgBytes, err := io.ReadAll(file)
		if err != nil {
			sendErrorResponse(w, "invalid_request", err.Error(), http.StatusBadRequest)
			return
		}

		// Optional hardening on top of the declared-header check, which any
		// client can spoof.
		if state.StrictSniff && !strings.HasPrefix(http.DetectContentType(imgBytes), "image/") {
			sendErrorResponse(w, "invalid_content_type", "file content is not a recognized image format", http.StatusBadRequest)
			return
		}

		decodeStart := time.Now()
		img, err := decodeImage(imgBytes)
		timings.ImageDecode = time.Since(decodeStart)
		if err != nil {
			sendErrorResponse(w, "invalid_image", "Failed to decode image", http.StatusBadRequest)
			return
		}

		if state.Detector == nil {
			sendErrorResponse(w, "model_unavailable", "detection model is not loaded", http.StatusServiceUnavailable)
			return
		}

		dets, err := state.Detector.Detect(ctx, img, timings)
		if err != nil {
			sendErrorResponse(w, "processing_error", err.Error(), http.StatusInternalServerError)
			return
		}
		if dets == nil {
			dets = []models.Detection{}
		}

		annotateStart := time.Now()
		annotatedURI, err := annotate.EncodeDataURI(annotate.Overlay(img, dets))
		timings.Annotate = time.Since(annotateStart)
		if err != nil {
			sendErrorResponse(w, "encoding_error", err.Error(), http.StatusInternalServerError)
			return
		}

		level, message := severity.Classify(len(dets))

		timings.Total = time.Since(startTotal)
		logTimings(timings)
		state.Audit.Record(requestID, header.Filename, level, dets)

		response := models.DetectionResponse{
			DetectionCount:  len(dets),
			SeverityLevel:   level,
			SeverityMessage: message,
			Detections:      dets,
			AnnotatedImage:  annotatedURI,
			Filename:        header.Filename,
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}

func (s *AppState) addMonitoringRoutes(r *mux.Router) {
	r.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
}

func (s *AppState) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	response := map[string]interface{}{
		"pool_size":        0,
		"sessions_in_use":  0,
		"total_acquired":   int64(0),
		"total_released":   int64(0),
		"acquire_failures": int64(0),
	}
	if s.Pool != nil {
		metrics := s.Pool.GetMetrics()
		response["pool_size"] = s.Pool.size
		response["sessions_in_use"] = metrics.inUse
		response["total_acquired"] = metrics.totalAcquired
		response["total_released"] = metrics.totalReleased
		response["acquire_failures"] = metrics.acquireFailures
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func decodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

func sendErrorResponse(w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Code:    code,
		Message: message,
	})
}
