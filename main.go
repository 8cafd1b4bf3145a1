package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/oceanwatch/debris-detection-service/detections"
	"github.com/oceanwatch/debris-detection-service/models"
)

const (
	customModelPath   = "debris.onnx"
	customLabelsPath  = "debris.names"
	fallbackModelPath = "yolov8n.onnx"
	fallbackNamesPath = "coco.names"
)

var (
	debugMode bool
)

func init() {
	debugMode = os.Getenv("DEBUG") == "true"
}

func logTimings(t *models.ProcessingTimings) {
	if debugMode {
		log.Printf("[DEBUG] RequestID: %s - Processing times:\n"+
			"\tImage Decode: %v\n"+
			"\tResize:      %v\n"+
			"\tPreprocess:  %v\n"+
			"\tInference:   %v\n"+
			"\tPostprocess: %v\n"+
			"\tAnnotate:    %v\n"+
			"\tTotal:       %v",
			t.RequestID,
			t.ImageDecode,
			t.Resize,
			t.Preprocess,
			t.Inference,
			t.Postprocess,
			t.Annotate,
			t.Total)
	}
}

func initSession(modelPath string, numClasses int) (*detections.ModelSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	options.SetIntraOpNumThreads(runtime.NumCPU())
	options.SetInterOpNumThreads(runtime.NumCPU())

	inputShape := ort.NewShape(1, 3, detections.InputWidth, detections.InputHeight)
	outputShape := ort.NewShape(1, int64(4+numClasses), detections.NumAnchors)

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"images"},
		[]string{"output0"},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &detections.ModelSession{
		Session:    session,
		Input:      inputTensor,
		Output:     outputTensor,
		NumClasses: numClasses,
	}, nil
}

// resolveModelPaths prefers a locally present custom-trained debris model and
// falls back to the generic pre-trained one. In fallback mode the reported
// classes are generic object labels, not debris categories.
func resolveModelPaths() (string, string) {
	if p := os.Getenv("MODEL_PATH"); p != "" {
		return p, os.Getenv("LABELS_PATH")
	}
	if _, err := os.Stat(customModelPath); err == nil {
		labelsPath := ""
		if _, err := os.Stat(customLabelsPath); err == nil {
			labelsPath = customLabelsPath
		}
		return customModelPath, labelsPath
	}
	return fallbackModelPath, fallbackNamesPath
}

func initDetector() (*ModelSessionPool, func(), error) {
	libPath, err := locateSharedLibrary()
	if err != nil {
		return nil, nil, err
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, nil, fmt.Errorf("error initializing onnxruntime: %w", err)
	}

	modelPath, labelsPath := resolveModelPaths()
	absModelPath, err := filepath.Abs(modelPath)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, nil, fmt.Errorf("error resolving model path: %w", err)
	}
	if _, err := os.Stat(absModelPath); err != nil {
		ort.DestroyEnvironment()
		return nil, nil, fmt.Errorf("model file not found: %s", absModelPath)
	}

	var labels []string
	if labelsPath != "" {
		labels, err = detections.LoadLabels(labelsPath)
		if err != nil {
			// Detections still work, classes come back as class_<index>.
			log.Printf("No label table loaded: %v", err)
			labels = nil
		}
	}

	numClasses := len(labels)
	if numClasses == 0 {
		numClasses = envInt("DETECTOR_CLASSES", detections.DefaultNumClasses)
	}

	pool, err := NewModelSessionPool(absModelPath, labels, numClasses, envInt("POOL_SIZE", DefaultPoolSize))
	if err != nil {
		ort.DestroyEnvironment()
		return nil, nil, err
	}

	log.Printf("Model loaded successfully: %s (%d classes)", absModelPath, numClasses)

	cleanup := func() {
		pool.Destroy()
		ort.DestroyEnvironment()
	}
	return pool, cleanup, nil
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func main() {
	// Add basic logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Load env vars if we are in DEV mode
	if os.Getenv("RUN_TIME_ENV") == "dev" || os.Getenv("RUN_TIME_ENV") == "" {
		if err := godotenv.Load(); err != nil {
			log.Printf("no .env file loaded: %v", err)
		}
	}

	state := &AppState{
		StrictSniff: os.Getenv("STRICT_IMAGE_SNIFF") == "true",
		Audit:       NewDetectionAudit("detections.log"),
	}
	defer state.Audit.Close()

	pool, cleanup, err := initDetector()
	if err != nil {
		// Degraded mode: /health reports model_loaded=false and /detect
		// answers 503 until the process restarts with a usable model.
		log.Printf("Error loading model: %v", err)
	} else {
		defer cleanup()
		state.Detector = pool
		state.Pool = pool
	}

	r := mux.NewRouter()
	r.HandleFunc("/", handleRoot).Methods("GET")
	r.HandleFunc("/health", state.handleHealth).Methods("GET")
	r.HandleFunc("/detect", handleDetect(state)).Methods("POST")
	state.addMonitoringRoutes(r)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Requested-With"}),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}

	srv := &http.Server{
		Handler:      cors(r),
		Addr:         "0.0.0.0:" + port,
		WriteTimeout: 60 * time.Second,
		ReadTimeout:  60 * time.Second,
	}

	log.Printf("Starting server on %s", srv.Addr)
	log.Fatal(srv.ListenAndServe())
}
