package main

import (
	"encoding/json"
	"log"
	"time"

	"github.com/natefinch/lumberjack"

	"github.com/oceanwatch/debris-detection-service/models"
)

// DetectionAudit appends one JSON line per completed detection request to a
// size-rotated log file.
type DetectionAudit struct {
	out *lumberjack.Logger
}

func NewDetectionAudit(filename string) *DetectionAudit {
	return &DetectionAudit{
		out: &lumberjack.Logger{
			Filename:   filename,
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     7,    // days
			Compress:   true, // compress old logs
		},
	}
}

func (a *DetectionAudit) Record(requestID, filename, severityLevel string, dets []models.Detection) {
	if a == nil {
		return
	}

	entry := map[string]interface{}{
		"time":            time.Now().Format(time.RFC3339),
		"request_id":      requestID,
		"filename":        filename,
		"severity_level":  severityLevel,
		"detection_count": len(dets),
		"detections":      dets,
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		log.Printf("error marshaling audit entry: %v", err)
		return
	}

	if _, err := a.out.Write(append(jsonData, '\n')); err != nil {
		log.Printf("error writing audit entry: %v", err)
	}
}

func (a *DetectionAudit) Close() error {
	if a == nil {
		return nil
	}
	return a.out.Close()
}
