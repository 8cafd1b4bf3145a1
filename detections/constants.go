package detections

const (
	InputWidth  = 640
	InputHeight = 640

	// NumAnchors is the number of candidate boxes in a single YOLO output
	// grid at 640x640 input.
	NumAnchors = 8400

	// ConfThreshold filters detections; the comparison is strictly
	// greater-than, so a score of exactly 0.5 is discarded.
	ConfThreshold = 0.5

	DefaultNumClasses = 80
)
