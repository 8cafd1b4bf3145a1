// Package severity maps a debris detection count to a coarse three-tier
// pollution rating shown to the client alongside the raw detections.
package severity

const (
	LevelGreen  = "green"
	LevelYellow = "yellow"
	LevelRed    = "red"
)

const (
	MsgLow      = "Low pollution detected"
	MsgModerate = "Moderate pollution detected"
	MsgCritical = "Critical pollution detected"
)

// Classify returns the severity level and message for a detection count.
// Counts of 0-5 are green, 6-15 yellow, 16 and above red.
func Classify(count int) (string, string) {
	switch {
	case count > 15:
		return LevelRed, MsgCritical
	case count >= 6:
		return LevelYellow, MsgModerate
	default:
		return LevelGreen, MsgLow
	}
}
