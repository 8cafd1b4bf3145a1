package detections

import (
	"fmt"
	"os"
	"strings"
)

// LoadLabels reads a newline-separated class name file (coco.names format).
func LoadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read labels file %s: %w", path, err)
	}
	var labels []string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		labels = append(labels, strings.TrimSpace(line))
	}
	return labels, nil
}

// ClassName resolves a class index against the model's label table, or
// synthesizes a placeholder when no label is known for the index.
func ClassName(labels []string, id int) string {
	if id >= 0 && id < len(labels) {
		return labels[id]
	}
	return fmt.Sprintf("class_%d", id)
}
