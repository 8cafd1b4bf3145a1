package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// locateSharedLibrary finds the ONNX Runtime shared library. ONNXRUNTIME_LIB
// takes precedence; otherwise a few conventional install locations are tried.
func locateSharedLibrary() (string, error) {
	if p := os.Getenv("ONNXRUNTIME_LIB"); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("onnxruntime library not found at %s: %w", p, err)
		}
		return p, nil
	}

	// Determine library name based on OS
	libName := "libonnxruntime.so"
	if runtime.GOOS == "darwin" {
		libName = "libonnxruntime.dylib"
	} else if runtime.GOOS == "windows" {
		libName = "onnxruntime.dll"
	}

	candidates := []string{
		filepath.Join("lib", libName),
		filepath.Join("/usr/local/lib", libName),
		filepath.Join("/usr/lib", libName),
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("onnxruntime shared library not found; set ONNXRUNTIME_LIB")
}
