package sidecar

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
)

// ScriptName is the file name of the reference sidecar script.
const ScriptName = "whatsapp-sidecar.js"

//go:embed assets/whatsapp-sidecar.js
var script []byte

// Script returns the embedded reference sidecar.
func Script() []byte {
	return script
}

// EnsureScript writes the embedded sidecar into dir unless an identical
// copy already exists, and returns its path.
func EnsureScript(dir string) (string, error) {
	path := filepath.Join(dir, ScriptName)

	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, script) {
		return path, nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create sidecar dir: %w", err)
	}
	if err := os.WriteFile(path, script, 0600); err != nil {
		return "", fmt.Errorf("write sidecar script: %w", err)
	}
	return path, nil
}
