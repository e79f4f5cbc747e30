// Package pidfile records the running process id for external supervisors.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Write stores the current process id at path, replacing any previous content.
// Relative paths resolve against the working directory.
func Write(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("pid file path is required")
	}

	absolute, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve pid file path: %w", err)
	}

	content := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(absolute, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write pid file: %w", err)
	}

	return absolute, nil
}
