package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrDirectoryTraversal indicates an attempt to access files outside allowed directories.
var ErrDirectoryTraversal = errors.New("path contains directory traversal")

// ErrNotInbound indicates an operation that needs decoded bytes was called
// on an outbound packet.
var ErrNotInbound = errors.New("packet has no decoded payload")

// ValidatePath checks if a file path is safe from directory traversal attacks.
// It returns the cleaned path or an error if the path contains traversal attempts.
func ValidatePath(path string) (string, error) {
	cleanedPath := filepath.Clean(path)

	for _, part := range strings.Split(filepath.ToSlash(cleanedPath), "/") {
		if part == ".." {
			return "", ErrDirectoryTraversal
		}
	}

	return cleanedPath, nil
}

// Save writes the decoded bytes of an inbound packet into dir under the
// base of the packet name, and returns the written path. Names that try to
// climb out of dir are rejected.
func (p *Packet) Save(dir string) (string, error) {
	if p.Direction != DirectionInbound {
		return "", ErrNotInbound
	}

	safeName, err := ValidatePath(p.Name)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "Save",
			"uid":       p.UID,
			"file_name": p.Name,
			"error":     err.Error(),
		}).Error("File name validation failed")
		return "", err
	}

	target := filepath.Join(dir, filepath.Base(safeName))
	if err := os.WriteFile(target, p.Raw, 0o644); err != nil {
		return "", fmt.Errorf("save %s: %w", p.Name, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Save",
		"uid":       p.UID,
		"file_path": target,
		"file_size": len(p.Raw),
	}).Info("Received file saved")

	return target, nil
}
