package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/eddielth/machine-bridge/logger"
	"github.com/eddielth/machine-bridge/telemetry"
)

// FileStorage writes one JSON file per reading under a directory per machine.
// A duplicate ID overwrites the earlier file.
type FileStorage struct {
	basePath string
}

// NewFileStorage
func NewFileStorage(basePath string) (*FileStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create dir %s failed: %w", basePath, err)
	}

	logger.Info("init file storage: %s", basePath)
	return &FileStorage{
		basePath: basePath,
	}, nil
}

// safeName maps s to a single path element. Dots are escaped too, so "."
// and ".." can never name a directory outside basePath.
func safeName(s string) string {
	if s == "" {
		return "_"
	}
	return strings.ReplaceAll(url.PathEscape(s), ".", "%2E")
}

// within reports whether path stays under base after cleaning.
func within(base, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(base), filepath.Clean(path))
	return err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Store save data to file
func (fs *FileStorage) Store(_ context.Context, r telemetry.Reading) error {
	machineDir := filepath.Join(fs.basePath, safeName(r.Maquina))
	if !within(fs.basePath, machineDir) {
		return fmt.Errorf("machine name %q escapes storage dir %s", r.Maquina, fs.basePath)
	}
	if err := os.MkdirAll(machineDir, 0755); err != nil {
		return fmt.Errorf("create dir %s failed: %w", machineDir, err)
	}

	jsonData, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize reading failed: %w", err)
	}

	filename := filepath.Join(machineDir, safeName(r.ID)+".json")
	// each writer gets its own temp file; the rename is the commit point
	tmp, err := os.CreateTemp(machineDir, "*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file in %s failed: %w", machineDir, err)
	}
	if _, err := tmp.Write(jsonData); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write file %s failed: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close file %s failed: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename %s failed: %w", tmp.Name(), err)
	}

	logger.Debug("stored reading to file: %s", filename)
	return nil
}

func (fs *FileStorage) List(ctx context.Context) ([]telemetry.Reading, error) {
	readings := []telemetry.Reading{}

	err := filepath.WalkDir(fs.basePath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}

		var r telemetry.Reading
		if err := json.Unmarshal(data, &r); err != nil {
			logger.Warn("skipping unreadable reading file %s: %v", path, err)
			return nil
		}
		readings = append(readings, r)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("list readings in %s failed: %w", fs.basePath, err)
	}

	return readings, nil
}

// Close implement Backend
func (fs *FileStorage) Close() error {
	return nil
}
