package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"reftester/internal/judge/model"
	appErr "reftester/pkg/errors"
	"reftester/pkg/utils/logger"

	"go.uber.org/zap"
)

const artifactExt = ".cpp"

// ScratchDir holds one marked-content file per in-flight attempt, named by its marker.
type ScratchDir struct {
	dir  string
	once sync.Once
	err  error
}

func NewScratchDir(dir string) *ScratchDir {
	if dir == "" {
		dir = "tmp"
	}
	return &ScratchDir{dir: dir}
}

// Dir returns the scratch directory path.
func (s *ScratchDir) Dir() string {
	return s.dir
}

// Ensure creates the directory if it is absent.
func (s *ScratchDir) Ensure() error {
	s.once.Do(func() {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			s.err = appErr.Wrapf(err, appErr.InternalError, "create scratch dir %s failed", s.dir)
		}
	})
	return s.err
}

// PathFor returns the artifact path of a marker.
func (s *ScratchDir) PathFor(m model.Marker) string {
	return filepath.Join(s.dir, string(m)+artifactExt)
}

// Write stores the attempt's marked content at its artifact path.
func (s *ScratchDir) Write(a model.Attempt) error {
	if err := s.Ensure(); err != nil {
		return err
	}
	if err := os.WriteFile(a.ArtifactPath(), []byte(a.Content()), 0o600); err != nil {
		return appErr.Wrapf(err, appErr.InternalError, "write scratch artifact failed")
	}
	return nil
}

// Remove deletes an artifact. A missing file is not an error.
func (s *ScratchDir) Remove(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn(ctx, "remove scratch artifact failed", zap.String("path", path), zap.Error(err))
	}
}
