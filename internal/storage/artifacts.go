package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/rmitchellscott/ditherworks/internal/logging"
)

// Artifact describes one stored stage output.
type Artifact struct {
	Key      string
	Size     int64
	Checksum string
}

// ArtifactStore keeps encoded stage outputs under <job>/<stage>.png
type ArtifactStore struct {
	backend Backend
}

// NewArtifactStore creates a new artifact store on top of backend
func NewArtifactStore(backend Backend) *ArtifactStore {
	return &ArtifactStore{backend: backend}
}

// ArtifactKey returns the storage key for a stage output.
func ArtifactKey(jobID, stageID string) string {
	return path.Join(jobID, stageID+".png")
}

// StoreImage stores encoded image data and returns its key and checksum
func (s *ArtifactStore) StoreImage(ctx context.Context, jobID, stageID string, imageData []byte) (Artifact, error) {
	key := ArtifactKey(jobID, stageID)
	if err := s.backend.Put(ctx, key, bytes.NewReader(imageData)); err != nil {
		return Artifact{}, fmt.Errorf("failed to store artifact %s: %w", key, err)
	}

	hash := sha256.Sum256(imageData)
	return Artifact{
		Key:      key,
		Size:     int64(len(imageData)),
		Checksum: hex.EncodeToString(hash[:]),
	}, nil
}

// List returns the artifacts stored for a job.
func (s *ArtifactStore) List(ctx context.Context, jobID string) ([]FileInfo, error) {
	return s.backend.ListWithInfo(ctx, jobID+"/")
}

// CleanupOlderThan removes artifacts older than maxAge from a filesystem
// root and returns how many files were removed.
func CleanupOlderThan(root string, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0

	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(p) != ".png" {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		if info.ModTime().Before(cutoff) {
			if err := os.Remove(p); err != nil {
				logging.WarnWithComponent(logging.ComponentStorage, "Failed to remove old artifact", "path", p, "error", err)
				return nil
			}
			removed++
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return removed, fmt.Errorf("failed to read artifact directory: %w", err)
	}

	return removed, nil
}
