// -----------------------------------------------------------------------
// Artifact Store - Filesystem persistence for transcription artifacts
// -----------------------------------------------------------------------

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/models"
)

const (
	canonicalName = "transcript.json"
	textName      = "transcript.txt"
	subtitleName  = "transcript.srt"
)

// ArtifactStore writes one directory per job under the results root:
// transcript.json is canonical, transcript.txt and transcript.srt are
// auxiliary renderings. The returned ref is the job-keyed directory name.
type ArtifactStore struct {
	root   string
	logger arbor.ILogger
}

// NewArtifactStore creates an artifact store rooted at dir.
func NewArtifactStore(root string, logger arbor.ILogger) *ArtifactStore {
	return &ArtifactStore{root: root, logger: logger}
}

func (s *ArtifactStore) dirFor(ref string) string {
	return filepath.Join(s.root, filepath.Base(ref))
}

// Save persists the transcript and returns its ref.
func (s *ArtifactStore) Save(ctx context.Context, transcript *models.Transcript) (string, error) {
	if transcript.JobID == "" {
		return "", fmt.Errorf("transcript has no job id")
	}
	ref := transcript.JobID
	dir := s.dirFor(ref)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	data, err := json.MarshalIndent(transcript, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode transcript: %w", err)
	}

	// Canonical JSON is written atomically via rename so readers never
	// observe a partial artifact.
	tmp := filepath.Join(dir, canonicalName+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write transcript: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, canonicalName)); err != nil {
		return "", fmt.Errorf("failed to commit transcript: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, textName), []byte(transcript.Text), 0644); err != nil {
		s.logger.Warn().Err(err).Str("job_id", transcript.JobID).Msg("Failed to write text rendering")
	}
	if err := os.WriteFile(filepath.Join(dir, subtitleName), []byte(models.RenderSRT(transcript.Segments)), 0644); err != nil {
		s.logger.Warn().Err(err).Str("job_id", transcript.JobID).Msg("Failed to write subtitle rendering")
	}

	s.logger.Debug().Str("job_id", transcript.JobID).Str("dir", dir).Msg("Artifact saved")
	return ref, nil
}

// Load reads the canonical artifact for the given ref.
func (s *ArtifactStore) Load(ctx context.Context, ref string) (*models.Transcript, error) {
	data, err := os.ReadFile(filepath.Join(s.dirFor(ref), canonicalName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: artifact %s", models.ErrNotFound, ref)
		}
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	var transcript models.Transcript
	if err := json.Unmarshal(data, &transcript); err != nil {
		return nil, fmt.Errorf("failed to decode artifact %s: %w", ref, err)
	}
	return &transcript, nil
}

// Delete removes the artifact directory for the given ref.
func (s *ArtifactStore) Delete(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	if err := os.RemoveAll(s.dirFor(ref)); err != nil {
		return fmt.Errorf("failed to delete artifact %s: %w", ref, err)
	}
	return nil
}

