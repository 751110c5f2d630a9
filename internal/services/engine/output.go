package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/scriba/internal/models"
)

// whisperOutput mirrors the canonical JSON file the engine writes to its
// output directory.
type whisperOutput struct {
	Segments []whisperSegment `json:"segments"`
	Language string           `json:"language"`
}

type whisperSegment struct {
	Start float64       `json:"start"`
	End   float64       `json:"end"`
	Text  string        `json:"text"`
	Words []whisperWord `json:"words,omitempty"`
}

type whisperWord struct {
	Word  string   `json:"word"`
	Start *float64 `json:"start,omitempty"`
	End   *float64 `json:"end,omitempty"`
	Score *float64 `json:"score,omitempty"`
}

// parseOutputDir locates and parses the canonical JSON result in the
// engine's scratch output directory. The engine names the file after the
// input, so the first *.json present is the result.
func parseOutputDir(dir string) ([]models.Segment, string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, "", fmt.Errorf("failed to scan output directory: %w", err)
	}
	if len(matches) == 0 {
		return nil, "", fmt.Errorf("engine produced no JSON output in %s", dir)
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, "", fmt.Errorf("failed to read engine output: %w", err)
	}

	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, "", fmt.Errorf("failed to parse engine output: %w", err)
	}

	segments := make([]models.Segment, 0, len(out.Segments))
	for _, ws := range out.Segments {
		seg := models.Segment{
			Start: ws.Start,
			End:   ws.End,
			Text:  ws.Text,
		}
		if score := meanWordScore(ws.Words); score != nil {
			seg.Confidence = score
		}
		segments = append(segments, seg)
	}
	return segments, out.Language, nil
}

// meanWordScore averages word-level alignment scores when present.
func meanWordScore(words []whisperWord) *float64 {
	sum, n := 0.0, 0
	for _, w := range words {
		if w.Score != nil {
			sum += *w.Score
			n++
		}
	}
	if n == 0 {
		return nil
	}
	mean := sum / float64(n)
	return &mean
}
