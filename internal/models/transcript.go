// -----------------------------------------------------------------------
// Transcript - Completed transcription artifact and diarization turns
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"strings"
	"time"
)

// Segment is a transcription-produced interval with text. Times are
// floating-point seconds with at least millisecond resolution.
type Segment struct {
	Start        float64  `json:"start"`
	End          float64  `json:"end"`
	Text         string   `json:"text"`
	SpeakerLabel string   `json:"speaker,omitempty"`
	Confidence   *float64 `json:"confidence,omitempty"`
}

// DiarizationTurn is a contiguous audio interval attributed to one speaker.
type DiarizationTurn struct {
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	SpeakerLabel string  `json:"speaker"`
}

// TranscriptMetadata records how the artifact was produced.
type TranscriptMetadata struct {
	Model             string  `json:"model"`
	Device            string  `json:"device"`
	ProcessingSeconds float64 `json:"processing_seconds"`
	AudioSeconds      float64 `json:"audio_seconds"`
	RealtimeFactor    float64 `json:"realtime_factor"` // audio_seconds / processing_seconds; >1 is faster than real time
	Notes             string  `json:"notes,omitempty"` // e.g. diarization soft-failure note
}

// Transcript is the artifact produced when a job completes.
type Transcript struct {
	JobID    string             `json:"job_id"`
	Text     string             `json:"text"`
	Language string             `json:"language"`
	Segments []Segment          `json:"segments"`
	Speakers []string           `json:"speakers"`
	Metadata TranscriptMetadata `json:"metadata"`
}

// CollectSpeakers returns the distinct non-empty speaker labels across
// segments, in first-appearance order.
func CollectSpeakers(segments []Segment) []string {
	seen := make(map[string]struct{})
	var speakers []string
	for _, s := range segments {
		if s.SpeakerLabel == "" {
			continue
		}
		if _, ok := seen[s.SpeakerLabel]; ok {
			continue
		}
		seen[s.SpeakerLabel] = struct{}{}
		speakers = append(speakers, s.SpeakerLabel)
	}
	return speakers
}

// RenderSRT renders segments in SubRip format, prefixing each cue with
// its speaker label when present.
func RenderSRT(segments []Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n", i+1, srtTimestamp(seg.Start), srtTimestamp(seg.End))
		if seg.SpeakerLabel != "" {
			fmt.Fprintf(&b, "[%s] ", seg.SpeakerLabel)
		}
		b.WriteString(strings.TrimSpace(seg.Text))
		b.WriteString("\n\n")
	}
	return b.String()
}

func srtTimestamp(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	ms := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, sec, ms)
}
