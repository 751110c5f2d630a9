// -----------------------------------------------------------------------
// Segment Merger - Assigns speaker labels to transcription segments
// -----------------------------------------------------------------------

package merge

import (
	"github.com/ternarybob/scriba/internal/models"
)

// MergeSpeakers assigns each segment the speaker whose diarization turn
// overlaps it the most. Ties go to the turn that starts earlier. Segments
// with no overlapping turn stay unlabeled. The input slices are not
// modified; a new segment slice is returned.
func MergeSpeakers(segments []models.Segment, turns []models.DiarizationTurn) []models.Segment {
	merged := make([]models.Segment, len(segments))
	copy(merged, segments)

	if len(turns) == 0 {
		return merged
	}

	for i := range merged {
		merged[i].SpeakerLabel = bestSpeaker(merged[i], turns)
	}
	return merged
}

// bestSpeaker returns the label of the turn with the largest temporal
// overlap with the segment, or "" when nothing overlaps.
func bestSpeaker(seg models.Segment, turns []models.DiarizationTurn) string {
	best := ""
	bestOverlap := 0.0
	bestStart := 0.0

	for _, t := range turns {
		o := overlap(seg.Start, seg.End, t.Start, t.End)
		if o <= 0 {
			continue
		}
		if o > bestOverlap || (o == bestOverlap && t.Start < bestStart) {
			best = t.SpeakerLabel
			bestOverlap = o
			bestStart = t.Start
		}
	}
	return best
}

func overlap(aStart, aEnd, bStart, bEnd float64) float64 {
	start := aStart
	if bStart > start {
		start = bStart
	}
	end := aEnd
	if bEnd < end {
		end = bEnd
	}
	return end - start
}
