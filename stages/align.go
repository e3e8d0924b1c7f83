package stages

import (
	"github.com/videomoments/pipeline/repository"
)

// ClipBounds is a word-aligned [start, end] extraction window in seconds.
type ClipBounds struct {
	Start float64
	End   float64
}

// alignClipWindow computes the padded, word-boundary-aligned extraction
// window for a moment: the target window is padded by padding on each
// side, then snapped outward to the nearest word boundary found within
// margin of the target, falling back to the unaligned padded window when
// no transcript is available.
func alignClipWindow(moment repository.Moment, words []repository.WordTimestamp, padding, margin, videoDuration float64) ClipBounds {
	targetStart := moment.StartTime - padding
	if targetStart < 0 {
		targetStart = 0
	}
	targetEnd := moment.EndTime + padding

	if len(words) == 0 {
		return clampBounds(ClipBounds{Start: targetStart, End: targetEnd}, videoDuration)
	}

	start := alignStart(words, targetStart, margin)
	end := alignEnd(words, targetEnd, margin)
	return clampBounds(ClipBounds{Start: start, End: end}, videoDuration)
}

// alignStart picks the largest word start at or before target, within
// the search window; failing that, the smallest word start at or after
// target - margin.
func alignStart(words []repository.WordTimestamp, target, margin float64) float64 {
	best := target
	found := false
	for _, w := range words {
		if w.Start <= target && w.Start >= target-margin {
			if !found || w.Start > best {
				best = w.Start
				found = true
			}
		}
	}
	if found {
		return best
	}
	for _, w := range words {
		if w.Start >= target-margin {
			if !found || w.Start < best {
				best = w.Start
				found = true
			}
		}
	}
	if found {
		return best
	}
	return target
}

// alignEnd is the symmetric counterpart of alignStart over word ends.
func alignEnd(words []repository.WordTimestamp, target, margin float64) float64 {
	best := target
	found := false
	for _, w := range words {
		if w.End >= target && w.End <= target+margin {
			if !found || w.End < best {
				best = w.End
				found = true
			}
		}
	}
	if found {
		return best
	}
	for _, w := range words {
		if w.End <= target+margin {
			if !found || w.End > best {
				best = w.End
				found = true
			}
		}
	}
	if found {
		return best
	}
	return target
}

func clampBounds(b ClipBounds, videoDuration float64) ClipBounds {
	if b.Start < 0 {
		b.Start = 0
	}
	if videoDuration > 0 && b.End > videoDuration {
		b.End = videoDuration
	}
	return b
}

// wordsInWindow returns the words overlapping [start, end], re-timestamped
// so the window begins at 0.0.
func wordsInWindow(words []repository.WordTimestamp, start, end float64) []repository.WordTimestamp {
	var windowed []repository.WordTimestamp
	for _, w := range words {
		if w.End <= start || w.Start >= end {
			continue
		}
		windowed = append(windowed, repository.WordTimestamp{
			Word:  w.Word,
			Start: w.Start - start,
			End:   w.End - start,
		})
	}
	return windowed
}
