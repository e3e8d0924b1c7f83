package stages

import (
	"fmt"
	"strings"

	"github.com/videomoments/pipeline/repository"
)

const defaultGenerationPrompt = "Identify the most interesting, self-contained moments in this video."

const defaultRefinementPrompt = "Tighten this moment's boundaries so it starts and ends on natural speech breaks without cutting off a sentence."

// buildGenerationPrompt assembles the single user message S5 sends to the
// generation model: the user-editable prompt followed by the
// backend-computed input/output contract and numeric constraints.
func buildGenerationPrompt(userPrompt string, segments []repository.SegmentTimestamp, videoDuration float64, cfg PipelineConfig) string {
	if userPrompt == "" {
		userPrompt = defaultGenerationPrompt
	}

	var b strings.Builder
	b.WriteString(userPrompt)
	b.WriteString("\n\n")
	b.WriteString("The video transcript below is a list of timestamped segments, each on its own line as `[start] text`. Timestamps are in seconds from the start of the video.\n\n")
	for _, s := range segments {
		fmt.Fprintf(&b, "[%.2f] %s\n", s.Start, s.Text)
	}
	b.WriteString("\nRespond with a JSON array of moments, each an object with `start_time`, `end_time` (seconds), and `title`. Do not include any text outside the JSON array.\n\n")
	fmt.Fprintf(&b, "Constraints: each moment must be between %.0f and %.0f seconds long, all times between 0 and %.2f, moments must not overlap, and you should return between %d and %d moments.\n",
		cfg.MinMomentLength, cfg.MaxMomentLength, videoDuration, cfg.MinMoments, cfg.MaxMoments)
	return b.String()
}

// buildRefinementPrompt assembles the per-moment user message S8 sends to
// the refinement model: the user prompt, a word-level transcript of the
// clip's normalized window, the original boundaries, and the output
// contract.
func buildRefinementPrompt(userPrompt string, words []repository.WordTimestamp, title string, originalStart, originalEnd float64) string {
	if userPrompt == "" {
		userPrompt = defaultRefinementPrompt
	}

	var b strings.Builder
	b.WriteString(userPrompt)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Original moment %q spans [%.2f, %.2f] in this clip's own coordinates (0.0 is the start of the clip).\n\n", title, originalStart, originalEnd)
	b.WriteString("Word-level transcript of the clip, each on its own line as `[start-end] word`:\n\n")
	for _, w := range words {
		fmt.Fprintf(&b, "[%.2f-%.2f] %s\n", w.Start, w.End, w.Word)
	}
	b.WriteString("\nRespond with a single JSON object `{\"start_time\": <seconds>, \"end_time\": <seconds>}` giving the refined boundaries in this same clip-local coordinate system. Do not include any text outside the JSON object.\n")
	return b.String()
}
