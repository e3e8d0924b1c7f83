package stages

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	pipelineerrors "github.com/videomoments/pipeline/errors"
)

var (
	thinkBlock  = regexp.MustCompile(`(?is)<think>.*?</think>`)
	codeFence   = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")
	recoverable = regexp.MustCompile(`(?s)\{[^{}]*"start_time"\s*:\s*-?[0-9.]+[^{}]*"end_time"\s*:\s*-?[0-9.]+[^{}]*\}`)
)

// rawMoment is the wire shape a generation response encodes a candidate
// moment as, before bounds/overlap validation.
type rawMoment struct {
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Title     string  `json:"title"`
}

// candidateArrayKeys are the object field names known to wrap a moment
// array when the model responds with an object instead of a bare array.
var candidateArrayKeys = []string{"moments", "output", "final_output"}

func stripThinkBlocks(s string) string {
	return thinkBlock.ReplaceAllString(s, "")
}

func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if m := codeFence.FindStringSubmatch(trimmed); m != nil {
		return m[1]
	}
	return trimmed
}

// parseMomentsResponse runs the full generation-response decoding
// pipeline: strip think tags, strip a wrapping code fence, parse JSON
// (recovering an array from known object keys or from any list-valued
// field whose first element looks like a moment), and fall back to
// regex-recovered objects when JSON parsing fails outright.
func parseMomentsResponse(content string) ([]rawMoment, error) {
	cleaned := stripCodeFence(stripThinkBlocks(content))

	var raw interface{}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		recovered := recoverMomentsByRegex(cleaned)
		if len(recovered) == 0 {
			return nil, pipelineerrors.New(pipelineerrors.ParseError, "response was not valid JSON and no moments could be regex-recovered", err)
		}
		return recovered, nil
	}

	switch v := raw.(type) {
	case []interface{}:
		return decodeMomentList(v)
	case map[string]interface{}:
		for _, key := range candidateArrayKeys {
			if list, ok := v[key].([]interface{}); ok {
				return decodeMomentList(list)
			}
		}
		for _, val := range v {
			if list, ok := val.([]interface{}); ok && len(list) > 0 {
				if first, ok := list[0].(map[string]interface{}); ok {
					if _, hasStart := first["start_time"]; hasStart {
						return decodeMomentList(list)
					}
				}
			}
		}
		return nil, pipelineerrors.New(pipelineerrors.ParseError, "response object contained no recognizable moment array", nil)
	default:
		return nil, pipelineerrors.New(pipelineerrors.ParseError, "response JSON was neither an array nor an object", nil)
	}
}

func decodeMomentList(list []interface{}) ([]rawMoment, error) {
	raw, err := json.Marshal(list)
	if err != nil {
		return nil, pipelineerrors.New(pipelineerrors.ParseError, "failed to re-encode moment list", err)
	}
	var moments []rawMoment
	if err := json.Unmarshal(raw, &moments); err != nil {
		return nil, pipelineerrors.New(pipelineerrors.ParseError, "failed to decode moment list", err)
	}
	return moments, nil
}

func recoverMomentsByRegex(content string) []rawMoment {
	var moments []rawMoment
	for _, match := range recoverable.FindAllString(content, -1) {
		var m rawMoment
		if json.Unmarshal([]byte(match), &m) == nil {
			moments = append(moments, m)
		}
	}
	return moments
}

// validateAndSelectMoments applies the bounds/overlap/count rules from
// the generation contract: sorted by start, non-overlapping, within
// duration bounds, truncated to maxMoments.
func validateAndSelectMoments(candidates []rawMoment, videoDuration, minLen, maxLen float64, maxMoments int) []rawMoment {
	var valid []rawMoment
	for _, c := range candidates {
		if c.StartTime < 0 || c.EndTime > videoDuration || c.EndTime <= c.StartTime {
			continue
		}
		duration := c.EndTime - c.StartTime
		if duration < minLen || duration > maxLen {
			continue
		}
		valid = append(valid, c)
	}

	sort.Slice(valid, func(i, j int) bool { return valid[i].StartTime < valid[j].StartTime })

	var accepted []rawMoment
	for _, c := range valid {
		if len(accepted) > 0 && c.StartTime < accepted[len(accepted)-1].EndTime {
			continue // overlaps the last accepted moment
		}
		accepted = append(accepted, c)
	}

	if maxMoments > 0 && len(accepted) > maxMoments {
		accepted = accepted[:maxMoments]
	}
	return accepted
}

// refinedWindow is the normalized-coordinate response the refinement
// wire contract returns for a single moment.
type refinedWindow struct {
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

var balancedObject = regexp.MustCompile(`(?s)\{[^{}]*\}`)

// parseRefinedWindow runs the refinement-response decoding pipeline:
// strip think tags and code fence, locate the first balanced JSON object,
// and validate both fields are present with end_time > start_time.
func parseRefinedWindow(content string) (refinedWindow, error) {
	cleaned := stripCodeFence(stripThinkBlocks(content))

	objectText := cleaned
	if m := balancedObject.FindString(cleaned); m != "" {
		objectText = m
	}

	// Decode into pointer fields so a missing key is distinguishable from
	// an explicit 0.0 - a plain float64 field would silently default a
	// missing start_time to zero instead of rejecting the response.
	var fields struct {
		StartTime *float64 `json:"start_time"`
		EndTime   *float64 `json:"end_time"`
	}
	if err := json.Unmarshal([]byte(objectText), &fields); err != nil {
		return refinedWindow{}, pipelineerrors.New(pipelineerrors.ParseError, "refinement response was not a valid JSON object", err)
	}
	if fields.StartTime == nil || fields.EndTime == nil {
		return refinedWindow{}, pipelineerrors.New(pipelineerrors.ParseError, "refinement response is missing start_time or end_time", nil)
	}

	w := refinedWindow{StartTime: *fields.StartTime, EndTime: *fields.EndTime}
	if w.EndTime <= w.StartTime {
		return refinedWindow{}, pipelineerrors.New(pipelineerrors.ParseError, "refinement response end_time must be greater than start_time", nil)
	}
	return w, nil
}
