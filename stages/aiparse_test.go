package stages

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMomentsResponseHandlesBareArray(t *testing.T) {
	content := `[{"start_time": 10, "end_time": 70, "title": "Intro"}]`
	moments, err := parseMomentsResponse(content)
	require.NoError(t, err)
	require.Len(t, moments, 1)
	require.Equal(t, "Intro", moments[0].Title)
}

func TestParseMomentsResponseStripsThinkBlockAndCodeFence(t *testing.T) {
	content := "<think>reasoning about the video</think>\n```json\n" +
		`{"moments": [{"start_time": 5, "end_time": 65, "title": "Opening"}]}` +
		"\n```"
	moments, err := parseMomentsResponse(content)
	require.NoError(t, err)
	require.Len(t, moments, 1)
	require.Equal(t, "Opening", moments[0].Title)
}

func TestParseMomentsResponseRecoversFromMalformedJSON(t *testing.T) {
	content := `Here are the moments: {"start_time": 1.5, "end_time": 61.5, "title": "First"} ` +
		`and also {"start_time": 100, "end_time": 160, "title": "Second"} -- not valid JSON overall`
	moments, err := parseMomentsResponse(content)
	require.NoError(t, err)
	require.Len(t, moments, 2)
}

func TestParseMomentsResponseFailsOnNoRecoverableMoments(t *testing.T) {
	_, err := parseMomentsResponse("the model refused to answer in JSON at all")
	require.Error(t, err)
}

func TestValidateAndSelectMomentsDropsOutOfBoundsAndOverlapping(t *testing.T) {
	candidates := []rawMoment{
		{StartTime: -5, EndTime: 55, Title: "negative start"},
		{StartTime: 0, EndTime: 65, Title: "valid first"},
		{StartTime: 10, EndTime: 75, Title: "overlaps first"},
		{StartTime: 100, EndTime: 1000, Title: "exceeds video duration"},
		{StartTime: 200, EndTime: 260, Title: "valid second"},
	}
	selected := validateAndSelectMoments(candidates, 300, 60, 120, 10)
	require.Len(t, selected, 2)
	require.Equal(t, "valid first", selected[0].Title)
	require.Equal(t, "valid second", selected[1].Title)
}

func TestValidateAndSelectMomentsTruncatesToMax(t *testing.T) {
	candidates := []rawMoment{
		{StartTime: 0, EndTime: 60},
		{StartTime: 70, EndTime: 130},
		{StartTime: 140, EndTime: 200},
	}
	selected := validateAndSelectMoments(candidates, 300, 60, 60, 2)
	require.Len(t, selected, 2)
}

func TestParseRefinedWindowExtractsFirstBalancedObject(t *testing.T) {
	content := "<think>let me think</think>\n```json\n{\"start_time\": 2.0, \"end_time\": 58.0}\n```"
	w, err := parseRefinedWindow(content)
	require.NoError(t, err)
	require.Equal(t, 2.0, w.StartTime)
	require.Equal(t, 58.0, w.EndTime)
}

func TestParseRefinedWindowRejectsInvertedBounds(t *testing.T) {
	_, err := parseRefinedWindow(`{"start_time": 58.0, "end_time": 2.0}`)
	require.Error(t, err)
}

func TestParseRefinedWindowRejectsMissingStartTime(t *testing.T) {
	_, err := parseRefinedWindow(`{"end_time": 5}`)
	require.Error(t, err)
}
