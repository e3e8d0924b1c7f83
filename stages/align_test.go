package stages

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/videomoments/pipeline/repository"
)

func TestAlignClipWindowFallsBackToUnalignedWhenNoTranscript(t *testing.T) {
	moment := repository.Moment{StartTime: 100, EndTime: 160}
	bounds := alignClipWindow(moment, nil, 30, 2, 1000)
	require.Equal(t, 70.0, bounds.Start)
	require.Equal(t, 190.0, bounds.End)
}

func TestAlignClipWindowSnapsToWordBoundaries(t *testing.T) {
	moment := repository.Moment{StartTime: 100, EndTime: 160}
	words := []repository.WordTimestamp{
		{Word: "a", Start: 68.5, End: 69.0},
		{Word: "b", Start: 69.5, End: 70.2},
		{Word: "c", Start: 188.0, End: 189.5},
		{Word: "d", Start: 191.0, End: 192.0},
	}
	bounds := alignClipWindow(moment, words, 30, 2, 1000)
	require.Equal(t, 69.5, bounds.Start)
	require.Equal(t, 192.0, bounds.End)
}

func TestAlignClipWindowClampsToVideoBounds(t *testing.T) {
	moment := repository.Moment{StartTime: 5, EndTime: 20}
	bounds := alignClipWindow(moment, nil, 30, 2, 25)
	require.Equal(t, 0.0, bounds.Start)
	require.Equal(t, 25.0, bounds.End)
}

func TestWordsInWindowRebasesToZero(t *testing.T) {
	words := []repository.WordTimestamp{
		{Word: "before", Start: 0, End: 5},
		{Word: "inside1", Start: 10, End: 12},
		{Word: "inside2", Start: 13, End: 15},
		{Word: "after", Start: 50, End: 52},
	}
	windowed := wordsInWindow(words, 10, 20)
	require.Len(t, windowed, 2)
	require.Equal(t, 0.0, windowed[0].Start)
	require.Equal(t, 2.0, windowed[0].End)
}
