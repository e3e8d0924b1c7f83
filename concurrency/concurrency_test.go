package concurrency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTryAcquireFailsWhenExhausted(t *testing.T) {
	l := New()

	permits := make([]Permit, 0)
	for i := int64(0); i < 4; i++ { // config.AudioExtractionLimit default is 4
		p, ok := l.TryAcquire(AudioExtraction)
		require.True(t, ok)
		permits = append(permits, p)
	}

	_, ok := l.TryAcquire(AudioExtraction)
	require.False(t, ok, "fifth concurrent audio-extraction permit should be refused at the default limit")

	permits[0].Release()
	_, ok = l.TryAcquire(AudioExtraction)
	require.True(t, ok, "releasing one permit should free a slot")

	for _, p := range permits[1:] {
		p.Release()
	}
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	l := New()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	held := make([]Permit, 0)
	for i := int64(0); i < 2; i++ { // config.RefinementLimit default is 2
		p, ok := l.TryAcquire(Refinement)
		require.True(t, ok)
		held = append(held, p)
	}

	_, err := l.Acquire(ctx, Refinement)
	require.Error(t, err)

	for _, p := range held {
		p.Release()
	}
}

func TestDifferentStageClassesAreIndependent(t *testing.T) {
	l := New()
	_, ok := l.TryAcquire(ClipExtraction)
	require.True(t, ok)
	_, ok = l.TryAcquire(MomentGeneration)
	require.True(t, ok)
}
