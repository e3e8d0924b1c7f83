package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOfClassifiedError(t *testing.T) {
	err := New(ResourceNotFound, "transcript missing", nil).WithStage("generation")
	require.Equal(t, ResourceNotFound, KindOf(err))
	require.True(t, Is(err, ResourceNotFound))
	require.Contains(t, err.Error(), "generation")
	require.Contains(t, err.Error(), "transcript missing")
}

func TestKindOfUnclassifiedError(t *testing.T) {
	require.Equal(t, Kind(""), KindOf(fmt.Errorf("boom")))
}

func TestIsUnretriable(t *testing.T) {
	require.True(t, IsUnretriable(New(ParseError, "bad json", nil)))
	require.False(t, IsUnretriable(New(StoreUnavailable, "redis down", nil)))
	require.True(t, IsUnretriable(Unretriable(fmt.Errorf("boom"))))
	require.False(t, IsUnretriable(fmt.Errorf("plain error")))
}

func TestWrappedCause(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := New(TunnelUnavailable, "could not reach local port", cause)
	require.ErrorIs(t, err, cause)
}
