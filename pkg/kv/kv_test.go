package kv

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnavailable(t *testing.T) {
	cause := errors.New("connection refused")
	err := Unavailable("set", cause)
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, ErrNotFound)
	require.Contains(t, err.Error(), "set")
}

func TestCheckNamespace(t *testing.T) {
	require.Error(t, CheckNamespace(""))
	require.NoError(t, CheckNamespace("lru_cache"))
}
