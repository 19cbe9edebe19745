package pool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetBuf(t *testing.T) {
	for _, n := range []int{0, 1, 2, 3, 511, 512, 513, 1 << maxShift} {
		b := GetBuf(n)
		require.Len(t, *b, n)
		c := cap(*b)
		require.GreaterOrEqual(t, c, n)
		require.Zero(t, c&(c-1), "cap %d is not a power of two", c)
		ReleaseBuf(b)
	}

	big := GetBuf(1<<maxShift + 1)
	require.Len(t, *big, 1<<maxShift+1)
	ReleaseBuf(big)

	odd := make([]byte, 3)
	ReleaseBuf(&odd)

	require.Panics(t, func() { GetBuf(-1) })
}

func TestClass(t *testing.T) {
	require.Equal(t, 0, class(0))
	require.Equal(t, 0, class(1))
	require.Equal(t, 1, class(2))
	require.Equal(t, 2, class(3))
	require.Equal(t, 2, class(4))
	require.Equal(t, 3, class(5))
}
