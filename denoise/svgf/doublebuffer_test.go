package svgf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDoubleBufferAlternates(t *testing.T) {
	var b DoubleBuffer[string]
	b.Set(0, "a")
	b.Set(1, "b")

	require.Equal(t, "a", b.Current())
	require.Equal(t, "b", b.Previous())

	exp := []int{1, 0, 1, 0, 1}
	for frame, expIndex := range exp {
		b.MarkUsed()
		index, err := b.Advance()
		require.NoError(t, err)
		require.Equal(t, expIndex, index, "frame %d", frame)
		require.Equal(t, uint64(frame+1), b.Frames())
	}
	require.Equal(t, "b", b.Current())
	require.Equal(t, "a", b.Previous())
}

func TestDoubleBufferDetectsDoubleAdvance(t *testing.T) {
	var b DoubleBuffer[int]
	b.MarkUsed()
	_, err := b.Advance()
	require.NoError(t, err)

	index, err := b.Advance()
	require.ErrorIs(t, err, ErrFrameSequence)
	require.Equal(t, 1, index)
	require.Equal(t, uint64(1), b.Frames())

	b.Reset()
	require.Zero(t, b.Index())
	require.Zero(t, b.Frames())
}

func TestSettingsValidate(t *testing.T) {
	s := DefaultSettings()
	require.NoError(t, s.Validate())

	s.CheckerboardSampling = true
	require.NoError(t, s.Validate())
	s.DisocclusionBlurPasses = 0
	require.ErrorIs(t, s.Validate(), ErrCheckerboardNeedsBlur)

	s = DefaultSettings()
	s.MaxTspp = 0
	require.ErrorIs(t, s.Validate(), ErrInvalidSettings)

	s = DefaultSettings()
	s.VarianceKernelWidth = 4
	require.ErrorIs(t, s.Validate(), ErrInvalidSettings)
}
