package denoise

import (
	"testing"

	"github.com/achilleasa/rtdenoise/types"
	"github.com/stretchr/testify/require"
)

func TestRngIsDeterministicAndUniform(t *testing.T) {
	a, b := NewRng(3, 7, 11), NewRng(3, 7, 11)
	var sum float32
	const n = 4096
	for i := 0; i < n; i++ {
		va, vb := a.Float(), b.Float()
		require.Equal(t, va, vb)
		require.GreaterOrEqual(t, va, float32(0))
		require.Less(t, va, float32(1))
		sum += va
	}
	require.InDelta(t, 0.5, sum/n, 0.03)

	base, other := NewRng(3, 7, 11), NewRng(3, 7, 12)
	require.NotEqual(t, base.Float(), other.Float())
}

func TestCosineSampleHemisphere(t *testing.T) {
	rng := NewRng(1, 2, 3)
	for _, n := range []types.Vec3{types.XYZ(0, 1, 0), types.XYZ(0, 0, -1), types.XYZ(1, 1, 1).Normalize()} {
		tangent, bitangent := Basis(n)
		require.InDelta(t, 0, tangent.Dot(n), 1e-5)
		require.InDelta(t, 0, bitangent.Dot(n), 1e-5)
		require.InDelta(t, 0, tangent.Dot(bitangent), 1e-5)

		var meanCos float32
		for i := 0; i < 2000; i++ {
			d := CosineSampleHemisphere(n, rng.Float(), rng.Float())
			require.InDelta(t, 1, d.Len(), 1e-4)
			require.GreaterOrEqual(t, d.Dot(n), float32(-1e-5))
			meanCos += d.Dot(n)
		}
		// E[cos] for a cosine weighted hemisphere is 2/3.
		require.InDelta(t, 2.0/3, meanCos/2000, 0.03)
	}
}
