package denoise

import (
	"github.com/achilleasa/rtdenoise/types"
	"github.com/chewxy/math32"
)

// Offset applied along the surface normal to ray origins so that rays do not
// hit the surface they start from.
const RayOriginOffset = 1e-3

// Rng is a small PCG style generator seeded per pixel and frame so that ray
// shaders stay deterministic regardless of how rows are scheduled.
type Rng struct {
	state uint32
}

// NewRng seeds a generator for pixel (x, y) of the given frame.
func NewRng(x, y, frame uint32) Rng {
	return Rng{state: hash(x*1973 + y*9277 + frame*26699 | 1)}
}

func hash(v uint32) uint32 {
	v = v*747796405 + 2891336453
	word := ((v >> ((v >> 28) + 4)) ^ v) * 277803737
	return (word >> 22) ^ word
}

// Float returns a uniform value in [0, 1).
func (r *Rng) Float() float32 {
	r.state = hash(r.state)
	return float32(r.state>>8) / float32(1<<24)
}

// Basis returns two unit vectors that form an orthonormal basis with n.
func Basis(n types.Vec3) (types.Vec3, types.Vec3) {
	sign := math32.Copysign(1, n[2])
	a := -1 / (sign + n[2])
	b := n[0] * n[1] * a
	t := types.XYZ(1+sign*n[0]*n[0]*a, sign*b, -sign*n[0])
	bt := types.XYZ(b, sign+n[1]*n[1]*a, -n[1])
	return t, bt
}

// CosineSampleHemisphere maps two uniform samples to a direction around n
// distributed proportionally to the cosine of its angle with n.
func CosineSampleHemisphere(n types.Vec3, u1, u2 float32) types.Vec3 {
	r := math32.Sqrt(u1)
	phi := 2 * math32.Pi * u2
	x, y := r*math32.Cos(phi), r*math32.Sin(phi)
	z := math32.Sqrt(math32.Max(0, 1-u1))
	t, b := Basis(n)
	return t.Mul(x).Add(b.Mul(y)).Add(n.Mul(z)).Normalize()
}
