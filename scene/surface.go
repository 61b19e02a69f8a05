package scene

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/achilleasa/rtdenoise/gpu/accel"
	"github.com/achilleasa/rtdenoise/types"
)

// Surface describes a hit point in world space.
type Surface struct {
	Position types.Vec3
	Normal   types.Vec3
	TexC     types.Vec2
}

func readVertex(vb []byte, index uint32) (Vertex, error) {
	off := int(index) * VertexStride
	if off+VertexStride > len(vb) {
		return Vertex{}, fmt.Errorf("scene: vertex %d outside vertex buffer (%d bytes)", index, len(vb))
	}
	var f [8]float32
	for i := range f {
		f[i] = math.Float32frombits(binary.LittleEndian.Uint32(vb[off+i*4:]))
	}
	return Vertex{
		Position: types.XYZ(f[0], f[1], f[2]),
		Normal:   types.XYZ(f[3], f[4], f[5]),
		TexC:     types.XY(f[6], f[7]),
	}, nil
}

// InterpolateSurface fetches the triangle prim from a vertex and index
// buffer pair and interpolates its attributes at the given barycentrics.
// The result is transformed to world space with a row-major 3x4 matrix.
func InterpolateSurface(vb, ib []byte, prim uint32, bary types.Vec2, objectToWorld [12]float32) (Surface, error) {
	base := int(prim) * 12
	if base+12 > len(ib) {
		return Surface{}, fmt.Errorf("scene: primitive %d outside index buffer (%d bytes)", prim, len(ib))
	}
	var verts [3]Vertex
	for i := range verts {
		v, err := readVertex(vb, binary.LittleEndian.Uint32(ib[base+i*4:]))
		if err != nil {
			return Surface{}, err
		}
		verts[i] = v
	}

	w0 := 1 - bary[0] - bary[1]
	pos := verts[0].Position.Mul(w0).Add(verts[1].Position.Mul(bary[0])).Add(verts[2].Position.Mul(bary[1]))
	nrm := verts[0].Normal.Mul(w0).Add(verts[1].Normal.Mul(bary[0])).Add(verts[2].Normal.Mul(bary[1]))
	texC := types.XY(
		verts[0].TexC[0]*w0+verts[1].TexC[0]*bary[0]+verts[2].TexC[0]*bary[1],
		verts[0].TexC[1]*w0+verts[1].TexC[1]*bary[0]+verts[2].TexC[1]*bary[1],
	)
	return Surface{
		Position: accel.TransformPoint(objectToWorld, pos),
		Normal:   accel.TransformNormal(objectToWorld, nrm),
		TexC:     texC,
	}, nil
}
