package scene

import (
	"github.com/achilleasa/rtdenoise/gpu/device"
	"github.com/achilleasa/rtdenoise/types"
)

// Vertex is the vertex buffer layout read by hit shaders.
type Vertex struct {
	Position types.Vec3
	Normal   types.Vec3
	TexC     types.Vec2
}

// Size of a Vertex in a vertex buffer.
const VertexStride = 32

// Mesh is an indexed triangle list. The GPU buffers are populated when the
// scene is uploaded.
type Mesh struct {
	Name     string
	Vertices []Vertex
	Indices  []uint32

	VertexBuffer *device.Resource
	IndexBuffer  *device.Resource
}

// Positions returns the vertex positions.
func (m *Mesh) Positions() []types.Vec3 {
	out := make([]types.Vec3, len(m.Vertices))
	for i, v := range m.Vertices {
		out[i] = v.Position
	}
	return out
}

// BBox returns the mesh bounds.
func (m *Mesh) BBox() [2]types.Vec3 {
	if len(m.Vertices) == 0 {
		return [2]types.Vec3{}
	}
	bbox := [2]types.Vec3{m.Vertices[0].Position, m.Vertices[0].Position}
	for _, v := range m.Vertices[1:] {
		bbox[0] = types.MinVec3(bbox[0], v.Position)
		bbox[1] = types.MaxVec3(bbox[1], v.Position)
	}
	return bbox
}

// GenerateNormals replaces the vertex normals with area weighted face normals.
func (m *Mesh) GenerateNormals() {
	for i := range m.Vertices {
		m.Vertices[i].Normal = types.Vec3{}
	}
	for i := 0; i+2 < len(m.Indices); i += 3 {
		i0, i1, i2 := m.Indices[i], m.Indices[i+1], m.Indices[i+2]
		p0 := m.Vertices[i0].Position
		n := m.Vertices[i1].Position.Sub(p0).Cross(m.Vertices[i2].Position.Sub(p0))
		for _, idx := range []uint32{i0, i1, i2} {
			m.Vertices[idx].Normal = m.Vertices[idx].Normal.Add(n)
		}
	}
	for i := range m.Vertices {
		m.Vertices[i].Normal = m.Vertices[i].Normal.Normalize()
	}
}

// NewPlane creates an XZ plane centered at the origin facing +Y, split
// into m x n quads.
func NewPlane(name string, width, depth float32, m, n uint32) *Mesh {
	if m == 0 {
		m = 1
	}
	if n == 0 {
		n = 1
	}
	mesh := &Mesh{Name: name}
	for j := uint32(0); j <= n; j++ {
		for i := uint32(0); i <= m; i++ {
			u, v := float32(i)/float32(m), float32(j)/float32(n)
			mesh.Vertices = append(mesh.Vertices, Vertex{
				Position: types.XYZ((u-0.5)*width, 0, (v-0.5)*depth),
				Normal:   types.XYZ(0, 1, 0),
				TexC:     types.XY(u, v),
			})
		}
	}
	for j := uint32(0); j < n; j++ {
		for i := uint32(0); i < m; i++ {
			a := j*(m+1) + i
			b := a + 1
			c := a + m + 1
			d := c + 1
			mesh.Indices = append(mesh.Indices, a, c, b, b, c, d)
		}
	}
	return mesh
}

// NewBox creates an axis aligned box centered at the origin with outward
// facing triangles.
func NewBox(name string, width, height, depth float32) *Mesh {
	w, h, d := width/2, height/2, depth/2
	faces := []struct {
		normal  types.Vec3
		corners [4]types.Vec3
	}{
		{types.XYZ(0, 0, 1), [4]types.Vec3{{-w, -h, d}, {w, -h, d}, {w, h, d}, {-w, h, d}}},
		{types.XYZ(0, 0, -1), [4]types.Vec3{{w, -h, -d}, {-w, -h, -d}, {-w, h, -d}, {w, h, -d}}},
		{types.XYZ(1, 0, 0), [4]types.Vec3{{w, -h, d}, {w, -h, -d}, {w, h, -d}, {w, h, d}}},
		{types.XYZ(-1, 0, 0), [4]types.Vec3{{-w, -h, -d}, {-w, -h, d}, {-w, h, d}, {-w, h, -d}}},
		{types.XYZ(0, 1, 0), [4]types.Vec3{{-w, h, d}, {w, h, d}, {w, h, -d}, {-w, h, -d}}},
		{types.XYZ(0, -1, 0), [4]types.Vec3{{-w, -h, -d}, {w, -h, -d}, {w, -h, d}, {-w, -h, d}}},
	}
	uvs := [4]types.Vec2{{0, 1}, {1, 1}, {1, 0}, {0, 0}}

	mesh := &Mesh{Name: name}
	for _, f := range faces {
		base := uint32(len(mesh.Vertices))
		for i, p := range f.corners {
			mesh.Vertices = append(mesh.Vertices, Vertex{Position: p, Normal: f.normal, TexC: uvs[i]})
		}
		mesh.Indices = append(mesh.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	return mesh
}
