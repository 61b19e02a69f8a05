package scene

import (
	"fmt"

	"github.com/achilleasa/rtdenoise/types"
	"github.com/go-gl/mathgl/mgl32"
)

// Light is the directional light used for shading reflections.
type Light struct {
	Direction types.Vec3
	Strength  types.Vec3
	Ambient   types.Vec3
}

// RenderItem places a mesh in the world.
type RenderItem struct {
	Name     string
	Geometry *Mesh

	// Index into Scene.Materials.
	MaterialIndex uint32

	World     mgl32.Mat4
	PrevWorld mgl32.Mat4

	// Rotation speed around the world Y axis in radians per second.
	Spin float32

	// Index of the item in the object constant buffer.
	ObjCBIndex uint32
}

type Scene struct {
	Camera *Camera
	Light  Light

	Meshes    []*Mesh
	Materials []*Material
	Items     []*RenderItem
}

func NewScene() *Scene {
	return &Scene{
		Meshes:    make([]*Mesh, 0),
		Materials: make([]*Material, 0),
		Items:     make([]*RenderItem, 0),
		Light: Light{
			Direction: types.XYZ(-0.57735, -0.57735, -0.57735),
			Strength:  types.XYZ(0.9, 0.9, 0.9),
			Ambient:   types.XYZ(0.25, 0.25, 0.35),
		},
	}
}

// Attach a camera to the scene.
func (s *Scene) SetCamera(camera *Camera) {
	s.Camera = camera
}

// Add a mesh to the scene.
func (s *Scene) AddMesh(mesh *Mesh) error {
	for _, m := range s.Meshes {
		if m == mesh {
			return fmt.Errorf("%w: mesh %q", ErrDuplicate, mesh.Name)
		}
	}
	s.Meshes = append(s.Meshes, mesh)
	return nil
}

// Add a material to the scene and return its index.
func (s *Scene) AddMaterial(material *Material) (uint32, error) {
	for _, mat := range s.Materials {
		if mat == material {
			return 0, fmt.Errorf("%w: material %q", ErrDuplicate, material.Name)
		}
	}
	s.Materials = append(s.Materials, material)
	return uint32(len(s.Materials) - 1), nil
}

// Add a render item to the scene. Its mesh and material must already be
// part of the scene.
func (s *Scene) AddItem(item *RenderItem) error {
	found := false
	for _, m := range s.Meshes {
		if m == item.Geometry {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: item %q", ErrUnknownMesh, item.Name)
	}
	if int(item.MaterialIndex) >= len(s.Materials) {
		return fmt.Errorf("%w: item %q uses material %d", ErrUnknownMaterial, item.Name, item.MaterialIndex)
	}
	for _, it := range s.Items {
		if it == item {
			return fmt.Errorf("%w: item %q", ErrDuplicate, item.Name)
		}
	}
	item.ObjCBIndex = uint32(len(s.Items))
	item.PrevWorld = item.World
	s.Items = append(s.Items, item)
	return nil
}

// Validate checks that the scene can be rendered.
func (s *Scene) Validate() error {
	if s.Camera == nil {
		return ErrNoCamera
	}
	return nil
}

// Animate advances spinning items by dt seconds. The previous transforms
// are retained for motion vectors.
func (s *Scene) Animate(dt float32) {
	for _, item := range s.Items {
		item.PrevWorld = item.World
		if item.Spin != 0 {
			item.World = mgl32.HomogRotate3DY(item.Spin * dt).Mul4(item.World)
		}
	}
}

// DefaultScene builds a small procedural scene: a floor, a reflective
// column and a few boxes.
func DefaultScene() *Scene {
	s := NewScene()

	floor := NewPlane("floor", 20, 20, 4, 4)
	box := NewBox("box", 1, 1, 1)
	column := NewBox("column", 1, 4, 1)
	for _, m := range []*Mesh{floor, box, column} {
		must(s.AddMesh(m))
	}

	floorMat := mustIndex(s.AddMaterial(&Material{Name: "floor", Albedo: types.XYZ(0.6, 0.6, 0.6), FresnelR0: types.XYZ(0.04, 0.04, 0.04), Roughness: 0.3}))
	boxMat := mustIndex(s.AddMaterial(&Material{Name: "box", Albedo: types.XYZ(0.8, 0.3, 0.2), FresnelR0: types.XYZ(0.05, 0.05, 0.05), Roughness: 0.6}))
	mirrorMat := mustIndex(s.AddMaterial(&Material{Name: "mirror", Albedo: types.XYZ(0.9, 0.9, 0.95), FresnelR0: types.XYZ(0.95, 0.93, 0.88), Roughness: 0.05, Metalness: 1}))

	must(s.AddItem(&RenderItem{Name: "floor", Geometry: floor, MaterialIndex: floorMat, World: mgl32.Ident4()}))
	must(s.AddItem(&RenderItem{Name: "column", Geometry: column, MaterialIndex: mirrorMat, World: mgl32.Translate3D(0, 2, 0), Spin: 0.5}))
	for i, pos := range [][3]float32{{-3, 0.5, -2}, {3, 0.5, -2}, {-2, 0.5, 3}, {2.5, 0.5, 2.5}} {
		must(s.AddItem(&RenderItem{
			Name:          fmt.Sprintf("box%d", i),
			Geometry:      box,
			MaterialIndex: boxMat,
			World:         mgl32.Translate3D(pos[0], pos[1], pos[2]).Mul4(mgl32.HomogRotate3DY(float32(i) * 0.4)),
		}))
	}

	cam := NewCamera(60)
	cam.Position = mgl32.Vec3{0, 4, 10}
	cam.LookAt = mgl32.Vec3{0, 1, 0}
	s.SetCamera(cam)
	return s
}

// DefaultScene is assembled from fresh values so the Add* calls can only
// fail on a programming error.
func must(err error) {
	if err != nil {
		panic(err)
	}
}

func mustIndex(index uint32, err error) uint32 {
	must(err)
	return index
}
