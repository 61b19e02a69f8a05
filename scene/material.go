package scene

import (
	"github.com/achilleasa/rtdenoise/types"
	"github.com/go-gl/mathgl/mgl32"
)

// Defines a scene material.
type Material struct {
	Name string

	// Diffuse albedo.
	Albedo types.Vec3

	// Specular reflectance at normal incidence.
	FresnelR0 types.Vec3

	Roughness float32
	Metalness float32
}

// DefaultMaterial is assigned to surfaces that do not select one.
func DefaultMaterial() *Material {
	return &Material{
		Name:      "default",
		Albedo:    types.XYZ(0.7, 0.7, 0.7),
		FresnelR0: types.XYZ(0.04, 0.04, 0.04),
		Roughness: 0.5,
	}
}

// Constants returns the constant buffer contents for the material.
func (m *Material) Constants() MaterialConstants {
	return MaterialConstants{
		Albedo:    mgl32.Vec4{m.Albedo[0], m.Albedo[1], m.Albedo[2], 1},
		FresnelR0: mgl32.Vec3(m.FresnelR0),
		Roughness: m.Roughness,
		Metalness: m.Metalness,
	}
}
