package scene

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Stores the ray directions at the four corners of the camera frustum
// (TL, TR, BL, BR). Primary rays are generated by interpolating the corner
// rays. W is unused.
type Frustum [4]mgl32.Vec4

func (fr Frustum) String() string {
	return fmt.Sprintf(
		"Frustum Rays:\nTL : (%3.3f, %3.3f, %3.3f)\nTR : (%3.3f, %3.3f, %3.3f)\nBL : (%3.3f, %3.3f, %3.3f)\nBR : (%3.3f, %3.3f, %3.3f)",
		fr[0][0], fr[0][1], fr[0][2],
		fr[1][0], fr[1][1], fr[1][2],
		fr[2][0], fr[2][1], fr[2][2],
		fr[3][0], fr[3][1], fr[3][2],
	)
}

// The camera type controls the scene camera.
type Camera struct {
	Position mgl32.Vec3
	LookAt   mgl32.Vec3
	Up       mgl32.Vec3
	Pitch    float32
	Yaw      float32

	ViewMat mgl32.Mat4
	ProjMat mgl32.Mat4
	Frustum Frustum

	// Vertical field of view in degrees.
	FOV float32

	NearZ float32
	FarZ  float32
}

func NewCamera(fov float32) *Camera {
	return &Camera{
		ViewMat:  mgl32.Ident4(),
		ProjMat:  mgl32.Ident4(),
		Position: mgl32.Vec3{0, 0, 0},
		LookAt:   mgl32.Vec3{0, 0, -1},
		Up:       mgl32.Vec3{0, 1, 0},
		FOV:      fov,
		NearZ:    0.1,
		FarZ:     1000,
	}
}

// Setup camera projection matrix.
func (c *Camera) SetupProjection(aspect float32) {
	c.ProjMat = mgl32.Perspective(mgl32.DegToRad(c.FOV), aspect, c.NearZ, c.FarZ)
	c.Update()
}

// Update camera. Pitch and yaw are applied to the view direction and reset.
func (c *Camera) Update() {
	dir := c.LookAt.Sub(c.Position).Normalize()
	if c.Pitch != 0 || c.Yaw != 0 {
		pitchAxis := dir.Cross(c.Up).Normalize()
		pitchQuat := mgl32.QuatRotate(c.Pitch, pitchAxis)
		yawQuat := mgl32.QuatRotate(c.Yaw, c.Up)
		orientQuat := pitchQuat.Mul(yawQuat).Normalize()

		dir = orientQuat.Rotate(dir)
		c.LookAt = c.Position.Add(dir)
		c.Pitch, c.Yaw = 0, 0
	}

	c.ViewMat = mgl32.LookAtV(c.Position, c.LookAt, c.Up)
	c.updateFrustum()
}

// Forward returns the normalized view direction.
func (c *Camera) Forward() mgl32.Vec3 {
	return c.LookAt.Sub(c.Position).Normalize()
}

func (c *Camera) ViewProjMat() mgl32.Mat4 {
	return c.ProjMat.Mul4(c.ViewMat)
}

func (c *Camera) InvViewProjMat() mgl32.Mat4 {
	return c.ViewProjMat().Inv()
}

// Generate a ray vector for each corner of the camera frustum by
// multiplying clip space vectors for each corner with the inv proj/view
// matrix, applying perspective and subtracting the camera eye position.
func (c *Camera) updateFrustum() {
	invProjViewMat := c.InvViewProjMat()
	corners := [4][2]float32{{-1, 1}, {1, 1}, {-1, -1}, {1, -1}}
	for i, corner := range corners {
		v := invProjViewMat.Mul4x1(mgl32.Vec4{corner[0], corner[1], -1, 1})
		c.Frustum[i] = v.Mul(1.0 / v[3]).Vec3().Sub(c.Position).Vec4(0)
	}
}
