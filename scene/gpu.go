package scene

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/achilleasa/rtdenoise/gpu/accel"
	"github.com/achilleasa/rtdenoise/gpu/device"
	"github.com/achilleasa/rtdenoise/log"
	"github.com/go-gl/mathgl/mgl32"
)

var logger = log.New("scene")

// Each render item owns this many consecutive hit group records: one for
// radiance rays and one for shadow rays.
const HitGroupsPerItem = 2

// InstanceRecord is the per-instance entry hit shaders use to locate the
// geometry and constants of the instance they hit. It is indexed by the
// instance id.
type InstanceRecord struct {
	VertexBuffer device.GPUVirtualAddress
	IndexBuffer  device.GPUVirtualAddress
	ObjectCB     device.GPUVirtualAddress
	MaterialCB   device.GPUVirtualAddress
}

// Size of an InstanceRecord in the instance table.
const InstanceRecordSize = 32

// DecodeInstanceRecord reads the record at the start of b.
func DecodeInstanceRecord(b []byte) (InstanceRecord, error) {
	var rec InstanceRecord
	if len(b) < InstanceRecordSize {
		return rec, fmt.Errorf("scene: truncated instance record (%d bytes)", len(b))
	}
	err := binary.Read(bytes.NewReader(b[:InstanceRecordSize]), binary.LittleEndian, &rec)
	return rec, err
}

// GpuScene holds the device copies of a scene.
type GpuScene struct {
	dev   *device.Device
	scene *Scene

	blas map[*Mesh]*accel.BottomLevel

	objectCB      *device.Resource
	materialCB    *device.Resource
	passCB        *device.Resource
	instanceTable *device.Resource
	tlas          *device.Resource

	ObjectCBStride   uint64
	MaterialCBStride uint64

	pass         PassConstants
	prevViewProj mgl32.Mat4
	frameIndex   uint32
	totalTime    float32
}

// Upload copies the scene geometry and constants to the device and builds
// the acceleration structures.
func Upload(dev *device.Device, sc *Scene) (*GpuScene, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	gs := &GpuScene{
		dev:              dev,
		scene:            sc,
		blas:             make(map[*Mesh]*accel.BottomLevel),
		ObjectCBStride:   ConstantBufferStride(ObjectConstants{}),
		MaterialCBStride: ConstantBufferStride(MaterialConstants{}),
	}

	var err error
	for _, mesh := range sc.Meshes {
		if err = gs.uploadMesh(mesh); err != nil {
			gs.Release()
			return nil, err
		}
	}

	if gs.objectCB, err = gs.uploadBuffer("objectCB", gs.ObjectCBStride*uint64(max(1, len(sc.Items)))); err != nil {
		gs.Release()
		return nil, err
	}
	if gs.materialCB, err = gs.uploadBuffer("materialCB", gs.MaterialCBStride*uint64(max(1, len(sc.Materials)))); err != nil {
		gs.Release()
		return nil, err
	}
	if gs.passCB, err = gs.uploadBuffer("passCB", ConstantBufferStride(PassConstants{})); err != nil {
		gs.Release()
		return nil, err
	}
	recordSize := uint64(InstanceRecordSize)
	if gs.instanceTable, err = gs.uploadBuffer("instanceTable", recordSize*uint64(max(1, len(sc.Items)))); err != nil {
		gs.Release()
		return nil, err
	}

	for i, mat := range sc.Materials {
		if err = gs.materialCB.WriteStruct(i*int(gs.MaterialCBStride), mat.Constants()); err != nil {
			gs.Release()
			return nil, err
		}
	}
	for i, item := range sc.Items {
		rec := InstanceRecord{
			VertexBuffer: item.Geometry.VertexBuffer.GPUVirtualAddress(),
			IndexBuffer:  item.Geometry.IndexBuffer.GPUVirtualAddress(),
			ObjectCB:     gs.ObjectCBAddress(uint32(i)),
			MaterialCB:   gs.MaterialCBAddress(item.MaterialIndex),
		}
		if err = gs.instanceTable.WriteStruct(i*int(recordSize), rec); err != nil {
			gs.Release()
			return nil, err
		}
	}
	if err = gs.writeObjectConstants(); err != nil {
		gs.Release()
		return nil, err
	}
	if err = gs.buildTLAS(); err != nil {
		gs.Release()
		return nil, err
	}

	logger.Infof("uploaded scene: %d meshes, %d materials, %d items", len(sc.Meshes), len(sc.Materials), len(sc.Items))
	return gs, nil
}

func (gs *GpuScene) uploadBuffer(name string, size uint64) (*device.Resource, error) {
	res, err := gs.dev.CreateCommittedResource(
		device.HeapProperties{Type: device.HeapTypeUpload},
		device.HeapFlagNone,
		device.BufferDesc(size, device.ResourceFlagNone),
		device.StateGenericRead,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("scene: allocate %q: %w", name, err)
	}
	res.SetName(name)
	return res, nil
}

func (gs *GpuScene) uploadMesh(mesh *Mesh) error {
	blas, err := accel.NewBottomLevel(mesh.Name, mesh.Positions(), mesh.Indices)
	if err != nil {
		return err
	}
	gs.blas[mesh] = blas

	if mesh.VertexBuffer, err = gs.uploadBuffer(mesh.Name+"/vb", uint64(len(mesh.Vertices))*VertexStride); err != nil {
		return err
	}
	if err = mesh.VertexBuffer.WriteStruct(0, mesh.Vertices); err != nil {
		return err
	}
	if mesh.IndexBuffer, err = gs.uploadBuffer(mesh.Name+"/ib", uint64(len(mesh.Indices))*4); err != nil {
		return err
	}
	return mesh.IndexBuffer.WriteStruct(0, mesh.Indices)
}

func (gs *GpuScene) writeObjectConstants() error {
	for i, item := range gs.scene.Items {
		oc := ObjectConstants{World: item.World, PrevWorld: item.PrevWorld, MaterialIndex: item.MaterialIndex}
		if err := gs.objectCB.WriteStruct(i*int(gs.ObjectCBStride), oc); err != nil {
			return err
		}
	}
	return nil
}

func (gs *GpuScene) buildTLAS() error {
	instances := make([]accel.Instance, len(gs.scene.Items))
	for i, item := range gs.scene.Items {
		instances[i] = accel.Instance{
			BLAS:           gs.blas[item.Geometry],
			Transform:      item.World,
			InstanceID:     uint32(i),
			Mask:           0xff,
			HitGroupOffset: uint32(i) * HitGroupsPerItem,
		}
	}
	tlas, err := accel.NewTopLevel(instances).Upload(gs.dev, "tlas")
	if err != nil {
		return err
	}
	gs.tlas.Release()
	gs.tlas = tlas
	return nil
}

// Update refreshes the per frame constants and rebuilds the top level
// structure so it matches the current item transforms.
func (gs *GpuScene) Update(dt float32, width, height uint32) error {
	if gs.passCB == nil {
		return ErrNotUploaded
	}
	cam := gs.scene.Camera
	cam.SetupProjection(float32(width) / float32(height))

	viewProj := cam.ViewProjMat()
	if gs.frameIndex == 0 {
		gs.prevViewProj = viewProj
	}
	gs.totalTime += dt
	light := gs.scene.Light
	gs.pass = PassConstants{
		View:             cam.ViewMat,
		InvView:          cam.ViewMat.Inv(),
		Proj:             cam.ProjMat,
		InvProj:          cam.ProjMat.Inv(),
		ViewProj:         viewProj,
		InvViewProj:      cam.InvViewProjMat(),
		PrevViewProj:     gs.prevViewProj,
		FrustumRays:      cam.Frustum,
		EyePosW:          cam.Position,
		NearZ:            cam.NearZ,
		EyeForwardW:      cam.Forward(),
		FarZ:             cam.FarZ,
		RenderTargetSize: mgl32.Vec2{float32(width), float32(height)},
		TotalTime:        gs.totalTime,
		DeltaTime:        dt,
		LightDirection:   mgl32.Vec3(light.Direction.Normalize()),
		FrameIndex:       gs.frameIndex,
		LightStrength:    mgl32.Vec3(light.Strength),
		AmbientLight:     mgl32.Vec4{light.Ambient[0], light.Ambient[1], light.Ambient[2], 1},
	}
	if err := gs.passCB.WriteStruct(0, gs.pass); err != nil {
		return err
	}
	gs.prevViewProj = viewProj
	gs.frameIndex++

	if err := gs.writeObjectConstants(); err != nil {
		return err
	}
	return gs.buildTLAS()
}

// PassConstants returns the constants written by the last Update.
func (gs *GpuScene) PassConstants() PassConstants {
	return gs.pass
}

func (gs *GpuScene) Scene() *Scene {
	return gs.scene
}

// TLAS returns the buffer holding the top level structure.
func (gs *GpuScene) TLAS() *device.Resource {
	return gs.tlas
}

func (gs *GpuScene) PassCBAddress() device.GPUVirtualAddress {
	return gs.passCB.GPUVirtualAddress()
}

func (gs *GpuScene) ObjectCBAddress(index uint32) device.GPUVirtualAddress {
	return gs.objectCB.GPUVirtualAddress().Offset(uint64(index) * gs.ObjectCBStride)
}

func (gs *GpuScene) MaterialCBAddress(index uint32) device.GPUVirtualAddress {
	return gs.materialCB.GPUVirtualAddress().Offset(uint64(index) * gs.MaterialCBStride)
}

func (gs *GpuScene) InstanceTableAddress() device.GPUVirtualAddress {
	return gs.instanceTable.GPUVirtualAddress()
}

// Release frees all device resources.
func (gs *GpuScene) Release() {
	for _, mesh := range gs.scene.Meshes {
		mesh.VertexBuffer.Release()
		mesh.IndexBuffer.Release()
		mesh.VertexBuffer, mesh.IndexBuffer = nil, nil
	}
	for _, res := range []*device.Resource{gs.objectCB, gs.materialCB, gs.passCB, gs.instanceTable, gs.tlas} {
		res.Release()
	}
	gs.objectCB, gs.materialCB, gs.passCB, gs.instanceTable, gs.tlas = nil, nil, nil, nil, nil
}
