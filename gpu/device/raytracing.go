package device

import (
	"encoding/binary"
	"fmt"

	"github.com/achilleasa/rtdenoise/types"
)

type RayFlags uint32

const (
	RayFlagNone                       RayFlags = 0
	RayFlagForceOpaque                RayFlags = 0x01
	RayFlagAcceptFirstHitAndEndSearch RayFlags = 0x04
	RayFlagSkipClosestHitShader       RayFlags = 0x08
	RayFlagCullBackFacingTriangles    RayFlags = 0x10
)

type Ray struct {
	Origin    types.Vec3
	Direction types.Vec3
	TMin      float32
	TMax      float32
}

// At returns the point at distance t along the ray.
func (r Ray) At(t float32) types.Vec3 {
	return r.Origin.Add(r.Direction.Mul(t))
}

// Hit describes the closest intersection found by a traversal.
type Hit struct {
	T              float32
	InstanceIndex  uint32
	InstanceID     uint32
	HitGroupOffset uint32
	GeometryIndex  uint32
	PrimitiveIndex uint32
	Barycentrics   types.Vec2
	FrontFace      bool

	// Row-major 3x4 object to world transform of the hit instance.
	ObjectToWorld [12]float32
}

// AccelerationStructure is implemented by built top-level structures.
type AccelerationStructure interface {
	Intersect(ray Ray, flags RayFlags, mask uint8) (Hit, bool)
}

type shaderTableView struct {
	data   []byte
	stride uint64
}

func (d *Device) tableView(start GPUVirtualAddress, size, stride uint64) (shaderTableView, error) {
	if size == 0 {
		return shaderTableView{}, nil
	}
	data, err := d.bytesAt(start)
	if err != nil {
		return shaderTableView{}, err
	}
	if uint64(len(data)) < size {
		return shaderTableView{}, fmt.Errorf("%w: table of %d bytes overruns its buffer", ErrShaderRecordOutOfRange, size)
	}
	return shaderTableView{data: data[:size], stride: stride}, nil
}

// record returns the shader record at index. A zero stride makes every
// index select the first record.
func (tv shaderTableView) record(index uint64) ([]byte, error) {
	off := index * tv.stride
	if off+ShaderIdentifierSize > uint64(len(tv.data)) {
		return nil, fmt.Errorf("%w: record %d (stride %d) in a %d byte table", ErrShaderRecordOutOfRange, index, tv.stride, len(tv.data))
	}
	end := uint64(len(tv.data))
	if tv.stride != 0 && off+tv.stride < end {
		end = off + tv.stride
	}
	return tv.data[off:end], nil
}

type rayDispatch struct {
	so         *StateObject
	dims       [3]uint32
	missTable  shaderTableView
	hitTable   shaderTableView
	maxDepth   int
	maxPayload int
}

// RayContext is passed to ray tracing shaders. Hit information and local
// arguments are only valid inside closest hit and miss shaders.
type RayContext struct {
	*DispatchContext

	dispatch *rayDispatch
	index    [3]uint32
	depth    int

	WorldRay Ray
	Hit      Hit

	localArgs    []byte
	localRootSig *RootSignature
}

func (rc *RayContext) DispatchRaysIndex() [3]uint32 {
	return rc.index
}

func (rc *RayContext) DispatchRaysDimensions() [3]uint32 {
	return rc.dispatch.dims
}

// RecursionDepth returns 0 in ray generation shaders and the nesting level
// of the current TraceRay call otherwise.
func (rc *RayContext) RecursionDepth() int {
	return rc.depth
}

// LocalArguments returns the raw shader record bytes after the identifier.
func (rc *RayContext) LocalArguments() []byte {
	return rc.localArgs
}

// LocalAddress reads the root descriptor address stored for param in the
// shader record.
func (rc *RayContext) LocalAddress(param int) (GPUVirtualAddress, error) {
	if rc.localRootSig == nil {
		return 0, fmt.Errorf("%w: shader has no local root signature", ErrRootParameter)
	}
	if param < 0 || param >= rc.localRootSig.NumParameters() {
		return 0, fmt.Errorf("%w: %q has no parameter %d", ErrRootParameter, rc.localRootSig.Name(), param)
	}
	if rc.localRootSig.Parameter(param).Type == RootParameter32BitConstants {
		return 0, fmt.Errorf("%w: %q parameter %d holds constants", ErrRootParameter, rc.localRootSig.Name(), param)
	}
	off := rc.localRootSig.localArgumentOffset(param)
	if off+8 > len(rc.localArgs) {
		return 0, fmt.Errorf("%w: shader record too small for %q parameter %d", ErrShaderRecordOutOfRange, rc.localRootSig.Name(), param)
	}
	return GPUVirtualAddress(binary.LittleEndian.Uint64(rc.localArgs[off:])), nil
}

// LocalConstantBuffer decodes the constant buffer referenced by param of
// the shader record.
func (rc *RayContext) LocalConstantBuffer(param int, out interface{}) error {
	addr, err := rc.LocalAddress(param)
	if err != nil {
		return err
	}
	return rc.device.readAddress(addr, out)
}

// LocalBuffer returns the bytes referenced by param of the shader record.
func (rc *RayContext) LocalBuffer(param int) ([]byte, error) {
	addr, err := rc.LocalAddress(param)
	if err != nil {
		return nil, err
	}
	return rc.device.bytesAt(addr)
}

// TraceRay traverses as and invokes the closest hit shader selected by
// rayContribution + geometryIndex*geometryMultiplier + instance offset, or
// the miss shader at missIndex. payload must be a pointer to a fixed-size
// value.
func (rc *RayContext) TraceRay(as AccelerationStructure, flags RayFlags, mask uint8, rayContribution, geometryMultiplier, missIndex uint32, ray Ray, payload interface{}) error {
	rd := rc.dispatch
	depth := rc.depth + 1
	if depth > rd.maxDepth {
		return fmt.Errorf("%w: depth %d; max %d", ErrRecursionDepthExceeded, depth, rd.maxDepth)
	}
	if size := binary.Size(payload); size < 0 || size > rd.maxPayload {
		return fmt.Errorf("%w: %T (%d bytes); max %d", ErrPayloadTooLarge, payload, size, rd.maxPayload)
	}

	child := &RayContext{
		DispatchContext: rc.DispatchContext,
		dispatch:        rd,
		index:           rc.index,
		depth:           depth,
		WorldRay:        ray,
	}

	var hit Hit
	var ok bool
	if as != nil {
		hit, ok = as.Intersect(ray, flags, mask)
	}
	if !ok {
		record, err := rd.missTable.record(uint64(missIndex))
		if err != nil {
			return err
		}
		exp, err := rd.so.decodeIdentifier(record, exportMiss)
		if exp == nil || err != nil {
			return err
		}
		child.localArgs = record[ShaderIdentifierSize:]
		child.localRootSig = exp.localRootSig
		return exp.shader.Miss(child, payload)
	}

	if flags&RayFlagSkipClosestHitShader != 0 {
		return nil
	}
	index := uint64(rayContribution) + uint64(hit.GeometryIndex)*uint64(geometryMultiplier) + uint64(hit.HitGroupOffset)
	record, err := rd.hitTable.record(index)
	if err != nil {
		return err
	}
	exp, err := rd.so.decodeIdentifier(record, exportHitGroup)
	if exp == nil || err != nil {
		return err
	}
	child.Hit = hit
	child.localArgs = record[ShaderIdentifierSize:]
	child.localRootSig = exp.localRootSig
	return exp.shader.ClosestHit(child, payload)
}
