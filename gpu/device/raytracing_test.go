package device

import (
	"testing"

	"github.com/achilleasa/rtdenoise/types"
	"github.com/stretchr/testify/require"
)

type stubAccel struct {
	hitGroupOffset uint32
}

// Pixels with an even x coordinate hit.
func (s stubAccel) Intersect(ray Ray, _ RayFlags, _ uint8) (Hit, bool) {
	if int(ray.Origin[0])%2 != 0 {
		return Hit{}, false
	}
	return Hit{T: 1, HitGroupOffset: s.hitGroupOffset}, true
}

type valuePayload struct {
	Value float32
}

type rayFixture struct {
	dev     *Device
	heap    *DescriptorHeap
	rootSig *RootSignature
	so      *StateObject
	out     *Resource
	uav     DescriptorHandle
	tables  *Resource
	accel   AccelerationStructure
}

func newRayFixture(t *testing.T, maxDepth int, closestHit HitFunc) *rayFixture {
	dev := New(WithDebugLayer(true), WithWorkers(2))
	f := &rayFixture{dev: dev, accel: stubAccel{hitGroupOffset: 1}}

	var err error
	f.rootSig, err = dev.CreateRootSignature(RootSignatureDesc{
		Name:       "global",
		Parameters: []RootParameter{DescriptorTable(UAVRange(1, 0))},
	})
	require.NoError(t, err)

	lib := &ShaderBytecode{Name: "lib", Library: RayLibrary{
		"raygen": {Kind: RayGenerationShader, RayGeneration: func(dc *DispatchContext) (func(rc *RayContext) error, error) {
			out, err := dc.UAV(0)
			if err != nil {
				return nil, err
			}
			return func(rc *RayContext) error {
				idx := rc.DispatchRaysIndex()
				payload := valuePayload{}
				ray := Ray{Origin: types.XYZ(float32(idx[0]), float32(idx[1]), 0), Direction: types.XYZ(0, 0, 1), TMax: 10}
				if err := rc.TraceRay(f.accel, RayFlagNone, 0xff, 0, 1, 0, ray, &payload); err != nil {
					return err
				}
				out.Store(int(idx[0]), int(idx[1]), [4]float32{payload.Value})
				return nil
			}, nil
		}},
		"miss": {Kind: MissShader, Miss: func(rc *RayContext, payload interface{}) error {
			payload.(*valuePayload).Value = -1
			return nil
		}},
		"closesthit": {Kind: ClosestHitShader, ClosestHit: closestHit},
	}}

	f.so, err = dev.CreateStateObject(StateObjectDesc{
		Name:                   "pipeline",
		Libraries:              []*ShaderBytecode{lib},
		HitGroups:              []HitGroupDesc{{Name: "hitgroup", ClosestHit: "closesthit"}},
		MaxPayloadSizeInBytes:  4,
		MaxTraceRecursionDepth: maxDepth,
		GlobalRootSignature:    f.rootSig,
	})
	require.NoError(t, err)

	f.heap, err = dev.CreateDescriptorHeap(DescriptorHeapDesc{Name: "heap", NumDescriptors: 1, ShaderVisible: true})
	require.NoError(t, err)
	f.out, err = dev.CreateCommittedResource(HeapProperties{}, HeapFlagNone, Tex2DDesc(FormatR32Float, 6, 3, ResourceFlagAllowUnorderedAccess), StateUnorderedAccess, nil)
	require.NoError(t, err)
	f.uav, err = NewDescriptorAllocator(f.heap).Allocate(1)
	require.NoError(t, err)
	require.NoError(t, dev.CreateUnorderedAccessView(f.out, nil, f.uav.CPU))

	// Layout: raygen @0, miss @64, hit records @128 and @192.
	f.tables, err = dev.CreateCommittedResource(HeapProperties{Type: HeapTypeUpload}, HeapFlagNone, BufferDesc(256, ResourceFlagNone), StateGenericRead, nil)
	require.NoError(t, err)
	f.writeIdentifier(t, f.so, "raygen", 0)
	f.writeIdentifier(t, f.so, "miss", 64)
	f.writeIdentifier(t, f.so, "hitgroup", 192)
	return f
}

func (f *rayFixture) writeIdentifier(t *testing.T, so *StateObject, export string, offset int) {
	id, err := so.ShaderIdentifier(export)
	require.NoError(t, err)
	data, err := f.tables.Map()
	require.NoError(t, err)
	copy(data[offset:], id)
}

func (f *rayFixture) run(t *testing.T) error {
	base := f.tables.GPUVirtualAddress()
	cl := f.dev.CreateCommandList("rays")
	cl.SetDescriptorHeaps(f.heap)
	cl.SetComputeRootSignature(f.rootSig)
	cl.SetPipelineState1(f.so)
	cl.SetComputeRootDescriptorTable(0, f.uav.GPU)
	cl.DispatchRays(DispatchRaysDesc{
		RayGenerationShaderRecord: GPUVirtualAddressRange{StartAddress: base, SizeInBytes: 64},
		MissShaderTable:           GPUVirtualAddressRangeAndStride{StartAddress: base.Offset(64), SizeInBytes: 64, StrideInBytes: 64},
		HitGroupTable:             GPUVirtualAddressRangeAndStride{StartAddress: base.Offset(128), SizeInBytes: 128, StrideInBytes: 64},
		Width:                     6,
		Height:                    3,
		Depth:                     1,
	})
	require.NoError(t, cl.Close())
	_, err := f.dev.ExecuteCommandList(cl)
	return err
}

func TestTraceRayInvokesHitAndMiss(t *testing.T) {
	f := newRayFixture(t, 1, func(rc *RayContext, payload interface{}) error {
		payload.(*valuePayload).Value = rc.Hit.T + float32(rc.RecursionDepth())
		return nil
	})
	require.NoError(t, f.run(t))

	for y := 0; y < 3; y++ {
		for x := 0; x < 6; x++ {
			exp := float32(-1)
			if x%2 == 0 {
				exp = 2
			}
			require.Equal(t, exp, f.out.Load(x, y)[0], "pixel (%d, %d)", x, y)
		}
	}
}

func TestTraceRayRecursionLimit(t *testing.T) {
	var f *rayFixture
	f = newRayFixture(t, 1, func(rc *RayContext, payload interface{}) error {
		return rc.TraceRay(f.accel, RayFlagNone, 0xff, 0, 1, 0, rc.WorldRay, payload)
	})
	require.ErrorIs(t, f.run(t), ErrRecursionDepthExceeded)

	f = newRayFixture(t, 2, func(rc *RayContext, payload interface{}) error {
		if rc.RecursionDepth() > 1 {
			payload.(*valuePayload).Value = 7
			return nil
		}
		return rc.TraceRay(f.accel, RayFlagNone, 0xff, 0, 1, 0, rc.WorldRay, payload)
	})
	require.NoError(t, f.run(t))
	require.Equal(t, float32(7), f.out.Load(0, 0)[0])
}

func TestShaderRecordSelection(t *testing.T) {
	f := newRayFixture(t, 1, func(rc *RayContext, payload interface{}) error {
		payload.(*valuePayload).Value = 1
		return nil
	})

	// Record 0 holds the null identifier so only the instance offset
	// reaches the hit group.
	f.accel = stubAccel{hitGroupOffset: 0}
	require.NoError(t, f.run(t))
	require.Equal(t, float32(0), f.out.Load(0, 0)[0])

	f.accel = stubAccel{hitGroupOffset: 2}
	require.ErrorIs(t, f.run(t), ErrShaderRecordOutOfRange)
}

func TestForeignShaderIdentifier(t *testing.T) {
	hit := func(rc *RayContext, payload interface{}) error { return nil }
	f := newRayFixture(t, 1, hit)
	other := newRayFixture(t, 1, hit)

	f.writeIdentifier(t, other.so, "hitgroup", 192)
	require.ErrorIs(t, f.run(t), ErrForeignShaderIdentifier)
}

func TestPayloadSizeLimit(t *testing.T) {
	var f *rayFixture
	f = newRayFixture(t, 1, func(rc *RayContext, payload interface{}) error {
		var big struct{ A, B float32 }
		return rc.TraceRay(f.accel, RayFlagNone, 0xff, 0, 1, 0, rc.WorldRay, &big)
	})
	f.so.desc.MaxTraceRecursionDepth = 2
	require.ErrorIs(t, f.run(t), ErrPayloadTooLarge)
}

func TestStateObjectValidation(t *testing.T) {
	dev := New()
	rs, err := dev.CreateRootSignature(RootSignatureDesc{Name: "global"})
	require.NoError(t, err)

	_, err = dev.CreateStateObject(StateObjectDesc{
		Name:                   "no-raygen",
		Libraries:              []*ShaderBytecode{{Name: "lib", Library: RayLibrary{}}},
		MaxPayloadSizeInBytes:  4,
		MaxTraceRecursionDepth: 1,
		GlobalRootSignature:    rs,
	})
	require.ErrorIs(t, err, ErrInvalidStateObject)

	raygen := RayShader{Kind: RayGenerationShader, RayGeneration: func(dc *DispatchContext) (func(rc *RayContext) error, error) {
		return func(*RayContext) error { return nil }, nil
	}}
	_, err = dev.CreateStateObject(StateObjectDesc{
		Name:                   "bad-hitgroup",
		Libraries:              []*ShaderBytecode{{Name: "lib", Library: RayLibrary{"rg": raygen}}},
		HitGroups:              []HitGroupDesc{{Name: "hg", ClosestHit: "missing"}},
		MaxPayloadSizeInBytes:  4,
		MaxTraceRecursionDepth: 1,
		GlobalRootSignature:    rs,
	})
	require.ErrorIs(t, err, ErrInvalidStateObject)

	so, err := dev.CreateStateObject(StateObjectDesc{
		Name:                   "ok",
		Libraries:              []*ShaderBytecode{{Name: "lib", Library: RayLibrary{"rg": raygen}}},
		MaxPayloadSizeInBytes:  4,
		MaxTraceRecursionDepth: 1,
		GlobalRootSignature:    rs,
	})
	require.NoError(t, err)
	_, err = so.ShaderIdentifier("nope")
	require.ErrorIs(t, err, ErrUnknownExport)
}
