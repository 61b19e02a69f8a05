// Package reflection implements ray traced mirror reflections shaded with
// image based lighting, followed by the shared temporal and spatial filter.
package reflection

import (
	"encoding/binary"
	"fmt"

	"github.com/achilleasa/rtdenoise/denoise"
	"github.com/achilleasa/rtdenoise/denoise/svgf"
	"github.com/achilleasa/rtdenoise/gpu/device"
	"github.com/achilleasa/rtdenoise/gpu/shader"
	"github.com/achilleasa/rtdenoise/gpu/shadertable"
	"github.com/achilleasa/rtdenoise/ibl"
	"github.com/achilleasa/rtdenoise/log"
	"github.com/achilleasa/rtdenoise/scene"
)

const name = "reflection"

// Size of the local arguments of a hit group record: four root descriptors.
const localArgsSize = numLocalParams * 8

// Reflection traces one reflection ray per pixel and filters the result.
type Reflection struct {
	logger   log.Logger
	settings Settings

	dev     *device.Device
	shaders *shader.Manager
	heap    *device.DescriptorHeap
	width   uint32
	height  uint32

	filter *svgf.Filter
	env    *ibl.Maps

	color       svgf.View
	hitDistance svgf.View

	rootSig      *device.RootSignature
	localRootSig *device.RootSignature
	so           *device.StateObject

	rayGenTable *shadertable.Table
	missTable   *shadertable.Table
	hitTable    *shadertable.Table

	descriptorsBuilt bool
}

// New creates a reflection denoiser with the default settings.
func New() (*Reflection, error) {
	filter, err := svgf.NewFilter(svgf.FilterDesc{Name: name, Channels: 3})
	if err != nil {
		return nil, err
	}
	r := &Reflection{
		logger:   log.New(name),
		settings: DefaultSettings(),
		filter:   filter,
	}
	if err = filter.SetSettings(r.settings.Denoiser); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reflection) Settings() Settings {
	return r.settings
}

// SetSettings validates and applies s.
func (r *Reflection) SetSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := r.filter.SetSettings(s.Denoiser); err != nil {
		return err
	}
	r.settings = s
	return nil
}

// SetEnvironment selects the baked lighting used by the reflection rays.
// The maps must have shader visible views.
func (r *Reflection) SetEnvironment(maps *ibl.Maps) {
	r.env = maps
}

func (r *Reflection) Filter() *svgf.Filter {
	return r.filter
}

// Reflection returns the filtered reflection color of the last frame.
func (r *Reflection) Reflection() *svgf.View {
	return r.filter.Denoised()
}

func (r *Reflection) ReflectionSRV() device.DescriptorHandle {
	return r.filter.Denoised().SRV
}

// RawReflection returns the unfiltered output of the ray dispatch.
func (r *Reflection) RawReflection() *svgf.View {
	return &r.color
}

func (r *Reflection) RayHitDistance() *svgf.View {
	return &r.hitDistance
}

// Initialize allocates the ray outputs and the filter resources.
func (r *Reflection) Initialize(dev *device.Device, shaders *shader.Manager, width, height uint32) error {
	r.dev = dev
	r.shaders = shaders
	r.width, r.height = width, height
	if err := r.allocateResources(); err != nil {
		return err
	}
	return r.filter.Initialize(dev, shaders, width, height)
}

func (r *Reflection) allocateResources() error {
	if err := svgf.AllocateTexture(r.dev, &r.color, name+"/ReflectionColorRaw", device.FormatR16G16B16A16Float, r.width, r.height); err != nil {
		return err
	}
	return svgf.AllocateTexture(r.dev, &r.hitDistance, name+"/RayHitDistance", device.FormatR16Float, r.width, r.height)
}

func (r *Reflection) CompileShaders() error {
	if r.shaders == nil {
		return ErrNotInitialized
	}
	err := r.shaders.CompileShaders([]shader.CompileRequest{
		{Name: libraryEntryPoint, EntryPoint: libraryEntryPoint},
	})
	if err != nil {
		return err
	}
	return r.filter.CompileShaders()
}

// BuildRootSignatures creates the global root signature of the ray
// dispatch, the local root signature of the hit groups and the filter root
// signatures.
func (r *Reflection) BuildRootSignatures() error {
	if r.dev == nil {
		return ErrNotInitialized
	}
	params := make([]device.RootParameter, numParams)
	params[paramConstants] = device.Constants(binary.Size(rayGenParams{})/4, 0)
	params[paramAccelerationStructure] = device.RootSRV(0)
	params[paramPassConstants] = device.RootCBV(1)
	params[paramNormalDepth] = device.DescriptorTable(device.SRVRange(1, 1))
	params[paramPosition] = device.DescriptorTable(device.SRVRange(1, 2))
	params[paramIrradiance] = device.DescriptorTable(device.SRVRange(1, 3))
	params[paramPrefiltered] = device.DescriptorTable(device.SRVRange(1, 4))
	params[paramBRDFLUT] = device.DescriptorTable(device.SRVRange(1, 5))
	params[paramColor] = device.DescriptorTable(device.UAVRange(1, 0))
	params[paramRayHitDistance] = device.DescriptorTable(device.UAVRange(1, 1))

	var err error
	r.rootSig, err = r.dev.CreateRootSignature(device.RootSignatureDesc{Name: name + "/Global", Parameters: params})
	if err != nil {
		return fmt.Errorf("reflection: global root signature: %w", err)
	}

	local := make([]device.RootParameter, numLocalParams)
	local[localObjectCB] = device.RootCBV(2)
	local[localMaterialCB] = device.RootCBV(3)
	local[localVertexBuffer] = device.RootSRV(6)
	local[localIndexBuffer] = device.RootSRV(7)
	r.localRootSig, err = r.dev.CreateRootSignature(device.RootSignatureDesc{Name: name + "/Local", Parameters: local, Local: true})
	if err != nil {
		return fmt.Errorf("reflection: local root signature: %w", err)
	}
	return r.filter.BuildRootSignatures()
}

// BuildPSO creates the ray tracing state object and the filter pipelines.
func (r *Reflection) BuildPSO() error {
	if r.rootSig == nil {
		return ErrNotInitialized
	}
	lib, err := r.shaders.GetShader(libraryEntryPoint)
	if err != nil {
		return fmt.Errorf("reflection: %w", err)
	}
	r.so, err = r.dev.CreateStateObject(device.StateObjectDesc{
		Name:      name + "/StateObject",
		Libraries: []*device.ShaderBytecode{lib},
		HitGroups: []device.HitGroupDesc{
			{Name: radianceHitGroupName, ClosestHit: radianceClosestHitName},
			{Name: shadowHitGroupName, ClosestHit: shadowClosestHitName},
		},
		MaxPayloadSizeInBytes:   max(binary.Size(radiancePayload{}), binary.Size(shadowPayload{})),
		MaxAttributeSizeInBytes: 8,
		// Shadow rays are traced from the radiance closest hit shader.
		MaxTraceRecursionDepth: 2,
		GlobalRootSignature:    r.rootSig,
		LocalRootSignatures: []device.LocalRootSignatureAssociation{{
			RootSignature: r.localRootSig,
			Exports:       []string{radianceHitGroupName, shadowHitGroupName},
		}},
	})
	if err != nil {
		return fmt.Errorf("reflection: %w", err)
	}
	return r.filter.BuildPSOs()
}

func (r *Reflection) BuildDescriptors(alloc *device.DescriptorAllocator) error {
	for _, v := range []*svgf.View{&r.color, &r.hitDistance} {
		if err := svgf.CreateViews(r.dev, alloc, v); err != nil {
			return fmt.Errorf("reflection: %w", err)
		}
	}
	if err := r.filter.BuildDescriptors(alloc); err != nil {
		return err
	}
	r.heap = alloc.Heap()
	r.descriptorsBuilt = true
	return nil
}

// BuildShaderTables writes one ray generation record, the radiance and
// shadow miss records and a radiance and shadow hit group record per
// render item of gs. Hit group records carry the addresses of the item's
// object constants, material constants and geometry buffers. The tables
// must be rebuilt whenever the scene is uploaded again.
func (r *Reflection) BuildShaderTables(gs *scene.GpuScene) error {
	if r.so == nil {
		return ErrNotInitialized
	}
	r.releaseShaderTables()

	ids := make(map[string][]byte)
	for _, export := range []string{rayGenShaderName, radianceMissName, shadowMissName, radianceHitGroupName, shadowHitGroupName} {
		id, err := r.so.ShaderIdentifier(export)
		if err != nil {
			return fmt.Errorf("reflection: %w", err)
		}
		ids[export] = id
	}

	var err error
	if r.rayGenTable, err = r.newTable(1, shadertable.ShaderIdentifierSize, "RayGenShaderTable", shadertable.Record{Identifier: ids[rayGenShaderName]}); err != nil {
		return err
	}
	if r.missTable, err = r.newTable(2, shadertable.ShaderIdentifierSize, "MissShaderTable",
		shadertable.Record{Identifier: ids[radianceMissName]},
		shadertable.Record{Identifier: ids[shadowMissName]},
	); err != nil {
		return err
	}

	items := gs.Scene().Items
	records := make([]shadertable.Record, 0, len(items)*scene.HitGroupsPerItem)
	for i, item := range items {
		args := make([]byte, localArgsSize)
		addrs := [numLocalParams]device.GPUVirtualAddress{
			localObjectCB:     gs.ObjectCBAddress(uint32(i)),
			localMaterialCB:   gs.MaterialCBAddress(item.MaterialIndex),
			localVertexBuffer: item.Geometry.VertexBuffer.GPUVirtualAddress(),
			localIndexBuffer:  item.Geometry.IndexBuffer.GPUVirtualAddress(),
		}
		for p, addr := range addrs {
			binary.LittleEndian.PutUint64(args[p*8:], uint64(addr))
		}
		records = append(records,
			shadertable.Record{Identifier: ids[radianceHitGroupName], LocalArgs: args},
			shadertable.Record{Identifier: ids[shadowHitGroupName], LocalArgs: args},
		)
	}
	if r.hitTable, err = r.newTable(len(records), shadertable.ShaderIdentifierSize+localArgsSize, "HitGroupShaderTable", records...); err != nil {
		return err
	}
	r.logger.Debugf("built shader tables for %d render items", len(items))
	return nil
}

func (r *Reflection) newTable(numRecords, recordSize int, label string, records ...shadertable.Record) (*shadertable.Table, error) {
	table, err := shadertable.New(r.dev, numRecords, recordSize, name+"/"+label)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if err = table.PushBack(rec); err != nil {
			table.Release()
			return nil, err
		}
	}
	return table, nil
}

func (r *Reflection) releaseShaderTables() {
	r.rayGenTable.Release()
	r.missTable.Release()
	r.hitTable.Release()
	r.rayGenTable, r.missTable, r.hitTable = nil, nil, nil
}

// ShaderTableInfo renders the shader tables for debugging.
func (r *Reflection) ShaderTableInfo() string {
	if r.rayGenTable == nil {
		return ""
	}
	names := make(map[string]string)
	for _, export := range []string{rayGenShaderName, radianceMissName, shadowMissName, radianceHitGroupName, shadowHitGroupName} {
		if id, err := r.so.ShaderIdentifier(export); err == nil {
			names[string(id)] = export
		}
	}
	return r.rayGenTable.DebugString(names) + r.missTable.DebugString(names) + r.hitTable.DebugString(names)
}

func transiteForWrite(cmd *device.CommandList, v *svgf.View) {
	if v.Resource.State() == device.StateUnorderedAccess {
		v.Resource.UAVBarrier(cmd)
		return
	}
	v.Resource.Transite(cmd, device.StateUnorderedAccess)
}

// RunCalculatingReflections records the reflection ray dispatch. It panics
// if no environment has been set.
func (r *Reflection) RunCalculatingReflections(cmd *device.CommandList, frame denoise.Frame) {
	if r.env == nil {
		panic(ErrNoEnvironment)
	}
	s := r.settings
	cb := s.Denoiser.CheckerboardSampling
	height := r.height
	if cb {
		height = (r.height + 1) / 2
	}

	cmd.BeginEvent(name + "/CalculateReflections")
	frame.GBuffer.NormalDepth.Resource.Transite(cmd, device.StateNonPixelShaderResource)
	frame.GBuffer.Position.Resource.Transite(cmd, device.StateNonPixelShaderResource)
	transiteForWrite(cmd, &r.color)
	transiteForWrite(cmd, &r.hitDistance)

	cmd.SetDescriptorHeaps(r.heap)
	cmd.SetComputeRootSignature(r.rootSig)
	cmd.SetPipelineState1(r.so)
	cmd.SetComputeRootConstants(paramConstants, rayGenParams{
		Width:             r.width,
		Height:            r.height,
		Checkerboard:      boolToUint(cb),
		Parity:            r.filter.Parity(),
		ReflectionRadius:  s.ReflectionRadius,
		ShadowRayOffset:   s.ShadowRayOffset,
		PrefilteredLevels: r.env.Levels,
	})
	cmd.SetComputeRootShaderResourceView(paramAccelerationStructure, frame.AccelerationStructure)
	cmd.SetComputeRootConstantBufferView(paramPassConstants, frame.PassConstants)
	cmd.SetComputeRootDescriptorTable(paramNormalDepth, frame.GBuffer.NormalDepth.SRV.GPU)
	cmd.SetComputeRootDescriptorTable(paramPosition, frame.GBuffer.Position.SRV.GPU)
	cmd.SetComputeRootDescriptorTable(paramIrradiance, r.env.Irradiance.SRV.GPU)
	cmd.SetComputeRootDescriptorTable(paramPrefiltered, r.env.Prefiltered.SRV.GPU)
	cmd.SetComputeRootDescriptorTable(paramBRDFLUT, r.env.BRDFLUT.SRV.GPU)
	cmd.SetComputeRootDescriptorTable(paramColor, r.color.UAV.GPU)
	cmd.SetComputeRootDescriptorTable(paramRayHitDistance, r.hitDistance.UAV.GPU)

	cmd.DispatchRays(device.DispatchRaysDesc{
		RayGenerationShaderRecord: r.rayGenTable.Range(),
		MissShaderTable:           r.missTable.RangeAndStride(),
		HitGroupTable:             r.hitTable.RangeAndStride(),
		Width:                     r.width,
		Height:                    height,
		Depth:                     1,
	})
	cmd.EndEvent()
}

// Run records the whole frame: depth derivatives, the reflection rays and
// the filter chain.
func (r *Reflection) Run(cmd *device.CommandList, frame denoise.Frame) {
	cmd.BeginEvent(name)
	r.filter.CalculateDepthPartialDerivative(cmd, frame.GBuffer)
	r.RunCalculatingReflections(cmd, frame)
	r.filter.Denoise(cmd, svgf.Inputs{
		GBuffer:     frame.GBuffer,
		Value:       r.color,
		HitDistance: r.hitDistance,
	})
	cmd.EndEvent()
}

// MoveToNextFrame commits the temporal cache written by the last Run.
func (r *Reflection) MoveToNextFrame() (int, error) {
	return r.filter.MoveToNextFrame()
}

// MoveToNextFrameTemporalReflection commits the accumulated reflection
// color written by the last Run.
func (r *Reflection) MoveToNextFrameTemporalReflection() (int, error) {
	return r.filter.MoveToNextFrameValues()
}

// OnResize reallocates every size dependent resource and drops the
// history. Resizing to the current size is a no-op.
func (r *Reflection) OnResize(width, height uint32) error {
	if width == r.width && height == r.height {
		return nil
	}
	r.logger.Infof("resizing %dx%d -> %dx%d", r.width, r.height, width, height)
	r.width, r.height = width, height
	if err := r.allocateResources(); err != nil {
		return err
	}
	if r.descriptorsBuilt {
		for _, v := range []*svgf.View{&r.color, &r.hitDistance} {
			if err := svgf.RefreshViews(r.dev, v); err != nil {
				return err
			}
		}
	}
	return r.filter.OnResize(width, height)
}

// Release frees the denoiser resources. The environment maps are owned by
// the caller.
func (r *Reflection) Release() {
	r.releaseShaderTables()
	for _, v := range []*svgf.View{&r.color, &r.hitDistance} {
		if v.Resource != nil {
			v.Resource.Release()
		}
	}
	r.filter.Release()
}

func boolToUint(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}
