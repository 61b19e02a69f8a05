// Package rtao implements ray traced ambient occlusion with a temporal and
// spatial denoiser.
package rtao

import (
	"encoding/binary"
	"fmt"

	"github.com/achilleasa/rtdenoise/denoise"
	"github.com/achilleasa/rtdenoise/denoise/svgf"
	"github.com/achilleasa/rtdenoise/gpu/device"
	"github.com/achilleasa/rtdenoise/gpu/shader"
	"github.com/achilleasa/rtdenoise/gpu/shadertable"
	"github.com/achilleasa/rtdenoise/log"
)

const name = "rtao"

// RTAO traces ambient occlusion rays and filters the result. The device and
// shader manager passed to Initialize must outlive the denoiser.
type RTAO struct {
	logger   log.Logger
	settings Settings

	dev     *device.Device
	shaders *shader.Manager
	heap    *device.DescriptorHeap
	width   uint32
	height  uint32

	filter *svgf.Filter

	aoRaw       svgf.View
	hitDistance svgf.View

	rootSig *device.RootSignature
	so      *device.StateObject

	rayGenTable *shadertable.Table
	missTable   *shadertable.Table
	hitTable    *shadertable.Table

	descriptorsBuilt bool
}

// New creates a denoiser with the default settings.
func New() (*RTAO, error) {
	filter, err := svgf.NewFilter(svgf.FilterDesc{Name: name, Channels: 1})
	if err != nil {
		return nil, err
	}
	return &RTAO{
		logger:   log.New(name),
		settings: DefaultSettings(),
		filter:   filter,
	}, nil
}

func (r *RTAO) Settings() Settings {
	return r.settings
}

// SetSettings validates and applies s. Changes take effect with the next
// recorded frame.
func (r *RTAO) SetSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := r.filter.SetSettings(s.Denoiser); err != nil {
		return err
	}
	r.settings = s
	return nil
}

// Filter exposes the denoiser's filter chain.
func (r *RTAO) Filter() *svgf.Filter {
	return r.filter
}

// AOCoefficient returns the filtered ambient occlusion of the last frame.
func (r *RTAO) AOCoefficient() *svgf.View {
	return r.filter.Denoised()
}

// AOCoefficientSRV returns the shader visible handle of AOCoefficient.
func (r *RTAO) AOCoefficientSRV() device.DescriptorHandle {
	return r.filter.Denoised().SRV
}

// RawAOCoefficient returns the unfiltered output of the ray dispatch.
func (r *RTAO) RawAOCoefficient() *svgf.View {
	return &r.aoRaw
}

// RayHitDistance returns the average occluder distance traced this frame.
func (r *RTAO) RayHitDistance() *svgf.View {
	return &r.hitDistance
}

// Initialize allocates the ray outputs and the filter resources.
func (r *RTAO) Initialize(dev *device.Device, shaders *shader.Manager, width, height uint32) error {
	r.dev = dev
	r.shaders = shaders
	r.width, r.height = width, height
	if err := r.allocateResources(); err != nil {
		return err
	}
	return r.filter.Initialize(dev, shaders, width, height)
}

func (r *RTAO) allocateResources() error {
	if err := svgf.AllocateTexture(r.dev, &r.aoRaw, name+"/AOCoefficientRaw", device.FormatR16Float, r.width, r.height); err != nil {
		return err
	}
	return svgf.AllocateTexture(r.dev, &r.hitDistance, name+"/RayHitDistance", device.FormatR16Float, r.width, r.height)
}

// CompileShaders compiles the ray tracing library and the filter kernels.
func (r *RTAO) CompileShaders() error {
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

// BuildRootSignatures creates the global root signature of the ray dispatch
// and the filter root signatures. The ray shaders take no local arguments.
func (r *RTAO) BuildRootSignatures() error {
	if r.dev == nil {
		return ErrNotInitialized
	}
	params := make([]device.RootParameter, numParams)
	params[paramConstants] = device.Constants(binary.Size(rayGenParams{})/4, 0)
	params[paramAccelerationStructure] = device.RootSRV(0)
	params[paramPassConstants] = device.RootCBV(1)
	params[paramNormalDepth] = device.DescriptorTable(device.SRVRange(1, 1))
	params[paramPosition] = device.DescriptorTable(device.SRVRange(1, 2))
	params[paramAOCoefficient] = device.DescriptorTable(device.UAVRange(1, 0))
	params[paramRayHitDistance] = device.DescriptorTable(device.UAVRange(1, 1))

	var err error
	r.rootSig, err = r.dev.CreateRootSignature(device.RootSignatureDesc{Name: name + "/Global", Parameters: params})
	if err != nil {
		return fmt.Errorf("rtao: global root signature: %w", err)
	}
	return r.filter.BuildRootSignatures()
}

// BuildPSO creates the ray tracing state object and the filter pipelines.
func (r *RTAO) BuildPSO() error {
	if r.rootSig == nil {
		return ErrNotInitialized
	}
	lib, err := r.shaders.GetShader(libraryEntryPoint)
	if err != nil {
		return fmt.Errorf("rtao: %w", err)
	}
	r.so, err = r.dev.CreateStateObject(device.StateObjectDesc{
		Name:                    name + "/StateObject",
		Libraries:               []*device.ShaderBytecode{lib},
		HitGroups:               []device.HitGroupDesc{{Name: hitGroupName, ClosestHit: closestHitShaderName}},
		MaxPayloadSizeInBytes:   binary.Size(aoPayload{}),
		MaxAttributeSizeInBytes: 8,
		MaxTraceRecursionDepth:  1,
		GlobalRootSignature:     r.rootSig,
	})
	if err != nil {
		return fmt.Errorf("rtao: %w", err)
	}
	return r.filter.BuildPSOs()
}

// BuildDescriptors writes the ray output views and the filter views into
// slots reserved from alloc.
func (r *RTAO) BuildDescriptors(alloc *device.DescriptorAllocator) error {
	for _, v := range []*svgf.View{&r.aoRaw, &r.hitDistance} {
		if err := svgf.CreateViews(r.dev, alloc, v); err != nil {
			return fmt.Errorf("rtao: %w", err)
		}
	}
	if err := r.filter.BuildDescriptors(alloc); err != nil {
		return err
	}
	r.heap = alloc.Heap()
	r.descriptorsBuilt = true
	return nil
}

// BuildShaderTables creates one record tables for ray generation, miss and
// hit group. Every instance shares the single hit group record, so the
// table does not depend on numRenderItems beyond logging.
func (r *RTAO) BuildShaderTables(numRenderItems int) error {
	if r.so == nil {
		return ErrNotInitialized
	}
	r.releaseShaderTables()

	tables := []struct {
		table  **shadertable.Table
		export string
		label  string
	}{
		{&r.rayGenTable, rayGenShaderName, "RayGenShaderTable"},
		{&r.missTable, missShaderName, "MissShaderTable"},
		{&r.hitTable, hitGroupName, "HitGroupShaderTable"},
	}
	for _, t := range tables {
		id, err := r.so.ShaderIdentifier(t.export)
		if err != nil {
			return fmt.Errorf("rtao: %w", err)
		}
		table, err := shadertable.New(r.dev, 1, shadertable.ShaderIdentifierSize, name+"/"+t.label)
		if err != nil {
			return err
		}
		if err = table.PushBack(shadertable.Record{Identifier: id}); err != nil {
			table.Release()
			return err
		}
		*t.table = table
	}
	r.logger.Debugf("built shader tables for %d render items", numRenderItems)
	return nil
}

func (r *RTAO) releaseShaderTables() {
	r.rayGenTable.Release()
	r.missTable.Release()
	r.hitTable.Release()
	r.rayGenTable, r.missTable, r.hitTable = nil, nil, nil
}

// ShaderTableInfo renders the shader tables for debugging.
func (r *RTAO) ShaderTableInfo() string {
	if r.rayGenTable == nil {
		return ""
	}
	names := make(map[string]string)
	for _, export := range []string{rayGenShaderName, missShaderName, hitGroupName} {
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

// RunCalculatingAmbientOcclusion records the occlusion ray dispatch. With
// checkerboard sampling only the pixels of the current parity are traced.
func (r *RTAO) RunCalculatingAmbientOcclusion(cmd *device.CommandList, frame denoise.Frame) {
	s := r.settings
	cb := s.Denoiser.CheckerboardSampling
	height := r.height
	if cb {
		height = (r.height + 1) / 2
	}

	cmd.BeginEvent(name + "/CalculateAmbientOcclusion")
	frame.GBuffer.NormalDepth.Resource.Transite(cmd, device.StateNonPixelShaderResource)
	frame.GBuffer.Position.Resource.Transite(cmd, device.StateNonPixelShaderResource)
	transiteForWrite(cmd, &r.aoRaw)
	transiteForWrite(cmd, &r.hitDistance)

	cmd.SetDescriptorHeaps(r.heap)
	cmd.SetComputeRootSignature(r.rootSig)
	cmd.SetPipelineState1(r.so)
	cmd.SetComputeRootConstants(paramConstants, rayGenParams{
		Width:                      r.width,
		Height:                     r.height,
		Checkerboard:               boolToUint(cb),
		Parity:                     r.filter.Parity(),
		SamplesPerPixel:            s.SamplesPerPixel,
		MaxRayHitTime:              s.MaxRayHitTime,
		ApplyExponentialFalloff:    boolToUint(s.ApplyExponentialFalloff),
		FalloffDecayConstant:       s.FalloffDecayConstant,
		MinimumAmbientIllumination: s.MinimumAmbientIllumination,
	})
	cmd.SetComputeRootShaderResourceView(paramAccelerationStructure, frame.AccelerationStructure)
	cmd.SetComputeRootConstantBufferView(paramPassConstants, frame.PassConstants)
	cmd.SetComputeRootDescriptorTable(paramNormalDepth, frame.GBuffer.NormalDepth.SRV.GPU)
	cmd.SetComputeRootDescriptorTable(paramPosition, frame.GBuffer.Position.SRV.GPU)
	cmd.SetComputeRootDescriptorTable(paramAOCoefficient, r.aoRaw.UAV.GPU)
	cmd.SetComputeRootDescriptorTable(paramRayHitDistance, r.hitDistance.UAV.GPU)

	hitGroups := r.hitTable.RangeAndStride()
	hitGroups.StrideInBytes = 0
	cmd.DispatchRays(device.DispatchRaysDesc{
		RayGenerationShaderRecord: r.rayGenTable.Range(),
		MissShaderTable:           r.missTable.RangeAndStride(),
		HitGroupTable:             hitGroups,
		Width:                     r.width,
		Height:                    height,
		Depth:                     1,
	})
	cmd.EndEvent()
}

// Run records the whole frame: depth derivatives, the occlusion rays and
// the filter chain.
func (r *RTAO) Run(cmd *device.CommandList, frame denoise.Frame) {
	cmd.BeginEvent(name)
	r.filter.CalculateDepthPartialDerivative(cmd, frame.GBuffer)
	r.RunCalculatingAmbientOcclusion(cmd, frame)
	r.filter.Denoise(cmd, svgf.Inputs{
		GBuffer:     frame.GBuffer,
		Value:       r.aoRaw,
		HitDistance: r.hitDistance,
	})
	cmd.EndEvent()
}

// MoveToNextFrame commits the temporal cache written by the last Run.
func (r *RTAO) MoveToNextFrame() (int, error) {
	return r.filter.MoveToNextFrame()
}

// MoveToNextFrameTemporalAOCoefficient commits the accumulated coefficient
// written by the last Run.
func (r *RTAO) MoveToNextFrameTemporalAOCoefficient() (int, error) {
	return r.filter.MoveToNextFrameValues()
}

// OnResize reallocates every size dependent resource and drops the
// history. Resizing to the current size is a no-op.
func (r *RTAO) OnResize(width, height uint32) error {
	if width == r.width && height == r.height {
		return nil
	}
	r.logger.Infof("resizing %dx%d -> %dx%d", r.width, r.height, width, height)
	r.width, r.height = width, height
	if err := r.allocateResources(); err != nil {
		return err
	}
	if r.descriptorsBuilt {
		for _, v := range []*svgf.View{&r.aoRaw, &r.hitDistance} {
			if err := svgf.RefreshViews(r.dev, v); err != nil {
				return err
			}
		}
	}
	return r.filter.OnResize(width, height)
}

// Release frees the denoiser resources.
func (r *RTAO) Release() {
	r.releaseShaderTables()
	for _, v := range []*svgf.View{&r.aoRaw, &r.hitDistance} {
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
