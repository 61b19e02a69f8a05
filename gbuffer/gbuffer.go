// Package gbuffer produces the geometry buffer consumed by the denoisers by
// tracing primary rays through the scene's top level structure.
package gbuffer

import (
	"encoding/binary"
	"fmt"

	"github.com/achilleasa/rtdenoise/denoise/svgf"
	"github.com/achilleasa/rtdenoise/gpu/device"
	"github.com/achilleasa/rtdenoise/gpu/shader"
	"github.com/achilleasa/rtdenoise/log"
	"github.com/achilleasa/rtdenoise/scene"
)

// Pass writes normal-depth, position and velocity for every pixel. The
// device and shader manager must outlive the pass.
type Pass struct {
	logger log.Logger

	dev     *device.Device
	shaders *shader.Manager
	heap    *device.DescriptorHeap
	width   uint32
	height  uint32

	gbuf svgf.GBuffer

	rootSig *device.RootSignature
	pso     *device.PipelineState

	descriptorsBuilt bool
}

func New() *Pass {
	return &Pass{logger: log.New("gbuffer")}
}

// GBuffer returns the views written by the last Run.
func (p *Pass) GBuffer() svgf.GBuffer {
	return p.gbuf
}

func (p *Pass) views() []*svgf.View {
	return []*svgf.View{&p.gbuf.NormalDepth, &p.gbuf.Position, &p.gbuf.Velocity}
}

func (p *Pass) Initialize(dev *device.Device, shaders *shader.Manager, width, height uint32) error {
	p.dev = dev
	p.shaders = shaders
	p.width, p.height = width, height
	return p.allocateResources()
}

func (p *Pass) allocateResources() error {
	textures := []struct {
		view   *svgf.View
		name   string
		format device.Format
	}{
		{&p.gbuf.NormalDepth, "gbuffer/NormalDepth", device.FormatR32G32B32A32Float},
		{&p.gbuf.Position, "gbuffer/Position", device.FormatR32G32B32A32Float},
		{&p.gbuf.Velocity, "gbuffer/Velocity", device.FormatR32G32Float},
	}
	for _, tex := range textures {
		if err := svgf.AllocateTexture(p.dev, tex.view, tex.name, tex.format, p.width, p.height); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pass) CompileShaders() error {
	if p.shaders == nil {
		return ErrNotInitialized
	}
	return p.shaders.CompileShaders([]shader.CompileRequest{{Name: programName, EntryPoint: programName}})
}

func (p *Pass) BuildRootSignature() error {
	if p.dev == nil {
		return ErrNotInitialized
	}
	params := make([]device.RootParameter, numParams)
	params[paramConstants] = device.Constants(binary.Size(primaryRayParams{})/4, 0)
	params[paramAccelerationStructure] = device.RootSRV(0)
	params[paramPassConstants] = device.RootCBV(1)
	params[paramInstanceTable] = device.RootSRV(1)
	params[paramNormalDepth] = device.DescriptorTable(device.UAVRange(1, 0))
	params[paramPosition] = device.DescriptorTable(device.UAVRange(1, 1))
	params[paramVelocity] = device.DescriptorTable(device.UAVRange(1, 2))

	var err error
	p.rootSig, err = p.dev.CreateRootSignature(device.RootSignatureDesc{Name: programName, Parameters: params})
	if err != nil {
		return fmt.Errorf("gbuffer: root signature: %w", err)
	}
	return nil
}

func (p *Pass) BuildPSO() error {
	if p.rootSig == nil {
		return ErrNotInitialized
	}
	cs, err := p.shaders.GetShader(programName)
	if err != nil {
		return fmt.Errorf("gbuffer: %w", err)
	}
	p.pso, err = p.dev.CreateComputePipelineState(device.ComputePipelineStateDesc{
		Name:          programName,
		RootSignature: p.rootSig,
		CS:            cs,
	})
	if err != nil {
		return fmt.Errorf("gbuffer: %w", err)
	}
	return nil
}

// BuildDescriptors writes the G-buffer views into slots reserved from alloc.
func (p *Pass) BuildDescriptors(alloc *device.DescriptorAllocator) error {
	for _, v := range p.views() {
		if err := svgf.CreateViews(p.dev, alloc, v); err != nil {
			return fmt.Errorf("gbuffer: %w", err)
		}
	}
	p.heap = alloc.Heap()
	p.descriptorsBuilt = true
	return nil
}

// Run records the primary ray dispatch for the current state of gs. The
// pass constants must have been updated for this frame.
func (p *Pass) Run(cmd *device.CommandList, gs *scene.GpuScene) {
	cmd.BeginEvent("gbuffer")
	for _, v := range p.views() {
		if v.Resource.State() == device.StateUnorderedAccess {
			v.Resource.UAVBarrier(cmd)
			continue
		}
		v.Resource.Transite(cmd, device.StateUnorderedAccess)
	}
	cmd.SetDescriptorHeaps(p.heap)
	cmd.SetComputeRootSignature(p.rootSig)
	cmd.SetPipelineState(p.pso)
	cmd.SetComputeRootConstants(paramConstants, primaryRayParams{
		Width:        p.width,
		Height:       p.height,
		NumInstances: uint32(len(gs.Scene().Items)),
	})
	cmd.SetComputeRootShaderResourceView(paramAccelerationStructure, gs.TLAS().GPUVirtualAddress())
	cmd.SetComputeRootConstantBufferView(paramPassConstants, gs.PassCBAddress())
	cmd.SetComputeRootShaderResourceView(paramInstanceTable, gs.InstanceTableAddress())
	cmd.SetComputeRootDescriptorTable(paramNormalDepth, p.gbuf.NormalDepth.UAV.GPU)
	cmd.SetComputeRootDescriptorTable(paramPosition, p.gbuf.Position.UAV.GPU)
	cmd.SetComputeRootDescriptorTable(paramVelocity, p.gbuf.Velocity.UAV.GPU)
	cmd.Dispatch((p.width+threadGroupSize-1)/threadGroupSize, (p.height+threadGroupSize-1)/threadGroupSize, 1)
	cmd.EndEvent()
}

// OnResize reallocates the G-buffer. Resizing to the current size is a
// no-op.
func (p *Pass) OnResize(width, height uint32) error {
	if width == p.width && height == p.height {
		return nil
	}
	p.width, p.height = width, height
	if err := p.allocateResources(); err != nil {
		return err
	}
	if !p.descriptorsBuilt {
		return nil
	}
	for _, v := range p.views() {
		if err := svgf.RefreshViews(p.dev, v); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pass) Release() {
	for _, v := range p.views() {
		if v.Resource != nil {
			v.Resource.Release()
		}
	}
}
