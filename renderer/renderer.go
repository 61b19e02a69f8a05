// Package renderer drives the per-frame pipeline: scene update, G-buffer,
// ambient occlusion and reflections, each followed by its denoiser.
package renderer

import (
	"fmt"

	"github.com/achilleasa/rtdenoise/denoise"
	"github.com/achilleasa/rtdenoise/denoise/reflection"
	"github.com/achilleasa/rtdenoise/denoise/rtao"
	"github.com/achilleasa/rtdenoise/denoise/svgf"
	"github.com/achilleasa/rtdenoise/gbuffer"
	"github.com/achilleasa/rtdenoise/gpu/device"
	"github.com/achilleasa/rtdenoise/gpu/shader"
	"github.com/achilleasa/rtdenoise/ibl"
	"github.com/achilleasa/rtdenoise/log"
	"github.com/achilleasa/rtdenoise/scene"
)

// Shader visible descriptors reserved for the whole pipeline.
const numDescriptors = 512

type Renderer struct {
	logger log.Logger
	opts   Options

	dev     *device.Device
	shaders *shader.Manager
	heap    *device.DescriptorHeap

	sc   *scene.Scene
	gs   *scene.GpuScene
	env  *ibl.Maps
	gbuf *gbuffer.Pass
	ao   *rtao.RTAO
	refl *reflection.Reflection

	frame  uint64
	stats  FrameStats
	closed bool
}

// New opens a device, uploads sc and builds every pass. A failure in any
// build step aborts construction.
func New(sc *scene.Scene, opts Options) (*Renderer, error) {
	if sc == nil {
		return nil, ErrSceneNotDefined
	}
	if sc.Camera == nil {
		return nil, ErrCameraNotDefined
	}
	adapters, err := device.SelectAdapters(device.AllDevices, opts.Adapter)
	if err != nil {
		return nil, err
	}
	if len(adapters) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoAdapter, opts.Adapter)
	}

	r := &Renderer{
		logger: log.New("renderer"),
		opts:   opts,
		sc:     sc,
		gbuf:   gbuffer.New(),
	}
	devOpts := []device.Option{device.WithWorkers(opts.Workers), device.WithMemoryBudget(opts.MemoryBudget)}
	if opts.DebugLayer {
		devOpts = append(devOpts, device.WithDebugLayer(true))
	}
	r.dev = device.Open(adapters[0], devOpts...)
	r.shaders = shader.NewManager(nil)
	r.logger.Noticef("using adapter %q with %d workers", r.dev.Name(), r.dev.Workers())

	if err = r.init(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Renderer) init() error {
	var err error
	if r.ao, err = rtao.New(); err != nil {
		return err
	}
	if err = r.ao.SetSettings(r.opts.RTAO); err != nil {
		return err
	}
	if r.refl, err = reflection.New(); err != nil {
		return err
	}
	if err = r.refl.SetSettings(r.opts.Reflection); err != nil {
		return err
	}

	r.heap, err = r.dev.CreateDescriptorHeap(device.DescriptorHeapDesc{Name: "renderer", NumDescriptors: numDescriptors, ShaderVisible: true})
	if err != nil {
		return err
	}
	alloc := device.NewDescriptorAllocator(r.heap)

	if r.gs, err = scene.Upload(r.dev, r.sc); err != nil {
		return err
	}
	if r.env, err = ibl.Bake(r.dev, alloc, r.opts.IBL); err != nil {
		return err
	}
	r.refl.SetEnvironment(r.env)

	w, h := r.opts.FrameW, r.opts.FrameH
	steps := []struct {
		name string
		fn   func() error
	}{
		{"gbuffer initialize", func() error { return r.gbuf.Initialize(r.dev, r.shaders, w, h) }},
		{"rtao initialize", func() error { return r.ao.Initialize(r.dev, r.shaders, w, h) }},
		{"reflection initialize", func() error { return r.refl.Initialize(r.dev, r.shaders, w, h) }},
		{"gbuffer shaders", r.gbuf.CompileShaders},
		{"rtao shaders", r.ao.CompileShaders},
		{"reflection shaders", r.refl.CompileShaders},
		{"gbuffer root signature", r.gbuf.BuildRootSignature},
		{"rtao root signatures", r.ao.BuildRootSignatures},
		{"reflection root signatures", r.refl.BuildRootSignatures},
		{"gbuffer pso", r.gbuf.BuildPSO},
		{"rtao pso", r.ao.BuildPSO},
		{"reflection pso", r.refl.BuildPSO},
		{"gbuffer descriptors", func() error { return r.gbuf.BuildDescriptors(alloc) }},
		{"rtao descriptors", func() error { return r.ao.BuildDescriptors(alloc) }},
		{"reflection descriptors", func() error { return r.refl.BuildDescriptors(alloc) }},
		{"rtao shader tables", func() error { return r.ao.BuildShaderTables(len(r.sc.Items)) }},
		{"reflection shader tables", func() error { return r.refl.BuildShaderTables(r.gs) }},
	}
	for _, step := range steps {
		if err = step.fn(); err != nil {
			return fmt.Errorf("renderer: %s: %w", step.name, err)
		}
		r.logger.Debugf("%s: done", step.name)
	}
	r.logger.Debugf("shader tables\n%s%s", r.ao.ShaderTableInfo(), r.refl.ShaderTableInfo())

	allocated, budget := r.dev.MemoryUsage()
	r.logger.Infof("initialized %dx%d pipeline: %d shaders, %d resources, %d bytes (budget %d)",
		w, h, r.shaders.Len(), r.dev.LiveResources(), allocated, budget)
	return nil
}

// Render advances the scene by dt seconds and renders one frame.
func (r *Renderer) Render(dt float32) error {
	if r.closed {
		return ErrClosed
	}
	if r.frame > 0 {
		r.sc.Animate(dt)
	}
	if err := r.gs.Update(dt, r.opts.FrameW, r.opts.FrameH); err != nil {
		return err
	}

	cmd := r.dev.CreateCommandList(fmt.Sprintf("frame %d", r.frame))
	r.gbuf.Run(cmd, r.gs)
	frame := denoise.Frame{
		GBuffer:               r.gbuf.GBuffer(),
		AccelerationStructure: r.gs.TLAS().GPUVirtualAddress(),
		PassConstants:         r.gs.PassCBAddress(),
	}
	r.ao.Run(cmd, frame)
	r.refl.Run(cmd, frame)
	if err := cmd.Close(); err != nil {
		return err
	}

	report, err := r.dev.ExecuteCommandList(cmd)
	if err != nil {
		return fmt.Errorf("renderer: frame %d: %w", r.frame, err)
	}
	for _, advance := range []func() (int, error){
		r.ao.MoveToNextFrame,
		r.ao.MoveToNextFrameTemporalAOCoefficient,
		r.refl.MoveToNextFrame,
		r.refl.MoveToNextFrameTemporalReflection,
	} {
		if _, err = advance(); err != nil {
			return err
		}
	}

	r.stats = newFrameStats(r.frame, report, r.dev)
	r.logger.Infof("frame %d rendered in %s", r.frame, report.Duration)
	r.frame++
	return nil
}

// OnResize reallocates the size dependent resources of every pass. The
// temporal history is dropped.
func (r *Renderer) OnResize(width, height uint32) error {
	if r.closed {
		return ErrClosed
	}
	if width == r.opts.FrameW && height == r.opts.FrameH {
		return nil
	}
	if err := r.gbuf.OnResize(width, height); err != nil {
		return err
	}
	if err := r.ao.OnResize(width, height); err != nil {
		return err
	}
	if err := r.refl.OnResize(width, height); err != nil {
		return err
	}
	r.opts.FrameW, r.opts.FrameH = width, height
	return nil
}

// Stats returns the statistics of the last rendered frame.
func (r *Renderer) Stats() FrameStats {
	return r.stats
}

func (r *Renderer) Device() *device.Device {
	return r.dev
}

// AOCoefficient returns the denoised ambient occlusion.
func (r *Renderer) AOCoefficient() *svgf.View {
	return r.ao.AOCoefficient()
}

// Reflection returns the denoised reflection color.
func (r *Renderer) Reflection() *svgf.View {
	return r.refl.Reflection()
}

func (r *Renderer) GBuffer() svgf.GBuffer {
	return r.gbuf.GBuffer()
}

// Close releases every pass and device resource. It is safe to call
// Close more than once.
func (r *Renderer) Close() {
	if r.closed {
		return
	}
	r.closed = true
	if r.refl != nil {
		r.refl.Release()
	}
	if r.ao != nil {
		r.ao.Release()
	}
	r.gbuf.Release()
	if r.env != nil {
		r.env.Release()
	}
	if r.gs != nil {
		r.gs.Release()
	}
	if n := r.dev.LiveResources(); n != 0 {
		r.logger.Warningf("%d resources still alive after shutdown", n)
	}
}
