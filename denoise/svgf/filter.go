package svgf

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/achilleasa/rtdenoise/gpu/device"
	"github.com/achilleasa/rtdenoise/gpu/resource"
	"github.com/achilleasa/rtdenoise/gpu/shader"
	"github.com/achilleasa/rtdenoise/log"
)

// FilterDesc configures a filter instance.
type FilterDesc struct {
	// Prefix for shader cache keys, resource names and log output.
	Name string

	// Number of signal channels; 1 for scalar signals, 3 for RGB.
	Channels int
}

// Filter runs the temporal and spatial denoising passes for one signal.
// Each denoiser owns its own filter so caches are never shared.
type Filter struct {
	logger   log.Logger
	name     string
	channels int
	settings Settings

	dev     *device.Device
	shaders *shader.Manager
	heap    *device.DescriptorHeap
	width   uint32
	height  uint32

	rootSigs [numKernels]*device.RootSignature
	psos     [numKernels]*device.PipelineState

	depthDerivative  View
	meanVarRaw       View
	meanVarSmoothed  View
	packed           View
	reprojected      View
	varianceRaw      View
	varianceSmoothed View
	blurStrength     View
	prevNormalDepth  View
	temp             [2]View
	denoised         View

	cacheTspp        [2]View
	cacheHitDistance [2]View
	cacheSquaredMean [2]View
	cacheValue       [2]View

	temporal DoubleBuffer[TemporalCache]
	values   DoubleBuffer[*View]

	// Result of the last filtering pass recorded this frame.
	output *View

	descriptorsBuilt bool
}

// NewFilter creates a filter with the default settings.
func NewFilter(desc FilterDesc) (*Filter, error) {
	if desc.Channels != 1 && desc.Channels != 3 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChannels, desc.Channels)
	}
	if desc.Name == "" {
		desc.Name = "svgf"
	}
	f := &Filter{
		logger:   log.New(desc.Name + "-svgf"),
		name:     desc.Name,
		channels: desc.Channels,
		settings: DefaultSettings(),
	}
	for i := 0; i < 2; i++ {
		f.temporal.Set(i, TemporalCache{
			Tspp:        &f.cacheTspp[i],
			HitDistance: &f.cacheHitDistance[i],
			SquaredMean: &f.cacheSquaredMean[i],
		})
		f.values.Set(i, &f.cacheValue[i])
	}
	return f, nil
}

func (f *Filter) Name() string {
	return f.name
}

func (f *Filter) Settings() Settings {
	return f.settings
}

// SetSettings validates and applies s. Changes take effect with the next
// recorded frame.
func (f *Filter) SetSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	f.settings = s
	return nil
}

// Size returns the filter resolution.
func (f *Filter) Size() (uint32, uint32) {
	return f.width, f.height
}

// Denoised returns the filtered output of the last recorded frame.
func (f *Filter) Denoised() *View {
	return &f.denoised
}

// Temporal exposes the tspp/hit distance/squared mean history.
func (f *Filter) Temporal() *DoubleBuffer[TemporalCache] {
	return &f.temporal
}

// Values exposes the temporally accumulated signal history.
func (f *Filter) Values() *DoubleBuffer[*View] {
	return &f.values
}

// Reprojection returns the targets of the last reverse reprojection: the
// packed tspp/squared mean/hit distance history and the reprojected value.
func (f *Filter) Reprojection() (packed, value *View) {
	return &f.packed, &f.reprojected
}

// VarianceView returns the smoothed variance used by the wavelet passes.
func (f *Filter) VarianceView() *View {
	return &f.varianceSmoothed
}

// Parity selects which checkerboard half is traced this frame.
func (f *Filter) Parity() uint32 {
	return uint32(f.temporal.Frames() & 1)
}

func (f *Filter) valueFormat() device.Format {
	if f.channels == 1 {
		return device.FormatR16Float
	}
	return device.FormatR16G16B16A16Float
}

func (f *Filter) meanVarianceFormat() device.Format {
	if f.channels == 1 {
		return device.FormatR32G32Float
	}
	return device.FormatR32G32B32A32Float
}

// Initialize allocates the filter resources for a width x height target.
func (f *Filter) Initialize(dev *device.Device, shaders *shader.Manager, width, height uint32) error {
	f.dev = dev
	f.shaders = shaders
	f.width, f.height = width, height
	return f.allocateResources()
}

func (f *Filter) allocateResources() error {
	w, h := f.width, f.height
	textures := []struct {
		view   *View
		name   string
		format device.Format
	}{
		{&f.depthDerivative, "DepthPartialDerivative", device.FormatR32G32Float},
		{&f.meanVarRaw, "LocalMeanVarianceRaw", f.meanVarianceFormat()},
		{&f.meanVarSmoothed, "LocalMeanVarianceSmoothed", f.meanVarianceFormat()},
		{&f.packed, "TsppSquaredMeanHitDistance", device.FormatR16G16B16A16Float},
		{&f.reprojected, "ReprojectedValue", f.valueFormat()},
		{&f.varianceRaw, "VarianceRaw", device.FormatR16Float},
		{&f.varianceSmoothed, "VarianceSmoothed", device.FormatR16Float},
		{&f.blurStrength, "DisocclusionBlurStrength", device.FormatR8Unorm},
		{&f.temp[0], "Temp0", f.valueFormat()},
		{&f.temp[1], "Temp1", f.valueFormat()},
		{&f.denoised, "Denoised", f.valueFormat()},
	}
	for i := 0; i < 2; i++ {
		textures = append(textures, []struct {
			view   *View
			name   string
			format device.Format
		}{
			{&f.cacheTspp[i], fmt.Sprintf("Tspp%d", i), device.FormatR8Uint},
			{&f.cacheHitDistance[i], fmt.Sprintf("RayHitDistance%d", i), device.FormatR16Float},
			{&f.cacheSquaredMean[i], fmt.Sprintf("SquaredMean%d", i), device.FormatR16Float},
			{&f.cacheValue[i], fmt.Sprintf("Value%d", i), f.valueFormat()},
		}...)
	}

	for _, t := range textures {
		if err := AllocateTexture(f.dev, t.view, f.name+"/"+t.name, t.format, w, h); err != nil {
			return err
		}
	}

	// Only ever a copy destination and a shader resource.
	if f.prevNormalDepth.Resource == nil {
		f.prevNormalDepth.Resource = &resource.GpuResource{}
	}
	err := f.prevNormalDepth.Resource.Initialize(
		f.dev,
		device.HeapProperties{Type: device.HeapTypeDefault},
		device.HeapFlagNone,
		device.Tex2DDesc(device.FormatR32G32B32A32Float, w, h, 0),
		device.StateCopyDest,
		nil,
	)
	if err != nil {
		return fmt.Errorf("svgf: allocate %q: %w", f.name+"/PrevNormalDepth", err)
	}
	f.prevNormalDepth.Resource.SetName(f.name + "/PrevNormalDepth")

	allocated, budget := f.dev.MemoryUsage()
	f.logger.Debugf("allocated %dx%d filter resources (device memory: %d/%d bytes)", w, h, allocated, budget)
	return nil
}

func (f *Filter) views() []*View {
	return []*View{
		&f.depthDerivative, &f.meanVarRaw, &f.meanVarSmoothed, &f.packed,
		&f.reprojected, &f.varianceRaw, &f.varianceSmoothed, &f.blurStrength,
		&f.prevNormalDepth, &f.temp[0], &f.temp[1], &f.denoised,
		&f.cacheTspp[0], &f.cacheTspp[1],
		&f.cacheHitDistance[0], &f.cacheHitDistance[1],
		&f.cacheSquaredMean[0], &f.cacheSquaredMean[1],
		&f.cacheValue[0], &f.cacheValue[1],
	}
}

func (f *Filter) shaderName(k kernelID) string {
	return f.name + "/" + k.String()
}

// CompileShaders compiles every filter kernel for the filter channel count.
func (f *Filter) CompileShaders() error {
	if f.shaders == nil {
		return ErrNotInitialized
	}
	reqs := make([]shader.CompileRequest, 0, numKernels)
	for k := kernelID(0); k < numKernels; k++ {
		def := kernelDefs[k]
		reqs = append(reqs, shader.CompileRequest{
			Name:       f.shaderName(k),
			EntryPoint: def.entryPoint,
			Defines:    shader.Defines{"CHANNELS": strconv.Itoa(def.channels(f.channels))},
		})
	}
	return f.shaders.CompileShaders(reqs)
}

// BuildRootSignatures creates one root signature per kernel: the constant
// block at parameter 0 followed by one single descriptor table per SRV and
// then per UAV.
func (f *Filter) BuildRootSignatures() error {
	if f.dev == nil {
		return ErrNotInitialized
	}
	for k := kernelID(0); k < numKernels; k++ {
		def := kernelDefs[k]
		params := []device.RootParameter{
			device.Constants(binary.Size(def.params)/4, 0),
		}
		for i := 0; i < def.srvs; i++ {
			params = append(params, device.DescriptorTable(device.SRVRange(1, i)))
		}
		for i := 0; i < def.uavs; i++ {
			params = append(params, device.DescriptorTable(device.UAVRange(1, i)))
		}
		rs, err := f.dev.CreateRootSignature(device.RootSignatureDesc{
			Name:       f.shaderName(k),
			Parameters: params,
		})
		if err != nil {
			return fmt.Errorf("svgf: root signature for %s: %w", f.shaderName(k), err)
		}
		f.rootSigs[k] = rs
	}
	return nil
}

// BuildPSOs binds each compiled kernel to its root signature.
func (f *Filter) BuildPSOs() error {
	for k := kernelID(0); k < numKernels; k++ {
		if f.rootSigs[k] == nil {
			return ErrNotInitialized
		}
		cs, err := f.shaders.GetShader(f.shaderName(k))
		if err != nil {
			return fmt.Errorf("svgf: %w", err)
		}
		pso, err := f.dev.CreateComputePipelineState(device.ComputePipelineStateDesc{
			Name:          f.shaderName(k),
			RootSignature: f.rootSigs[k],
			CS:            cs,
		})
		if err != nil {
			return fmt.Errorf("svgf: pipeline for %s: %w", f.shaderName(k), err)
		}
		f.psos[k] = pso
	}
	return nil
}

// BuildDescriptors reserves descriptor slots for all filter resources from
// alloc and writes their views.
func (f *Filter) BuildDescriptors(alloc *device.DescriptorAllocator) error {
	views := f.views()
	if err := allocViews(alloc, views...); err != nil {
		return fmt.Errorf("svgf: %s descriptors: %w", f.name, err)
	}
	for _, v := range views {
		if err := writeDescriptors(f.dev, v); err != nil {
			return err
		}
	}
	f.heap = alloc.Heap()
	f.descriptorsBuilt = true
	return nil
}

// OnResize reallocates the filter resources and drops the history. The
// views are rewritten into their existing descriptor slots. Resizing to
// the current size is a no-op.
func (f *Filter) OnResize(width, height uint32) error {
	if width == f.width && height == f.height {
		return nil
	}
	f.width, f.height = width, height
	if err := f.allocateResources(); err != nil {
		return err
	}
	if f.descriptorsBuilt {
		for _, v := range f.views() {
			if err := RefreshViews(f.dev, v); err != nil {
				return err
			}
		}
	}
	f.temporal.Reset()
	f.values.Reset()
	f.output = nil
	return nil
}

// Release frees all filter resources.
func (f *Filter) Release() {
	for _, v := range f.views() {
		if v.Resource != nil {
			v.Resource.Release()
		}
	}
}

// MoveToNextFrame commits the temporal cache written this frame.
func (f *Filter) MoveToNextFrame() (int, error) {
	return f.temporal.Advance()
}

// MoveToNextFrameValues commits the accumulated signal written this frame.
func (f *Filter) MoveToNextFrameValues() (int, error) {
	return f.values.Advance()
}

func groups(size uint32) uint32 {
	return (size + threadGroupSize - 1) / threadGroupSize
}

// dispatch records the state transitions and bindings for kernel k and
// dispatches gx x gy thread groups.
func (f *Filter) dispatch(cmd *device.CommandList, k kernelID, params interface{}, srvs, uavs []*View, gx, gy uint32) {
	def := kernelDefs[k]
	if len(srvs) != def.srvs || len(uavs) != def.uavs {
		panic(fmt.Sprintf("svgf: %s expects %d SRVs and %d UAVs; got %d and %d", k, def.srvs, def.uavs, len(srvs), len(uavs)))
	}

	for _, v := range srvs {
		v.Resource.Transite(cmd, device.StateNonPixelShaderResource)
	}
	for _, v := range uavs {
		if v.Resource.State() == device.StateUnorderedAccess {
			v.Resource.UAVBarrier(cmd)
			continue
		}
		v.Resource.Transite(cmd, device.StateUnorderedAccess)
	}

	cmd.SetDescriptorHeaps(f.heap)
	cmd.SetComputeRootSignature(f.rootSigs[k])
	cmd.SetPipelineState(f.psos[k])
	cmd.SetComputeRootConstants(0, params)
	param := 1
	for _, v := range srvs {
		cmd.SetComputeRootDescriptorTable(param, v.SRV.GPU)
		param++
	}
	for _, v := range uavs {
		cmd.SetComputeRootDescriptorTable(param, v.UAV.GPU)
		param++
	}
	cmd.Dispatch(gx, gy, 1)
}

func (f *Filter) dims() textureDimParams {
	return textureDimParams{Width: f.width, Height: f.height}
}

// CalculateDepthPartialDerivative writes |dz/dx| and |dz/dy| of the
// current depth. It must run before the ray dispatch of the frame.
func (f *Filter) CalculateDepthPartialDerivative(cmd *device.CommandList, gbuf GBuffer) {
	cmd.BeginEvent(f.shaderName(kernelDepthDerivative))
	f.dispatch(cmd, kernelDepthDerivative, f.dims(),
		[]*View{&gbuf.NormalDepth},
		[]*View{&f.depthDerivative},
		groups(f.width), groups(f.height),
	)
	cmd.EndEvent()
}

// CalculateLocalMeanVariance computes the local mean and variance of the
// raw signal. In checkerboard mode only the traced half is visited.
func (f *Filter) CalculateLocalMeanVariance(cmd *device.CommandList, value *View) {
	cb := f.settings.CheckerboardSampling
	rows := f.height
	if cb {
		rows = (f.height + 1) / 2
	}
	cmd.BeginEvent(f.shaderName(kernelLocalMeanVariance))
	f.dispatch(cmd, kernelLocalMeanVariance,
		localMeanVarianceParams{
			Width:        f.width,
			Height:       f.height,
			KernelWidth:  f.settings.VarianceKernelWidth,
			Checkerboard: boolToUint(cb),
			Parity:       f.Parity(),
		},
		[]*View{value},
		[]*View{&f.meanVarRaw},
		groups(f.width), groups(rows),
	)
	cmd.EndEvent()
}

// FillInCheckerboard reconstructs the local mean/variance of the texels
// skipped this frame.
func (f *Filter) FillInCheckerboard(cmd *device.CommandList) {
	cmd.BeginEvent(f.shaderName(kernelFillCheckerboard))
	f.dispatch(cmd, kernelFillCheckerboard,
		fillCheckerboardParams{Width: f.width, Height: f.height, Parity: f.Parity()},
		nil,
		[]*View{&f.meanVarRaw},
		groups(f.width), groups((f.height+1)/2),
	)
	cmd.EndEvent()
}

// SmoothMeanVariance blurs the local mean/variance with a 3x3 gaussian.
func (f *Filter) SmoothMeanVariance(cmd *device.CommandList) {
	cmd.BeginEvent(f.shaderName(kernelGaussianMeanVariance))
	f.dispatch(cmd, kernelGaussianMeanVariance, f.dims(),
		[]*View{&f.meanVarRaw},
		[]*View{&f.meanVarSmoothed},
		groups(f.width), groups(f.height),
	)
	cmd.EndEvent()
}

// ReverseReprojectPreviousFrame gathers the cached history for every texel
// of the current frame.
func (f *Filter) ReverseReprojectPreviousFrame(cmd *device.CommandList, gbuf GBuffer) {
	cur, prev := f.temporal.Current(), f.temporal.Previous()
	hasHistory := f.temporal.Frames() > 0 && f.values.Frames() > 0

	cmd.BeginEvent(f.shaderName(kernelReproject))
	f.dispatch(cmd, kernelReproject,
		reprojectParams{
			Width:              f.width,
			Height:             f.height,
			HasHistory:         boolToUint(hasHistory),
			DepthTolerance:     f.settings.DepthTolerance,
			NormalDotThreshold: f.settings.NormalDotThreshold,
		},
		[]*View{
			&gbuf.NormalDepth,
			&gbuf.Velocity,
			&f.prevNormalDepth,
			&f.depthDerivative,
			prev.Tspp,
			f.values.Previous(),
			prev.SquaredMean,
			prev.HitDistance,
		},
		[]*View{cur.Tspp, &f.packed, &f.reprojected},
		groups(f.width), groups(f.height),
	)
	cmd.EndEvent()
}

// BlendWithCurrentFrame folds the raw signal into the reprojected history
// and writes the current side of both caches.
func (f *Filter) BlendWithCurrentFrame(cmd *device.CommandList, in Inputs) {
	s := f.settings
	cur := f.temporal.Current()

	cmd.BeginEvent(f.shaderName(kernelBlend))
	f.dispatch(cmd, kernelBlend,
		blendParams{
			Width:                        f.width,
			Height:                       f.height,
			Checkerboard:                 boolToUint(s.CheckerboardSampling),
			Parity:                       f.Parity(),
			MinSmoothingFactor:           s.MinSmoothingFactor,
			MaxTspp:                      s.MaxTspp,
			ClampCachedValues:            boolToUint(s.ClampCachedValues),
			ClampStdDevGamma:             s.ClampStdDevGamma,
			ClampMinStdDev:               s.ClampMinStdDev,
			MinTsppToUseTemporalVariance: s.MinTsppToUseTemporalVariance,
			BlurStrengthMaxTspp:          s.BlurStrengthMaxTspp,
			BlurDecayStrength:            s.BlurDecayStrength,
		},
		[]*View{&in.Value, &in.HitDistance, &f.meanVarSmoothed, &f.packed, &f.reprojected},
		[]*View{cur.Tspp, f.values.Current(), cur.SquaredMean, cur.HitDistance, &f.varianceRaw, &f.blurStrength},
		groups(f.width), groups(f.height),
	)
	cmd.EndEvent()

	f.temporal.MarkUsed()
	f.values.MarkUsed()
	f.output = f.values.Current()
}

// SmoothVariance blurs the blended variance with a 3x3 gaussian.
func (f *Filter) SmoothVariance(cmd *device.CommandList) {
	cmd.BeginEvent(f.shaderName(kernelGaussianVariance))
	f.dispatch(cmd, kernelGaussianVariance, f.dims(),
		[]*View{&f.varianceRaw},
		[]*View{&f.varianceSmoothed},
		groups(f.width), groups(f.height),
	)
	cmd.EndEvent()
}

// nextTarget picks the output of a filtering pass reading in.
func (f *Filter) nextTarget(in *View, last bool) *View {
	if last {
		return &f.denoised
	}
	if in == &f.temp[0] {
		return &f.temp[1]
	}
	return &f.temp[0]
}

func (f *Filter) filterInput() *View {
	if f.output == nil {
		return f.values.Current()
	}
	return f.output
}

// ApplyAtrousWaveletTransformFilter runs the edge stopping wavelet passes
// over the accumulated signal with steps 1, 2, 4 and so on.
func (f *Filter) ApplyAtrousWaveletTransformFilter(cmd *device.CommandList, gbuf GBuffer) {
	s := f.settings
	in := f.filterInput()
	hitDistance := f.temporal.Current().HitDistance

	cmd.BeginEvent(f.shaderName(kernelAtrous))
	for pass := uint32(0); pass < s.AtrousPasses; pass++ {
		out := f.nextTarget(in, pass == s.AtrousPasses-1 && s.DisocclusionBlurPasses == 0)
		f.dispatch(cmd, kernelAtrous,
			atrousParams{
				Width:                f.width,
				Height:               f.height,
				Step:                 1 << pass,
				ValueSigma:           s.ValueSigma,
				DepthSigma:           s.DepthSigma,
				NormalSigma:          s.NormalSigma,
				HitDistanceSigma:     s.HitDistanceSigma,
				MinVarianceToDenoise: s.MinVarianceToDenoise,
			},
			[]*View{in, &gbuf.NormalDepth, &f.varianceSmoothed, hitDistance, &f.depthDerivative},
			[]*View{out},
			groups(f.width), groups(f.height),
		)
		in = out
	}
	cmd.EndEvent()
	f.output = in
}

// BlurDisocclusion smooths texels with short history, weighted by the
// blur strength written by the blend pass.
func (f *Filter) BlurDisocclusion(cmd *device.CommandList, gbuf GBuffer) {
	s := f.settings
	in := f.filterInput()

	cmd.BeginEvent(f.shaderName(kernelDisocclusionBlur))
	for pass := uint32(0); pass < s.DisocclusionBlurPasses; pass++ {
		out := f.nextTarget(in, pass == s.DisocclusionBlurPasses-1)
		f.dispatch(cmd, kernelDisocclusionBlur,
			disocclusionBlurParams{
				Width:      f.width,
				Height:     f.height,
				Step:       1 << pass,
				DepthSigma: s.DisocclusionDepthSigma,
			},
			[]*View{in, &gbuf.NormalDepth, &f.blurStrength},
			[]*View{out},
			groups(f.width), groups(f.height),
		)
		in = out
	}
	cmd.EndEvent()
	f.output = in
}

// resolveOutput copies the last pass result into the denoised output when
// no pass wrote it directly.
func (f *Filter) resolveOutput(cmd *device.CommandList) {
	src := f.filterInput()
	if src == &f.denoised {
		return
	}
	src.Resource.Transite(cmd, device.StateCopySource)
	f.denoised.Resource.Transite(cmd, device.StateCopyDest)
	cmd.CopyResource(f.denoised.Resource.Resource(), src.Resource.Resource())
}

// CachePreviousNormalDepth keeps the current normal/depth for the
// reprojection of the next frame.
func (f *Filter) CachePreviousNormalDepth(cmd *device.CommandList, gbuf GBuffer) {
	gbuf.NormalDepth.Resource.Transite(cmd, device.StateCopySource)
	f.prevNormalDepth.Resource.Transite(cmd, device.StateCopyDest)
	cmd.CopyResource(f.prevNormalDepth.Resource.Resource(), gbuf.NormalDepth.Resource.Resource())
}

// Denoise records the filter chain that follows the ray dispatch. The
// depth partial derivative must already be recorded for this frame.
func (f *Filter) Denoise(cmd *device.CommandList, in Inputs) {
	f.output = nil

	f.CalculateLocalMeanVariance(cmd, &in.Value)
	if f.settings.CheckerboardSampling {
		f.FillInCheckerboard(cmd)
	}
	f.SmoothMeanVariance(cmd)
	f.ReverseReprojectPreviousFrame(cmd, in.GBuffer)
	f.BlendWithCurrentFrame(cmd, in)
	f.SmoothVariance(cmd)
	f.ApplyAtrousWaveletTransformFilter(cmd, in.GBuffer)
	f.BlurDisocclusion(cmd, in.GBuffer)
	f.resolveOutput(cmd)
	f.CachePreviousNormalDepth(cmd, in.GBuffer)

	f.denoised.Resource.Transite(cmd, device.StateNonPixelShaderResource)
}
