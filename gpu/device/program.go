package device

import "fmt"

// ThreadFunc runs one compute thread.
type ThreadFunc func(tid [3]uint32)

// ComputeProgram is a compute kernel. Prepare resolves the bound root
// arguments once per dispatch and returns the per-thread body. Threads run
// concurrently so the body must only write texels it owns.
type ComputeProgram interface {
	NumThreads() [3]uint32
	Prepare(dc *DispatchContext) (ThreadFunc, error)
}

type RayShaderKind uint8

const (
	RayGenerationShader RayShaderKind = iota
	ClosestHitShader
	MissShader
)

// Implements Stringer.
func (k RayShaderKind) String() string {
	switch k {
	case RayGenerationShader:
		return "raygeneration"
	case ClosestHitShader:
		return "closesthit"
	case MissShader:
		return "miss"
	}
	return fmt.Sprintf("RayShaderKind(%d)", uint8(k))
}

// RayGenerationFunc resolves bindings once per ray dispatch and returns the
// per-ray body.
type RayGenerationFunc func(dc *DispatchContext) (func(rc *RayContext) error, error)

// HitFunc implements closest hit and miss shaders. The payload is the
// pointer passed to TraceRay.
type HitFunc func(rc *RayContext, payload interface{}) error

type RayShader struct {
	Kind          RayShaderKind
	RayGeneration RayGenerationFunc
	ClosestHit    HitFunc
	Miss          HitFunc
}

// RayLibrary maps export names to ray tracing shaders.
type RayLibrary map[string]RayShader

// ShaderBytecode is a compiled shader: either a compute program or a
// library of ray tracing exports.
type ShaderBytecode struct {
	Name    string
	Compute ComputeProgram
	Library RayLibrary
}

type ComputePipelineStateDesc struct {
	Name          string
	RootSignature *RootSignature
	CS            *ShaderBytecode
}

type PipelineState struct {
	id      uint64
	name    string
	rootSig *RootSignature
	program ComputeProgram
}

func (d *Device) CreateComputePipelineState(desc ComputePipelineStateDesc) (*PipelineState, error) {
	if desc.RootSignature == nil || desc.RootSignature.Local() {
		return nil, fmt.Errorf("%w: pipeline %q needs a global root signature", ErrInvalidProgram, desc.Name)
	}
	if desc.CS == nil || desc.CS.Compute == nil {
		return nil, fmt.Errorf("%w: pipeline %q has no compute shader", ErrInvalidProgram, desc.Name)
	}
	nt := desc.CS.Compute.NumThreads()
	if nt[0] == 0 || nt[1] == 0 || nt[2] == 0 {
		return nil, fmt.Errorf("%w: pipeline %q declares a zero thread group dimension", ErrInvalidProgram, desc.Name)
	}
	return &PipelineState{
		id:      d.allocID(),
		name:    desc.Name,
		rootSig: desc.RootSignature,
		program: desc.CS.Compute,
	}, nil
}

func (ps *PipelineState) Name() string {
	return ps.name
}

func (ps *PipelineState) RootSignature() *RootSignature {
	return ps.rootSig
}
