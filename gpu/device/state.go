package device

import "strings"

// ResourceState is a bit set describing how the GPU may access a resource.
type ResourceState uint32

const (
	StateCommon                          ResourceState = 0
	StateVertexAndConstantBuffer         ResourceState = 1 << 0
	StateUnorderedAccess                 ResourceState = 1 << 3
	StateNonPixelShaderResource          ResourceState = 1 << 6
	StatePixelShaderResource             ResourceState = 1 << 7
	StateCopyDest                        ResourceState = 1 << 10
	StateCopySource                      ResourceState = 1 << 11
	StateRaytracingAccelerationStructure ResourceState = 1 << 22

	StateGenericRead    = StateVertexAndConstantBuffer | StateNonPixelShaderResource | StatePixelShaderResource | StateCopySource
	StateShaderResource = StateNonPixelShaderResource | StatePixelShaderResource
)

var stateNames = []struct {
	state ResourceState
	name  string
}{
	{StateVertexAndConstantBuffer, "VERTEX_AND_CONSTANT_BUFFER"},
	{StateUnorderedAccess, "UNORDERED_ACCESS"},
	{StateNonPixelShaderResource, "NON_PIXEL_SHADER_RESOURCE"},
	{StatePixelShaderResource, "PIXEL_SHADER_RESOURCE"},
	{StateCopyDest, "COPY_DEST"},
	{StateCopySource, "COPY_SOURCE"},
	{StateRaytracingAccelerationStructure, "RAYTRACING_ACCELERATION_STRUCTURE"},
}

// Implements Stringer.
func (s ResourceState) String() string {
	if s == StateCommon {
		return "COMMON"
	}
	var names []string
	for _, sn := range stateNames {
		if s&sn.state == sn.state {
			names = append(names, sn.name)
		}
	}
	return strings.Join(names, "|")
}

// Has returns true if all bits of other are set in s.
func (s ResourceState) Has(other ResourceState) bool {
	return s&other == other
}

type BarrierType uint8

const (
	BarrierTransition BarrierType = iota
	BarrierUAV
)

// Barrier is a resource barrier recorded into a command list.
type Barrier struct {
	Type     BarrierType
	Resource *Resource
	Before   ResourceState
	After    ResourceState
}

// Create a transition barrier.
func TransitionBarrier(res *Resource, before, after ResourceState) Barrier {
	return Barrier{Type: BarrierTransition, Resource: res, Before: before, After: after}
}

// Create a UAV barrier. A nil resource orders all pending UAV accesses.
func UAVBarrier(res *Resource) Barrier {
	return Barrier{Type: BarrierUAV, Resource: res}
}
