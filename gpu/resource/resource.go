// Package resource wraps device resources with the access state they are
// in at the current point of command list recording.
package resource

import (
	"fmt"

	"github.com/achilleasa/rtdenoise/gpu/device"
)

// GpuResource owns a committed resource and tracks the state it will be in
// once the recorded commands execute. Every read or write must be preceded
// by a Transite call to the matching state.
type GpuResource struct {
	res   *device.Resource
	state device.ResourceState
}

// Initialize allocates the resource, releasing any previous allocation, and
// records its initial state.
func (r *GpuResource) Initialize(dev *device.Device, heap device.HeapProperties, flags device.HeapFlags, desc device.ResourceDesc, initialState device.ResourceState, clear *device.ClearValue) error {
	r.Release()

	res, err := dev.CreateCommittedResource(heap, flags, desc, initialState, clear)
	if err != nil {
		return fmt.Errorf("resource: %w", err)
	}
	r.res = res
	r.state = initialState
	return nil
}

// Transite records a transition barrier if state differs from the tracked
// state. The tracked state is updated unconditionally.
func (r *GpuResource) Transite(cmd *device.CommandList, state device.ResourceState) {
	if r.state != state {
		cmd.ResourceBarrier(device.TransitionBarrier(r.res, r.state, state))
	}
	r.state = state
}

// UAVBarrier orders UAV writes of previous dispatches before later accesses.
func (r *GpuResource) UAVBarrier(cmd *device.CommandList) {
	cmd.ResourceBarrier(device.UAVBarrier(r.res))
}

// Resource returns the underlying resource for view creation.
func (r *GpuResource) Resource() *device.Resource {
	return r.res
}

func (r *GpuResource) State() device.ResourceState {
	return r.state
}

// Valid returns true once the resource has been allocated.
func (r *GpuResource) Valid() bool {
	return r.res != nil && !r.res.Released()
}

// SetName labels the resource in validation errors.
func (r *GpuResource) SetName(name string) {
	if r.res != nil {
		r.res.SetName(name)
	}
}

func (r *GpuResource) Release() {
	if r.res != nil {
		r.res.Release()
		r.res = nil
	}
	r.state = device.StateCommon
}
