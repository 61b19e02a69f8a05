package device

import "fmt"

type commandType uint8

const (
	cmdBarrier commandType = iota
	cmdSetHeaps
	cmdSetRootSignature
	cmdSetPipelineState
	cmdSetStateObject
	cmdSetTable
	cmdSetConstants
	cmdSetCBV
	cmdSetSRV
	cmdDispatch
	cmdDispatchRays
	cmdCopy
	cmdBeginEvent
	cmdEndEvent
)

type command struct {
	typ       commandType
	barriers  []Barrier
	heaps     []*DescriptorHeap
	rootSig   *RootSignature
	pso       *PipelineState
	so        *StateObject
	param     int
	table     GPUDescriptorHandle
	constants []uint32
	offset    int
	address   GPUVirtualAddress
	groups    [3]uint32
	rays      DispatchRaysDesc
	dst, src  *Resource
	label     string
}

// GPUVirtualAddressRange is a region of a buffer.
type GPUVirtualAddressRange struct {
	StartAddress GPUVirtualAddress
	SizeInBytes  uint64
}

// GPUVirtualAddressRangeAndStride is a region of equally sized records.
type GPUVirtualAddressRangeAndStride struct {
	StartAddress  GPUVirtualAddress
	SizeInBytes   uint64
	StrideInBytes uint64
}

type DispatchRaysDesc struct {
	RayGenerationShaderRecord GPUVirtualAddressRange
	MissShaderTable           GPUVirtualAddressRangeAndStride
	HitGroupTable             GPUVirtualAddressRangeAndStride
	Width                     uint32
	Height                    uint32
	Depth                     uint32
}

// CommandList records work for later execution. Recording methods do not
// return errors; the first recording error is reported by Close.
type CommandList struct {
	device *Device
	name   string
	cmds   []command
	closed bool
	depth  int
	err    error
}

func (d *Device) CreateCommandList(name string) *CommandList {
	return &CommandList{device: d, name: name}
}

func (cl *CommandList) Name() string {
	return cl.name
}

func (cl *CommandList) record(c command) {
	if cl.closed {
		cl.fail(fmt.Errorf("%w: %q", ErrCommandListClosed, cl.name))
		return
	}
	cl.cmds = append(cl.cmds, c)
}

func (cl *CommandList) fail(err error) {
	if cl.err == nil {
		cl.err = err
	}
}

// Reset discards recorded commands and reopens the list.
func (cl *CommandList) Reset() {
	cl.cmds = cl.cmds[:0]
	cl.closed = false
	cl.depth = 0
	cl.err = nil
}

// Close ends recording.
func (cl *CommandList) Close() error {
	if cl.depth != 0 && cl.err == nil {
		cl.err = fmt.Errorf("%w: %q has %d open events", ErrUnbalancedEvents, cl.name, cl.depth)
	}
	cl.closed = true
	return cl.err
}

// Len returns the number of recorded commands.
func (cl *CommandList) Len() int {
	return len(cl.cmds)
}

func (cl *CommandList) ResourceBarrier(barriers ...Barrier) {
	if len(barriers) == 0 {
		return
	}
	for _, b := range barriers {
		if b.Type == BarrierTransition && b.Resource == nil {
			cl.fail(fmt.Errorf("%w: transition barrier without a resource", ErrBarrierStateMismatch))
			return
		}
	}
	cl.record(command{typ: cmdBarrier, barriers: append([]Barrier(nil), barriers...)})
}

func (cl *CommandList) SetDescriptorHeaps(heaps ...*DescriptorHeap) {
	cl.record(command{typ: cmdSetHeaps, heaps: append([]*DescriptorHeap(nil), heaps...)})
}

func (cl *CommandList) SetComputeRootSignature(rs *RootSignature) {
	cl.record(command{typ: cmdSetRootSignature, rootSig: rs})
}

func (cl *CommandList) SetPipelineState(pso *PipelineState) {
	cl.record(command{typ: cmdSetPipelineState, pso: pso})
}

func (cl *CommandList) SetPipelineState1(so *StateObject) {
	cl.record(command{typ: cmdSetStateObject, so: so})
}

func (cl *CommandList) SetComputeRootDescriptorTable(param int, base GPUDescriptorHandle) {
	cl.record(command{typ: cmdSetTable, param: param, table: base})
}

func (cl *CommandList) SetComputeRoot32BitConstants(param int, values []uint32, destOffset int) {
	cl.record(command{typ: cmdSetConstants, param: param, constants: append([]uint32(nil), values...), offset: destOffset})
}

// SetComputeRootConstants packs v with PackConstants and binds it at offset 0.
func (cl *CommandList) SetComputeRootConstants(param int, v interface{}) {
	words, err := PackConstants(v)
	if err != nil {
		cl.fail(err)
		return
	}
	cl.SetComputeRoot32BitConstants(param, words, 0)
}

func (cl *CommandList) SetComputeRootConstantBufferView(param int, addr GPUVirtualAddress) {
	cl.record(command{typ: cmdSetCBV, param: param, address: addr})
}

func (cl *CommandList) SetComputeRootShaderResourceView(param int, addr GPUVirtualAddress) {
	cl.record(command{typ: cmdSetSRV, param: param, address: addr})
}

func (cl *CommandList) Dispatch(x, y, z uint32) {
	cl.record(command{typ: cmdDispatch, groups: [3]uint32{x, y, z}})
}

func (cl *CommandList) DispatchRays(desc DispatchRaysDesc) {
	cl.record(command{typ: cmdDispatchRays, rays: desc})
}

// CopyResource copies the full contents of src into dst.
func (cl *CommandList) CopyResource(dst, src *Resource) {
	if dst == nil || src == nil {
		cl.fail(fmt.Errorf("%w: nil copy operand", ErrCopyMismatch))
		return
	}
	cl.record(command{typ: cmdCopy, dst: dst, src: src})
}

// BeginEvent opens a named timing region.
func (cl *CommandList) BeginEvent(label string) {
	cl.depth++
	cl.record(command{typ: cmdBeginEvent, label: label})
}

func (cl *CommandList) EndEvent() {
	if cl.depth == 0 {
		cl.fail(fmt.Errorf("%w: %q ends an event that was never begun", ErrUnbalancedEvents, cl.name))
		return
	}
	cl.depth--
	cl.record(command{typ: cmdEndEvent})
}
