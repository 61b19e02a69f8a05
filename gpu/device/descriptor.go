package device

import (
	"fmt"
	"sync"
)

type ViewKind uint8

const (
	ViewNone ViewKind = iota
	ViewSRV
	ViewUAV
)

// Implements Stringer.
func (k ViewKind) String() string {
	switch k {
	case ViewSRV:
		return "SRV"
	case ViewUAV:
		return "UAV"
	}
	return "none"
}

type descriptor struct {
	kind     ViewKind
	resource *Resource
	format   Format
}

type DescriptorHeapDesc struct {
	Name           string
	NumDescriptors int
	ShaderVisible  bool
}

// DescriptorHeap is a fixed-size array of resource views.
type DescriptorHeap struct {
	id    uint64
	desc  DescriptorHeapDesc
	mu    sync.RWMutex
	slots []descriptor
}

// CPUDescriptorHandle addresses a heap slot for writing views.
type CPUDescriptorHandle struct {
	heap  *DescriptorHeap
	index int
}

// GPUDescriptorHandle addresses a heap slot for binding descriptor tables.
type GPUDescriptorHandle struct {
	heap  *DescriptorHeap
	index int
}

func (h CPUDescriptorHandle) Offset(n int) CPUDescriptorHandle {
	return CPUDescriptorHandle{heap: h.heap, index: h.index + n}
}

func (h CPUDescriptorHandle) Valid() bool {
	return h.heap != nil && h.index >= 0 && h.index < len(h.heap.slots)
}

func (h CPUDescriptorHandle) Index() int {
	return h.index
}

func (h GPUDescriptorHandle) Offset(n int) GPUDescriptorHandle {
	return GPUDescriptorHandle{heap: h.heap, index: h.index + n}
}

func (h GPUDescriptorHandle) Valid() bool {
	return h.heap != nil && h.index >= 0 && h.index < len(h.heap.slots)
}

func (h GPUDescriptorHandle) Index() int {
	return h.index
}

// DescriptorHandle pairs the CPU and GPU handles of the same slot.
type DescriptorHandle struct {
	CPU CPUDescriptorHandle
	GPU GPUDescriptorHandle
}

func (h DescriptorHandle) Offset(n int) DescriptorHandle {
	return DescriptorHandle{CPU: h.CPU.Offset(n), GPU: h.GPU.Offset(n)}
}

func (d *Device) CreateDescriptorHeap(desc DescriptorHeapDesc) (*DescriptorHeap, error) {
	if desc.NumDescriptors <= 0 {
		return nil, fmt.Errorf("%w: descriptor heap %q needs at least one slot", ErrInvalidDesc, desc.Name)
	}
	return &DescriptorHeap{
		id:    d.allocID(),
		desc:  desc,
		slots: make([]descriptor, desc.NumDescriptors),
	}, nil
}

func (dh *DescriptorHeap) Desc() DescriptorHeapDesc {
	return dh.desc
}

func (dh *DescriptorHeap) Len() int {
	return len(dh.slots)
}

func (dh *DescriptorHeap) CPUHandleForHeapStart() CPUDescriptorHandle {
	return CPUDescriptorHandle{heap: dh}
}

func (dh *DescriptorHeap) GPUHandleForHeapStart() GPUDescriptorHandle {
	return GPUDescriptorHandle{heap: dh}
}

func (dh *DescriptorHeap) lookup(index int) (descriptor, error) {
	if index < 0 || index >= len(dh.slots) {
		return descriptor{}, fmt.Errorf("%w: slot %d outside heap %q (%d slots)", ErrInvalidDescriptor, index, dh.desc.Name, len(dh.slots))
	}
	dh.mu.RLock()
	defer dh.mu.RUnlock()
	return dh.slots[index], nil
}

func (dh *DescriptorHeap) write(index int, desc descriptor) {
	dh.mu.Lock()
	dh.slots[index] = desc
	dh.mu.Unlock()
}

type ShaderResourceViewDesc struct {
	Format Format
}

type UnorderedAccessViewDesc struct {
	Format Format
}

// CreateShaderResourceView writes a read-only view of res into dst. A nil
// desc uses the resource format.
func (d *Device) CreateShaderResourceView(res *Resource, desc *ShaderResourceViewDesc, dst CPUDescriptorHandle) error {
	format, err := viewFormat(res, desc)
	if err != nil {
		return err
	}
	if !dst.Valid() {
		return fmt.Errorf("%w: SRV destination handle", ErrInvalidDescriptor)
	}
	dst.heap.write(dst.index, descriptor{kind: ViewSRV, resource: res, format: format})
	return nil
}

// CreateUnorderedAccessView writes a read-write view of res into dst. The
// resource must allow unordered access.
func (d *Device) CreateUnorderedAccessView(res *Resource, desc *UnorderedAccessViewDesc, dst CPUDescriptorHandle) error {
	var srvDesc *ShaderResourceViewDesc
	if desc != nil {
		srvDesc = &ShaderResourceViewDesc{Format: desc.Format}
	}
	format, err := viewFormat(res, srvDesc)
	if err != nil {
		return err
	}
	if res.desc.Flags&ResourceFlagAllowUnorderedAccess == 0 {
		return fmt.Errorf("%w: %s does not allow unordered access", ErrInvalidDesc, res)
	}
	if !dst.Valid() {
		return fmt.Errorf("%w: UAV destination handle", ErrInvalidDescriptor)
	}
	dst.heap.write(dst.index, descriptor{kind: ViewUAV, resource: res, format: format})
	return nil
}

func viewFormat(res *Resource, desc *ShaderResourceViewDesc) (Format, error) {
	if res == nil || res.Released() {
		return FormatUnknown, ErrReleasedResource
	}
	if res.desc.Dimension != DimensionTexture2D {
		return FormatUnknown, fmt.Errorf("%w: typed views require a texture; %s is a buffer", ErrInvalidDesc, res)
	}
	if desc == nil || desc.Format == FormatUnknown {
		return res.desc.Format, nil
	}
	if desc.Format.Channels() != res.desc.Format.Channels() {
		return FormatUnknown, fmt.Errorf("%w: view format %s incompatible with %s", ErrInvalidDesc, desc.Format, res.desc.Format)
	}
	return desc.Format, nil
}

// DescriptorAllocator hands out consecutive slots of a descriptor heap.
type DescriptorAllocator struct {
	mu   sync.Mutex
	heap *DescriptorHeap
	next int
}

func NewDescriptorAllocator(heap *DescriptorHeap) *DescriptorAllocator {
	return &DescriptorAllocator{heap: heap}
}

// Allocate reserves count consecutive slots and returns the handles of the
// first one.
func (a *DescriptorAllocator) Allocate(count int) (DescriptorHandle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if count <= 0 {
		return DescriptorHandle{}, fmt.Errorf("%w: cannot allocate %d descriptors", ErrInvalidDescriptor, count)
	}
	if a.next+count > len(a.heap.slots) {
		return DescriptorHandle{}, fmt.Errorf("%w: %q has %d of %d slots left; requested %d", ErrDescriptorHeapFull, a.heap.desc.Name, len(a.heap.slots)-a.next, len(a.heap.slots), count)
	}

	h := DescriptorHandle{
		CPU: a.heap.CPUHandleForHeapStart().Offset(a.next),
		GPU: a.heap.GPUHandleForHeapStart().Offset(a.next),
	}
	a.next += count
	return h, nil
}

func (a *DescriptorAllocator) Heap() *DescriptorHeap {
	return a.heap
}

// Allocated returns the number of slots handed out so far.
func (a *DescriptorAllocator) Allocated() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next
}
