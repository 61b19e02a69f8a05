package device

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync/atomic"
)

// GPUVirtualAddress locates a byte inside a buffer resource. The upper 32
// bits hold the owning resource id and the lower 32 bits the byte offset.
type GPUVirtualAddress uint64

const addressShift = 32

// Offset returns the address advanced by n bytes.
func (a GPUVirtualAddress) Offset(n uint64) GPUVirtualAddress {
	return a + GPUVirtualAddress(n)
}

func (a GPUVirtualAddress) split() (uint64, uint64) {
	return uint64(a) >> addressShift, uint64(a) & (1<<addressShift - 1)
}

type Dimension uint8

const (
	DimensionBuffer Dimension = iota
	DimensionTexture2D
)

type ResourceFlags uint8

const (
	ResourceFlagNone                 ResourceFlags = 0
	ResourceFlagAllowUnorderedAccess ResourceFlags = 1
	ResourceFlagAllowRenderTarget    ResourceFlags = 2
)

// ResourceDesc describes a committed resource.
type ResourceDesc struct {
	Dimension Dimension
	Width     uint64
	Height    uint32
	Format    Format
	Flags     ResourceFlags
}

// Describe a 2D texture.
func Tex2DDesc(format Format, width, height uint32, flags ResourceFlags) ResourceDesc {
	return ResourceDesc{
		Dimension: DimensionTexture2D,
		Width:     uint64(width),
		Height:    height,
		Format:    format,
		Flags:     flags,
	}
}

// Describe a linear buffer.
func BufferDesc(size uint64, flags ResourceFlags) ResourceDesc {
	return ResourceDesc{
		Dimension: DimensionBuffer,
		Width:     size,
		Height:    1,
		Flags:     flags,
	}
}

func (d ResourceDesc) validate() error {
	switch d.Dimension {
	case DimensionBuffer:
		if d.Width == 0 || d.Width >= 1<<addressShift {
			return fmt.Errorf("%w: buffer size %d", ErrInvalidDesc, d.Width)
		}
	case DimensionTexture2D:
		if d.Width == 0 || d.Height == 0 || d.Width > 1<<16 || d.Height > 1<<16 {
			return fmt.Errorf("%w: texture size %dx%d", ErrInvalidDesc, d.Width, d.Height)
		}
		if !d.Format.valid() {
			return fmt.Errorf("%w: texture format %s", ErrInvalidDesc, d.Format)
		}
	default:
		return fmt.Errorf("%w: dimension %d", ErrInvalidDesc, d.Dimension)
	}
	return nil
}

func (d ResourceDesc) sizeInBytes() int64 {
	if d.Dimension == DimensionBuffer {
		return int64(d.Width)
	}
	return int64(d.Width) * int64(d.Height) * int64(d.Format.BytesPerTexel())
}

type HeapType uint8

const (
	HeapTypeDefault HeapType = iota
	HeapTypeUpload
	HeapTypeReadback
)

type HeapProperties struct {
	Type HeapType
}

type HeapFlags uint32

const HeapFlagNone HeapFlags = 0

// ClearValue is the optimized clear value of a texture. The texture starts
// out filled with it.
type ClearValue struct {
	Format Format
	Color  [4]float32
}

// Resource is a committed device resource. Textures hold float32 channels,
// buffers hold raw bytes.
type Resource struct {
	device *Device
	id     uint64
	name   string
	desc   ResourceDesc
	heap   HeapProperties
	size   int64

	texels []float32
	data   []byte
	writes []uint32

	// State as tracked by the validation layer while executing.
	state ResourceState

	accel    AccelerationStructure
	released atomic.Bool
}

func (r *Resource) ID() uint64 {
	return r.id
}

func (r *Resource) Name() string {
	return r.name
}

func (r *Resource) SetName(name string) {
	r.name = name
}

func (r *Resource) Desc() ResourceDesc {
	return r.desc
}

func (r *Resource) Heap() HeapProperties {
	return r.heap
}

func (r *Resource) SizeInBytes() int64 {
	return r.size
}

func (r *Resource) Released() bool {
	return r.released.Load()
}

// GPUVirtualAddress returns the address of the first byte of the resource.
func (r *Resource) GPUVirtualAddress() GPUVirtualAddress {
	return GPUVirtualAddress(r.id << addressShift)
}

func (r *Resource) Width() int {
	return int(r.desc.Width)
}

func (r *Resource) Height() int {
	return int(r.desc.Height)
}

// Load fetches a texel. Out of bounds reads return zero like a typed UAV
// or SRV load would.
func (r *Resource) Load(x, y int) [4]float32 {
	var out [4]float32
	if r.texels == nil || x < 0 || y < 0 || x >= int(r.desc.Width) || y >= int(r.desc.Height) {
		return out
	}
	ch := r.desc.Format.Channels()
	off := (y*int(r.desc.Width) + x) * ch
	copy(out[:ch], r.texels[off:off+ch])
	return out
}

// Store writes a texel. Channels the format lacks are dropped and out of
// bounds writes are discarded.
func (r *Resource) Store(x, y int, v [4]float32) {
	if r.texels == nil || x < 0 || y < 0 || x >= int(r.desc.Width) || y >= int(r.desc.Height) {
		return
	}
	ch := r.desc.Format.Channels()
	idx := y*int(r.desc.Width) + x
	off := idx * ch
	for c := 0; c < ch; c++ {
		r.texels[off+c] = r.desc.Format.quantize(v[c])
	}
	if r.writes != nil {
		atomic.AddUint32(&r.writes[idx], 1)
	}
}

// WriteCount returns how many times a texel was stored to since the last
// call to ResetWriteCounts. It is only available on devices created with
// write tracking enabled.
func (r *Resource) WriteCount(x, y int) uint32 {
	if r.writes == nil || x < 0 || y < 0 || x >= int(r.desc.Width) || y >= int(r.desc.Height) {
		return 0
	}
	return atomic.LoadUint32(&r.writes[y*int(r.desc.Width)+x])
}

func (r *Resource) ResetWriteCounts() {
	for i := range r.writes {
		atomic.StoreUint32(&r.writes[i], 0)
	}
}

// ReadTexels returns a copy of the texture contents in row-major order.
func (r *Resource) ReadTexels() []float32 {
	out := make([]float32, len(r.texels))
	copy(out, r.texels)
	return out
}

// WriteTexels replaces the texture contents. The input is quantized to
// the resource format.
func (r *Resource) WriteTexels(data []float32) error {
	if r.texels == nil {
		return fmt.Errorf("%w: %q is not a texture", ErrInvalidDesc, r.name)
	}
	if len(data) != len(r.texels) {
		return fmt.Errorf("%w: %q expects %d values; got %d", ErrInvalidDesc, r.name, len(r.texels), len(data))
	}
	for i, v := range data {
		r.texels[i] = r.desc.Format.quantize(v)
	}
	return nil
}

// Fill sets every texel to v.
func (r *Resource) Fill(v [4]float32) {
	ch := r.desc.Format.Channels()
	for off := 0; off+ch <= len(r.texels); off += ch {
		for c := 0; c < ch; c++ {
			r.texels[off+c] = r.desc.Format.quantize(v[c])
		}
	}
}

// Map returns the backing memory of a buffer resource.
func (r *Resource) Map() ([]byte, error) {
	if r.released.Load() {
		return nil, ErrReleasedResource
	}
	if r.data == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotMappable, r.name)
	}
	return r.data, nil
}

// WriteStruct encodes v at the given byte offset of a buffer using the
// little-endian layout shaders expect.
func (r *Resource) WriteStruct(offset int, v interface{}) error {
	data, err := r.Map()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err = binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("device: encode into %q: %w", r.name, err)
	}
	if offset < 0 || offset+buf.Len() > len(data) {
		return fmt.Errorf("%w: %d bytes at offset %d overflow %q (%d bytes)", ErrInvalidAddress, buf.Len(), offset, r.name, len(data))
	}
	copy(data[offset:], buf.Bytes())
	return nil
}

// ReadStruct decodes v from the given byte offset of a buffer.
func (r *Resource) ReadStruct(offset int, v interface{}) error {
	data, err := r.Map()
	if err != nil {
		return err
	}
	if offset < 0 || offset > len(data) {
		return fmt.Errorf("%w: offset %d outside %q", ErrInvalidAddress, offset, r.name)
	}
	if err = binary.Read(bytes.NewReader(data[offset:]), binary.LittleEndian, v); err != nil {
		return fmt.Errorf("device: decode from %q: %w", r.name, err)
	}
	return nil
}

// AccelerationStructure returns the structure built into this resource, if any.
func (r *Resource) AccelerationStructure() AccelerationStructure {
	return r.accel
}

// SetAccelerationStructure attaches a built structure to the resource. The
// resource must have been created in the acceleration structure state.
func (r *Resource) SetAccelerationStructure(as AccelerationStructure) error {
	if r.desc.Dimension != DimensionBuffer || !r.state.Has(StateRaytracingAccelerationStructure) {
		return fmt.Errorf("%w: %q is not an acceleration structure buffer", ErrResourceState, r.name)
	}
	r.accel = as
	return nil
}

// Release frees the resource memory. Releasing twice is a no-op.
func (r *Resource) Release() {
	if r == nil || r.released.Swap(true) {
		return
	}
	r.device.release(r)
	r.texels = nil
	r.data = nil
	r.writes = nil
	r.accel = nil
}

// Implements Stringer.
func (r *Resource) String() string {
	if r == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%q (#%d)", r.name, r.id)
}
