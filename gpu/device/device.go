package device

import (
	"fmt"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/achilleasa/rtdenoise/log"
)

type DeviceType uint8

// Supported device types.
const (
	CpuDevice   DeviceType = 1 << iota
	GpuDevice              = 1 << iota
	OtherDevice            = 1 << iota
	AllDevices             = 0xFF
)

func (dt DeviceType) String() string {
	switch dt {
	case CpuDevice:
		return "CPU"
	case GpuDevice:
		return "GPU"
	case OtherDevice:
		return "Other"
	}
	panic("device: unsupported device type")
}

// Adapter describes a device that can be opened.
type Adapter struct {
	Name string
	Type DeviceType

	// Number of worker goroutines used to execute dispatches.
	Workers int

	// True if the adapter runs the validation layer by default.
	DebugLayer bool
}

// Implements Stringer.
func (a Adapter) String() string {
	return fmt.Sprintf(
		"Name: %s\nType: %s\nSpecs: %d workers, validation layer: %t",
		a.Name,
		a.Type.String(),
		a.Workers,
		a.DebugLayer,
	)
}

// Adapters lists the available software adapters. The reference adapter
// uses every CPU core; the debug adapter enables the validation layer.
func Adapters() []Adapter {
	workers := runtime.NumCPU()
	return []Adapter{
		{Name: "Software Reference Device", Type: CpuDevice, Workers: workers},
		{Name: "Software Debug Device", Type: CpuDevice, Workers: workers, DebugLayer: true},
		{Name: "Software Serial Device", Type: CpuDevice, Workers: 1, DebugLayer: true},
	}
}

// SelectAdapters returns the adapters whose type matches typeMask and whose
// name matches the optional regex.
func SelectAdapters(typeMask DeviceType, nameRegex string) ([]Adapter, error) {
	var re *regexp.Regexp
	var err error
	if nameRegex != "" {
		re, err = regexp.Compile(nameRegex)
		if err != nil {
			return nil, fmt.Errorf("device: invalid adapter name filter: %w", err)
		}
	}

	var out []Adapter
	for _, a := range Adapters() {
		if a.Type&typeMask == 0 {
			continue
		}
		if re != nil && !re.MatchString(a.Name) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// Option configures a device.
type Option func(*Device)

// WithDebugLayer toggles the validation layer.
func WithDebugLayer(enabled bool) Option {
	return func(d *Device) {
		d.debugLayer = enabled
	}
}

// WithMemoryBudget caps the bytes of committed resources. Zero means unlimited.
func WithMemoryBudget(bytes int64) Option {
	return func(d *Device) {
		d.budget = bytes
	}
}

// WithWorkers sets the number of goroutines used to execute dispatches.
func WithWorkers(workers int) Option {
	return func(d *Device) {
		if workers > 0 {
			d.workers = workers
		}
	}
}

// WithWriteTracking records per-texel store counts on textures created
// after the option is applied.
func WithWriteTracking(enabled bool) Option {
	return func(d *Device) {
		d.trackWrites = enabled
	}
}

// Device is a software implementation of a low-level explicit GPU API.
// Command lists execute on a single queue; each dispatch is spread over
// the configured worker goroutines.
type Device struct {
	name   string
	logger log.Logger

	debugLayer  bool
	trackWrites bool
	workers     int
	scheduler   BlockScheduler

	mu        sync.RWMutex
	nextID    uint64
	resources map[uint64]*Resource
	budget    int64
	allocated int64

	// Serializes command list execution.
	queueMu sync.Mutex
}

// Open a device on the given adapter.
func Open(adapter Adapter, opts ...Option) *Device {
	d := &Device{
		name:       adapter.Name,
		logger:     log.New(strings.ToLower(strings.ReplaceAll(adapter.Name, " ", "-"))),
		debugLayer: adapter.DebugLayer,
		workers:    adapter.Workers,
		scheduler:  &evenScheduler{},
		resources:  make(map[uint64]*Resource),
	}
	if d.workers <= 0 {
		d.workers = 1
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// New opens a device on the first software adapter.
func New(opts ...Option) *Device {
	return Open(Adapters()[0], opts...)
}

func (d *Device) Name() string {
	return d.name
}

func (d *Device) DebugLayer() bool {
	return d.debugLayer
}

func (d *Device) Workers() int {
	return d.workers
}

// MemoryUsage returns the bytes currently committed and the budget.
func (d *Device) MemoryUsage() (allocated, budget int64) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.allocated, d.budget
}

// LiveResources returns the number of resources that have not been released.
func (d *Device) LiveResources() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.resources)
}

// CreateCommittedResource allocates a resource in the given initial state.
// Textures start out filled with the optimized clear value when one is given.
func (d *Device) CreateCommittedResource(heap HeapProperties, flags HeapFlags, desc ResourceDesc, initialState ResourceState, clear *ClearValue) (*Resource, error) {
	if err := desc.validate(); err != nil {
		return nil, err
	}
	if clear != nil && desc.Dimension == DimensionTexture2D && clear.Format != desc.Format {
		return nil, fmt.Errorf("%w: clear value format %s does not match %s", ErrInvalidDesc, clear.Format, desc.Format)
	}

	size := desc.sizeInBytes()
	d.mu.Lock()
	if d.budget > 0 && d.allocated+size > d.budget {
		allocated := d.allocated
		d.mu.Unlock()
		return nil, fmt.Errorf("device (%s): %w (requested %d bytes; %d of %d in use)", d.name, ErrOutOfMemory, size, allocated, d.budget)
	}
	d.nextID++
	res := &Resource{
		device: d,
		id:     d.nextID,
		desc:   desc,
		heap:   heap,
		size:   size,
		state:  initialState,
	}
	d.resources[res.id] = res
	d.allocated += size
	d.mu.Unlock()

	switch desc.Dimension {
	case DimensionBuffer:
		res.data = make([]byte, desc.Width)
	case DimensionTexture2D:
		texels := int(desc.Width) * int(desc.Height)
		res.texels = make([]float32, texels*desc.Format.Channels())
		if d.trackWrites {
			res.writes = make([]uint32, texels)
		}
		if clear != nil {
			res.Fill(clear.Color)
		}
	}
	return res, nil
}

func (d *Device) release(res *Resource) {
	d.mu.Lock()
	if _, ok := d.resources[res.id]; ok {
		delete(d.resources, res.id)
		d.allocated -= res.size
	}
	d.mu.Unlock()
}

// Resolve maps a virtual address back to its resource and byte offset.
func (d *Device) Resolve(addr GPUVirtualAddress) (*Resource, uint64, error) {
	id, offset := addr.split()
	d.mu.RLock()
	res := d.resources[id]
	d.mu.RUnlock()
	if res == nil {
		return nil, 0, fmt.Errorf("%w: 0x%016x", ErrInvalidAddress, uint64(addr))
	}
	if offset >= uint64(res.size) {
		return nil, 0, fmt.Errorf("%w: 0x%016x is past the end of %s", ErrInvalidAddress, uint64(addr), res)
	}
	return res, offset, nil
}

// Pipeline objects draw ids from a process-wide counter so identifiers
// from different devices never collide.
var objectIDs atomic.Uint64

func (d *Device) allocID() uint64 {
	return objectIDs.Add(1)
}
