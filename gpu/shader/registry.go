// Package shader provides the shader cache used by the denoisers. Kernels
// register factories by entry point name; the manager compiles them with a
// set of defines and caches the result under a caller supplied key.
package shader

import (
	"fmt"
	"sort"
	"sync"

	"github.com/achilleasa/rtdenoise/gpu/device"
)

// Defines are preprocessor-style values that specialize a kernel.
type Defines map[string]string

// ComputeFactory builds a compute program for the given defines.
type ComputeFactory func(defines Defines) (device.ComputeProgram, error)

// LibraryFactory builds a ray tracing library for the given defines.
type LibraryFactory func(defines Defines) (device.RayLibrary, error)

type entry struct {
	compute ComputeFactory
	library LibraryFactory
}

// Registry maps entry point names to program factories.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// The registry used by kernels registering themselves from init().
var DefaultRegistry = NewRegistry()

func (r *Registry) RegisterCompute(name string, factory ComputeFactory) {
	r.register(name, entry{compute: factory})
}

func (r *Registry) RegisterLibrary(name string, factory LibraryFactory) {
	r.register(name, entry{library: factory})
}

func (r *Registry) register(name string, e entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		panic(fmt.Sprintf("shader: entry point %q registered twice", name))
	}
	r.entries[name] = e
}

// Names returns the registered entry points in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) lookup(name string) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// RegisterCompute adds a compute kernel to the default registry.
func RegisterCompute(name string, factory ComputeFactory) {
	DefaultRegistry.RegisterCompute(name, factory)
}

// RegisterLibrary adds a ray tracing library to the default registry.
func RegisterLibrary(name string, factory LibraryFactory) {
	DefaultRegistry.RegisterLibrary(name, factory)
}
