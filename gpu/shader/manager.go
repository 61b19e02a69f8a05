package shader

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/achilleasa/rtdenoise/gpu/device"
	"github.com/achilleasa/rtdenoise/log"
	"golang.org/x/sync/errgroup"
)

var (
	ErrUnknownEntryPoint = errors.New("shader: unknown entry point")
	ErrNotCompiled       = errors.New("shader: no compiled shader with this name")
)

// CompileRequest describes one program to compile and cache.
type CompileRequest struct {
	// Key under which the compiled program is cached.
	Name string

	// Registered entry point.
	EntryPoint string

	Defines Defines
}

// Manager compiles programs and caches them by name. It is safe for
// concurrent use.
type Manager struct {
	logger   log.Logger
	registry *Registry

	// Serializes compilation.
	compileMu sync.Mutex

	mu      sync.RWMutex
	shaders map[string]*device.ShaderBytecode
}

// NewManager creates a shader cache backed by registry. A nil registry
// selects DefaultRegistry.
func NewManager(registry *Registry) *Manager {
	if registry == nil {
		registry = DefaultRegistry
	}
	return &Manager{
		logger:   log.New("shader-manager"),
		registry: registry,
		shaders:  make(map[string]*device.ShaderBytecode),
	}
}

// Compile builds the program for req and caches it under req.Name,
// replacing any previous entry.
func (m *Manager) Compile(req CompileRequest) (*device.ShaderBytecode, error) {
	e, ok := m.registry.lookup(req.EntryPoint)
	if !ok {
		return nil, fmt.Errorf("%w: %q (requested as %q)", ErrUnknownEntryPoint, req.EntryPoint, req.Name)
	}

	m.compileMu.Lock()
	start := time.Now()
	bytecode := &device.ShaderBytecode{Name: req.Name}
	var err error
	if e.compute != nil {
		bytecode.Compute, err = e.compute(req.Defines)
	} else {
		bytecode.Library, err = e.library(req.Defines)
	}
	m.compileMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("shader: compile %q (%s%s): %w", req.Name, req.EntryPoint, formatDefines(req.Defines), err)
	}
	m.logger.Debugf("compiled %q from %s%s in %d ms", req.Name, req.EntryPoint, formatDefines(req.Defines), time.Since(start).Nanoseconds()/1e6)

	m.mu.Lock()
	m.shaders[req.Name] = bytecode
	m.mu.Unlock()
	return bytecode, nil
}

// CompileShaders compiles all requests in parallel and returns the first error.
func (m *Manager) CompileShaders(reqs []CompileRequest) error {
	var g errgroup.Group
	for _, req := range reqs {
		req := req
		g.Go(func() error {
			_, err := m.Compile(req)
			return err
		})
	}
	return g.Wait()
}

// GetShader returns a previously compiled program.
func (m *Manager) GetShader(name string) (*device.ShaderBytecode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bytecode, ok := m.shaders[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotCompiled, name)
	}
	return bytecode, nil
}

// Len returns the number of cached programs.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.shaders)
}

func formatDefines(defines Defines) string {
	if len(defines) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(defines))
	for k, v := range defines {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return " [" + strings.Join(pairs, " ") + "]"
}
