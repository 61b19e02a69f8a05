package device

import (
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// EventTiming is the wall time spent inside a BeginEvent/EndEvent region.
type EventTiming struct {
	Label    string
	Depth    int
	Duration time.Duration
}

// ExecutionReport summarizes an executed command list.
type ExecutionReport struct {
	Events        []EventTiming
	Dispatches    int
	RayDispatches int
	Barriers      int
	Copies        int
	Duration      time.Duration
}

type openEvent struct {
	index int
	start time.Time
}

type executionState struct {
	device  *Device
	list    *CommandList
	heaps   []*DescriptorHeap
	rootSig *RootSignature
	pso     *PipelineState
	so      *StateObject
	args    []rootArgument
	events  []openEvent
	report  *ExecutionReport

	// Resources written through a UAV since their last UAV barrier.
	pendingUAV map[*Resource]bool
}

// ExecuteCommandList runs a closed command list to completion. Commands
// execute in order; the threads of each dispatch run in parallel.
func (d *Device) ExecuteCommandList(cl *CommandList) (*ExecutionReport, error) {
	if !cl.closed {
		return nil, fmt.Errorf("%w: %q", ErrCommandListOpen, cl.name)
	}
	if cl.err != nil {
		return nil, cl.err
	}

	d.queueMu.Lock()
	defer d.queueMu.Unlock()

	start := time.Now()
	st := &executionState{
		device:     d,
		list:       cl,
		report:     &ExecutionReport{},
		pendingUAV: make(map[*Resource]bool),
	}
	for idx := range cl.cmds {
		if err := st.execute(&cl.cmds[idx]); err != nil {
			return st.report, fmt.Errorf("device (%s): command list %q, command %d: %w", d.name, cl.name, idx, err)
		}
	}
	st.report.Duration = time.Since(start)
	return st.report, nil
}

func (st *executionState) execute(c *command) error {
	switch c.typ {
	case cmdBarrier:
		return st.barrier(c.barriers)
	case cmdSetHeaps:
		for _, h := range c.heaps {
			if h == nil || !h.desc.ShaderVisible {
				return fmt.Errorf("%w: only shader visible heaps can be bound", ErrHeapNotBound)
			}
		}
		st.heaps = c.heaps
	case cmdSetRootSignature:
		if c.rootSig == nil || c.rootSig.Local() {
			return fmt.Errorf("%w: cannot bind a nil or local root signature", ErrInvalidRootSignature)
		}
		st.rootSig = c.rootSig
		st.args = make([]rootArgument, c.rootSig.NumParameters())
	case cmdSetPipelineState:
		st.pso = c.pso
	case cmdSetStateObject:
		st.so = c.so
	case cmdSetTable, cmdSetConstants, cmdSetCBV, cmdSetSRV:
		return st.setArgument(c)
	case cmdDispatch:
		return st.dispatch(c.groups)
	case cmdDispatchRays:
		return st.dispatchRays(c.rays)
	case cmdCopy:
		return st.copyResource(c.dst, c.src)
	case cmdBeginEvent:
		st.events = append(st.events, openEvent{index: len(st.report.Events), start: time.Now()})
		st.report.Events = append(st.report.Events, EventTiming{Label: c.label, Depth: len(st.events) - 1})
	case cmdEndEvent:
		ev := st.events[len(st.events)-1]
		st.events = st.events[:len(st.events)-1]
		st.report.Events[ev.index].Duration = time.Since(ev.start)
	}
	return nil
}

func (st *executionState) barrier(barriers []Barrier) error {
	for _, b := range barriers {
		st.report.Barriers++
		if b.Type == BarrierUAV {
			if b.Resource == nil {
				st.pendingUAV = make(map[*Resource]bool)
			} else {
				delete(st.pendingUAV, b.Resource)
			}
			continue
		}

		res := b.Resource
		if res.Released() {
			return fmt.Errorf("%w: barrier on %s", ErrReleasedResource, res)
		}
		if st.device.debugLayer && res.state != b.Before {
			return fmt.Errorf("%w: %s is in state %s; barrier expects %s", ErrBarrierStateMismatch, res, res.state, b.Before)
		}
		res.state = b.After
		delete(st.pendingUAV, res)
	}
	return nil
}

func (st *executionState) setArgument(c *command) error {
	if st.rootSig == nil {
		return fmt.Errorf("%w: no root signature bound", ErrRootParameter)
	}
	var expType RootParameterType
	switch c.typ {
	case cmdSetTable:
		expType = RootParameterDescriptorTable
	case cmdSetConstants:
		expType = RootParameter32BitConstants
	case cmdSetCBV:
		expType = RootParameterCBV
	case cmdSetSRV:
		expType = RootParameterSRV
	}
	p, err := st.rootSig.parameter(c.param, expType)
	if err != nil {
		return err
	}

	arg := &st.args[c.param]
	switch c.typ {
	case cmdSetTable:
		if !c.table.Valid() || c.table.index+p.numDescriptors() > len(c.table.heap.slots) {
			return fmt.Errorf("%w: table for %q parameter %d runs past its heap", ErrInvalidDescriptor, st.rootSig.Name(), c.param)
		}
		if !st.heapBound(c.table.heap) {
			return fmt.Errorf("%w: %q", ErrHeapNotBound, c.table.heap.desc.Name)
		}
		arg.table = c.table
	case cmdSetConstants:
		if c.offset < 0 || c.offset+len(c.constants) > p.Num32BitValues {
			return fmt.Errorf("%w: %d constants at offset %d exceed the %d declared by %q parameter %d", ErrRootParameter, len(c.constants), c.offset, p.Num32BitValues, st.rootSig.Name(), c.param)
		}
		if len(arg.constants) != p.Num32BitValues {
			arg.constants = make([]uint32, p.Num32BitValues)
		} else {
			arg.constants = append([]uint32(nil), arg.constants...)
		}
		copy(arg.constants[c.offset:], c.constants)
	case cmdSetCBV, cmdSetSRV:
		if _, _, err = st.device.Resolve(c.address); err != nil {
			return err
		}
		arg.address = c.address
	}
	arg.set = true
	return nil
}

func (st *executionState) heapBound(heap *DescriptorHeap) bool {
	for _, h := range st.heaps {
		if h == heap {
			return true
		}
	}
	return false
}

// validateBindings checks that every bound resource is in a state that
// matches how the root signature exposes it. It returns the resources
// reachable through UAV ranges.
func (st *executionState) validateBindings() ([]*Resource, error) {
	var uavs []*Resource
	debug := st.device.debugLayer
	for idx, p := range st.rootSig.desc.Parameters {
		arg := st.args[idx]
		if !arg.set {
			if debug {
				return nil, fmt.Errorf("%w: %q parameter %d is not bound", ErrRootParameter, st.rootSig.Name(), idx)
			}
			continue
		}

		switch p.Type {
		case RootParameterDescriptorTable:
			if !st.heapBound(arg.table.heap) {
				return nil, fmt.Errorf("%w: %q", ErrHeapNotBound, arg.table.heap.desc.Name)
			}
			offset := 0
			for _, r := range p.Ranges {
				for i := 0; i < r.NumDescriptors; i++ {
					desc, err := arg.table.heap.lookup(arg.table.index + offset)
					offset++
					if err != nil {
						return nil, err
					}
					if desc.resource == nil {
						if debug {
							return nil, fmt.Errorf("%w: %q parameter %d references an empty descriptor", ErrInvalidDescriptor, st.rootSig.Name(), idx)
						}
						continue
					}
					res := desc.resource
					if res.Released() {
						return nil, fmt.Errorf("%w: %s bound to %q parameter %d", ErrReleasedResource, res, st.rootSig.Name(), idx)
					}
					if r.Type == DescriptorRangeUAV {
						uavs = append(uavs, res)
					}
					if !debug {
						continue
					}
					if err := checkView(r.Type, desc, res); err != nil {
						return nil, fmt.Errorf("%q parameter %d: %w", st.rootSig.Name(), idx, err)
					}
					if st.pendingUAV[res] {
						return nil, fmt.Errorf("%w: %s was written by a previous dispatch", ErrMissingUAVBarrier, res)
					}
				}
			}
		case RootParameterSRV, RootParameterCBV:
			res, _, err := st.device.Resolve(arg.address)
			if err != nil {
				return nil, err
			}
			if !debug || res.heap.Type == HeapTypeUpload {
				continue
			}
			expState := StateNonPixelShaderResource
			if res.accel != nil {
				expState = StateRaytracingAccelerationStructure
			} else if p.Type == RootParameterCBV {
				expState = StateVertexAndConstantBuffer
			}
			if !res.state.Has(expState) {
				return nil, fmt.Errorf("%w: %s is in state %s; %q parameter %d needs %s", ErrResourceState, res, res.state, st.rootSig.Name(), idx, expState)
			}
		}
	}
	return uavs, nil
}

func checkView(rangeType DescriptorRangeType, desc descriptor, res *Resource) error {
	switch rangeType {
	case DescriptorRangeSRV:
		if desc.kind != ViewSRV {
			return fmt.Errorf("%w: %s bound through a %s view in an SRV range", ErrInvalidDescriptor, res, desc.kind)
		}
		if !res.state.Has(StateNonPixelShaderResource) {
			return fmt.Errorf("%w: %s is in state %s; SRV access needs %s", ErrResourceState, res, res.state, StateNonPixelShaderResource)
		}
	case DescriptorRangeUAV:
		if desc.kind != ViewUAV {
			return fmt.Errorf("%w: %s bound through a %s view in a UAV range", ErrInvalidDescriptor, res, desc.kind)
		}
		if !res.state.Has(StateUnorderedAccess) {
			return fmt.Errorf("%w: %s is in state %s; UAV access needs %s", ErrResourceState, res, res.state, StateUnorderedAccess)
		}
	}
	return nil
}

func (st *executionState) dispatchContext() *DispatchContext {
	args := make([]rootArgument, len(st.args))
	copy(args, st.args)
	return &DispatchContext{device: st.device, rootSig: st.rootSig, args: args}
}

func (st *executionState) dispatch(groups [3]uint32) error {
	if st.pso == nil {
		return ErrNoPipeline
	}
	if st.rootSig == nil || st.pso.rootSig != st.rootSig {
		return fmt.Errorf("%w: pipeline %q", ErrRootSignatureMismatch, st.pso.name)
	}
	uavs, err := st.validateBindings()
	if err != nil {
		return fmt.Errorf("pipeline %q: %w", st.pso.name, err)
	}
	st.report.Dispatches++
	if groups[0] == 0 || groups[1] == 0 || groups[2] == 0 {
		return nil
	}

	fn, err := st.pso.program.Prepare(st.dispatchContext())
	if err != nil {
		return fmt.Errorf("pipeline %q: %w", st.pso.name, err)
	}

	nt := st.pso.program.NumThreads()
	err = st.device.parallelRows(groups[1]*groups[2], func(row uint32) error {
		gy, gz := row%groups[1], row/groups[1]
		for gx := uint32(0); gx < groups[0]; gx++ {
			for tz := uint32(0); tz < nt[2]; tz++ {
				for ty := uint32(0); ty < nt[1]; ty++ {
					for tx := uint32(0); tx < nt[0]; tx++ {
						fn([3]uint32{gx*nt[0] + tx, gy*nt[1] + ty, gz*nt[2] + tz})
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, res := range uavs {
		st.pendingUAV[res] = true
	}
	return nil
}

func (st *executionState) dispatchRays(desc DispatchRaysDesc) error {
	so := st.so
	if so == nil {
		return ErrNoPipeline
	}
	if st.rootSig == nil || so.GlobalRootSignature() != st.rootSig {
		return fmt.Errorf("%w: state object %q", ErrRootSignatureMismatch, so.Name())
	}
	uavs, err := st.validateBindings()
	if err != nil {
		return fmt.Errorf("state object %q: %w", so.Name(), err)
	}
	st.report.RayDispatches++

	d := st.device
	rayGenTable, err := d.tableView(desc.RayGenerationShaderRecord.StartAddress, desc.RayGenerationShaderRecord.SizeInBytes, 0)
	if err != nil {
		return err
	}
	rayGenRecord, err := rayGenTable.record(0)
	if err != nil {
		return err
	}
	rayGen, err := so.decodeIdentifier(rayGenRecord, exportRayGeneration)
	if err != nil {
		return err
	}
	if rayGen == nil {
		return fmt.Errorf("%w: null ray generation shader", ErrUnknownExport)
	}

	rd := &rayDispatch{
		so:         so,
		dims:       [3]uint32{desc.Width, desc.Height, desc.Depth},
		maxDepth:   so.MaxTraceRecursionDepth(),
		maxPayload: so.MaxPayloadSizeInBytes(),
	}
	if rd.missTable, err = d.tableView(desc.MissShaderTable.StartAddress, desc.MissShaderTable.SizeInBytes, desc.MissShaderTable.StrideInBytes); err != nil {
		return err
	}
	if rd.hitTable, err = d.tableView(desc.HitGroupTable.StartAddress, desc.HitGroupTable.SizeInBytes, desc.HitGroupTable.StrideInBytes); err != nil {
		return err
	}
	if desc.Width == 0 || desc.Height == 0 || desc.Depth == 0 {
		return nil
	}

	dc := st.dispatchContext()
	body, err := rayGen.shader.RayGeneration(dc)
	if err != nil {
		return fmt.Errorf("state object %q: %w", so.Name(), err)
	}
	localArgs := rayGenRecord[ShaderIdentifierSize:]

	err = d.parallelRows(desc.Height*desc.Depth, func(row uint32) error {
		y, z := row%desc.Height, row/desc.Height
		rc := &RayContext{
			DispatchContext: dc,
			dispatch:        rd,
			localArgs:       localArgs,
			localRootSig:    rayGen.localRootSig,
		}
		for x := uint32(0); x < desc.Width; x++ {
			rc.index = [3]uint32{x, y, z}
			if err := body(rc); err != nil {
				return fmt.Errorf("ray (%d, %d, %d): %w", x, y, z, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, res := range uavs {
		st.pendingUAV[res] = true
	}
	return nil
}

func (st *executionState) copyResource(dst, src *Resource) error {
	if dst.Released() || src.Released() {
		return ErrReleasedResource
	}
	if st.device.debugLayer {
		if !src.state.Has(StateCopySource) {
			return fmt.Errorf("%w: copy source %s is in state %s", ErrResourceState, src, src.state)
		}
		if !dst.state.Has(StateCopyDest) {
			return fmt.Errorf("%w: copy destination %s is in state %s", ErrResourceState, dst, dst.state)
		}
		if st.pendingUAV[src] || st.pendingUAV[dst] {
			return fmt.Errorf("%w: copy from %s to %s", ErrMissingUAVBarrier, src, dst)
		}
	}
	if dst.desc.Dimension != src.desc.Dimension || dst.desc.Width != src.desc.Width || dst.desc.Height != src.desc.Height {
		return fmt.Errorf("%w: %s and %s differ in size", ErrCopyMismatch, src, dst)
	}
	if dst.desc.Format.Channels() != src.desc.Format.Channels() {
		return fmt.Errorf("%w: %s (%s) and %s (%s) differ in layout", ErrCopyMismatch, src, src.desc.Format, dst, dst.desc.Format)
	}

	st.report.Copies++
	if src.texels != nil {
		for i, v := range src.texels {
			dst.texels[i] = dst.desc.Format.quantize(v)
		}
	} else {
		copy(dst.data, src.data)
	}
	return nil
}

// parallelRows splits rows across the worker pool and runs fn for each row.
func (d *Device) parallelRows(rows uint32, fn func(row uint32) error) error {
	blocks := d.scheduler.Schedule(d.workers, rows)
	var g errgroup.Group
	var start uint32
	for _, blockH := range blocks {
		if blockH == 0 {
			continue
		}
		from, to := start, start+blockH
		start = to
		g.Go(func() error {
			for row := from; row < to; row++ {
				if err := fn(row); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}
