package device

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fillParams struct {
	Value float32
	Width uint32
}

type fillProgram struct{}

func (fillProgram) NumThreads() [3]uint32 {
	return [3]uint32{8, 8, 1}
}

func (fillProgram) Prepare(dc *DispatchContext) (ThreadFunc, error) {
	var params fillParams
	if err := dc.Constants(0, &params); err != nil {
		return nil, err
	}
	out, err := dc.UAV(1)
	if err != nil {
		return nil, err
	}
	return func(tid [3]uint32) {
		if tid[0] >= params.Width {
			return
		}
		out.Store(int(tid[0]), int(tid[1]), [4]float32{params.Value + float32(tid[0])})
	}, nil
}

type computeFixture struct {
	dev     *Device
	heap    *DescriptorHeap
	rootSig *RootSignature
	pso     *PipelineState
	tex     *Resource
	uav     DescriptorHandle
}

func newComputeFixture(t *testing.T, opts ...Option) *computeFixture {
	dev := New(append([]Option{WithDebugLayer(true), WithWorkers(3)}, opts...)...)

	rootSig, err := dev.CreateRootSignature(RootSignatureDesc{
		Name: "fill",
		Parameters: []RootParameter{
			Constants(2, 0),
			DescriptorTable(UAVRange(1, 0)),
		},
	})
	require.NoError(t, err)

	pso, err := dev.CreateComputePipelineState(ComputePipelineStateDesc{
		Name:          "fill",
		RootSignature: rootSig,
		CS:            &ShaderBytecode{Name: "fill", Compute: fillProgram{}},
	})
	require.NoError(t, err)

	heap, err := dev.CreateDescriptorHeap(DescriptorHeapDesc{Name: "heap", NumDescriptors: 4, ShaderVisible: true})
	require.NoError(t, err)

	tex, err := dev.CreateCommittedResource(
		HeapProperties{Type: HeapTypeDefault}, HeapFlagNone,
		Tex2DDesc(FormatR32Float, 13, 7, ResourceFlagAllowUnorderedAccess),
		StateUnorderedAccess, nil,
	)
	require.NoError(t, err)
	tex.SetName("target")

	uav, err := NewDescriptorAllocator(heap).Allocate(1)
	require.NoError(t, err)
	require.NoError(t, dev.CreateUnorderedAccessView(tex, nil, uav.CPU))

	return &computeFixture{dev: dev, heap: heap, rootSig: rootSig, pso: pso, tex: tex, uav: uav}
}

func (f *computeFixture) recordFill(cl *CommandList, value float32) {
	cl.SetDescriptorHeaps(f.heap)
	cl.SetComputeRootSignature(f.rootSig)
	cl.SetPipelineState(f.pso)
	cl.SetComputeRootConstants(0, fillParams{Value: value, Width: uint32(f.tex.Width())})
	cl.SetComputeRootDescriptorTable(1, f.uav.GPU)
	cl.Dispatch(2, 1, 1)
}

func TestDispatchCoversEveryThread(t *testing.T) {
	f := newComputeFixture(t, WithWriteTracking(true))

	cl := f.dev.CreateCommandList("fill")
	cl.BeginEvent("fill")
	f.recordFill(cl, 10)
	cl.EndEvent()
	require.NoError(t, cl.Close())

	report, err := f.dev.ExecuteCommandList(cl)
	require.NoError(t, err)
	require.Equal(t, 1, report.Dispatches)
	require.Len(t, report.Events, 1)
	require.Equal(t, "fill", report.Events[0].Label)

	for y := 0; y < f.tex.Height(); y++ {
		for x := 0; x < f.tex.Width(); x++ {
			require.Equal(t, float32(10+x), f.tex.Load(x, y)[0], "texel (%d, %d)", x, y)
			require.Equal(t, uint32(1), f.tex.WriteCount(x, y), "texel (%d, %d)", x, y)
		}
	}
}

func TestMissingUAVBarrier(t *testing.T) {
	f := newComputeFixture(t)

	cl := f.dev.CreateCommandList("hazard")
	f.recordFill(cl, 1)
	cl.Dispatch(2, 1, 1)
	require.NoError(t, cl.Close())

	_, err := f.dev.ExecuteCommandList(cl)
	require.ErrorIs(t, err, ErrMissingUAVBarrier)

	cl.Reset()
	f.recordFill(cl, 1)
	cl.ResourceBarrier(UAVBarrier(f.tex))
	cl.Dispatch(2, 1, 1)
	require.NoError(t, cl.Close())
	_, err = f.dev.ExecuteCommandList(cl)
	require.NoError(t, err)
}

func TestBarrierStateMismatch(t *testing.T) {
	f := newComputeFixture(t)

	cl := f.dev.CreateCommandList("barriers")
	cl.ResourceBarrier(TransitionBarrier(f.tex, StateNonPixelShaderResource, StateUnorderedAccess))
	require.NoError(t, cl.Close())
	_, err := f.dev.ExecuteCommandList(cl)
	require.ErrorIs(t, err, ErrBarrierStateMismatch)

	// A UAV bound while the resource is readable must be reported.
	cl.Reset()
	cl.ResourceBarrier(TransitionBarrier(f.tex, StateUnorderedAccess, StateNonPixelShaderResource))
	f.recordFill(cl, 1)
	require.NoError(t, cl.Close())
	_, err = f.dev.ExecuteCommandList(cl)
	require.ErrorIs(t, err, ErrResourceState)
}

func TestRecordingErrors(t *testing.T) {
	dev := New()

	cl := dev.CreateCommandList("unbalanced")
	cl.EndEvent()
	require.ErrorIs(t, cl.Close(), ErrUnbalancedEvents)

	cl = dev.CreateCommandList("open")
	_, err := dev.ExecuteCommandList(cl)
	require.ErrorIs(t, err, ErrCommandListOpen)

	require.NoError(t, cl.Close())
	cl.Dispatch(1, 1, 1)
	_, err = dev.ExecuteCommandList(cl)
	require.ErrorIs(t, err, ErrCommandListClosed)
}

func TestMemoryBudget(t *testing.T) {
	dev := New(WithMemoryBudget(1024))

	buf, err := dev.CreateCommittedResource(HeapProperties{Type: HeapTypeUpload}, HeapFlagNone, BufferDesc(1000, ResourceFlagNone), StateGenericRead, nil)
	require.NoError(t, err)

	_, err = dev.CreateCommittedResource(HeapProperties{Type: HeapTypeUpload}, HeapFlagNone, BufferDesc(100, ResourceFlagNone), StateGenericRead, nil)
	require.ErrorIs(t, err, ErrOutOfMemory)

	buf.Release()
	buf.Release()
	allocated, _ := dev.MemoryUsage()
	require.Zero(t, allocated)
	require.Zero(t, dev.LiveResources())

	_, err = buf.Map()
	require.ErrorIs(t, err, ErrReleasedResource)
}

func TestDescriptorAllocatorExhaustion(t *testing.T) {
	dev := New()
	heap, err := dev.CreateDescriptorHeap(DescriptorHeapDesc{Name: "small", NumDescriptors: 5, ShaderVisible: true})
	require.NoError(t, err)

	alloc := NewDescriptorAllocator(heap)
	first, err := alloc.Allocate(3)
	require.NoError(t, err)
	require.Equal(t, 0, first.CPU.Index())

	second, err := alloc.Allocate(2)
	require.NoError(t, err)
	require.Equal(t, 3, second.GPU.Index())

	_, err = alloc.Allocate(1)
	require.ErrorIs(t, err, ErrDescriptorHeapFull)
	require.Equal(t, 5, alloc.Allocated())
}

func TestStructRoundTrip(t *testing.T) {
	dev := New()
	buf, err := dev.CreateCommittedResource(HeapProperties{Type: HeapTypeUpload}, HeapFlagNone, BufferDesc(64, ResourceFlagNone), StateGenericRead, nil)
	require.NoError(t, err)

	in := fillParams{Value: 2.5, Width: 9}
	require.NoError(t, buf.WriteStruct(16, in))
	var out fillParams
	require.NoError(t, buf.ReadStruct(16, &out))
	require.Equal(t, in, out)

	require.ErrorIs(t, buf.WriteStruct(60, in), ErrInvalidAddress)

	words, err := PackConstants(in)
	require.NoError(t, err)
	require.Len(t, words, 2)
	require.Equal(t, uint32(9), words[1])

	var short struct{ A, B, C uint32 }
	require.ErrorIs(t, UnpackConstants(words, &short), ErrRootParameter)
}

func TestFormatQuantization(t *testing.T) {
	dev := New()
	tex, err := dev.CreateCommittedResource(
		HeapProperties{Type: HeapTypeDefault}, HeapFlagNone,
		Tex2DDesc(FormatR8Uint, 2, 1, ResourceFlagNone),
		StateCommon, &ClearValue{Format: FormatR8Uint, Color: [4]float32{3}},
	)
	require.NoError(t, err)
	require.Equal(t, float32(3), tex.Load(1, 0)[0])

	tex.Store(0, 0, [4]float32{300})
	require.Equal(t, float32(255), tex.Load(0, 0)[0])
	tex.Store(1, 0, [4]float32{-4})
	require.Equal(t, float32(0), tex.Load(1, 0)[0])
	require.Equal(t, [4]float32{}, tex.Load(5, 5))
}
