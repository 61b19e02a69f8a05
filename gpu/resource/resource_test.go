package resource

import (
	"testing"

	"github.com/achilleasa/rtdenoise/gpu/device"
	"github.com/stretchr/testify/require"
)

func TestTransiteRecordsOnlyStateChanges(t *testing.T) {
	dev := device.New(device.WithDebugLayer(true))

	var r GpuResource
	require.NoError(t, r.Initialize(
		dev,
		device.HeapProperties{Type: device.HeapTypeDefault},
		device.HeapFlagNone,
		device.Tex2DDesc(device.FormatR16Float, 4, 4, device.ResourceFlagAllowUnorderedAccess),
		device.StateUnorderedAccess,
		nil,
	))
	require.Equal(t, device.StateUnorderedAccess, r.State())

	cmd := dev.CreateCommandList("transitions")
	r.Transite(cmd, device.StateUnorderedAccess)
	require.Zero(t, cmd.Len())

	r.Transite(cmd, device.StateNonPixelShaderResource)
	r.Transite(cmd, device.StateNonPixelShaderResource)
	r.Transite(cmd, device.StateCopySource)
	require.Equal(t, 2, cmd.Len())
	require.Equal(t, device.StateCopySource, r.State())

	require.NoError(t, cmd.Close())
	report, err := dev.ExecuteCommandList(cmd)
	require.NoError(t, err)
	require.Equal(t, 2, report.Barriers)
}

func TestInitializeFailure(t *testing.T) {
	dev := device.New(device.WithMemoryBudget(16))

	var r GpuResource
	err := r.Initialize(dev, device.HeapProperties{}, device.HeapFlagNone, device.Tex2DDesc(device.FormatR32Float, 8, 8, device.ResourceFlagNone), device.StateCommon, nil)
	require.ErrorIs(t, err, device.ErrOutOfMemory)
	require.False(t, r.Valid())
}

func TestReinitializeReleasesPrevious(t *testing.T) {
	dev := device.New()

	var r GpuResource
	desc := device.Tex2DDesc(device.FormatR32Float, 2, 2, device.ResourceFlagNone)
	require.NoError(t, r.Initialize(dev, device.HeapProperties{}, device.HeapFlagNone, desc, device.StateCommon, nil))
	first := r.Resource()
	require.NoError(t, r.Initialize(dev, device.HeapProperties{}, device.HeapFlagNone, desc, device.StateCopyDest, nil))

	require.True(t, first.Released())
	require.Equal(t, 1, dev.LiveResources())
	require.Equal(t, device.StateCopyDest, r.State())

	r.Release()
	require.Zero(t, dev.LiveResources())
}
