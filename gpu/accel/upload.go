package accel

import (
	"fmt"

	"github.com/achilleasa/rtdenoise/gpu/device"
)

// Smallest buffer allocated for a structure.
const minStructureSize = 256

// Upload allocates a device buffer in the acceleration structure state and
// attaches the top level structure to it. The buffer address is what ray
// dispatches bind as a root SRV.
func (t *TopLevel) Upload(dev *device.Device, name string) (*device.Resource, error) {
	size := t.SizeInBytes()
	if size < minStructureSize {
		size = minStructureSize
	}
	res, err := dev.CreateCommittedResource(
		device.HeapProperties{Type: device.HeapTypeDefault},
		device.HeapFlagNone,
		device.BufferDesc(size, device.ResourceFlagAllowUnorderedAccess),
		device.StateRaytracingAccelerationStructure,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("accel: allocate %q: %w", name, err)
	}
	res.SetName(name)
	if err = res.SetAccelerationStructure(t); err != nil {
		res.Release()
		return nil, err
	}
	logger.Debugf("uploaded %q: %d instances, %d bytes", name, t.NumInstances(), size)
	return res, nil
}
