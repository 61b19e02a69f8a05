package device

import (
	"fmt"
)

type rootArgument struct {
	set       bool
	table     GPUDescriptorHandle
	constants []uint32
	address   GPUVirtualAddress
}

// DispatchContext exposes the root arguments bound for a dispatch.
type DispatchContext struct {
	device  *Device
	rootSig *RootSignature
	args    []rootArgument
}

func (dc *DispatchContext) Device() *Device {
	return dc.device
}

func (dc *DispatchContext) argument(param int, expType RootParameterType) (RootParameter, rootArgument, error) {
	p, err := dc.rootSig.parameter(param, expType)
	if err != nil {
		return p, rootArgument{}, err
	}
	arg := dc.args[param]
	if !arg.set {
		return p, arg, fmt.Errorf("%w: %q parameter %d is not bound", ErrRootParameter, dc.rootSig.Name(), param)
	}
	return p, arg, nil
}

// Constants decodes the root constants bound at param into out.
func (dc *DispatchContext) Constants(param int, out interface{}) error {
	_, arg, err := dc.argument(param, RootParameter32BitConstants)
	if err != nil {
		return err
	}
	return UnpackConstants(arg.constants, out)
}

func (dc *DispatchContext) view(param, offset int, kind ViewKind) (*Resource, error) {
	p, arg, err := dc.argument(param, RootParameterDescriptorTable)
	if err != nil {
		return nil, err
	}
	rangeType, ok := p.rangeAt(offset)
	if !ok {
		return nil, fmt.Errorf("%w: %q parameter %d has no slot %d", ErrRootParameter, dc.rootSig.Name(), param, offset)
	}
	if (kind == ViewSRV) != (rangeType == DescriptorRangeSRV) {
		return nil, fmt.Errorf("%w: %q parameter %d slot %d is not a %s range", ErrRootParameter, dc.rootSig.Name(), param, offset, kind)
	}
	desc, err := arg.table.heap.lookup(arg.table.index + offset)
	if err != nil {
		return nil, err
	}
	if desc.kind != kind || desc.resource == nil {
		return nil, fmt.Errorf("%w: %q parameter %d slot %d holds a %s view; expected %s", ErrInvalidDescriptor, dc.rootSig.Name(), param, offset, desc.kind, kind)
	}
	if desc.resource.Released() {
		return nil, fmt.Errorf("%w: %s", ErrReleasedResource, desc.resource)
	}
	return desc.resource, nil
}

// SRV returns the texture behind the first slot of the table bound at param.
func (dc *DispatchContext) SRV(param int) (*Resource, error) {
	return dc.view(param, 0, ViewSRV)
}

// UAV returns the texture behind the first slot of the table bound at param.
func (dc *DispatchContext) UAV(param int) (*Resource, error) {
	return dc.view(param, 0, ViewUAV)
}

// SRVAt returns the texture behind slot offset of the table bound at param.
func (dc *DispatchContext) SRVAt(param, offset int) (*Resource, error) {
	return dc.view(param, offset, ViewSRV)
}

// UAVAt returns the texture behind slot offset of the table bound at param.
func (dc *DispatchContext) UAVAt(param, offset int) (*Resource, error) {
	return dc.view(param, offset, ViewUAV)
}

// ConstantBuffer decodes the constant buffer bound at param into out.
func (dc *DispatchContext) ConstantBuffer(param int, out interface{}) error {
	_, arg, err := dc.argument(param, RootParameterCBV)
	if err != nil {
		return err
	}
	return dc.device.readAddress(arg.address, out)
}

// AccelerationStructure returns the structure bound as a root SRV at param.
func (dc *DispatchContext) AccelerationStructure(param int) (AccelerationStructure, error) {
	_, arg, err := dc.argument(param, RootParameterSRV)
	if err != nil {
		return nil, err
	}
	res, _, err := dc.device.Resolve(arg.address)
	if err != nil {
		return nil, err
	}
	if res.accel == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotAccelerationStruct, res)
	}
	return res.accel, nil
}

// Buffer returns the bytes of the buffer bound as a root SRV at param,
// starting at the bound address.
func (dc *DispatchContext) Buffer(param int) ([]byte, error) {
	_, arg, err := dc.argument(param, RootParameterSRV)
	if err != nil {
		return nil, err
	}
	return dc.device.bytesAt(arg.address)
}

func (d *Device) bytesAt(addr GPUVirtualAddress) ([]byte, error) {
	res, offset, err := d.Resolve(addr)
	if err != nil {
		return nil, err
	}
	data, err := res.Map()
	if err != nil {
		return nil, err
	}
	return data[offset:], nil
}

func (d *Device) readAddress(addr GPUVirtualAddress, out interface{}) error {
	res, offset, err := d.Resolve(addr)
	if err != nil {
		return err
	}
	return res.ReadStruct(int(offset), out)
}
