package device

import "fmt"

type RootParameterType uint8

const (
	RootParameterDescriptorTable RootParameterType = iota
	RootParameter32BitConstants
	RootParameterCBV
	RootParameterSRV
	RootParameterUAV
)

// Implements Stringer.
func (t RootParameterType) String() string {
	switch t {
	case RootParameterDescriptorTable:
		return "descriptor table"
	case RootParameter32BitConstants:
		return "32-bit constants"
	case RootParameterCBV:
		return "root CBV"
	case RootParameterSRV:
		return "root SRV"
	case RootParameterUAV:
		return "root UAV"
	}
	return fmt.Sprintf("RootParameterType(%d)", uint8(t))
}

type DescriptorRangeType uint8

const (
	DescriptorRangeSRV DescriptorRangeType = iota
	DescriptorRangeUAV
)

type DescriptorRange struct {
	Type           DescriptorRangeType
	NumDescriptors int
	BaseRegister   int
}

func SRVRange(num, baseRegister int) DescriptorRange {
	return DescriptorRange{Type: DescriptorRangeSRV, NumDescriptors: num, BaseRegister: baseRegister}
}

func UAVRange(num, baseRegister int) DescriptorRange {
	return DescriptorRange{Type: DescriptorRangeUAV, NumDescriptors: num, BaseRegister: baseRegister}
}

type RootParameter struct {
	Type           RootParameterType
	Ranges         []DescriptorRange
	Num32BitValues int
	Register       int
}

// DescriptorTable declares a table parameter made of the given ranges.
func DescriptorTable(ranges ...DescriptorRange) RootParameter {
	return RootParameter{Type: RootParameterDescriptorTable, Ranges: ranges}
}

// Constants declares num inline 32-bit values.
func Constants(num, register int) RootParameter {
	return RootParameter{Type: RootParameter32BitConstants, Num32BitValues: num, Register: register}
}

func RootCBV(register int) RootParameter {
	return RootParameter{Type: RootParameterCBV, Register: register}
}

func RootSRV(register int) RootParameter {
	return RootParameter{Type: RootParameterSRV, Register: register}
}

func RootUAV(register int) RootParameter {
	return RootParameter{Type: RootParameterUAV, Register: register}
}

func (p RootParameter) numDescriptors() int {
	n := 0
	for _, r := range p.Ranges {
		n += r.NumDescriptors
	}
	return n
}

// rangeAt returns the range type covering the table slot at offset.
func (p RootParameter) rangeAt(offset int) (DescriptorRangeType, bool) {
	for _, r := range p.Ranges {
		if offset < r.NumDescriptors {
			return r.Type, true
		}
		offset -= r.NumDescriptors
	}
	return 0, false
}

// Size of the parameter inside a local argument block.
func (p RootParameter) localSize() int {
	if p.Type == RootParameter32BitConstants {
		return 4 * p.Num32BitValues
	}
	return 8
}

type RootSignatureDesc struct {
	Name       string
	Parameters []RootParameter

	// Local root signatures describe shader record arguments.
	Local bool
}

type RootSignature struct {
	id   uint64
	desc RootSignatureDesc
}

func (d *Device) CreateRootSignature(desc RootSignatureDesc) (*RootSignature, error) {
	for i, p := range desc.Parameters {
		switch p.Type {
		case RootParameterDescriptorTable:
			if len(p.Ranges) == 0 {
				return nil, fmt.Errorf("%w: %q parameter %d is an empty table", ErrInvalidRootSignature, desc.Name, i)
			}
			for _, r := range p.Ranges {
				if r.NumDescriptors <= 0 {
					return nil, fmt.Errorf("%w: %q parameter %d has an empty range", ErrInvalidRootSignature, desc.Name, i)
				}
			}
		case RootParameter32BitConstants:
			if p.Num32BitValues <= 0 || p.Num32BitValues > 64 {
				return nil, fmt.Errorf("%w: %q parameter %d declares %d constants", ErrInvalidRootSignature, desc.Name, i, p.Num32BitValues)
			}
		case RootParameterCBV, RootParameterSRV, RootParameterUAV:
		default:
			return nil, fmt.Errorf("%w: %q parameter %d has type %s", ErrInvalidRootSignature, desc.Name, i, p.Type)
		}
	}

	params := make([]RootParameter, len(desc.Parameters))
	copy(params, desc.Parameters)
	desc.Parameters = params
	return &RootSignature{id: d.allocID(), desc: desc}, nil
}

func (rs *RootSignature) Name() string {
	return rs.desc.Name
}

func (rs *RootSignature) Local() bool {
	return rs.desc.Local
}

func (rs *RootSignature) NumParameters() int {
	return len(rs.desc.Parameters)
}

func (rs *RootSignature) Parameter(index int) RootParameter {
	return rs.desc.Parameters[index]
}

func (rs *RootSignature) parameter(index int, expType RootParameterType) (RootParameter, error) {
	if index < 0 || index >= len(rs.desc.Parameters) {
		return RootParameter{}, fmt.Errorf("%w: %q has no parameter %d", ErrRootParameter, rs.desc.Name, index)
	}
	p := rs.desc.Parameters[index]
	if p.Type != expType {
		return p, fmt.Errorf("%w: %q parameter %d is a %s; used as %s", ErrRootParameter, rs.desc.Name, index, p.Type, expType)
	}
	return p, nil
}

// LocalArgumentsSize returns the bytes a shader record needs after its
// identifier to hold every parameter of this signature.
func (rs *RootSignature) LocalArgumentsSize() int {
	size := 0
	for _, p := range rs.desc.Parameters {
		size += p.localSize()
	}
	return size
}

func (rs *RootSignature) localArgumentOffset(index int) int {
	off := 0
	for i := 0; i < index; i++ {
		off += rs.desc.Parameters[i].localSize()
	}
	return off
}
