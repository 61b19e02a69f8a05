// Package shadertable packs shader records into upload-heap buffers
// consumed by ray dispatches.
package shadertable

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/achilleasa/rtdenoise/gpu/device"
	"github.com/olekukonko/tablewriter"
)

const (
	// Size of a shader identifier.
	ShaderIdentifierSize = device.ShaderIdentifierSize

	// Record strides are rounded up to this alignment.
	RecordAlignment = 32

	// Table start addresses are aligned to this boundary.
	TableAlignment = 64
)

var (
	ErrCapacityExceeded = errors.New("shadertable: record count exceeds table capacity")
	ErrRecordTooLarge   = errors.New("shadertable: record does not fit in the table stride")
	ErrBadIdentifier    = errors.New("shadertable: shader identifier has the wrong size")
)

// Record is a shader identifier followed by local root arguments.
type Record struct {
	Identifier []byte
	LocalArgs  []byte
}

func (r Record) size() int {
	return len(r.Identifier) + len(r.LocalArgs)
}

// Table is a fixed-capacity array of equally sized shader records. Tables
// are never updated in place; rebuild them when their contents change.
type Table struct {
	name     string
	res      *device.Resource
	data     []byte
	stride   uint64
	capacity int
	records  []Record
}

func alignUp(v, alignment uint64) uint64 {
	return (v + alignment - 1) &^ (alignment - 1)
}

// New allocates a table for exactly numRecords records of up to recordSize
// bytes each. A table sized for zero records still owns one placeholder
// slot so its resource is always valid.
func New(dev *device.Device, numRecords int, recordSize int, name string) (*Table, error) {
	if numRecords < 0 || recordSize < ShaderIdentifierSize {
		return nil, fmt.Errorf("shadertable (%s): invalid layout (%d records of %d bytes)", name, numRecords, recordSize)
	}
	stride := alignUp(uint64(recordSize), RecordAlignment)
	slots := numRecords
	if slots == 0 {
		slots = 1
	}
	size := alignUp(stride*uint64(slots), TableAlignment)

	res, err := dev.CreateCommittedResource(
		device.HeapProperties{Type: device.HeapTypeUpload},
		device.HeapFlagNone,
		device.BufferDesc(size, device.ResourceFlagNone),
		device.StateGenericRead,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("shadertable (%s): %w", name, err)
	}
	res.SetName(name)

	data, err := res.Map()
	if err != nil {
		res.Release()
		return nil, fmt.Errorf("shadertable (%s): %w", name, err)
	}

	return &Table{
		name:     name,
		res:      res,
		data:     data,
		stride:   stride,
		capacity: numRecords,
	}, nil
}

// PushBack copies a record into the next free slot.
func (t *Table) PushBack(rec Record) error {
	if len(t.records) >= t.capacity {
		return fmt.Errorf("shadertable (%s): %w (capacity %d)", t.name, ErrCapacityExceeded, t.capacity)
	}
	if len(rec.Identifier) != ShaderIdentifierSize {
		return fmt.Errorf("shadertable (%s): %w (%d bytes)", t.name, ErrBadIdentifier, len(rec.Identifier))
	}
	if uint64(rec.size()) > t.stride {
		return fmt.Errorf("shadertable (%s): %w (%d bytes; stride %d)", t.name, ErrRecordTooLarge, rec.size(), t.stride)
	}

	off := uint64(len(t.records)) * t.stride
	n := copy(t.data[off:], rec.Identifier)
	copy(t.data[off+uint64(n):], rec.LocalArgs)
	t.records = append(t.records, rec)
	return nil
}

// Resource returns the buffer backing the table.
func (t *Table) Resource() *device.Resource {
	return t.res
}

func (t *Table) Name() string {
	return t.name
}

func (t *Table) Stride() uint64 {
	return t.stride
}

// Len returns the number of records pushed so far.
func (t *Table) Len() int {
	return len(t.records)
}

// Cap returns the number of records the table was sized for.
func (t *Table) Cap() int {
	return t.capacity
}

// SizeInBytes returns the bytes covered by the pushed records.
func (t *Table) SizeInBytes() uint64 {
	return uint64(len(t.records)) * t.stride
}

// Range describes the first record, as used for ray generation tables.
func (t *Table) Range() device.GPUVirtualAddressRange {
	return device.GPUVirtualAddressRange{
		StartAddress: t.res.GPUVirtualAddress(),
		SizeInBytes:  t.SizeInBytes(),
	}
}

// RangeAndStride describes all records, as used for miss and hit group tables.
func (t *Table) RangeAndStride() device.GPUVirtualAddressRangeAndStride {
	return device.GPUVirtualAddressRangeAndStride{
		StartAddress:  t.res.GPUVirtualAddress(),
		SizeInBytes:   t.SizeInBytes(),
		StrideInBytes: t.stride,
	}
}

func (t *Table) Release() {
	if t == nil || t.res == nil {
		return
	}
	t.res.Release()
	t.res = nil
	t.data = nil
	t.records = nil
}

// DebugString renders the table contents. names maps identifiers to
// export names; unknown identifiers are printed in hex.
func (t *Table) DebugString(names map[string]string) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s: %d/%d records, stride %d bytes\n", t.name, len(t.records), t.capacity, t.stride)

	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Record", "Offset", "Shader", "Local args"})
	table.SetAutoFormatHeaders(false)
	for idx, rec := range t.records {
		shader, ok := names[string(rec.Identifier)]
		if !ok {
			shader = fmt.Sprintf("%x", rec.Identifier[:8])
		}
		table.Append([]string{
			fmt.Sprint(idx),
			fmt.Sprint(uint64(idx) * t.stride),
			shader,
			fmt.Sprintf("%d bytes", len(rec.LocalArgs)),
		})
	}
	table.Render()
	return buf.String()
}
