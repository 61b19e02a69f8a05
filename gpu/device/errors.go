package device

import "errors"

var (
	ErrOutOfMemory             = errors.New("device: out of device memory")
	ErrInvalidDesc             = errors.New("device: invalid resource description")
	ErrReleasedResource        = errors.New("device: resource has been released")
	ErrInvalidAddress          = errors.New("device: invalid GPU virtual address")
	ErrNotMappable             = errors.New("device: resource is not a mappable buffer")
	ErrDescriptorHeapFull      = errors.New("device: descriptor heap exhausted")
	ErrInvalidDescriptor       = errors.New("device: invalid descriptor")
	ErrInvalidRootSignature    = errors.New("device: invalid root signature")
	ErrRootParameter           = errors.New("device: root parameter mismatch")
	ErrRootSignatureMismatch   = errors.New("device: pipeline and bound root signature differ")
	ErrInvalidProgram          = errors.New("device: invalid shader program")
	ErrInvalidStateObject      = errors.New("device: invalid state object")
	ErrUnknownExport           = errors.New("device: unknown state object export")
	ErrCommandListClosed       = errors.New("device: command list is closed")
	ErrCommandListOpen         = errors.New("device: command list must be closed before execution")
	ErrUnbalancedEvents        = errors.New("device: unbalanced debug events")
	ErrNoPipeline              = errors.New("device: no pipeline state bound")
	ErrHeapNotBound            = errors.New("device: descriptor heap not bound")
	ErrBarrierStateMismatch    = errors.New("device: barrier state does not match resource state")
	ErrResourceState           = errors.New("device: resource is in the wrong state for its binding")
	ErrMissingUAVBarrier       = errors.New("device: missing UAV barrier between dependent dispatches")
	ErrCopyMismatch            = errors.New("device: copy source and destination are incompatible")
	ErrNotAccelerationStruct   = errors.New("device: resource does not hold an acceleration structure")
	ErrForeignShaderIdentifier = errors.New("device: shader identifier does not belong to the bound state object")
	ErrRecursionDepthExceeded  = errors.New("device: ray recursion depth exceeded")
	ErrPayloadTooLarge         = errors.New("device: ray payload exceeds the configured maximum")
	ErrShaderRecordOutOfRange  = errors.New("device: shader record index out of range")
)
