package device

import (
	"encoding/binary"
	"fmt"
)

// ShaderIdentifierSize is the size of an opaque shader identifier.
const ShaderIdentifierSize = 32

// Identifiers carry this tag after the owning state object id so that
// random bytes are not mistaken for a valid identifier.
const identifierTag = 0x52545348

type HitGroupDesc struct {
	Name       string
	ClosestHit string
}

// LocalRootSignatureAssociation binds a local root signature to exports.
type LocalRootSignatureAssociation struct {
	RootSignature *RootSignature
	Exports       []string
}

type StateObjectDesc struct {
	Name                    string
	Libraries               []*ShaderBytecode
	HitGroups               []HitGroupDesc
	MaxPayloadSizeInBytes   int
	MaxAttributeSizeInBytes int
	MaxTraceRecursionDepth  int
	GlobalRootSignature     *RootSignature
	LocalRootSignatures     []LocalRootSignatureAssociation
}

type exportKind uint8

const (
	exportRayGeneration exportKind = iota
	exportMiss
	exportHitGroup
	exportClosestHit
)

type stateExport struct {
	name         string
	kind         exportKind
	shader       RayShader
	localRootSig *RootSignature
}

// StateObject is a ray tracing pipeline.
type StateObject struct {
	id          uint64
	desc        StateObjectDesc
	exports     []*stateExport
	exportIndex map[string]int
}

func (d *Device) CreateStateObject(desc StateObjectDesc) (*StateObject, error) {
	if desc.GlobalRootSignature == nil || desc.GlobalRootSignature.Local() {
		return nil, fmt.Errorf("%w: %q needs a global root signature", ErrInvalidStateObject, desc.Name)
	}
	if desc.MaxTraceRecursionDepth < 1 || desc.MaxTraceRecursionDepth > 31 {
		return nil, fmt.Errorf("%w: %q max recursion depth %d outside [1, 31]", ErrInvalidStateObject, desc.Name, desc.MaxTraceRecursionDepth)
	}
	if desc.MaxPayloadSizeInBytes <= 0 {
		return nil, fmt.Errorf("%w: %q needs a positive payload size", ErrInvalidStateObject, desc.Name)
	}

	so := &StateObject{
		id:          d.allocID(),
		desc:        desc,
		exportIndex: make(map[string]int),
	}
	add := func(exp *stateExport) error {
		if _, exists := so.exportIndex[exp.name]; exists {
			return fmt.Errorf("%w: %q exports %q twice", ErrInvalidStateObject, desc.Name, exp.name)
		}
		so.exportIndex[exp.name] = len(so.exports)
		so.exports = append(so.exports, exp)
		return nil
	}

	var rayGenCount int
	for _, lib := range desc.Libraries {
		if lib == nil || lib.Library == nil {
			return nil, fmt.Errorf("%w: %q references a non-library shader", ErrInvalidStateObject, desc.Name)
		}
		for name, shader := range lib.Library {
			exp := &stateExport{name: name, shader: shader}
			switch shader.Kind {
			case RayGenerationShader:
				if shader.RayGeneration == nil {
					return nil, fmt.Errorf("%w: raygen export %q has no body", ErrInvalidStateObject, name)
				}
				exp.kind = exportRayGeneration
				rayGenCount++
			case MissShader:
				if shader.Miss == nil {
					return nil, fmt.Errorf("%w: miss export %q has no body", ErrInvalidStateObject, name)
				}
				exp.kind = exportMiss
			case ClosestHitShader:
				if shader.ClosestHit == nil {
					return nil, fmt.Errorf("%w: closest hit export %q has no body", ErrInvalidStateObject, name)
				}
				exp.kind = exportClosestHit
			}
			if err := add(exp); err != nil {
				return nil, err
			}
		}
	}
	if rayGenCount == 0 {
		return nil, fmt.Errorf("%w: %q has no ray generation shader", ErrInvalidStateObject, desc.Name)
	}

	for _, hg := range desc.HitGroups {
		idx, ok := so.exportIndex[hg.ClosestHit]
		if !ok || so.exports[idx].kind != exportClosestHit {
			return nil, fmt.Errorf("%w: hit group %q references unknown closest hit shader %q", ErrInvalidStateObject, hg.Name, hg.ClosestHit)
		}
		if err := add(&stateExport{name: hg.Name, kind: exportHitGroup, shader: so.exports[idx].shader}); err != nil {
			return nil, err
		}
	}

	for _, assoc := range desc.LocalRootSignatures {
		if assoc.RootSignature == nil || !assoc.RootSignature.Local() {
			return nil, fmt.Errorf("%w: %q associates a non-local root signature", ErrInvalidStateObject, desc.Name)
		}
		for _, name := range assoc.Exports {
			idx, ok := so.exportIndex[name]
			if !ok {
				return nil, fmt.Errorf("%w: local root signature %q associated with unknown export %q", ErrInvalidStateObject, assoc.RootSignature.Name(), name)
			}
			so.exports[idx].localRootSig = assoc.RootSignature
		}
	}

	return so, nil
}

func (so *StateObject) Name() string {
	return so.desc.Name
}

func (so *StateObject) GlobalRootSignature() *RootSignature {
	return so.desc.GlobalRootSignature
}

func (so *StateObject) MaxTraceRecursionDepth() int {
	return so.desc.MaxTraceRecursionDepth
}

func (so *StateObject) MaxPayloadSizeInBytes() int {
	return so.desc.MaxPayloadSizeInBytes
}

// ShaderIdentifier returns the identifier of a ray generation shader, miss
// shader or hit group.
func (so *StateObject) ShaderIdentifier(export string) ([]byte, error) {
	idx, ok := so.exportIndex[export]
	if !ok || so.exports[idx].kind == exportClosestHit {
		return nil, fmt.Errorf("%w: %q in %q", ErrUnknownExport, export, so.desc.Name)
	}
	id := make([]byte, ShaderIdentifierSize)
	binary.LittleEndian.PutUint64(id[0:], so.id)
	binary.LittleEndian.PutUint32(id[8:], identifierTag)
	binary.LittleEndian.PutUint32(id[12:], uint32(idx+1))
	return id, nil
}

// decodeIdentifier maps an identifier back to its export. An all-zero
// identifier is the null shader and yields a nil export.
func (so *StateObject) decodeIdentifier(id []byte, expKind exportKind) (*stateExport, error) {
	if len(id) < ShaderIdentifierSize {
		return nil, fmt.Errorf("%w: truncated shader identifier", ErrShaderRecordOutOfRange)
	}
	null := true
	for _, b := range id[:ShaderIdentifierSize] {
		if b != 0 {
			null = false
			break
		}
	}
	if null {
		return nil, nil
	}

	if binary.LittleEndian.Uint64(id[0:]) != so.id || binary.LittleEndian.Uint32(id[8:]) != identifierTag {
		return nil, fmt.Errorf("%w: %q", ErrForeignShaderIdentifier, so.desc.Name)
	}
	idx := int(binary.LittleEndian.Uint32(id[12:])) - 1
	if idx < 0 || idx >= len(so.exports) {
		return nil, fmt.Errorf("%w: %q", ErrForeignShaderIdentifier, so.desc.Name)
	}
	exp := so.exports[idx]
	if exp.kind != expKind {
		return nil, fmt.Errorf("%w: export %q used from the wrong shader table", ErrUnknownExport, exp.name)
	}
	return exp, nil
}
