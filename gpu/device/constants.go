package device

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// PackConstants encodes a struct of fixed-size fields into 32-bit root
// constants using the little-endian layout shaders expect.
func PackConstants(v interface{}) ([]uint32, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return nil, fmt.Errorf("%w: cannot pack %T: %v", ErrRootParameter, v, err)
	}
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
	raw := buf.Bytes()
	words := make([]uint32, len(raw)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return words, nil
}

// UnpackConstants decodes root constants into out.
func UnpackConstants(words []uint32, out interface{}) error {
	raw := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(raw[i*4:], w)
	}
	if size := binary.Size(out); size < 0 || size > len(raw) {
		return fmt.Errorf("%w: %T needs %d bytes; %d bound", ErrRootParameter, out, size, len(raw))
	}
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, out); err != nil {
		return fmt.Errorf("%w: cannot unpack %T: %v", ErrRootParameter, out, err)
	}
	return nil
}
