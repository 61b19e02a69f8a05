package svgf

import "fmt"

// DoubleBuffer holds a ping-pong pair. Current is written during a frame
// while Previous holds the committed values of the last frame.
type DoubleBuffer[T any] struct {
	items  [2]T
	index  int
	frames uint64
	used   bool
}

// Current returns the element written this frame.
func (b *DoubleBuffer[T]) Current() T {
	return b.items[b.index]
}

// Previous returns the element committed by the last frame.
func (b *DoubleBuffer[T]) Previous() T {
	return b.items[b.index^1]
}

// Index returns the index of the current element.
func (b *DoubleBuffer[T]) Index() int {
	return b.index
}

// At returns element i.
func (b *DoubleBuffer[T]) At(i int) T {
	return b.items[i]
}

// Set replaces element i.
func (b *DoubleBuffer[T]) Set(i int, v T) {
	b.items[i] = v
}

// MarkUsed records that the current element was written this frame.
func (b *DoubleBuffer[T]) MarkUsed() {
	b.used = true
}

// Frames returns the number of frames committed since the last Reset.
// Previous only holds valid history when it is non-zero.
func (b *DoubleBuffer[T]) Frames() uint64 {
	return b.frames
}

// Advance commits the current frame and returns the new current index. It
// fails if nothing marked the current element as used since the last call.
func (b *DoubleBuffer[T]) Advance() (int, error) {
	if !b.used {
		return b.index, fmt.Errorf("%w (index %d, frame %d)", ErrFrameSequence, b.index, b.frames)
	}
	b.used = false
	b.index ^= 1
	b.frames++
	return b.index, nil
}

// Reset drops the history.
func (b *DoubleBuffer[T]) Reset() {
	b.index = 0
	b.frames = 0
	b.used = false
}
