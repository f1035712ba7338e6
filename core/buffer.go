package core

// Buffer is the finalized output of an instruction stream: the resolved
// machine code, the final label offsets and any external-symbol relocations
// left for a downstream linker. It is never produced when finalize fails.
type Buffer struct {
	code    []byte
	relocs  []Relocation
	offsets []int
	bound   []bool
	names   []string
}

// Bytes returns the finalized machine code. The buffer is immutable;
// callers must not modify the returned slice.
func (b *Buffer) Bytes() []byte { return b.code }

// Len returns the length of the finalized code in bytes.
func (b *Buffer) Len() int { return len(b.code) }

// Relocations returns the external-symbol relocations that remain
// unresolved, with offsets relative to the finalized code.
func (b *Buffer) Relocations() []Relocation { return b.relocs }

// LabelOffset returns the final byte offset of a bound label.
func (b *Buffer) LabelOffset(id LabelID) (int, bool) {
	if int(id) >= len(b.offsets) || !b.bound[id] {
		return 0, false
	}
	return b.offsets[id], true
}

// LabelOffsets returns the final offsets of all named, bound labels.
func (b *Buffer) LabelOffsets() map[string]int {
	m := make(map[string]int)
	for i, name := range b.names {
		if name != "" && b.bound[i] {
			m[name] = b.offsets[i]
		}
	}
	return m
}
