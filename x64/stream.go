package x64

import (
	"encoding/binary"
	"fmt"

	"github.com/Urethramancer/asm64/core"
)

// Mode selects the execution mode a stream encodes for.
type Mode uint8

const (
	// Mode64 is 64-bit long mode.
	Mode64 Mode = iota
	// Mode32 is 32-bit protected mode.
	Mode32
)

func (m Mode) mask() modeMask {
	if m == Mode32 {
		return m32
	}
	return m64
}

func (m Mode) String() string {
	if m == Mode32 {
		return "32-bit"
	}
	return "64-bit"
}

// Stream accumulates encoded instructions, raw data, labels and
// relocations for one contiguous chunk of code. A stream is built once and
// finalized once; it is not safe for concurrent use.
type Stream struct {
	mode   Mode
	code   []byte
	labels *core.Labels
	relocs []core.Relocation
	done   bool
}

// NewStream creates an empty stream for the given mode.
func NewStream(mode Mode) *Stream {
	return &Stream{mode: mode, labels: core.NewLabels()}
}

// Mode returns the stream's execution mode.
func (s *Stream) Mode() Mode { return s.mode }

// Len returns the current code size in bytes.
func (s *Stream) Len() int { return len(s.code) }

// DefineLabel creates an unbound label. Bind attaches it to an offset
// later; references may be emitted before or after binding.
func (s *Stream) DefineLabel(name string) core.LabelID {
	return s.labels.Define(name)
}

// Bind attaches a label to the current offset. A label binds exactly once.
func (s *Stream) Bind(id core.LabelID) error {
	if s.done {
		return core.ErrFinalized
	}
	return s.labels.Bind(id, len(s.code))
}

// Label defines a label and binds it to the current offset in one step.
func (s *Stream) Label(name string) (core.LabelID, error) {
	id := s.labels.Define(name)
	return id, s.Bind(id)
}

// LabelAt defines a label bound to an arbitrary offset, which may lie
// ahead of the code written so far.
func (s *Stream) LabelAt(name string, offset int) (core.LabelID, error) {
	if s.done {
		return 0, core.ErrFinalized
	}
	id := s.labels.Define(name)
	return id, s.labels.Bind(id, offset)
}

// Emit encodes one instruction and appends it. Validation errors held by
// the instruction surface here, as do forms illegal in the stream's mode.
func (s *Stream) Emit(in *Inst) error {
	if s.done {
		return core.ErrFinalized
	}
	if in.err != nil {
		return in.err
	}
	f, err := lookup(in, s.mode.mask())
	if err != nil {
		return err
	}
	enc, err := encode(in, f, s.mode)
	if err != nil {
		return err
	}
	if enc.rel != nil {
		if err := s.checkLabel(enc.rel.reloc); err != nil {
			return err
		}
	}
	base := len(s.code)
	s.code = append(s.code, enc.bytes...)
	if enc.rel != nil {
		r := enc.rel.reloc
		r.InstrOffset = base
		r.FieldOffset = base + enc.rel.fieldOff
		s.record(r)
	}
	return nil
}

// checkLabel rejects label identities this stream's table never issued.
func (s *Stream) checkLabel(r core.Relocation) error {
	if r.Symbol == "" && int(r.Label) >= s.labels.Len() {
		return fmt.Errorf("%w: %d", core.ErrNoSuchLabel, r.Label)
	}
	return nil
}

func (s *Stream) record(r core.Relocation) {
	if r.Symbol == "" {
		s.labels.Record(r.Label, len(s.relocs))
	}
	s.relocs = append(s.relocs, r)
}

// Byte appends a raw byte.
func (s *Stream) Byte(v byte) error {
	if s.done {
		return core.ErrFinalized
	}
	s.code = append(s.code, v)
	return nil
}

// Word appends a raw 16-bit value, little-endian.
func (s *Stream) Word(v uint16) error {
	if s.done {
		return core.ErrFinalized
	}
	s.code = binary.LittleEndian.AppendUint16(s.code, v)
	return nil
}

// DWord appends a raw 32-bit value, little-endian.
func (s *Stream) DWord(v uint32) error {
	if s.done {
		return core.ErrFinalized
	}
	s.code = binary.LittleEndian.AppendUint32(s.code, v)
	return nil
}

// QWord appends a raw 64-bit value, little-endian.
func (s *Stream) QWord(v uint64) error {
	if s.done {
		return core.ErrFinalized
	}
	s.code = binary.LittleEndian.AppendUint64(s.code, v)
	return nil
}

// Bytes appends raw bytes verbatim.
func (s *Stream) Bytes(v []byte) error {
	if s.done {
		return core.ErrFinalized
	}
	s.code = append(s.code, v...)
	return nil
}

// Align pads the stream with zero bytes until its length is a multiple of
// n, which must be a power of two.
func (s *Stream) Align(n int) error {
	if s.done {
		return core.ErrFinalized
	}
	if n <= 0 || n&(n-1) != 0 {
		return fmt.Errorf("%w: alignment %d is not a power of two", core.ErrInvalidOperands, n)
	}
	for len(s.code)%n != 0 {
		s.code = append(s.code, 0)
	}
	return nil
}

// Addr appends a pointer-sized absolute reference to a label: 64 bits in
// Mode64, 32 bits in Mode32. The field is patched at finalize.
func (s *Stream) Addr(id core.LabelID) error {
	if s.done {
		return core.ErrFinalized
	}
	if int(id) >= s.labels.Len() {
		return fmt.Errorf("%w: %d", core.ErrNoSuchLabel, id)
	}
	s.record(core.Relocation{
		Label:       id,
		Kind:        core.Absolute,
		Width:       s.addrWidth(),
		InstrOffset: len(s.code),
		FieldOffset: len(s.code),
	})
	s.code = append(s.code, make([]byte, s.addrWidth().Bytes())...)
	return nil
}

// AddrSym appends a pointer-sized absolute reference to an external
// symbol. The field stays zero; the relocation is carried into the buffer.
func (s *Stream) AddrSym(name string) error {
	if s.done {
		return core.ErrFinalized
	}
	s.record(core.Relocation{
		Symbol:      name,
		Kind:        core.Absolute,
		Width:       s.addrWidth(),
		InstrOffset: len(s.code),
		FieldOffset: len(s.code),
	})
	s.code = append(s.code, make([]byte, s.addrWidth().Bytes())...)
	return nil
}

func (s *Stream) addrWidth() core.Width {
	if s.mode == Mode32 {
		return core.W32
	}
	return core.W64
}

// Finalize resolves labels, widens branches that do not reach, patches all
// internal relocation fields and returns the finished buffer. The stream
// rejects further use afterwards.
func (s *Stream) Finalize() (*core.Buffer, error) {
	if s.done {
		return nil, core.ErrFinalized
	}
	s.done = true
	return core.Resolve(s.code, s.relocs, s.labels, binary.LittleEndian)
}
