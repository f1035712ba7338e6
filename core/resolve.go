package core

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Resolve converts a stream's relocation entries into concrete bytes.
//
// Entries targeting unbound labels are collected into the returned error
// set without patching anything. Otherwise the resolver runs the
// relaxation loop: any entry whose value does not fit its field is
// re-encoded with its next wider form, which grows the code and shifts
// every later offset, so passes repeat until none widens. Widths only
// grow and each widening chain is finite, so the loop terminates.
//
// At the fixed point every internal entry is patched in place using order
// for multi-byte fields. Entries that do not fit even their widest form
// collect ErrDisplacementRange; external-symbol entries are never patched
// and are carried into the buffer for downstream linking. Any error means
// no buffer is produced.
func Resolve(code []byte, relocs []Relocation, labels *Labels, order binary.ByteOrder) (*Buffer, error) {
	var errs ResolveErrors

	// Unbound targets first: the pending-reference lists report each
	// referenced label once, then stop.
	for id := LabelID(0); int(id) < labels.Len(); id++ {
		if _, ok := labels.Bound(id); !ok && labels.Referenced(id) {
			errs = append(errs, fmt.Errorf("%w: %s", ErrUnboundLabel, labels.describe(id)))
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	// Relaxation: widen until stable.
	for pass := 1; ; pass++ {
		widened := 0
		for i := range relocs {
			r := &relocs[i]
			if r.Symbol != "" || r.Relax == nil {
				continue
			}
			target, ok := labels.Bound(r.Label)
			if !ok || r.fits(r.value(target)) {
				continue
			}
			code = widen(code, relocs, labels, i)
			widened++
		}
		logrus.Debugf("relocation pass %d: widened %d of %d entries", pass, widened, len(relocs))
		if widened == 0 {
			break
		}
	}

	// Patch pass.
	var external []Relocation
	for i := range relocs {
		r := relocs[i]
		if r.Symbol != "" {
			external = append(external, r)
			continue
		}
		// Entries that bypassed the label table's reference lists, such as
		// identities the table never issued, surface here instead of being
		// patched against a bogus offset.
		target, ok := labels.Bound(r.Label)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrUnboundLabel, labels.describe(r.Label)))
			continue
		}
		v := r.value(target)
		if !r.fits(v) {
			errs = append(errs, fmt.Errorf("%w: %s relocation to %s at offset %#x (value %d, %d-bit field)",
				ErrDisplacementRange, r.Kind, labels.describe(r.Label), r.FieldOffset, v, r.Width.Bits()))
			continue
		}
		patch(code[r.FieldOffset:], v, r.Width, order)
	}
	if len(errs) > 0 {
		return nil, errs
	}

	buf := &Buffer{
		code:    code,
		relocs:  external,
		offsets: make([]int, labels.Len()),
		bound:   make([]bool, labels.Len()),
		names:   make([]string, labels.Len()),
	}
	for i := range labels.labels {
		lb := &labels.labels[i]
		buf.offsets[i] = lb.offset
		buf.bound[i] = lb.bound
		buf.names[i] = lb.name
	}
	return buf, nil
}

// widen re-encodes the instruction owning relocs[i] with its next wider
// form and shifts every label binding and relocation site behind it.
func widen(code []byte, relocs []Relocation, labels *Labels, i int) []byte {
	r := &relocs[i]
	rx := r.Relax
	oldEnd := r.FieldOffset + r.Width.Bytes()
	newLen := len(rx.Head) + rx.Width.Bytes()
	delta := newLen - (oldEnd - r.InstrOffset)

	repl := make([]byte, newLen)
	copy(repl, rx.Head)

	grown := make([]byte, 0, len(code)+delta)
	grown = append(grown, code[:r.InstrOffset]...)
	grown = append(grown, repl...)
	grown = append(grown, code[oldEnd:]...)

	labels.shiftAfter(r.InstrOffset, delta)
	for j := range relocs {
		if j == i {
			continue
		}
		s := &relocs[j]
		if s.InstrOffset >= oldEnd {
			s.InstrOffset += delta
			s.FieldOffset += delta
		}
	}

	r.FieldOffset = r.InstrOffset + len(rx.Head)
	r.Width = rx.Width
	r.Relax = rx.Next
	return grown
}

// patch writes v into a reserved field.
func patch(b []byte, v int64, w Width, order binary.ByteOrder) {
	switch w {
	case W8:
		b[0] = byte(v)
	case W16:
		order.PutUint16(b, uint16(v))
	case W32:
		order.PutUint32(b, uint32(v))
	case W64:
		order.PutUint64(b, uint64(v))
	}
}
