package core

import "fmt"

// LabelID identifies a label within one stream's table.
type LabelID uint32

type label struct {
	name   string
	offset int
	bound  bool
	refs   []int // indices into the stream's relocation list
}

// Labels tracks every label created during stream construction. A label is
// Unbound until Bind places it at a byte offset; the transition happens at
// most once.
type Labels struct {
	labels []label
}

// NewLabels creates an empty label table.
func NewLabels() *Labels {
	return &Labels{}
}

// Define creates a new unbound label. The name is optional display
// metadata and may be empty.
func (l *Labels) Define(name string) LabelID {
	l.labels = append(l.labels, label{name: name})
	return LabelID(len(l.labels) - 1)
}

// Bind attaches a label to a byte offset. Binding an already bound label
// fails with ErrLabelBound.
func (l *Labels) Bind(id LabelID, offset int) error {
	if int(id) >= len(l.labels) {
		return fmt.Errorf("%w: %d", ErrNoSuchLabel, id)
	}
	lb := &l.labels[id]
	if lb.bound {
		return fmt.Errorf("%w: %s", ErrLabelBound, l.describe(id))
	}
	lb.bound = true
	lb.offset = offset
	return nil
}

// Bound returns the bound offset of a label, or false while it is unbound.
func (l *Labels) Bound(id LabelID) (int, bool) {
	if int(id) >= len(l.labels) {
		return 0, false
	}
	lb := &l.labels[id]
	return lb.offset, lb.bound
}

// Name returns the display name given at Define, if any.
func (l *Labels) Name(id LabelID) string {
	if int(id) >= len(l.labels) {
		return ""
	}
	return l.labels[id].name
}

// Record appends a relocation index to a label's pending reference list.
func (l *Labels) Record(id LabelID, reloc int) {
	if int(id) >= len(l.labels) {
		return
	}
	lb := &l.labels[id]
	lb.refs = append(lb.refs, reloc)
}

// Referenced reports whether any relocation ever targeted the label.
func (l *Labels) Referenced(id LabelID) bool {
	if int(id) >= len(l.labels) {
		return false
	}
	return len(l.labels[id].refs) > 0
}

// Len returns the number of defined labels.
func (l *Labels) Len() int { return len(l.labels) }

// describe formats a label for error messages, preferring its name. Safe
// for identities the table never issued.
func (l *Labels) describe(id LabelID) string {
	if int(id) >= len(l.labels) {
		return fmt.Sprintf("label %d", id)
	}
	if name := l.labels[id].name; name != "" {
		return name
	}
	return fmt.Sprintf("label %d", id)
}

// shiftAfter moves every bound offset strictly greater than off by delta.
// Used while relaxation grows an instruction: the binding at the widened
// instruction itself stays put, everything behind it slides.
func (l *Labels) shiftAfter(off, delta int) {
	for i := range l.labels {
		lb := &l.labels[i]
		if lb.bound && lb.offset > off {
			lb.offset += delta
		}
	}
}
