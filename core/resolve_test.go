package core

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveAbsolute(t *testing.T) {
	labels := NewLabels()
	id := labels.Define("data")
	require.NoError(t, labels.Bind(id, 6))

	code := make([]byte, 8)
	relocs := []Relocation{
		{Label: id, Kind: Absolute, Width: W32, InstrOffset: 2, FieldOffset: 2},
	}
	labels.Record(id, 0)

	buf, err := Resolve(code, relocs, labels, binary.LittleEndian)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 6, 0, 0, 0, 0, 0}, buf.Bytes())
	require.Empty(t, buf.Relocations())

	off, ok := buf.LabelOffset(id)
	require.True(t, ok)
	require.Equal(t, 6, off)
}

func TestResolvePCRel(t *testing.T) {
	labels := NewLabels()
	fwd := labels.Define("fwd")
	back := labels.Define("back")
	require.NoError(t, labels.Bind(fwd, 7))
	require.NoError(t, labels.Bind(back, 0))

	// Both fields are 8-bit and relative to their own end.
	code := make([]byte, 8)
	relocs := []Relocation{
		{Label: fwd, Kind: PCRel, Width: W8, InstrOffset: 2, FieldOffset: 3},
		{Label: back, Kind: PCRel, Width: W8, InstrOffset: 4, FieldOffset: 5},
	}
	labels.Record(fwd, 0)
	labels.Record(back, 1)

	buf, err := Resolve(code, relocs, labels, binary.LittleEndian)
	require.NoError(t, err)
	require.Equal(t, byte(3), buf.Bytes()[3])
	require.Equal(t, byte(0xFA), buf.Bytes()[5]) // -6
}

func TestResolveUnbound(t *testing.T) {
	labels := NewLabels()
	id := labels.Define("missing")

	code := make([]byte, 4)
	relocs := []Relocation{
		{Label: id, Kind: PCRel, Width: W8, InstrOffset: 0, FieldOffset: 1},
		{Label: id, Kind: PCRel, Width: W8, InstrOffset: 2, FieldOffset: 3},
	}
	labels.Record(id, 0)
	labels.Record(id, 1)

	buf, err := Resolve(code, relocs, labels, binary.LittleEndian)
	require.Nil(t, buf)
	require.ErrorIs(t, err, ErrUnboundLabel)

	// A label is reported once no matter how many sites reference it.
	var rerrs ResolveErrors
	require.True(t, errors.As(err, &rerrs))
	require.Len(t, rerrs, 1)
}

func TestResolveUnknownLabel(t *testing.T) {
	// An entry naming an identity the table never issued must surface in
	// the error set, not panic or patch a bogus offset.
	labels := NewLabels()
	code := make([]byte, 4)
	relocs := []Relocation{
		{Label: LabelID(12345), Kind: PCRel, Width: W8, InstrOffset: 0, FieldOffset: 1},
	}

	buf, err := Resolve(code, relocs, labels, binary.LittleEndian)
	require.Nil(t, buf)
	require.ErrorIs(t, err, ErrUnboundLabel)
	require.Contains(t, err.Error(), "label 12345")
	require.Equal(t, make([]byte, 4), code)
}

func TestResolveDisplacementRange(t *testing.T) {
	labels := NewLabels()
	id := labels.Define("far")
	require.NoError(t, labels.Bind(id, 190))

	code := make([]byte, 200)
	relocs := []Relocation{
		{Label: id, Kind: PCRel, Width: W8, InstrOffset: 0, FieldOffset: 1},
	}
	labels.Record(id, 0)

	buf, err := Resolve(code, relocs, labels, binary.LittleEndian)
	require.Nil(t, buf)
	require.ErrorIs(t, err, ErrDisplacementRange)
}

func TestResolveRelaxation(t *testing.T) {
	labels := NewLabels()
	id := labels.Define("far")
	near := labels.Define("near")

	// A short jump, 130 bytes of filler, then the target.
	code := make([]byte, 132)
	code[0] = 0xEB
	require.NoError(t, labels.Bind(near, 0))
	require.NoError(t, labels.Bind(id, 132))

	relocs := []Relocation{
		{Label: id, Kind: PCRel, Width: W8, InstrOffset: 0, FieldOffset: 1,
			Relax: &Relax{Head: []byte{0xE9}, Width: W32}},
	}
	labels.Record(id, 0)

	buf, err := Resolve(code, relocs, labels, binary.LittleEndian)
	require.NoError(t, err)

	out := buf.Bytes()
	require.Len(t, out, 135)
	require.Equal(t, byte(0xE9), out[0])
	require.Equal(t, uint32(130), binary.LittleEndian.Uint32(out[1:5]))

	// The target slid with the widened instruction; the binding at the
	// instruction itself did not.
	off, _ := buf.LabelOffset(id)
	require.Equal(t, 135, off)
	off, _ = buf.LabelOffset(near)
	require.Equal(t, 0, off)
}

func TestResolveExternal(t *testing.T) {
	labels := NewLabels()
	code := make([]byte, 5)
	code[0] = 0xE8
	relocs := []Relocation{
		{Symbol: "puts", Kind: PCRel, Width: W32, InstrOffset: 0, FieldOffset: 1},
	}

	buf, err := Resolve(code, relocs, labels, binary.LittleEndian)
	require.NoError(t, err)
	require.Equal(t, []byte{0xE8, 0, 0, 0, 0}, buf.Bytes())

	ext := buf.Relocations()
	require.Len(t, ext, 1)
	require.Equal(t, "puts", ext[0].Symbol)
	require.Equal(t, PCRel, ext[0].Kind)
	require.Equal(t, 1, ext[0].FieldOffset)
}
