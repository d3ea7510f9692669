package wire

import "testing"

func TestInHeaderRoundTrip(t *testing.T) {
	want := InHeader{Len: InHeaderLen, Opcode: OpLookup, Unique: 42, NodeID: 7, UID: 1000, GID: 1000, PID: 99}
	b := make([]byte, InHeaderLen)
	// build manually since InHeader has no Marshal, mirroring OutHeader.
	putU32 := func(off int, v uint32) {
		b[off], b[off+1], b[off+2], b[off+3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	}
	putU64 := func(off int, v uint64) {
		for i := 0; i < 8; i++ {
			b[off+i] = byte(v >> (8 * i))
		}
	}
	putU32(0, want.Len)
	putU32(4, uint32(want.Opcode))
	putU64(8, want.Unique)
	putU64(16, want.NodeID)
	putU32(24, want.UID)
	putU32(28, want.GID)
	putU32(32, want.PID)

	var got InHeader
	if err := got.Unmarshal(b); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestInHeaderShortBuffer(t *testing.T) {
	var h InHeader
	if err := h.Unmarshal(make([]byte, 10)); err != ErrShortBuffer {
		t.Fatalf("got %v, want ErrShortBuffer", err)
	}
}

func TestOutHeaderMarshal(t *testing.T) {
	h := OutHeader{Len: 24, Error: -2, Unique: 55}
	b := make([]byte, OutHeaderLen)
	h.Marshal(b)

	if got := int32(b[4]) | int32(b[5])<<8 | int32(b[6])<<16 | int32(b[7])<<24; got != -2 {
		t.Fatalf("error field round-trip = %d, want -2", got)
	}
}

func TestEntryOutMarshalLength(t *testing.T) {
	e := EntryOut{NodeID: 3, Generation: 1, EntryValid: 10, AttrValid: 10}
	b := e.Marshal()
	if len(b) != EntryOutLen {
		t.Fatalf("len = %d, want %d", len(b), EntryOutLen)
	}
}

func TestAttrOutMarshalLength(t *testing.T) {
	a := AttrOut{AttrValid: 10}
	b := a.Marshal()
	if len(b) != AttrOutLen {
		t.Fatalf("len = %d, want %d", len(b), AttrOutLen)
	}
}

func TestMknodInUnmarshal(t *testing.T) {
	b := make([]byte, MknodInLen)
	b[0] = 0xA4 // mode low byte
	var m MknodIn
	if err := m.Unmarshal(b); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if m.Mode != 0xA4 {
		t.Fatalf("Mode = %#x, want 0xA4", m.Mode)
	}
}

func TestMknodInShortBuffer(t *testing.T) {
	var m MknodIn
	if err := m.Unmarshal(make([]byte, 4)); err != ErrShortBuffer {
		t.Fatalf("got %v, want ErrShortBuffer", err)
	}
}

func TestMarshalDirentAlignment(t *testing.T) {
	b := MarshalDirent(UnknownIno, 0, 4, "abc")
	if len(b)%8 != 0 {
		t.Fatalf("dirent length %d is not 8-byte aligned", len(b))
	}
	if len(b) < DirentHeaderLen+len("abc") {
		t.Fatalf("dirent too short: %d", len(b))
	}
	if string(b[DirentHeaderLen:DirentHeaderLen+3]) != "abc" {
		t.Fatalf("name not encoded at expected offset")
	}
}

func TestWriteOutMarshal(t *testing.T) {
	w := WriteOut{Size: 128}
	b := w.Marshal()
	if len(b) != WriteOutLen {
		t.Fatalf("len = %d, want %d", len(b), WriteOutLen)
	}
	got := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	if got != 128 {
		t.Fatalf("Size round-trip = %d, want 128", got)
	}
}
