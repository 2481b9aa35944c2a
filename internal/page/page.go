// Package page implements the engine's fixed-size page allocator (spec.md
// §4.1): each Page holds a fixed-length row region growing top-down from
// offset 0 and a variable-length granule region growing bottom-up from the
// top of the page. Rows are identified by their fixed-region offset; var-len
// members of a row are VarLenRefs pointing into singly-linked granule
// chains, with large objects (> OBJECT_SIZE_BLOB_THRESHOLD) indirected
// through a BlobStore by content hash.
//
// Grounded on original_source/crates/core/.../mem_arch_datastore/var_len.rs
// for granule sizing/threshold constants, and on the teacher's
// pkg/storage/boltdb.go for the byte-slice/offset allocation discipline
// (freelist-threaded allocation, explicit free on delete).
package page

import "fmt"

// Offset addresses a byte position within a Page. NullOffset never denotes
// a real allocation.
type Offset int32

const NullOffset Offset = -1

func (o Offset) IsNull() bool { return o == NullOffset }

const (
	// Size is the total byte capacity of one Page.
	Size = 64 * 1024

	// GranuleDataSize is the payload capacity of one VarLenGranule.
	GranuleDataSize = 62

	// GranuleSize is the total on-page footprint of one VarLenGranule
	// (2-byte header + data).
	GranuleSize = GranuleDataSize + 2

	// ObjectMaxGranulesBeforeBlob bounds how many granules an inline var-len
	// object may occupy before it must be stored in the blob store instead.
	ObjectMaxGranulesBeforeBlob = 16

	// ObjectSizeBlobThreshold is the largest var-len payload, in bytes, that
	// stays inline across granules; anything larger goes to the blob store.
	ObjectSizeBlobThreshold = GranuleDataSize * ObjectMaxGranulesBeforeBlob
)

// ErrOutOfMemory is returned by allocation when a Page has no room left in
// either the fixed or var-len region.
var ErrOutOfMemory = fmt.Errorf("page: out of memory")

// granule is one link in a var-len object's chain.
type granule struct {
	len  uint8
	next Offset
	data [GranuleDataSize]byte
}

// Page is a single fixed-capacity arena. The fixed region grows upward from
// byte 0; the granule region grows downward from the top. Both regions
// maintain their own freelists so deleted slots are reused before the
// region's high-water mark advances further.
type Page struct {
	buf []byte

	fixedHigh Offset // one past the highest byte ever allocated in the fixed region
	fixedFree Offset // head of the fixed-region freelist, threaded through freed slots

	granuleLow   Offset // lowest byte ever allocated to a granule (granules grow down from Size)
	granuleFree  Offset // head of the granule freelist
	granules     map[Offset]*granule
	granuleFreed map[Offset]bool

	liveFixed map[Offset]bool // currently-allocated fixed-region slot offsets, for ScanRows
}

func NewPage() *Page {
	return &Page{
		buf:          make([]byte, Size),
		fixedHigh:    0,
		fixedFree:    NullOffset,
		granuleLow:   Size,
		granuleFree:  NullOffset,
		granules:     make(map[Offset]*granule),
		granuleFreed: make(map[Offset]bool),
		liveFixed:    make(map[Offset]bool),
	}
}

// LiveFixedOffsets returns the offsets of every currently-allocated fixed
// slot, in ascending order, for Table.ScanRows to iterate.
func (p *Page) LiveFixedOffsets(size int) []Offset {
	out := make([]Offset, 0, len(p.liveFixed))
	for off := range p.liveFixed {
		out = append(out, off)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// AllocFixed reserves size bytes in the fixed region, reusing the most
// recently freed slot (without checking its size) before extending the
// high-water mark. The first
// 4 bytes of a freed slot store the next-free offset (or NullOffset),
// exactly like the teacher's freelist-threaded allocators.
func (p *Page) AllocFixed(size int) (Offset, error) {
	if p.fixedFree != NullOffset {
		off := p.fixedFree
		p.fixedFree = p.readFreelistNext(off)
		p.liveFixed[off] = true
		return off, nil
	}
	if int(p.fixedHigh)+size > int(p.granuleLow) {
		return NullOffset, ErrOutOfMemory
	}
	off := p.fixedHigh
	p.fixedHigh += Offset(size)
	p.liveFixed[off] = true
	return off, nil
}

// FreeFixed returns a fixed-region slot to the freelist.
func (p *Page) FreeFixed(off Offset, size int) {
	delete(p.liveFixed, off)
	p.writeFreelistNext(off, p.fixedFree)
	p.fixedFree = off
}

func (p *Page) readFreelistNext(off Offset) Offset {
	var o int32
	for i := 0; i < 4; i++ {
		o |= int32(p.buf[int(off)+i]) << (8 * i)
	}
	return Offset(o)
}

func (p *Page) writeFreelistNext(off, next Offset) {
	for i := 0; i < 4; i++ {
		p.buf[int(off)+i] = byte(int32(next) >> (8 * i))
	}
}

// Bytes returns the fixed-region storage for direct field reads/writes at
// off..off+size.
func (p *Page) Bytes(off Offset, size int) []byte {
	return p.buf[int(off) : int(off)+size]
}

// allocGranule reserves one granule in the var-len region.
func (p *Page) allocGranule() (Offset, error) {
	if p.granuleFree != NullOffset {
		off := p.granuleFree
		g := p.granules[off]
		p.granuleFree = g.next
		delete(p.granuleFreed, off)
		return off, nil
	}
	if int(p.granuleLow)-GranuleSize < int(p.fixedHigh) {
		return NullOffset, ErrOutOfMemory
	}
	p.granuleLow -= GranuleSize
	off := p.granuleLow
	p.granules[off] = &granule{}
	return off, nil
}

func (p *Page) freeGranule(off Offset) {
	g := p.granules[off]
	g.next = p.granuleFree
	p.granuleFree = off
	p.granuleFreed[off] = true
}

// AllocVarLenSlice chunks data into a chain of granules and returns a
// VarLenRef describing it. Caller decides separately (via blob store
// threshold checks) whether to store data inline or indirect it through the
// blob store; this function only ever writes inline granule chains.
func (p *Page) AllocVarLenSlice(data []byte) (VarLenRef, error) {
	if len(data) == 0 {
		return VarLenRef{LengthInBytes: 0, FirstGranule: NullOffset}, nil
	}
	chunks := chunk(data, GranuleDataSize)
	offs := make([]Offset, len(chunks))
	for i := len(chunks) - 1; i >= 0; i-- {
		off, err := p.allocGranule()
		if err != nil {
			for _, alreadyAllocated := range offs[i+1:] {
				if !alreadyAllocated.IsNull() {
					p.freeGranule(alreadyAllocated)
				}
			}
			return VarLenRef{}, err
		}
		next := NullOffset
		if i+1 < len(offs) {
			next = offs[i+1]
		}
		g := p.granules[off]
		g.len = uint8(len(chunks[i]))
		copy(g.data[:], chunks[i])
		g.next = next
		offs[i] = off
	}
	return VarLenRef{LengthInBytes: uint16(len(data)), FirstGranule: offs[0]}, nil
}

// ReadVarLen reconstructs the bytes referenced by a (non-blob, non-null)
// VarLenRef by walking its granule chain.
func (p *Page) ReadVarLen(ref VarLenRef) []byte {
	if ref.IsNull() {
		return nil
	}
	out := make([]byte, 0, ref.LengthInBytes)
	off := ref.FirstGranule
	for !off.IsNull() {
		g := p.granules[off]
		out = append(out, g.data[:g.len]...)
		off = g.next
	}
	return out
}

// FreeVarLenChain frees every granule in ref's chain.
func (p *Page) FreeVarLenChain(ref VarLenRef) {
	off := ref.FirstGranule
	for !off.IsNull() {
		g := p.granules[off]
		next := g.next
		p.freeGranule(off)
		off = next
	}
}

func chunk(b []byte, size int) [][]byte {
	var out [][]byte
	for len(b) > 0 {
		n := size
		if n > len(b) {
			n = len(b)
		}
		out = append(out, b[:n])
		b = b[n:]
	}
	return out
}
