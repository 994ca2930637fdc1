// Package filehdr manages the disk file header (in UNIX terms, the
// i-node): the single sector describing a file's size and the top of
// its index tree.
//
// The header holds NumRoots root entries; each root names a level-1
// indirect block, which points at level-2 blocks, which point at
// level-3 blocks, which point at data sectors. Sectors are acquired
// lazily along paths, so short files pay for only as much of the tree
// as they reach.
package filehdr

import (
	"errors"
	"fmt"
	"io"

	"github.com/tchajed/marshal"

	"github.com/tinyos-edu/tinyos/common"
	"github.com/tinyos-edu/tinyos/disk"
	"github.com/tinyos-edu/tinyos/util"
)

// NumRoots is how many level-1 indirect block entries fit in the header
// record alongside its two size fields.
const NumRoots int32 = 6

// NumLevels is the number of indirect levels between a root entry and
// the data sectors.
const NumLevels int32 = 3

// MaxFileSize is the largest file a header can describe, in bytes.
const MaxFileSize = NumRoots * common.Fanout * common.Fanout * common.Fanout * disk.SectorSize

// ErrNoSpace reports that the free map cannot supply the data and
// indirect sectors a requested file size needs. It is the only
// recoverable failure; the free map is left unchanged.
var ErrNoSpace = errors.New("filehdr: not enough free sectors")

// FreeMap is the free-sector map interface the header consumes.
type FreeMap interface {
	FindAndSet() common.Snum
	Clear(n common.Snum)
	Test(n common.Snum) bool
	NumClear() int32
}

// FileHeader is the in-memory image of one header sector. Indirect
// blocks are cached as they are touched; dirty ones are flushed by
// Allocate and WriteBack.
type FileHeader struct {
	d       disk.Disk
	size    int32 // file size in bytes
	sectors int32 // number of data sectors
	roots   [NumRoots]common.Snum
	nodes   [NumRoots]*indirect
}

func MkFileHeader(d disk.Disk) *FileHeader {
	hdr := &FileHeader{d: d, size: -1, sectors: -1}
	for i := range hdr.roots {
		hdr.roots[i] = common.Empty
	}
	return hdr
}

// DataSectors returns how many data sectors a file of size bytes
// occupies.
func DataSectors(size int32) int32 {
	return int32(util.RoundUp(uint64(size), uint64(disk.SectorSize)))
}

// IndirectSectors returns how many indirect blocks a file with n data
// sectors needs: the tree shape for n leaves, not a full balanced tree.
func IndirectSectors(n int32) int32 {
	var total int32
	per := int32(1)
	for lvl := int32(0); lvl < NumLevels; lvl++ {
		per *= common.Fanout
		total += int32(util.RoundUp(uint64(n), uint64(per)))
	}
	return total
}

// MinRequired returns the total sectors Allocate will draw from the
// free map for a file with n data sectors.
func MinRequired(n int32) int32 {
	return n + IndirectSectors(n)
}

// Allocate initializes the header for a file of size bytes and acquires
// its data and indirect sectors from fm. On ErrNoSpace the free map is
// unchanged: acquisitions go into a pending list and are all released
// if any step fails.
func (hdr *FileHeader) Allocate(fm FreeMap, size int32) error {
	if size < 0 {
		panic(fmt.Errorf("filehdr: negative file size %d", size))
	}
	if size > MaxFileSize {
		return ErrNoSpace
	}
	sectors := DataSectors(size)
	if fm.NumClear() < MinRequired(sectors) {
		return ErrNoSpace
	}
	hdr.size = size
	hdr.sectors = sectors

	var pending []common.Snum
	perRoot := leavesPer(NumLevels)
	remaining := sectors
	ok := true
	for i := int32(0); remaining > 0; i++ {
		id := fm.FindAndSet()
		if id == common.Empty {
			ok = false
			break
		}
		pending = append(pending, id)
		hdr.roots[i] = id
		hdr.nodes[i] = mkIndirect(NumLevels, id)
		n := int32(util.Min(uint64(remaining), uint64(perRoot)))
		if !hdr.nodes[i].allocate(hdr.d, fm, n, &pending) {
			ok = false
			break
		}
		remaining -= n
	}
	if !ok {
		// roll back; NumClear was checked, so only a racing caller
		// can drain the map from under us
		for _, id := range pending {
			fm.Clear(id)
		}
		for i := range hdr.roots {
			hdr.roots[i] = common.Empty
			hdr.nodes[i] = nil
		}
		return ErrNoSpace
	}
	for _, node := range hdr.nodes {
		if node != nil {
			node.flush(hdr.d)
		}
	}
	util.DPrintf(5, "Allocate: %d bytes, %d data + %d indirect sectors\n",
		size, sectors, IndirectSectors(sectors))
	return nil
}

// Deallocate releases every sector the header owns except the header
// sector itself, clearing leaves before the blocks above them. Indirect
// blocks still cached in memory are not re-read from disk.
func (hdr *FileHeader) Deallocate(fm FreeMap) {
	remaining := hdr.sectors
	for i := int32(0); i < NumRoots; i++ {
		if hdr.roots[i] == common.Empty {
			continue
		}
		node := hdr.root(i)
		node.deallocate(hdr.d, fm, &remaining)
		fm.Clear(hdr.roots[i])
		hdr.roots[i] = common.Empty
		hdr.nodes[i] = nil
	}
	util.DPrintf(5, "Deallocate: %d data sectors released\n", hdr.sectors)
}

// FetchFrom reads the header record from its sector. Indirect blocks
// are not loaded eagerly; ByteToSector faults them in on demand.
func (hdr *FileHeader) FetchFrom(sector common.Snum) {
	dec := marshal.NewDec(hdr.d.ReadSector(sector))
	size := int32(dec.GetInt32())
	sectors := int32(dec.GetInt32())
	if size < 0 || sectors != DataSectors(size) {
		panic(fmt.Errorf("filehdr: corrupt header at sector %d: size %d, sectors %d", sector, size, sectors))
	}
	hdr.size = size
	hdr.sectors = sectors
	for i := range hdr.roots {
		id := int32(dec.GetInt32())
		if id < common.Empty || id >= hdr.d.Size() {
			panic(fmt.Errorf("filehdr: corrupt header at sector %d: root %d is %d", sector, i, id))
		}
		hdr.roots[i] = id
		hdr.nodes[i] = nil
	}
}

// WriteBack serializes the header record into its sector and flushes
// any dirty cached indirect blocks.
func (hdr *FileHeader) WriteBack(sector common.Snum) {
	enc := marshal.NewEnc(uint64(disk.SectorSize))
	enc.PutInt32(uint32(hdr.size))
	enc.PutInt32(uint32(hdr.sectors))
	for _, id := range hdr.roots {
		enc.PutInt32(uint32(id))
	}
	hdr.d.WriteSector(sector, enc.Finish())
	for _, node := range hdr.nodes {
		if node != nil {
			node.flush(hdr.d)
		}
	}
}

func (hdr *FileHeader) root(i int32) *indirect {
	if hdr.roots[i] == common.Empty {
		panic(fmt.Errorf("filehdr: empty root %d", i))
	}
	if hdr.nodes[i] == nil {
		hdr.nodes[i] = fetchIndirect(hdr.d, NumLevels, hdr.roots[i])
	}
	return hdr.nodes[i]
}

// ByteToSector translates a byte offset within the file to the data
// sector holding it. An offset at or past the file size is a caller
// bug and panics; the owning file object clamps offsets first.
func (hdr *FileHeader) ByteToSector(offset int32) common.Snum {
	if offset < 0 || offset >= hdr.size {
		panic(fmt.Errorf("filehdr: offset %d out of range for %d-byte file", offset, hdr.size))
	}
	v := offset / disk.SectorSize
	perRoot := leavesPer(NumLevels)
	return hdr.root(v / perRoot).byteToSector(hdr.d, v%perRoot)
}

// FileLength returns the file size in bytes.
func (hdr *FileHeader) FileLength() int32 {
	return hdr.size
}

// LiveSectors returns every sector the header owns, excluding the
// header sector itself, in traversal order: each root block, its
// descendants, and their data sectors.
func (hdr *FileHeader) LiveSectors() []common.Snum {
	var out []common.Snum
	remaining := hdr.sectors
	for i := int32(0); i < NumRoots && remaining > 0; i++ {
		if hdr.roots[i] == common.Empty {
			continue
		}
		out = hdr.root(i).liveSectors(hdr.d, &remaining, out)
	}
	return out
}

// Print dumps the header for debugging.
func (hdr *FileHeader) Print(w io.Writer) {
	fmt.Fprintf(w, "FileHeader contents. File size: %d. File sectors:", hdr.size)
	for i, id := range hdr.LiveSectors() {
		if i%8 == 0 {
			fmt.Fprintf(w, "\n")
		}
		fmt.Fprintf(w, "%d ", id)
	}
	fmt.Fprintf(w, "\n")
}
