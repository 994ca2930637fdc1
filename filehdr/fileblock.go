package filehdr

import (
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/tinyos-edu/tinyos/common"
	"github.com/tinyos-edu/tinyos/disk"
	"github.com/tinyos-edu/tinyos/util"
)

// indirect is one on-disk indirect block plus its cached children.
//
// depth counts the indirect levels from this block down: the entries of
// a depth-1 block are data sectors, deeper blocks point at further
// indirect blocks. A nil child with a non-Empty entry means the child
// block lives on disk and has not been loaded yet.
type indirect struct {
	depth    int32
	sector   common.Snum
	entries  []common.Snum
	children []*indirect
	dirty    bool
}

func mkIndirect(depth int32, sector common.Snum) *indirect {
	blk := &indirect{
		depth:    depth,
		sector:   sector,
		entries:  make([]common.Snum, common.Fanout),
		children: make([]*indirect, common.Fanout),
	}
	for i := range blk.entries {
		blk.entries[i] = common.Empty
	}
	return blk
}

// leavesPer returns how many data sectors one block at the given depth
// can reach.
func leavesPer(depth int32) int32 {
	n := int32(1)
	for i := int32(0); i < depth; i++ {
		n *= common.Fanout
	}
	return n
}

func fetchIndirect(d disk.Disk, depth int32, sector common.Snum) *indirect {
	blk := mkIndirect(depth, sector)
	dec := marshal.NewDec(d.ReadSector(sector))
	for i := range blk.entries {
		id := int32(dec.GetInt32())
		if id < common.Empty || id >= d.Size() {
			panic(fmt.Errorf("filehdr: corrupt indirect block %d: entry %d is %d", sector, i, id))
		}
		blk.entries[i] = id
	}
	return blk
}

func (blk *indirect) writeBack(d disk.Disk) {
	enc := marshal.NewEnc(uint64(disk.SectorSize))
	for _, id := range blk.entries {
		enc.PutInt32(uint32(id))
	}
	d.WriteSector(blk.sector, enc.Finish())
	blk.dirty = false
}

// child returns the loaded indirect block under entry m, reading it
// from disk on first use.
func (blk *indirect) child(d disk.Disk, m int32) *indirect {
	if blk.depth <= 1 {
		panic("filehdr: depth-1 block has no indirect children")
	}
	if blk.entries[m] == common.Empty {
		panic(fmt.Errorf("filehdr: empty entry %d in indirect block %d", m, blk.sector))
	}
	if blk.children[m] == nil {
		blk.children[m] = fetchIndirect(d, blk.depth-1, blk.entries[m])
	}
	return blk.children[m]
}

// allocate acquires data sectors for the first count leaves under this
// block, left to right, creating child blocks on demand. Every acquired
// sector id is appended to *pending so the caller can roll back.
// Returns false if the free map ran out.
func (blk *indirect) allocate(d disk.Disk, fm FreeMap, count int32, pending *[]common.Snum) bool {
	if blk.depth == 1 {
		for m := int32(0); m < count; m++ {
			id := fm.FindAndSet()
			if id == common.Empty {
				return false
			}
			*pending = append(*pending, id)
			blk.entries[m] = id
		}
		blk.dirty = true
		return true
	}
	per := leavesPer(blk.depth - 1)
	for m := int32(0); count > 0; m++ {
		id := fm.FindAndSet()
		if id == common.Empty {
			return false
		}
		*pending = append(*pending, id)
		blk.entries[m] = id
		blk.children[m] = mkIndirect(blk.depth-1, id)
		blk.dirty = true
		n := util.Min(uint64(count), uint64(per))
		if !blk.children[m].allocate(d, fm, int32(n), pending) {
			return false
		}
		count -= int32(n)
	}
	return true
}

// deallocate clears the data sectors of the first *remaining leaves
// under this block, then the block's own children, bottom-up. The
// block's own sector is cleared by the parent.
func (blk *indirect) deallocate(d disk.Disk, fm FreeMap, remaining *int32) {
	for m := int32(0); m < common.Fanout && *remaining > 0; m++ {
		if blk.entries[m] == common.Empty {
			continue
		}
		if blk.depth == 1 {
			fm.Clear(blk.entries[m])
			*remaining--
		} else {
			child := blk.child(d, m)
			child.deallocate(d, fm, remaining)
			fm.Clear(blk.entries[m])
			blk.children[m] = nil
		}
		blk.entries[m] = common.Empty
	}
	blk.dirty = true
}

// flush writes this block and any dirty loaded descendants to disk.
func (blk *indirect) flush(d disk.Disk) {
	if blk.dirty {
		blk.writeBack(d)
	}
	if blk.depth > 1 {
		for _, child := range blk.children {
			if child != nil {
				child.flush(d)
			}
		}
	}
}

// byteToSector resolves virtual block v (relative to this subtree) to
// its data sector.
func (blk *indirect) byteToSector(d disk.Disk, v int32) common.Snum {
	if blk.depth == 1 {
		id := blk.entries[v]
		if id == common.Empty {
			panic(fmt.Errorf("filehdr: no data sector at virtual block %d under block %d", v, blk.sector))
		}
		return id
	}
	per := leavesPer(blk.depth - 1)
	return blk.child(d, v/per).byteToSector(d, v%per)
}

// liveSectors appends the block's sector, its descendants' sectors, and
// its first *remaining data sectors in traversal order.
func (blk *indirect) liveSectors(d disk.Disk, remaining *int32, out []common.Snum) []common.Snum {
	out = append(out, blk.sector)
	for m := int32(0); m < common.Fanout && *remaining > 0; m++ {
		if blk.entries[m] == common.Empty {
			continue
		}
		if blk.depth == 1 {
			out = append(out, blk.entries[m])
			*remaining--
		} else {
			out = blk.child(d, m).liveSectors(d, remaining, out)
		}
	}
	return out
}
