// Package bitmap implements the free-sector map: one bit per disk
// sector, set when the sector is in use.
package bitmap

import (
	"fmt"

	"github.com/tinyos-edu/tinyos/common"
	"github.com/tinyos-edu/tinyos/disk"
	"github.com/tinyos-edu/tinyos/util"
)

// FreeMap tracks which sectors are allocated. Callers serialize access
// by running with interrupts disabled; there is no internal locking.
type FreeMap struct {
	nbits int32
	bits  []byte
}

func MkFreeMap(nbits int32) *FreeMap {
	fm := &FreeMap{
		nbits: nbits,
		bits:  make([]byte, util.RoundUp(uint64(nbits), 8)),
	}
	return fm
}

func popCnt(b byte) uint64 {
	var n uint64
	for ; b != 0; b >>= 1 {
		n += uint64(b & 1)
	}
	return n
}

func (fm *FreeMap) check(n common.Snum) {
	if n < 0 || n >= fm.nbits {
		panic(fmt.Errorf("bitmap: sector %d out of range", n))
	}
}

// Test reports whether sector n is marked used.
func (fm *FreeMap) Test(n common.Snum) bool {
	fm.check(n)
	return fm.bits[n/8]&(1<<uint(n%8)) != 0
}

// Mark reserves sector n. Fatal if n is already in use; two live owners
// of one sector means the disk is corrupt.
func (fm *FreeMap) Mark(n common.Snum) {
	fm.check(n)
	if fm.Test(n) {
		panic(fmt.Errorf("bitmap: sector %d already marked", n))
	}
	fm.bits[n/8] |= 1 << uint(n%8)
}

// Clear releases sector n. Fatal if n is already clear.
func (fm *FreeMap) Clear(n common.Snum) {
	fm.check(n)
	if !fm.Test(n) {
		panic(fmt.Errorf("bitmap: double free of sector %d", n))
	}
	fm.bits[n/8] &= ^(1 << uint(n%8))
}

// FindAndSet reserves the lowest-numbered clear sector and returns its
// id, or Empty if the disk is full. The byte-then-bit scan keeps
// assignment order deterministic.
func (fm *FreeMap) FindAndSet() common.Snum {
	for byteIndex := int32(0); byteIndex < int32(len(fm.bits)); byteIndex++ {
		byteVal := fm.bits[byteIndex]
		if byteVal == 0xff {
			continue
		}
		for bitIndex := int32(0); bitIndex < 8; bitIndex++ {
			n := byteIndex*8 + bitIndex
			if n >= fm.nbits {
				break
			}
			if byteVal&(1<<uint(bitIndex)) == 0 {
				fm.bits[byteIndex] |= 1 << uint(bitIndex)
				util.DPrintf(10, "FindAndSet: %d\n", n)
				return n
			}
		}
	}
	return common.Empty
}

// NumClear returns the number of currently-free sectors.
func (fm *FreeMap) NumClear() int32 {
	var used uint64
	for _, b := range fm.bits {
		used += popCnt(b)
	}
	return fm.nbits - int32(used)
}

// NumSectors returns how many disk sectors the map itself occupies when
// persisted.
func (fm *FreeMap) NumSectors() int32 {
	return int32(util.RoundUp(uint64(len(fm.bits)), uint64(disk.SectorSize)))
}

// FetchFrom reads the map's bits from consecutive sectors starting at
// sector.
func (fm *FreeMap) FetchFrom(d disk.Disk, sector common.Snum) {
	buf := make([]byte, disk.SectorSize)
	for i := int32(0); i < fm.NumSectors(); i++ {
		d.ReadSectorTo(sector+i, buf)
		copy(fm.bits[i*disk.SectorSize:], buf)
	}
}

// WriteBack writes the map's bits to consecutive sectors starting at
// sector.
func (fm *FreeMap) WriteBack(d disk.Disk, sector common.Snum) {
	buf := make([]byte, disk.SectorSize)
	for i := int32(0); i < fm.NumSectors(); i++ {
		for j := range buf {
			buf[j] = 0
		}
		copy(buf, fm.bits[i*disk.SectorSize:])
		d.WriteSector(sector+i, buf)
	}
}
