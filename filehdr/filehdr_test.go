package filehdr

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tchajed/marshal"

	"github.com/tinyos-edu/tinyos/bitmap"
	"github.com/tinyos-edu/tinyos/common"
	"github.com/tinyos-edu/tinyos/disk"
)

func mkTestDisk() (disk.Disk, *bitmap.FreeMap) {
	d := disk.NewMemDisk(disk.NumSectors)
	fm := bitmap.MkFreeMap(disk.NumSectors)
	return d, fm
}

func TestSectorCounts(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(int32(0), DataSectors(0))
	assert.Equal(int32(1), DataSectors(1))
	assert.Equal(int32(1), DataSectors(128))
	assert.Equal(int32(2), DataSectors(129))

	assert.Equal(int32(0), IndirectSectors(0))
	assert.Equal(int32(3), IndirectSectors(1), "one block per level")
	assert.Equal(int32(3), IndirectSectors(32), "a full level-3 block")
	assert.Equal(int32(4), IndirectSectors(33), "second level-3 block")
	assert.Equal(int32(32+1+1), IndirectSectors(32*32), "full level-2 subtree")
	assert.Equal(int32(5), MinRequired(2))
}

func TestAllocateTinyFile(t *testing.T) {
	assert := assert.New(t)
	d, fm := mkTestDisk()
	hdr := MkFileHeader(d)

	before := fm.NumClear()
	assert.NoError(hdr.Allocate(fm, 200))
	assert.Equal(int32(200), hdr.FileLength())
	assert.Equal(before-5, fm.NumClear(), "1 root + 1 L2 + 1 L3 + 2 data")

	s0 := hdr.ByteToSector(0)
	s1 := hdr.ByteToSector(128)
	assert.NotEqual(s0, s1)
	assert.Equal(s1, hdr.ByteToSector(199), "same sector as offset 128")
	assert.Equal(s0, hdr.ByteToSector(127))
}

func TestAllocateNoSpace(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDisk(disk.NumSectors)
	fm := bitmap.MkFreeMap(10)
	for i := int32(0); i < 7; i++ {
		fm.Mark(i)
	}
	assert.Equal(int32(3), fm.NumClear())

	// 4 data sectors + 3 indirect blocks needed
	hdr := MkFileHeader(d)
	err := hdr.Allocate(fm, 4*disk.SectorSize)
	assert.Equal(ErrNoSpace, err)
	assert.Equal(int32(3), fm.NumClear(), "free map unchanged on failure")
}

func TestAllocateTooLarge(t *testing.T) {
	d, fm := mkTestDisk()
	hdr := MkFileHeader(d)
	assert.Equal(t, ErrNoSpace, hdr.Allocate(fm, MaxFileSize+1))
}

func TestCoverage(t *testing.T) {
	assert := assert.New(t)
	d, fm := mkTestDisk()
	hdr := MkFileHeader(d)

	// 65 data sectors spans three level-3 blocks
	size := int32(65 * disk.SectorSize)
	assert.NoError(hdr.Allocate(fm, size))

	dataSectors := make(map[common.Snum]bool)
	for off := int32(0); off < size; off += disk.SectorSize {
		id := hdr.ByteToSector(off)
		assert.True(fm.Test(id), "leaf sector must be reserved")
		assert.False(dataSectors[id], "leaf sectors must be distinct")
		dataSectors[id] = true
	}
	assert.Equal(65, len(dataSectors))

	live := hdr.LiveSectors()
	assert.Equal(int(MinRequired(65)), len(live))
	for _, id := range live {
		assert.True(fm.Test(id))
	}
	indirect := 0
	for _, id := range live {
		if !dataSectors[id] {
			indirect++
		}
	}
	assert.Equal(int(IndirectSectors(65)), indirect,
		"data sectors are distinct from indirect blocks")
}

func TestDisjointFiles(t *testing.T) {
	assert := assert.New(t)
	d, fm := mkTestDisk()

	hdrA := MkFileHeader(d)
	hdrB := MkFileHeader(d)
	assert.NoError(hdrA.Allocate(fm, 1000))
	assert.NoError(hdrB.Allocate(fm, 5000))

	owned := make(map[common.Snum]bool)
	for _, id := range hdrA.LiveSectors() {
		owned[id] = true
	}
	for _, id := range hdrB.LiveSectors() {
		assert.False(owned[id], "live files must not share sectors")
	}
}

func TestDeallocateRoundTrip(t *testing.T) {
	assert := assert.New(t)
	d, fm := mkTestDisk()
	hdr := MkFileHeader(d)

	before := fm.NumClear()
	assert.NoError(hdr.Allocate(fm, 3000))
	first := hdr.ByteToSector(0)
	hdr.Deallocate(fm)
	assert.Equal(before, fm.NumClear(), "deallocate returns every sector")

	// find-and-set is deterministic, so reallocation hands back the
	// same sector set
	assert.NoError(hdr.Allocate(fm, 3000))
	assert.Equal(first, hdr.ByteToSector(0))
	assert.Equal(before-MinRequired(DataSectors(3000)), fm.NumClear())
}

func TestDeallocateFromDisk(t *testing.T) {
	assert := assert.New(t)
	d, fm := mkTestDisk()
	hdrSector := fm.FindAndSet()

	hdr := MkFileHeader(d)
	assert.NoError(hdr.Allocate(fm, 40*disk.SectorSize))
	hdr.WriteBack(hdrSector)

	// a fresh header must fetch indirect blocks from disk to free them
	hdr2 := MkFileHeader(d)
	hdr2.FetchFrom(hdrSector)
	hdr2.Deallocate(fm)
	assert.Equal(fm.NumClear(), disk.NumSectors-1, "only the header sector stays used")
}

func TestPersistence(t *testing.T) {
	assert := assert.New(t)
	d, fm := mkTestDisk()
	hdrSector := fm.FindAndSet()

	hdr := MkFileHeader(d)
	size := int32(10 * disk.SectorSize)
	assert.NoError(hdr.Allocate(fm, size))
	hdr.WriteBack(hdrSector)

	hdr2 := MkFileHeader(d)
	hdr2.FetchFrom(hdrSector)
	assert.Equal(size, hdr2.FileLength())
	for off := int32(0); off < size; off += 64 {
		assert.Equal(hdr.ByteToSector(off), hdr2.ByteToSector(off))
	}
}

func TestMultiRootFile(t *testing.T) {
	assert := assert.New(t)
	// a file crossing the first root needs Fanout^3 leaves and change;
	// use a larger simulated disk
	numSectors := int32(40000)
	d := disk.NewMemDisk(numSectors)
	fm := bitmap.MkFreeMap(numSectors)
	hdrSector := fm.FindAndSet()

	perRoot := common.Fanout * common.Fanout * common.Fanout
	size := (perRoot + 1) * disk.SectorSize
	hdr := MkFileHeader(d)
	assert.NoError(hdr.Allocate(fm, size))

	last := hdr.ByteToSector(perRoot * disk.SectorSize)
	assert.NotEqual(hdr.ByteToSector(0), last)
	assert.True(fm.Test(last))

	hdr.WriteBack(hdrSector)
	hdr2 := MkFileHeader(d)
	hdr2.FetchFrom(hdrSector)
	assert.Equal(last, hdr2.ByteToSector(perRoot*disk.SectorSize))

	hdr2.Deallocate(fm)
	assert.Equal(numSectors-1, fm.NumClear())
}

func TestByteToSectorOutOfRange(t *testing.T) {
	d, fm := mkTestDisk()
	hdr := MkFileHeader(d)
	assert.NoError(t, hdr.Allocate(fm, 200))
	assert.Panics(t, func() { hdr.ByteToSector(200) })
	assert.Panics(t, func() { hdr.ByteToSector(-1) })
}

func TestFetchFromCorruptHeader(t *testing.T) {
	d, _ := mkTestDisk()
	enc := marshal.NewEnc(uint64(disk.SectorSize))
	enc.PutInt32(uint32(128)) // size: one sector
	enc.PutInt32(uint32(5))   // sector count does not match
	d.WriteSector(2, enc.Finish())

	hdr := MkFileHeader(d)
	assert.Panics(t, func() { hdr.FetchFrom(2) })
}

func TestPrint(t *testing.T) {
	assert := assert.New(t)
	d, fm := mkTestDisk()
	hdr := MkFileHeader(d)
	assert.NoError(hdr.Allocate(fm, 200))

	var buf bytes.Buffer
	hdr.Print(&buf)
	assert.Contains(buf.String(), "File size: 200")
}
