package disk

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemDisk(t *testing.T) {
	assert := assert.New(t)
	d := NewMemDisk(16)
	assert.Equal(int32(16), d.Size())

	buf := make([]byte, SectorSize)
	buf[0] = 0xa5
	buf[SectorSize-1] = 0x5a
	d.WriteSector(3, buf)

	got := d.ReadSector(3)
	assert.Equal(buf, got)
	assert.Equal(make([]byte, SectorSize), d.ReadSector(4), "other sectors stay zero")
}

func TestMemDiskBounds(t *testing.T) {
	d := NewMemDisk(4)
	assert.Panics(t, func() { d.ReadSector(4) })
	assert.Panics(t, func() { d.WriteSector(-1, make([]byte, SectorSize)) })
	assert.Panics(t, func() { d.WriteSector(0, make([]byte, 7)) })
}

func TestFileDisk(t *testing.T) {
	assert := assert.New(t)
	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := NewFileDisk(path, 32)
	assert.NoError(err)
	assert.Equal(int32(32), d.Size())

	buf := make([]byte, SectorSize)
	copy(buf, "persisted")
	d.WriteSector(7, buf)
	d.Barrier()
	d.Close()

	d2, err := NewFileDisk(path, 32)
	assert.NoError(err)
	defer d2.Close()
	assert.Equal(buf, d2.ReadSector(7), "contents survive reopen")
}
