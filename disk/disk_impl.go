package disk

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

var _ Disk = (*FileDisk)(nil)

// FileDisk stores sectors in a file on the host, one sector per
// SectorSize-byte slot.
type FileDisk struct {
	fd         int
	numSectors int32
}

func NewFileDisk(path string, numSectors int32) (FileDisk, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0666)
	if err != nil {
		return FileDisk{}, err
	}
	var stat unix.Stat_t
	err = unix.Fstat(fd, &stat)
	if err != nil {
		return FileDisk{}, err
	}
	if (stat.Mode&unix.S_IFREG) != 0 && stat.Size != int64(numSectors)*int64(SectorSize) {
		err = unix.Ftruncate(fd, int64(numSectors)*int64(SectorSize))
		if err != nil {
			return FileDisk{}, err
		}
	}
	return FileDisk{fd, numSectors}, nil
}

func (d FileDisk) ReadSectorTo(a int32, buf Sector) {
	if int32(len(buf)) != SectorSize {
		panic("buffer is not sector-sized")
	}
	if a < 0 || a >= d.numSectors {
		panic(fmt.Errorf("out-of-bounds read at %v", a))
	}
	_, err := unix.Pread(d.fd, buf, int64(a)*int64(SectorSize))
	if err != nil {
		panic("read failed: " + err.Error())
	}
}

func (d FileDisk) ReadSector(a int32) Sector {
	buf := make(Sector, SectorSize)
	d.ReadSectorTo(a, buf)
	return buf
}

func (d FileDisk) WriteSector(a int32, v Sector) {
	if int32(len(v)) != SectorSize {
		panic(fmt.Errorf("v is not sector-sized (%d bytes)", len(v)))
	}
	if a < 0 || a >= d.numSectors {
		panic(fmt.Errorf("out-of-bounds write at %v", a))
	}
	_, err := unix.Pwrite(d.fd, v, int64(a)*int64(SectorSize))
	if err != nil {
		panic("write failed: " + err.Error())
	}
}

func (d FileDisk) Size() int32 {
	return d.numSectors
}

func (d FileDisk) Barrier() {
	err := unix.Fsync(d.fd)
	if err != nil {
		panic("file sync failed: " + err.Error())
	}
}

func (d FileDisk) Close() {
	err := unix.Close(d.fd)
	if err != nil {
		panic(err)
	}
}

var _ Disk = (*MemDisk)(nil)

// MemDisk keeps all sectors in memory; used by tests and the simulator.
type MemDisk struct {
	l       *sync.RWMutex
	sectors [][]byte
}

func NewMemDisk(numSectors int32) MemDisk {
	sectors := make([][]byte, numSectors)
	for i := range sectors {
		sectors[i] = make([]byte, SectorSize)
	}
	return MemDisk{l: new(sync.RWMutex), sectors: sectors}
}

func (d MemDisk) ReadSectorTo(a int32, buf Sector) {
	d.l.RLock()
	defer d.l.RUnlock()
	if a < 0 || a >= int32(len(d.sectors)) {
		panic(fmt.Errorf("out-of-bounds read at %v", a))
	}
	copy(buf, d.sectors[a])
}

func (d MemDisk) ReadSector(a int32) Sector {
	buf := make(Sector, SectorSize)
	d.ReadSectorTo(a, buf)
	return buf
}

func (d MemDisk) WriteSector(a int32, v Sector) {
	if int32(len(v)) != SectorSize {
		panic(fmt.Errorf("v is not sector-sized (%d bytes)", len(v)))
	}
	d.l.Lock()
	defer d.l.Unlock()
	if a < 0 || a >= int32(len(d.sectors)) {
		panic(fmt.Errorf("out-of-bounds write at %v", a))
	}
	copy(d.sectors[a], v)
}

func (d MemDisk) Size() int32 {
	// never changes, safe to read lock-free
	return int32(len(d.sectors))
}

func (d MemDisk) Barrier() {}

func (d MemDisk) Close() {}
