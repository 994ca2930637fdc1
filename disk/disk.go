// Package disk provides synchronous sector-granularity access to a
// simulated disk.
package disk

// Sector is a SectorSize-byte buffer
type Sector = []byte

// SectorSize is the size of one disk sector in bytes, the minimum
// addressable unit.
const SectorSize int32 = 128

// NumSectors is the number of sectors on the default simulated disk.
const NumSectors int32 = 1024

// Disk provides access to a logical sector-based disk.
//
// Reads and writes are synchronous: they return once the sector-sized
// buffer has been filled or flushed. Out-of-bounds addresses and I/O
// failures are kernel bugs and panic.
type Disk interface {
	// ReadSector reads the sector at address a.
	//
	// Expects 0 <= a < Size().
	ReadSector(a int32) Sector

	// ReadSectorTo reads the sector at address a into buf.
	//
	// Expects len(buf) == SectorSize.
	ReadSectorTo(a int32, buf Sector)

	// WriteSector updates the sector at address a.
	//
	// Expects len(v) == SectorSize.
	WriteSector(a int32, v Sector)

	// Size reports how big the disk is, in sectors.
	Size() int32

	// Barrier ensures data is persisted.
	Barrier()

	// Close releases any resources used by the disk and makes it
	// unusable.
	Close()
}
