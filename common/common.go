package common

import (
	"github.com/tinyos-edu/tinyos/disk"
)

// Snum names a disk sector. Negative values other than Empty are
// invalid.
type Snum = int32

const (
	// Empty marks a missing sector in a header or indirect block.
	Empty Snum = -1

	// Fanout is the number of sector ids that fit in one sector when
	// each entry is a 32-bit integer.
	Fanout int32 = disk.SectorSize / 4
)
