// tinyos-sim exercises the filesystem core against a file-backed disk
// and runs a small scheduler workload, printing the debug trace.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tinyos-edu/tinyos/bitmap"
	"github.com/tinyos-edu/tinyos/common"
	"github.com/tinyos-edu/tinyos/disk"
	"github.com/tinyos-edu/tinyos/filehdr"
	"github.com/tinyos-edu/tinyos/interrupt"
	"github.com/tinyos-edu/tinyos/sched"
	"github.com/tinyos-edu/tinyos/stats"
)

var diskPath = flag.String("disk", "tinyos.img", "path of the disk image")
var fileSize = flag.Int("size", 3000, "bytes to allocate for the demo file")
var ticks = flag.Uint64("ticks", 400, "how long to run the scheduler demo")

// freeMapSector is where the persistent free map lives; sector 0 holds
// the demo file's header.
const freeMapSector common.Snum = 1

func runFilesys(d disk.Disk) error {
	fm := bitmap.MkFreeMap(disk.NumSectors)
	fm.Mark(0)
	for i := common.Snum(0); i < fm.NumSectors(); i++ {
		fm.Mark(freeMapSector + i)
	}

	hdr := filehdr.MkFileHeader(d)
	if err := hdr.Allocate(fm, int32(*fileSize)); err != nil {
		return err
	}
	hdr.WriteBack(0)
	fm.WriteBack(d, freeMapSector)
	d.Barrier()
	hdr.Print(os.Stdout)

	// round-trip through the on-disk image
	hdr2 := filehdr.MkFileHeader(d)
	hdr2.FetchFrom(0)
	fm2 := bitmap.MkFreeMap(disk.NumSectors)
	fm2.FetchFrom(d, freeMapSector)
	for off := int32(0); off < hdr2.FileLength(); off += disk.SectorSize {
		if hdr.ByteToSector(off) != hdr2.ByteToSector(off) {
			return fmt.Errorf("offset %d maps differently after fetch", off)
		}
	}
	fmt.Printf("file of %d bytes verified, %d sectors free\n",
		hdr2.FileLength(), fm2.NumClear())

	hdr2.Deallocate(fm2)
	fm2.WriteBack(d, freeMapSector)
	d.Barrier()
	return nil
}

func runScheduler() {
	irq := interrupt.MkController()
	irq.SetLevel(interrupt.IntOff)
	st := stats.MkStats()
	s := sched.MkScheduler(irq, st, os.Stdout, nil)

	boot := sched.MkThread(0, "boot", 50, 0)
	s.Start(boot)
	s.ReadyToRun(sched.MkThread(1, "batch", 20, 200))
	s.ReadyToRun(sched.MkThread(2, "interactive", 80, 30))
	s.ReadyToRun(sched.MkThread(3, "realtime", 120, 10))
	s.ReadyToRun(sched.MkThread(4, "realtime2", 120, 5))

	for st.TotalTicks < *ticks {
		st.Advance(1)
		s.AgeUpdate()
		if s.IsPreemptive() || s.QuantumExpired() {
			running := s.CurrentThread()
			next := s.FindNextToRun()
			if next != nil {
				s.ReadyToRun(running)
				s.Run(next, false)
			}
		}
	}
	s.Print(os.Stdout)
}

func main() {
	flag.Parse()

	d, err := disk.NewFileDisk(*diskPath, disk.NumSectors)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tinyos-sim: %v\n", err)
		os.Exit(1)
	}
	defer d.Close()

	if err := runFilesys(d); err != nil {
		fmt.Fprintf(os.Stderr, "tinyos-sim: %v\n", err)
		os.Exit(1)
	}
	runScheduler()
}
