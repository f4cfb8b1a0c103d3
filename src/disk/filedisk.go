package disk

import "os"
import "sync"

import "defs"

// / FileDisk_t simulates a disk backed by a host file, the same trick
// / the teaching kernel's userspace filesystem harness uses to run its
// / disk driver without real hardware.
type FileDisk_t struct {
	sync.Mutex
	f    *os.File
	nsec int
}

// / OpenFileDisk opens (or creates) a host file of the given sector
// / count as a Disk_i.
func OpenFileDisk(path string, nsec int) (*FileDisk_t, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(nsec) * SectorSize); err != nil {
		f.Close()
		return nil, err
	}
	return &FileDisk_t{f: f, nsec: nsec}, nil
}

// / Size reports the disk's capacity in sectors.
func (d *FileDisk_t) Size() int {
	return d.nsec
}

// / Close releases the underlying host file.
func (d *FileDisk_t) Close() error {
	return d.f.Close()
}

// / Start services a block device request, seeking to each sector in
// / turn under the disk's lock so concurrent callers cannot interleave
// / a seek with someone else's read/write.
func (d *FileDisk_t) Start(req *Bdev_req_t) defs.Err_t {
	d.Lock()
	defer d.Unlock()

	var rerr defs.Err_t
	req.Secs.Apply(func(s *Sector_t) {
		if rerr != 0 {
			return
		}
		if s.Sector < 0 || s.Sector >= d.nsec {
			rerr = -defs.EIO
			return
		}
		off := int64(s.Sector) * SectorSize
		switch req.Cmd {
		case BDEV_READ:
			n, err := d.f.ReadAt(s.Data[:], off)
			if n != SectorSize || err != nil {
				rerr = -defs.EIO
			}
		case BDEV_WRITE:
			n, err := d.f.WriteAt(s.Data[:], off)
			if n != SectorSize || err != nil {
				rerr = -defs.EIO
			}
		}
	})
	return rerr
}
