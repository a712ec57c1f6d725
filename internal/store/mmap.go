package store

import (
	"os"

	"golang.org/x/sys/unix"
)

// mapFile memory-maps path read-only with sequential-access kernel hints.
// done releases the mapping; callers must not retain the returned bytes
// past it. Falls back to a plain read when mmap is unavailable (empty
// files, exotic filesystems).
func mapFile(path string) ([]byte, func(), error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil, nil, err
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, nil, err
	}
	size := st.Size
	if size == 0 {
		unix.Close(fd)
		return nil, func() {}, nil
	}

	// Hint kernel: the parse is one sequential pass.
	_ = unix.Fadvise(fd, 0, size, unix.FADV_SEQUENTIAL)

	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		unix.Close(fd)
		buf, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil, nil, rerr
		}
		return buf, func() {}, nil
	}
	_ = unix.Madvise(data, unix.MADV_SEQUENTIAL)

	done := func() {
		_ = unix.Munmap(data)
		_ = unix.Close(fd)
	}
	return data, done, nil
}
