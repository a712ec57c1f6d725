package crawler

import "unsafe"

// Linux dirent64 structure layout:
//
//	struct linux_dirent64 {
//	    ino64_t        d_ino;    /* 64-bit inode number */
//	    off64_t        d_off;    /* 64-bit offset to next structure */
//	    unsigned short d_reclen; /* Size of this dirent */
//	    unsigned char  d_type;   /* File type */
//	    char           d_name[]; /* Filename (null-terminated) */
//	};

// File type constants from dirent.h.
const (
	dtUnknown = 0
	dtDir     = 4
	dtReg     = 8
	dtLnk     = 10
)

// dirent is a parsed directory entry: basename, dirent type, and inode.
// Symlink-cycle detection does not rely on this inode: when symlinks are
// followed, the crawler takes (device, inode) from a stat call.
type dirent struct {
	name  string
	dtype uint8
	ino   uint64
}

// parseDirents parses raw getdents64 output. buf holds the raw bytes
// returned by unix.Getdents; dst is reused across calls to avoid per-call
// slice allocation. "." and ".." are dropped here.
func parseDirents(buf []byte, n int, dst []dirent) []dirent {
	entries := dst[:0]
	offset := 0

	for offset < n {
		// The fixed header is 19 bytes.
		if offset+19 > n {
			break
		}

		ino := *(*uint64)(unsafe.Pointer(&buf[offset]))
		reclen := *(*uint16)(unsafe.Pointer(&buf[offset+16]))
		dtype := buf[offset+18]

		if reclen == 0 {
			break // prevent infinite loop on a corrupt buffer
		}

		// d_name starts at offset+19, null-terminated.
		nameStart := offset + 19
		nameEnd := offset + int(reclen)
		if nameEnd > n {
			nameEnd = n
		}

		nameBytes := buf[nameStart:nameEnd]
		nameLen := 0
		for nameLen < len(nameBytes) && nameBytes[nameLen] != 0 {
			nameLen++
		}
		name := string(nameBytes[:nameLen])

		if name != "." && name != ".." {
			entries = append(entries, dirent{name: name, dtype: dtype, ino: ino})
		}

		offset += int(reclen)
	}

	return entries
}

// joinPath concatenates a directory and entry name with a single
// separator. Avoids filepath.Join overhead (no Clean, no validation)
// since the inputs are controlled: dirPath is a valid directory path and
// name is a plain filename.
func joinPath(dirPath, name string) string {
	needsSep := len(dirPath) == 0 || dirPath[len(dirPath)-1] != '/'
	n := len(dirPath) + len(name)
	if needsSep {
		n++
	}
	buf := make([]byte, n)
	copy(buf, dirPath)
	i := len(dirPath)
	if needsSep {
		buf[i] = '/'
		i++
	}
	copy(buf[i:], name)
	return unsafe.String(&buf[0], len(buf))
}
