package pagestore

import "unsafe"

// AlignedBuffer returns a zeroed page-sized slice whose first byte
// sits on a page boundary. O_DIRECT transfers require the user buffer
// to be aligned to the device block size; page alignment satisfies
// every filesystem we open.
func (s *Store) AlignedBuffer() []byte {
	return alignedBlock(s.pageSize)
}

func alignedBlock(size int) []byte {
	raw := make([]byte, 2*size)
	rem := int(uintptr(unsafe.Pointer(&raw[0])) % uintptr(size))
	off := 0
	if rem != 0 {
		off = size - rem
	}
	return raw[off : off+size : off+size]
}
