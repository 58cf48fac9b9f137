package ir

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Container layout of compiled programs ("DXBC"):
//
//	0   magic    [4]byte "DXBC"
//	4   checksum [16]byte
//	20  version  uint32 (always 1)
//	24  size     uint32 total container size
//	28  count    uint32 number of sections
//	32  offsets  [count]uint32
//
// Each section starts with a four-character code and a uint32 payload size.
// All integers are little endian.
const (
	containerMagic      = "DXBC"
	containerHeaderSize = 32
	sectionHeaderSize   = 8
	checksumOffset      = 4
)

// ErrMalformedContainer is returned when bytecode is not a well-formed
// container. Callers fall back to whole-buffer hashing.
var ErrMalformedContainer = errors.New("malformed program container")

// Section is one tagged section of a program container.
type Section struct {
	FourCC string
	Data   []byte
}

// IsContainer reports whether b starts with the container magic.
func IsContainer(b []byte) bool {
	return len(b) >= len(containerMagic) && string(b[:len(containerMagic)]) == containerMagic
}

// ParseSections walks the container's section table. Every offset and size
// is bounds-checked against the buffer before it is read; any violation
// yields ErrMalformedContainer.
func ParseSections(b []byte) ([]Section, error) {
	if len(b) < containerHeaderSize || !IsContainer(b) {
		return nil, fmt.Errorf("%w: short or missing magic", ErrMalformedContainer)
	}
	le := binary.LittleEndian
	declared := le.Uint32(b[24:28])
	if uint64(declared) > uint64(len(b)) {
		return nil, fmt.Errorf("%w: declared size %d exceeds buffer %d", ErrMalformedContainer, declared, len(b))
	}
	count := uint64(le.Uint32(b[28:32]))
	tableEnd := containerHeaderSize + count*4
	if tableEnd > uint64(len(b)) {
		return nil, fmt.Errorf("%w: section table of %d entries overruns buffer", ErrMalformedContainer, count)
	}

	sections := make([]Section, 0, count)
	for i := uint64(0); i < count; i++ {
		pos := containerHeaderSize + i*4
		off := uint64(le.Uint32(b[pos : pos+4]))
		if off < tableEnd || off+sectionHeaderSize > uint64(len(b)) {
			return nil, fmt.Errorf("%w: section %d header at %d out of range", ErrMalformedContainer, i, off)
		}
		size := uint64(le.Uint32(b[off+4 : off+8]))
		end := off + sectionHeaderSize + size
		if end > uint64(len(b)) {
			return nil, fmt.Errorf("%w: section %d payload overruns buffer", ErrMalformedContainer, i)
		}
		sections = append(sections, Section{
			FourCC: string(b[off : off+4]),
			Data:   b[off+sectionHeaderSize : end],
		})
	}
	return sections, nil
}

// BuildContainer assembles a container from sections. The checksum field is
// filled from checksum (truncated or zero padded to 16 bytes). It exists for
// tests and tooling; real containers come from the host compiler.
func BuildContainer(checksum []byte, sections ...Section) []byte {
	le := binary.LittleEndian
	size := containerHeaderSize + 4*len(sections)
	for _, s := range sections {
		size += sectionHeaderSize + len(s.Data)
	}
	b := make([]byte, size)
	copy(b, containerMagic)
	copy(b[checksumOffset:checksumOffset+16], checksum)
	le.PutUint32(b[20:24], 1)
	le.PutUint32(b[24:28], uint32(size))
	le.PutUint32(b[28:32], uint32(len(sections)))

	off := containerHeaderSize + 4*len(sections)
	for i, s := range sections {
		le.PutUint32(b[containerHeaderSize+4*i:], uint32(off))
		fourcc := []byte(s.FourCC + "    ")[:4]
		copy(b[off:off+4], fourcc)
		le.PutUint32(b[off+4:off+8], uint32(len(s.Data)))
		copy(b[off+sectionHeaderSize:], s.Data)
		off += sectionHeaderSize + len(s.Data)
	}
	return b
}
