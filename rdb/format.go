// Package rdb implements the flat binary content store used to ship assets to
// the renderer.
//
// A store file is a fixed header, a table of fixed size entries, and then a
// contiguous payload region. Each entry names one serialized value and
// records a type tag so a reader never decodes bytes as the wrong type.
//
//	Header:  magic[4]="RDB0", version:u16=1, reserved:u16, entry_count:u32
//	Entry:   type_tag:u32, offset:u64, len:u64, name[64]
//	Payload: entry_count blobs, laid out right after the entry table
//
// All integers are little-endian. Offsets are relative to the start of the
// payload region.
//
// There are two ways to work with a store. A Builder holds everything in
// memory and may be changed and saved. A View memory maps a saved file
// read-only and hands out slices of the map without copying. Lookups on both
// are a linear scan over the entry table. The expected stores hold tens to a
// few thousand entries, so there is no index.
package rdb

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	// Magic identifies a store file.
	Magic = "RDB0"

	// Version is the only format version this package reads and writes.
	Version uint16 = 1

	// MaxNameLen is the longest logical entry name. The name field is 64
	// bytes and the last byte is kept for the terminator.
	MaxNameLen = 63

	nameFieldLen = 64
	headerSize   = 4 + 2 + 2 + 4
	entrySize    = 4 + 8 + 8 + nameFieldLen
)

var (
	// ErrNameTooLong means an entry name does not fit in 63 bytes. The
	// store is left unchanged.
	ErrNameTooLong = errors.New("rdb: entry name longer than 63 bytes")

	// ErrInvalidName means an entry name is empty or contains a NUL byte.
	ErrInvalidName = errors.New("rdb: entry name is empty or contains NUL")

	// ErrBadHeader means the magic or version of a file did not match.
	ErrBadHeader = errors.New("rdb: bad header")

	// ErrTooSmall means a file is shorter than what its header declares.
	ErrTooSmall = errors.New("rdb: file too small")

	// ErrNotFound means no entry has exactly the requested name. It also
	// matches ErrBadHeader under errors.Is.
	ErrNotFound error = &fetchError{"rdb: no such entry"}

	// ErrTypeMismatch means an entry exists but holds a different type. It
	// also matches ErrBadHeader under errors.Is.
	ErrTypeMismatch error = &fetchError{"rdb: entry type does not match"}

	// ErrDecode means the payload is present but cannot be decoded into the
	// requested shape.
	ErrDecode = errors.New("rdb: cannot decode entry")
)

// fetchError is a fetch which found no entry with the requested name and
// type. Those count as header failures of the store being read.
type fetchError struct {
	msg string
}

func (e *fetchError) Error() string { return e.msg }

// Is lets every fetch failure match ErrBadHeader.
func (e *fetchError) Is(target error) bool { return target == ErrBadHeader }

// EntryInfo is the metadata for one stored entry.
type EntryInfo struct {
	Name    string
	TypeTag uint32
	Offset  uint64
	Len     uint64
}

// entry is the in memory form of one row in the entry table.
type entry struct {
	tag    uint32
	offset uint64
	len    uint64
	name   [nameFieldLen]byte
}

// logicalName returns the name bytes up to the first NUL.
func (e *entry) logicalName() []byte {
	n := bytes.IndexByte(e.name[:], 0)
	if n < 0 {
		n = nameFieldLen
	}
	return e.name[:n]
}

func (e *entry) info() EntryInfo {
	return EntryInfo{
		Name:    string(e.logicalName()),
		TypeTag: e.tag,
		Offset:  e.offset,
		Len:     e.len,
	}
}

// is reports whether the logical name is exactly name. A stored "alpha"
// does not match "alpha_beta" or "alp".
func (e *entry) is(name string) bool {
	return string(e.logicalName()) == name
}

// CheckName returns the error Add would give for name, or nil if name can be
// stored.
func CheckName(name string) error {
	_, err := checkName(name)
	return err
}

// checkName validates a logical entry name and returns the padded field.
func checkName(name string) ([nameFieldLen]byte, error) {
	var field [nameFieldLen]byte
	if len(name) > MaxNameLen {
		return field, ErrNameTooLong
	}
	if len(name) == 0 || bytes.IndexByte([]byte(name), 0) >= 0 {
		return field, ErrInvalidName
	}
	copy(field[:], name)
	return field, nil
}

func putHeader(buf []byte, count uint32) {
	copy(buf[0:4], Magic)
	binary.LittleEndian.PutUint16(buf[4:6], Version)
	binary.LittleEndian.PutUint16(buf[6:8], 0)
	binary.LittleEndian.PutUint32(buf[8:12], count)
}

func putEntry(buf []byte, e *entry) {
	binary.LittleEndian.PutUint32(buf[0:4], e.tag)
	binary.LittleEndian.PutUint64(buf[4:12], e.offset)
	binary.LittleEndian.PutUint64(buf[12:20], e.len)
	copy(buf[20:entrySize], e.name[:])
}

func readEntry(buf []byte) entry {
	var e entry
	e.tag = binary.LittleEndian.Uint32(buf[0:4])
	e.offset = binary.LittleEndian.Uint64(buf[4:12])
	e.len = binary.LittleEndian.Uint64(buf[12:20])
	copy(e.name[:], buf[20:entrySize])
	return e
}

// layout checks the header and entry table at the front of data and returns
// the parsed entries along with the start of the payload region.
func layout(data []byte) ([]entry, int, error) {
	if len(data) < headerSize {
		return nil, 0, ErrTooSmall
	}
	if string(data[0:4]) != Magic ||
		binary.LittleEndian.Uint16(data[4:6]) != Version {
		return nil, 0, ErrBadHeader
	}
	count := uint64(binary.LittleEndian.Uint32(data[8:12]))
	payloadStart := uint64(headerSize) + count*entrySize
	if uint64(len(data)) < payloadStart {
		return nil, 0, ErrTooSmall
	}
	payloadLen := uint64(len(data)) - payloadStart
	entries := make([]entry, count)
	for i := range entries {
		off := headerSize + i*entrySize
		entries[i] = readEntry(data[off : off+entrySize])
		e := &entries[i]
		if e.offset > payloadLen || e.len > payloadLen-e.offset {
			return nil, 0, ErrTooSmall
		}
	}
	return entries, int(payloadStart), nil
}
