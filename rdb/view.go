package rdb

import (
	"os"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

// View is a read-only store backed by a memory map of a saved file. Lookups
// slice the map directly and keep no cursor state, so a View may be shared
// by many goroutines. Slices returned from a View are only valid until Close.
type View struct {
	path    string
	m       mmap.MMap
	entries []entry
	payload []byte // the payload region, a subslice of m
}

// Open maps the store file at path. The header and entry table are checked
// before Open returns.
func Open(path string) (*View, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	// the mapping stays valid after the file is closed
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "cannot stat %s", path)
	}
	if fi.Size() < headerSize {
		return nil, errors.Wrapf(ErrTooSmall, "opening %s", path)
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "while mmapping %s", path)
	}
	entries, start, err := layout(m)
	if err != nil {
		m.Unmap()
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	return &View{
		path:    path,
		m:       m,
		entries: entries,
		payload: m[start:],
	}, nil
}

// Path returns the file this view maps.
func (v *View) Path() string {
	return v.path
}

// Len returns the number of entries in the table.
func (v *View) Len() int {
	return len(v.entries)
}

// Size returns the size of the mapped file in bytes.
func (v *View) Size() int {
	return len(v.m)
}

// Entries returns the metadata of every entry in storage order.
func (v *View) Entries() []EntryInfo {
	result := make([]EntryInfo, len(v.entries))
	for i := range v.entries {
		result[i] = v.entries[i].info()
	}
	return result
}

// Lookup returns the first entry called exactly name and a slice of the
// mapped payload.
func (v *View) Lookup(name string) (EntryInfo, []byte, error) {
	for i := range v.entries {
		e := &v.entries[i]
		if e.is(name) {
			return e.info(), v.payload[e.offset : e.offset+e.len : e.offset+e.len], nil
		}
	}
	return EntryInfo{}, nil, errors.Wrap(ErrNotFound, name)
}

// EntryBytes returns the raw payload for name without decoding it. Used by
// the inspection tools.
func (v *View) EntryBytes(name string) ([]byte, error) {
	_, data, err := v.Lookup(name)
	return data, err
}

// Close releases the memory map.
func (v *View) Close() error {
	if v.m == nil {
		return nil
	}
	err := v.m.Unmap()
	v.m = nil
	v.entries = nil
	v.payload = nil
	return err
}
