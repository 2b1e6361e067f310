package rdb

import (
	"bufio"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Builder is the mutable, in memory form of a store. It owns its entry table
// and payload buffer. A Builder is not safe for concurrent use; callers must
// serialize Add, Upsert and Save.
type Builder struct {
	entries []entry
	data    []byte
}

// NewBuilder returns an empty store.
func NewBuilder() *Builder {
	return &Builder{}
}

// Load reads a saved store file into a new Builder. The file contents are
// copied, so the file may change or be removed afterwards.
func Load(path string) (*Builder, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	entries, start, err := layout(data)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	b := &Builder{
		entries: entries,
		data:    make([]byte, len(data)-start),
	}
	copy(b.data, data[start:])
	return b, nil
}

// Len returns the number of entries, duplicates included.
func (b *Builder) Len() int {
	return len(b.entries)
}

// Add encodes v and appends it under name. It never replaces an existing
// entry. If the name is already present the new entry is shadowed by the old
// one on lookup; use Upsert to replace.
func (b *Builder) Add(name string, v interface{}) error {
	field, tag, payload, err := prepare(name, v)
	if err != nil {
		return err
	}
	b.entries = append(b.entries, entry{
		tag:    tag,
		offset: uint64(len(b.data)),
		len:    uint64(len(payload)),
		name:   field,
	})
	b.data = append(b.data, payload...)
	return nil
}

// Upsert makes name map to v. If an entry called name exists its bytes are
// replaced and it keeps its position; any later entries with the same name
// are dropped. Otherwise Upsert is the same as Add.
//
// The whole payload buffer is rebuilt on every call, so an upsert costs time
// proportional to the size of the store. This keeps the format free of holes
// and needs no compaction.
func (b *Builder) Upsert(name string, v interface{}) error {
	field, tag, payload, err := prepare(name, v)
	if err != nil {
		return err
	}
	found := false
	entries := make([]entry, 0, len(b.entries)+1)
	data := make([]byte, 0, len(b.data)+len(payload))
	for i := range b.entries {
		e := b.entries[i]
		src := b.data[e.offset : e.offset+e.len]
		if e.is(name) {
			if found {
				continue
			}
			found = true
			e.tag = tag
			src = payload
		}
		e.offset = uint64(len(data))
		e.len = uint64(len(src))
		entries = append(entries, e)
		data = append(data, src...)
	}
	if !found {
		entries = append(entries, entry{
			tag:    tag,
			offset: uint64(len(data)),
			len:    uint64(len(payload)),
			name:   field,
		})
		data = append(data, payload...)
	}
	b.entries = entries
	b.data = data
	return nil
}

// Remove drops every entry called name and returns how many there were.
// Like Upsert it rebuilds the payload buffer.
func (b *Builder) Remove(name string) int {
	removed := 0
	entries := make([]entry, 0, len(b.entries))
	data := make([]byte, 0, len(b.data))
	for i := range b.entries {
		e := b.entries[i]
		if e.is(name) {
			removed++
			continue
		}
		src := b.data[e.offset : e.offset+e.len]
		e.offset = uint64(len(data))
		entries = append(entries, e)
		data = append(data, src...)
	}
	if removed > 0 {
		b.entries = entries
		b.data = data
	}
	return removed
}

func prepare(name string, v interface{}) ([nameFieldLen]byte, uint32, []byte, error) {
	field, err := checkName(name)
	if err != nil {
		return field, 0, nil, errors.Wrapf(err, "entry %q", name)
	}
	if v == nil {
		return field, 0, nil, errors.Errorf("rdb: nil value for entry %q", name)
	}
	payload, err := Marshal(v)
	if err != nil {
		return field, 0, nil, err
	}
	return field, TagFor(v), payload, nil
}

// Entries returns the metadata of every entry in storage order.
func (b *Builder) Entries() []EntryInfo {
	result := make([]EntryInfo, len(b.entries))
	for i := range b.entries {
		result[i] = b.entries[i].info()
	}
	return result
}

// Lookup returns the first entry called exactly name and its payload. The
// returned slice aliases the builder's buffer and is only valid until the
// next Add or Upsert.
func (b *Builder) Lookup(name string) (EntryInfo, []byte, error) {
	for i := range b.entries {
		e := &b.entries[i]
		if e.is(name) {
			return e.info(), b.data[e.offset : e.offset+e.len], nil
		}
	}
	return EntryInfo{}, nil, errors.Wrap(ErrNotFound, name)
}

// EntryBytes returns the raw payload of the entry called name.
func (b *Builder) EntryBytes(name string) ([]byte, error) {
	_, data, err := b.Lookup(name)
	return data, err
}

// WriteTo writes the complete store file to w. The header's entry count
// always matches the table that follows it.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	var n int64
	buf := make([]byte, headerSize+len(b.entries)*entrySize)
	putHeader(buf, uint32(len(b.entries)))
	for i := range b.entries {
		off := headerSize + i*entrySize
		putEntry(buf[off:off+entrySize], &b.entries[i])
	}
	m, err := w.Write(buf)
	n += int64(m)
	if err != nil {
		return n, err
	}
	m, err = w.Write(b.data)
	n += int64(m)
	return n, err
}

// Save writes the store to path. The bytes go to a scratch file in the same
// directory which is synced and then renamed over path, so path either holds
// the old file or the complete new one.
func (b *Builder) Save(path string) error {
	dir := filepath.Dir(path)
	f, err := ioutil.TempFile(dir, "."+filepath.Base(path)+".scratch-")
	if err != nil {
		return errors.Wrapf(err, "saving %s", path)
	}
	scratch := f.Name()
	w := bufio.NewWriter(f)
	_, err = b.WriteTo(w)
	if err == nil {
		err = w.Flush()
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(scratch, path)
	}
	if err != nil {
		os.Remove(scratch)
		return errors.Wrapf(err, "saving %s", path)
	}
	return nil
}
