package rdb

import (
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

// Source is the read side shared by Builder and View.
type Source interface {
	// Entries returns the metadata of every entry in storage order.
	Entries() []EntryInfo

	// Lookup returns the first entry whose logical name is exactly name,
	// along with its payload bytes. It returns ErrNotFound if there is none.
	Lookup(name string) (EntryInfo, []byte, error)
}

var (
	// ensure both access modes are interchangeable for readers
	_ Source = &Builder{}
	_ Source = &View{}
)

// Fetch decodes the entry called name as a T. It fails with ErrNotFound if no
// entry has exactly that name and with ErrTypeMismatch if the entry was
// stored as some other type.
func Fetch[T any](src Source, name string) (T, error) {
	var v T
	err := FetchInto(src, name, &v)
	return v, err
}

// FetchInto is the non generic form of Fetch. ptr must be a non-nil pointer;
// the expected type tag is that of the value it points to.
func FetchInto(src Source, name string, ptr interface{}) error {
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.Errorf("rdb: FetchInto needs a non-nil pointer, got %T", ptr)
	}
	info, data, err := src.Lookup(name)
	if err != nil {
		return err
	}
	want := TypeTagOf(rv.Type().Elem())
	if info.TypeTag != want {
		return errors.Wrapf(ErrTypeMismatch, "%s: stored tag %08x, %s has %08x",
			name, info.TypeTag, rv.Type().Elem(), want)
	}
	return errors.Wrapf(Unmarshal(data, ptr), "entry %s", name)
}

// EntriesWithPrefix returns the entries whose name begins with prefix, in
// storage order.
func EntriesWithPrefix(src Source, prefix string) []EntryInfo {
	var result []EntryInfo
	for _, e := range src.Entries() {
		if strings.HasPrefix(e.Name, prefix) {
			result = append(result, e)
		}
	}
	return result
}

// Has reports whether some entry is called exactly name.
func Has(src Source, name string) bool {
	_, _, err := src.Lookup(name)
	return err == nil
}
