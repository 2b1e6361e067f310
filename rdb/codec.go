package rdb

import (
	"hash/fnv"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// Values are stored as CBOR using the core deterministic encoding, so the
// same value always produces the same bytes. The terrain pipeline hashes
// these bytes and depends on that.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

// Marshal encodes v the same way the store does.
func Marshal(v interface{}) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(err, "encoding %T", v)
	}
	return b, nil
}

// Unmarshal decodes data produced by Marshal into v, which must be a pointer.
func Unmarshal(data []byte, v interface{}) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return errors.Wrapf(ErrDecode, "%T: %s", v, err.Error())
	}
	return nil
}

// TypeTagOf returns the tag recorded for values of type t. It is the FNV-1a
// hash of the package path and type name, folded to 32 bits. Pointer types
// tag the same as the type they point to.
//
// The tag depends on the import path, so moving a stored type to another
// package makes existing entries unreadable as that type.
func TypeTagOf(t reflect.Type) uint32 {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	ident := t.String()
	if t.Name() != "" && t.PkgPath() != "" {
		ident = t.PkgPath() + "." + t.Name()
	}
	h := fnv.New64a()
	h.Write([]byte(ident))
	sum := h.Sum64()
	return uint32(sum>>32) ^ uint32(sum)
}

// TagFor returns the type tag for the dynamic type of v.
func TagFor(v interface{}) uint32 {
	return TypeTagOf(reflect.TypeOf(v))
}
